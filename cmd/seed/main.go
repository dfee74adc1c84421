package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/superhero-manager/backend/internal/config"
	"github.com/superhero-manager/backend/internal/database"
	"github.com/superhero-manager/backend/internal/models"
	"github.com/superhero-manager/backend/internal/repository"
	"github.com/superhero-manager/backend/internal/seed"
	"github.com/superhero-manager/backend/internal/service"
	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	heroFile    string
	resetHeroes bool
)

var rootCmd = &cobra.Command{
	Use:           "seed",
	Short:         "Load initial data into the SuperHero Manager database",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// usersCmd creates the admin and editor accounts
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Create admin and editor accounts",
	Long: `Create the admin and editor accounts from the environment.

Reads ADMIN_USERNAME/ADMIN_PASSWORD and EDITOR_USERNAME/EDITOR_PASSWORD.
Usernames default to "admin" and "editor"; an account without a password
is skipped, and so is a username that already exists.`,
	RunE: runUsers,
}

// heroesCmd imports hero records from a file
var heroesCmd = &cobra.Command{
	Use:   "heroes",
	Short: "Import heroes from a JSON or YAML file",
	RunE:  runHeroes,
}

func init() {
	heroesCmd.Flags().StringVarP(&heroFile, "file", "f", "", "hero file (.json, .yaml or .yml)")
	heroesCmd.Flags().BoolVar(&resetHeroes, "reset", false, "delete every existing hero first")
	_ = heroesCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(usersCmd, heroesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func openDatabase() (*config.Config, *gorm.DB, error) {
	cfg := config.Load()
	if err := logger.Init(!cfg.IsProduction()); err != nil {
		log.Printf("Failed to initialize logger: %v", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func runUsers(cmd *cobra.Command, args []string) error {
	cfg, db, err := openDatabase()
	if err != nil {
		return err
	}
	defer logger.Sync()

	auth := service.NewAuthService(repository.NewUserRepository(db), cfg.JWTSecret, cfg.JWTExpiry)
	created, err := seed.Users(cmd.Context(), auth, []seed.Account{
		{Username: envOr("ADMIN_USERNAME", "admin"), Password: os.Getenv("ADMIN_PASSWORD"), Role: models.RoleAdmin},
		{Username: envOr("EDITOR_USERNAME", "editor"), Password: os.Getenv("EDITOR_PASSWORD"), Role: models.RoleEditor},
	})
	if err != nil {
		return err
	}

	logger.Log.Info("User seeding completed", zap.Strings("created", created))
	return nil
}

func runHeroes(cmd *cobra.Command, args []string) error {
	heroes, err := seed.LoadHeroesFile(heroFile)
	if err != nil {
		return fmt.Errorf("load %s: %w", heroFile, err)
	}

	_, db, err := openDatabase()
	if err != nil {
		return err
	}
	defer logger.Sync()

	return seed.ImportHeroes(cmd.Context(), repository.NewHeroRepository(db), heroes, resetHeroes)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
