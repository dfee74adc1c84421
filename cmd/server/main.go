package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/superhero-manager/backend/internal/broker"
	"github.com/superhero-manager/backend/internal/config"
	"github.com/superhero-manager/backend/internal/database"
	"github.com/superhero-manager/backend/internal/jobs"
	"github.com/superhero-manager/backend/internal/metrics"
	"github.com/superhero-manager/backend/internal/repository"
	"github.com/superhero-manager/backend/internal/router"
	"github.com/superhero-manager/backend/internal/service"
	"github.com/superhero-manager/backend/internal/storage"
	"github.com/superhero-manager/backend/internal/wal"
	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(!cfg.IsProduction(), cfg.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Log.Fatal("Invalid configuration", zap.Error(err))
	}
	logger.Log.Info("Config loaded", zap.String("environment", cfg.Environment))

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to connect database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("Failed to migrate database", zap.Error(err))
	}

	journal, err := wal.NewWAL(cfg.JournalPath)
	if err != nil {
		logger.Log.Fatal("Failed to open image journal", zap.Error(err))
	}
	defer journal.Close()

	images, err := storage.NewImageStore(cfg.UploadDir, cfg.UploadURLPrefix, cfg.MaxUploadSize)
	if err != nil {
		logger.Log.Fatal("Failed to prepare upload directory", zap.Error(err))
	}

	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	// Redis is optional: without it events stay in process and the
	// rate limiter and response cache are disabled
	var (
		redisClient *redis.Client
		heroBroker  broker.HeroBroker
	)
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err = broker.OpenRedis(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		heroBroker = broker.NewRedisBroker(redisClient)
		logger.Log.Info("Redis connected")
	} else {
		heroBroker = broker.NewLocalBroker()
		logger.Log.Warn("REDIS_URL not set, running without rate limiting and response cache")
	}
	defer heroBroker.Close()

	userRepo := repository.NewUserRepository(db)
	heroRepo := repository.NewHeroRepository(db)

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiry)
	userService := service.NewUserService(userRepo, authService)
	heroService := service.NewHeroService(heroRepo, images, journal, heroBroker, m)

	// Settle whatever a previous run left half done before taking traffic
	if _, err := heroService.Recover(context.Background(), 0); err != nil {
		logger.Log.Error("Startup journal recovery failed", zap.Error(err))
	}

	scheduler, err := jobs.NewScheduler(cfg.CleanupSchedule, heroService)
	if err != nil {
		logger.Log.Fatal("Failed to schedule background jobs", zap.Error(err))
	}
	scheduler.Start()

	engine := router.New(router.Deps{
		Config:      cfg,
		DB:          db,
		Redis:       redisClient,
		Registry:    registry,
		Metrics:     m,
		Broker:      heroBroker,
		AuthService: authService,
		UserService: userService,
		HeroService: heroService,
	})

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Log.Info("Server starting", zap.String("addr", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Log.Info("Shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server shutdown incomplete", zap.Error(err))
	}
	scheduler.Stop(ctx)
	logger.Log.Info("Server stopped")
}
