// Package seed loads initial accounts and hero records into the store.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/superhero-manager/backend/internal/models"
	"github.com/superhero-manager/backend/internal/repository"
	"github.com/superhero-manager/backend/internal/service"
	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Account is a user to create if the username is still free
type Account struct {
	Username string
	Password string
	Role     models.Role
}

// Users registers every account with a password set. Existing usernames
// are skipped. Returns the usernames created.
func Users(ctx context.Context, auth *service.AuthService, accounts []Account) ([]string, error) {
	var created []string
	for _, a := range accounts {
		if a.Username == "" || a.Password == "" {
			logger.Log.Warn("Skipping seed account without credentials", zap.String("role", string(a.Role)))
			continue
		}

		user, err := auth.Register(ctx, a.Username, a.Password, string(a.Role))
		if errors.Is(err, service.ErrUsernameTaken) {
			logger.Log.Info("Seed account already exists", zap.String("username", a.Username))
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", a.Username, err)
		}
		created = append(created, user.Username)
	}
	return created, nil
}

// heroRecord is one hero of an import file. Stats left out default to
// models.StatDefault.
type heroRecord struct {
	Name            string          `json:"nom" yaml:"nom"`
	Alias           string          `json:"alias" yaml:"alias"`
	Universe        string          `json:"univers" yaml:"univers"`
	Description     string          `json:"description" yaml:"description"`
	Image           string          `json:"image" yaml:"image"`
	Origin          string          `json:"origine" yaml:"origine"`
	FirstAppearance string          `json:"premiereApparition" yaml:"premiereApparition"`
	Powers          []string        `json:"pouvoirs" yaml:"pouvoirs"`
	Stats           map[string]*int `json:"stats" yaml:"stats"`
}

// ParseHeroes decodes a JSON or YAML array of hero records. format is
// "json" or "yaml".
func ParseHeroes(data []byte, format string) ([]models.Hero, error) {
	var records []heroRecord
	switch format {
	case "json":
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported hero file format %q", format)
	}

	// Records keep file order through strictly increasing creation times
	base := time.Now().UTC()
	heroes := make([]models.Hero, 0, len(records))
	for i, r := range records {
		hero, err := r.toHero()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		hero.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		hero.UpdatedAt = hero.CreatedAt
		heroes = append(heroes, hero)
	}
	return heroes, nil
}

func (r heroRecord) toHero() (models.Hero, error) {
	hero := models.Hero{
		Name:            strings.TrimSpace(r.Name),
		Alias:           strings.TrimSpace(r.Alias),
		Universe:        strings.TrimSpace(r.Universe),
		Description:     strings.TrimSpace(r.Description),
		Image:           strings.TrimSpace(r.Image),
		Origin:          strings.TrimSpace(r.Origin),
		FirstAppearance: strings.TrimSpace(r.FirstAppearance),
		Powers:          make([]string, 0, len(r.Powers)),
		Stats:           models.DefaultStats(),
	}

	var missing []string
	for field, v := range map[string]string{
		"nom": hero.Name, "alias": hero.Alias, "univers": hero.Universe, "description": hero.Description,
	} {
		if v == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return hero, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}

	for _, p := range r.Powers {
		if p = strings.TrimSpace(p); p != "" {
			hero.Powers = append(hero.Powers, p)
		}
	}

	set := func(key string, dst *int) {
		if v, ok := r.Stats[key]; ok && v != nil {
			*dst = *v
		}
	}
	set("intelligence", &hero.Stats.Intelligence)
	set("strength", &hero.Stats.Strength)
	set("speed", &hero.Stats.Speed)
	set("durability", &hero.Stats.Durability)
	set("power", &hero.Stats.Power)
	set("combat", &hero.Stats.Combat)
	hero.Stats = hero.Stats.Clamp()

	return hero, nil
}

// LoadHeroesFile reads path, picking the format from its extension
func LoadHeroesFile(path string) ([]models.Hero, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return ParseHeroes(data, format)
}

// ImportHeroes inserts heroes, first deleting every existing hero when
// reset is set. Image files of deleted heroes are left to the orphan sweep.
func ImportHeroes(ctx context.Context, repo *repository.HeroRepository, heroes []models.Hero, reset bool) error {
	if reset {
		removed, err := repo.DeleteAllHeroes(ctx)
		if err != nil {
			return fmt.Errorf("reset heroes: %w", err)
		}
		logger.Log.Info("Existing heroes deleted", zap.Int64("count", removed))
	}

	if err := repo.BatchInsert(ctx, heroes); err != nil {
		return fmt.Errorf("insert heroes: %w", err)
	}
	logger.Log.Info("Heroes imported", zap.Int("count", len(heroes)))
	return nil
}
