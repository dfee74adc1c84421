package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/superhero-manager/backend/internal/models"
	"github.com/superhero-manager/backend/internal/utils"
	"gorm.io/gorm"
)

// CreateTestUser hashes password and inserts the user
func CreateTestUser(t *testing.T, db *gorm.DB, username, password string, role models.Role) *models.User {
	t.Helper()

	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hashedPassword,
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// HeroFactory builds reproducible fake heroes
type HeroFactory struct {
	faker *gofakeit.Faker
	clock time.Time
}

func NewHeroFactory(seed uint64) *HeroFactory {
	return &HeroFactory{
		faker: gofakeit.New(seed),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Hero returns an unsaved hero; each call is one minute newer than the last
func (f *HeroFactory) Hero(universe string) models.Hero {
	f.clock = f.clock.Add(time.Minute)
	return models.Hero{
		Name:        f.faker.Name(),
		Alias:       f.faker.Adjective() + " " + f.faker.Animal(),
		Universe:    universe,
		Description: f.faker.Sentence(8),
		Origin:      f.faker.City(),
		Powers:      []string{f.faker.Verb(), f.faker.Verb()},
		Stats: models.HeroStats{
			Intelligence: f.faker.Number(0, 100),
			Strength:     f.faker.Number(0, 100),
			Speed:        f.faker.Number(0, 100),
			Durability:   f.faker.Number(0, 100),
			Power:        f.faker.Number(0, 100),
			Combat:       f.faker.Number(0, 100),
		},
		CreatedAt: f.clock,
		UpdatedAt: f.clock,
	}
}

// CreateTestHero inserts hero as is
func CreateTestHero(t *testing.T, db *gorm.DB, hero models.Hero) *models.Hero {
	t.Helper()
	if err := db.Create(&hero).Error; err != nil {
		t.Fatalf("Failed to create test hero: %v", err)
	}
	return &hero
}

// PNG returns a valid 2x2 PNG image
func PNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(1, 1, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}
