package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/superhero-manager/backend/internal/models"
	"gorm.io/gorm"
)

type HeroRepository struct {
	db *gorm.DB
}

func NewHeroRepository(db *gorm.DB) *HeroRepository {
	return &HeroRepository{db: db}
}

func (r *HeroRepository) CreateHero(ctx context.Context, hero *models.Hero) error {
	return r.db.WithContext(ctx).Create(hero).Error
}

func (r *HeroRepository) GetHeroByID(ctx context.Context, id uuid.UUID) (*models.Hero, error) {
	var hero models.Hero
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&hero).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &hero, nil
}

// GetAllHeroes returns every hero in store order (creation time, then id)
func (r *HeroRepository) GetAllHeroes(ctx context.Context) ([]models.Hero, error) {
	var heroes []models.Hero
	err := r.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&heroes).Error
	return heroes, err
}

// UpdateHero writes every column of hero, including zero values
func (r *HeroRepository) UpdateHero(ctx context.Context, hero *models.Hero) error {
	res := r.db.WithContext(ctx).Model(hero).Select("*").Omit("id", "created_at").Updates(hero)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteHero removes the hero; it reports whether a row was deleted
func (r *HeroRepository) DeleteHero(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.Hero{}, "id = ?", id)
	return res.RowsAffected > 0, res.Error
}

// DeleteAllHeroes empties the table (seeding with --reset)
func (r *HeroRepository) DeleteAllHeroes(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Hero{})
	return res.RowsAffected, res.Error
}

// BatchInsert bulk inserts heroes (seed import)
func (r *HeroRepository) BatchInsert(ctx context.Context, heroes []models.Hero) error {
	if len(heroes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(heroes, 200).Error
}

// ImageRefs returns the set of image references currently in use
func (r *HeroRepository) ImageRefs(ctx context.Context) (map[string]bool, error) {
	var refs []string
	err := r.db.WithContext(ctx).Model(&models.Hero{}).Where("image <> ''").Pluck("image", &refs).Error
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(refs))
	for _, ref := range refs {
		set[ref] = true
	}
	return set, nil
}

// IsImageReferenced reports whether any hero points at ref
func (r *HeroRepository) IsImageReferenced(ctx context.Context, ref string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Hero{}).Where("image = ?", ref).Count(&n).Error
	return n > 0, err
}
