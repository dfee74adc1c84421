package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatMin     = 0
	StatMax     = 100
	StatDefault = 50
)

// HeroStats holds the six power ratings, each within [StatMin, StatMax].
// Columns carry no database default: gorm would skip zero values on insert
// and let the default overwrite them. DefaultStats fills unset stats.
type HeroStats struct {
	Intelligence int `gorm:"not null" json:"intelligence"`
	Strength     int `gorm:"not null" json:"strength"`
	Speed        int `gorm:"not null" json:"speed"`
	Durability   int `gorm:"not null" json:"durability"`
	Power        int `gorm:"not null" json:"power"`
	Combat       int `gorm:"not null" json:"combat"`
}

// DefaultStats returns every stat at StatDefault
func DefaultStats() HeroStats {
	return HeroStats{
		Intelligence: StatDefault,
		Strength:     StatDefault,
		Speed:        StatDefault,
		Durability:   StatDefault,
		Power:        StatDefault,
		Combat:       StatDefault,
	}
}

// Clamp bounds every stat to [StatMin, StatMax]
func (s HeroStats) Clamp() HeroStats {
	return HeroStats{
		Intelligence: clampStat(s.Intelligence),
		Strength:     clampStat(s.Strength),
		Speed:        clampStat(s.Speed),
		Durability:   clampStat(s.Durability),
		Power:        clampStat(s.Power),
		Combat:       clampStat(s.Combat),
	}
}

func clampStat(v int) int {
	return min(max(v, StatMin), StatMax)
}

// Hero JSON names are the French keys the web client sends and reads
type Hero struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"_id"`
	Name            string    `gorm:"type:varchar(120);not null;index" json:"nom"`
	Alias           string    `gorm:"type:varchar(120);not null" json:"alias"`
	Universe        string    `gorm:"type:varchar(120);not null;index" json:"univers"`
	Description     string    `gorm:"type:text;not null" json:"description"`
	Image           string    `gorm:"type:varchar(255)" json:"image,omitempty"`
	Origin          string    `gorm:"type:varchar(255)" json:"origine,omitempty"`
	FirstAppearance string    `gorm:"type:varchar(255)" json:"premiereApparition,omitempty"`
	Powers          []string  `gorm:"serializer:json" json:"pouvoirs"`
	Stats           HeroStats `gorm:"embedded;embeddedPrefix:stat_" json:"stats"`
	CreatedAt       time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (Hero) TableName() string {
	return "heroes"
}

func (h *Hero) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.Powers == nil {
		h.Powers = []string{}
	}
	return nil
}
