package service

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/superhero-manager/backend/internal/models"
)

// HeroInput carries the multipart form of a create or update. Nil fields
// are left unchanged on update. Powers and Stats hold the raw form text.
type HeroInput struct {
	Name            *string
	Alias           *string
	Universe        *string
	Description     *string
	Origin          *string
	FirstAppearance *string
	Powers          *string
	Stats           *string

	// Image is the uploaded file content, nil when none was sent
	Image io.Reader
}

var statFields = []string{"intelligence", "strength", "speed", "durability", "power", "combat"}

// ParsePowers accepts a JSON array of strings or a comma separated list
func ParsePowers(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}, nil
	}

	var items []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fieldError("pouvoirs", "must be a JSON array of strings or a comma separated list")
		}
	} else {
		items = strings.Split(raw, ",")
	}

	powers := make([]string, 0, len(items))
	for _, p := range items {
		if p = strings.TrimSpace(p); p != "" {
			powers = append(powers, p)
		}
	}
	return powers, nil
}

// ParseStats decodes a JSON object of stat values over base. Missing keys
// keep the base value; values are clamped to [StatMin, StatMax].
func ParseStats(raw string, base models.HeroStats) (models.HeroStats, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return base.Clamp(), nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return base, fieldError("stats", "must be a JSON object")
	}

	stats := base
	targets := map[string]*int{
		"intelligence": &stats.Intelligence,
		"strength":     &stats.Strength,
		"speed":        &stats.Speed,
		"durability":   &stats.Durability,
		"power":        &stats.Power,
		"combat":       &stats.Combat,
	}

	verr := &ValidationError{}
	for _, name := range statFields {
		value, ok := fields[name]
		if !ok {
			continue
		}
		n, err := statValue(value)
		if err != nil {
			verr.Add("stats."+name, err.Error())
			continue
		}
		*targets[name] = n
	}
	if err := verr.OrNil(); err != nil {
		return base, err
	}
	return stats.Clamp(), nil
}

// statValue accepts a JSON number or a numeric string, rounded to the nearest int
func statValue(raw json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("must be a number")
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("must be a number")
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("must be a number")
	}
	// Clamp before converting so huge values cannot overflow
	f = math.Max(models.StatMin, math.Min(models.StatMax, f))
	return int(math.Round(f)), nil
}

type textField struct {
	key      string
	value    *string
	target   *string
	required bool
	max      int
}

// apply copies the provided fields of in onto hero and validates them.
// On create every mandatory field must be present.
func (in HeroInput) apply(hero *models.Hero, creating bool) error {
	verr := &ValidationError{}

	fields := []textField{
		{"nom", in.Name, &hero.Name, true, 120},
		{"alias", in.Alias, &hero.Alias, true, 120},
		{"univers", in.Universe, &hero.Universe, true, 120},
		{"description", in.Description, &hero.Description, true, 5000},
		{"origine", in.Origin, &hero.Origin, false, 255},
		{"premiereApparition", in.FirstAppearance, &hero.FirstAppearance, false, 255},
	}

	for _, f := range fields {
		if f.value == nil {
			if creating && f.required {
				verr.Add(f.key, "is required")
			}
			continue
		}
		v := strings.TrimSpace(*f.value)
		switch {
		case f.required && v == "":
			verr.Add(f.key, "is required")
		case utf8.RuneCountInString(v) > f.max:
			verr.Add(f.key, fmt.Sprintf("must be at most %d characters", f.max))
		default:
			*f.target = v
		}
	}

	if in.Powers != nil {
		powers, err := ParsePowers(*in.Powers)
		if err != nil {
			verr.merge(err)
		} else {
			hero.Powers = powers
		}
	} else if creating {
		hero.Powers = []string{}
	}

	base := hero.Stats
	if creating {
		base = models.DefaultStats()
	}
	if in.Stats != nil {
		stats, err := ParseStats(*in.Stats, base)
		if err != nil {
			verr.merge(err)
		} else {
			hero.Stats = stats
		}
	} else if creating {
		hero.Stats = base
	}

	return verr.OrNil()
}
