package search

import (
	"fmt"
	"slices"
	"strings"

	"github.com/superhero-manager/backend/internal/models"
)

type SortKey string

const (
	SortNone      SortKey = ""
	SortAlphaAsc  SortKey = "alpha_asc"
	SortAlphaDesc SortKey = "alpha_desc"
	SortDateAsc   SortKey = "date_asc"
	SortDateDesc  SortKey = "date_desc"
)

// SortKeys lists the accepted non-empty sort keys
var SortKeys = []SortKey{SortAlphaAsc, SortAlphaDesc, SortDateAsc, SortDateDesc}

// ParseSortKey accepts "" (store order) or one of SortKeys
func ParseSortKey(s string) (SortKey, error) {
	key := SortKey(strings.ToLower(strings.TrimSpace(s)))
	if key == SortNone || slices.Contains(SortKeys, key) {
		return key, nil
	}
	return SortNone, fmt.Errorf("unknown sort key %q", s)
}

// Universe values that select every hero outside the known publishers
var residualUniverses = []string{"other", "autre"}

var knownUniverses = []string{"marvel", "dc"}

// Query combines the listing parameters. Search and Sort are independent:
// a search result can be sorted.
type Query struct {
	Search   string
	Universe string
	Sort     SortKey
}

// Apply returns the heroes matching q in a reproducible order.
// The input slice is not modified.
func Apply(heroes []models.Hero, q Query) []models.Hero {
	out := make([]models.Hero, 0, len(heroes))
	term := Normalize(q.Search)
	for _, h := range heroes {
		if !MatchesUniverse(h.Universe, q.Universe) {
			continue
		}
		if term != "" && !matchesTerm(h, term) {
			continue
		}
		out = append(out, h)
	}

	// canonical store order first so that ties below never depend on input order
	slices.SortStableFunc(out, compareCreated)

	switch q.Sort {
	case SortAlphaAsc:
		slices.SortStableFunc(out, func(a, b models.Hero) int { return strings.Compare(a.Name, b.Name) })
	case SortAlphaDesc:
		slices.SortStableFunc(out, func(a, b models.Hero) int { return strings.Compare(b.Name, a.Name) })
	case SortDateAsc:
		// already in creation order
	case SortDateDesc:
		slices.SortStableFunc(out, func(a, b models.Hero) int { return b.CreatedAt.Compare(a.CreatedAt) })
	}

	return out
}

// MatchesUniverse reports whether universe passes filter. An empty filter
// matches everything; "Other"/"Autre" match universes naming neither
// Marvel nor DC; anything else is a case-insensitive substring test.
func MatchesUniverse(universe, filter string) bool {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return true
	}
	u := strings.ToLower(universe)
	if slices.Contains(residualUniverses, filter) {
		for _, known := range knownUniverses {
			if strings.Contains(u, known) {
				return false
			}
		}
		return true
	}
	return strings.Contains(u, filter)
}

// matchesTerm reports whether the hero's name or alias contains the
// already normalized term
func matchesTerm(h models.Hero, normalizedTerm string) bool {
	return strings.Contains(Normalize(h.Name), normalizedTerm) ||
		strings.Contains(Normalize(h.Alias), normalizedTerm)
}

func compareCreated(a, b models.Hero) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}
