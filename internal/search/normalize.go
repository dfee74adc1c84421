// Package search filters and orders hero listings.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds s for search comparison: lower-case, NFD decomposition
// with combining marks dropped, then hyphens, underscores and white space
// removed. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	// transform chains keep state, so build one per call
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

	folded, _, err := transform.String(stripMarks, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}

	return strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded)
}
