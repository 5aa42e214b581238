// Package quality picks a quality variant for a user preference.
package quality

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"anistream/internal/media"
)

// Rank returns the numeric value of a quality label ("720p" -> 720).
func Rank(label string) int {
	return media.ParseRank(label)
}

// Select returns the variant matching preferred.
//
// An exact case-insensitive label match wins. Otherwise the variant whose
// rank is closest to the preferred rank is chosen, ties going to the higher
// rank. "best" or an empty preference picks the highest rank, "worst" the
// lowest.
func Select(variants []media.QualityVariant, preferred string) (media.QualityVariant, error) {
	if len(variants) == 0 {
		return media.QualityVariant{}, fmt.Errorf("selecting %q: %w", preferred, media.ErrNoQualityOptions)
	}

	preferred = strings.TrimSpace(preferred)
	for _, v := range variants {
		if strings.EqualFold(v.Label, preferred) {
			return v, nil
		}
	}

	switch strings.ToLower(preferred) {
	case "", "best":
		return lo.MaxBy(variants, func(a, b media.QualityVariant) bool { return a.Rank > b.Rank }), nil
	case "worst":
		return lo.MinBy(variants, func(a, b media.QualityVariant) bool { return a.Rank < b.Rank }), nil
	}

	want := Rank(preferred)
	return lo.MaxBy(variants, func(a, b media.QualityVariant) bool {
		da, db := distance(a.Rank, want), distance(b.Rank, want)
		return da < db || (da == db && a.Rank > b.Rank)
	}), nil
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
