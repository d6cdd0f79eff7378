package services

import (
	"slices"
	"strings"

	"github.com/dmitrijs2005/captionkeeper/internal/client/models"
)

// FilterCaptions returns the subset of items matching every predicate of
// filter, sorted by filter.SortBy. Items is never modified; ties keep their
// original order.
func FilterCaptions(items []models.Caption, filter models.ViewFilter) []models.Caption {
	text := strings.ToLower(strings.TrimSpace(filter.Text))

	out := make([]models.Caption, 0, len(items))
	for _, c := range items {
		if text != "" && !strings.Contains(strings.ToLower(c.Text), text) {
			continue
		}
		if !c.HasAllTags(filter.Tags) {
			continue
		}
		if filter.FavoritesOnly && !c.IsFavorite {
			continue
		}
		out = append(out, c.Clone())
	}

	switch filter.SortBy {
	case models.SortNewest:
		slices.SortStableFunc(out, func(a, b models.Caption) int {
			return b.CreatedAt.Compare(a.CreatedAt.Time)
		})
	case models.SortOldest:
		slices.SortStableFunc(out, func(a, b models.Caption) int {
			return a.CreatedAt.Compare(b.CreatedAt.Time)
		})
	case models.SortPopular:
		slices.SortStableFunc(out, func(a, b models.Caption) int {
			switch {
			case a.IsPopular == b.IsPopular:
				return 0
			case a.IsPopular:
				return -1
			default:
				return 1
			}
		})
	}
	return out
}
