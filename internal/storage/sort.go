package storage

import (
	"sort"

	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

// SortByDistance orders results by ascending distance, then creation time,
// then id. Results without a distance sort last.
func SortByDistance(results []models.SegmentResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		da, db := distanceOf(a), distanceOf(b)
		if da != db {
			return da < db
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func distanceOf(r models.SegmentResult) float64 {
	if r.Distance == nil {
		return 3
	}
	return *r.Distance
}
