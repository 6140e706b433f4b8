// Package match selects the search result whose duration best fits an external track.
//
// Each caller chooses its own tolerance. The three call sites in this module use
// [BatchImportTolerance], [BackgroundTaskTolerance] and [DialogTolerance]; they differ on
// purpose and are configurable rather than unified.
package match

import (
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// Tolerances, in milliseconds, for each duration-matching call site.
const (
	BatchImportTolerance    int64 = 180_000
	BackgroundTaskTolerance int64 = 120_000
	DialogTolerance         int64 = 60_000
)

// SelectBest returns the candidate whose formatted duration is closest to targetMs.
//
// Candidates with an unparsable duration are skipped. Ties go to the earliest candidate, so
// provider relevance order breaks them. Nil is returned when nothing parses or when the best
// difference exceeds toleranceMs.
func SelectBest(candidates []models.SearchResult, targetMs, toleranceMs int64) *models.SearchResult {
	best := -1
	var bestDiff int64

	for i, c := range candidates {
		ms, ok := shared.ParseClock(c.DurationFormatted)
		if !ok {
			continue
		}
		diff := abs(ms - targetMs)
		if best < 0 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}

	if best < 0 || bestDiff > toleranceMs {
		return nil
	}
	result := candidates[best]
	return &result
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
