// Package scoring ranks candidate strategies for dispatch.
//
// Score is a pure function of a descriptor, its rolling stats, and the
// current time: identical inputs always produce identical output. Component
// weights are capped individually, not globally normalized.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/cascadehq/solvernet/internal/registry"
	"github.com/cascadehq/solvernet/internal/shared/types"
	"github.com/cascadehq/solvernet/internal/tracker"
)

// RecencyWindow is how far back a success still earns the recency bonus.
const RecencyWindow = 24 * time.Hour

// Score computes a candidate's selection score. stats may be nil when the key
// has no attempts in the rolling window; the descriptor's base success rate
// substitutes for the observed rate in that case.
func Score(d registry.Descriptor, stats *tracker.Stats, now time.Time) float64 {
	var score float64

	switch d.Health {
	case types.HealthHealthy:
		score += 50
	case types.HealthUnknown:
		score += 25
	case types.HealthValidating:
		score += 10
	}

	score += math.Min(float64(d.Capabilities.Priority)*10, 30)

	rate := d.Capabilities.BaseSuccessRate
	if stats != nil && stats.TotalAttempts > 0 {
		rate = stats.SuccessRate
	}
	score += rate * 20

	if stats != nil && !stats.LastSuccess.IsZero() && now.Sub(stats.LastSuccess) < RecencyWindow {
		score += 10
	}

	return score
}

// StatsFunc looks up rolling stats for a strategy key.
type StatsFunc func(key string) (tracker.Stats, bool)

// Rank orders candidates by descending score. The sort is stable, so equal
// scores keep the registry's upstream ordering (health, priority, base
// success rate); that ordering is the only tie-break.
func Rank(candidates []registry.Descriptor, statsFor StatsFunc, now time.Time) []registry.Descriptor {
	scores := make([]float64, len(candidates))
	for i, d := range candidates {
		var stats *tracker.Stats
		if statsFor != nil {
			if s, ok := statsFor(d.Key); ok {
				stats = &s
			}
		}
		scores[i] = Score(d, stats, now)
	}

	ranked := make([]registry.Descriptor, len(candidates))
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	for i, idx := range order {
		ranked[i] = candidates[idx]
	}
	return ranked
}
