// Package tracker keeps a bounded rolling log of solve attempts and
// aggregates it into per-strategy and per-task-type statistics.
//
// The log is a FIFO capped at a configured retention (default 1000); oldest
// entries evict on overflow. Aggregation is recomputed on read rather than
// incrementally maintained, trading read cost for correctness under
// concurrent writes.
package tracker

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/cascadehq/solvernet/internal/shared/clock"
	"github.com/cascadehq/solvernet/internal/shared/types"
)

// DefaultMaxRetention bounds the rolling attempt log.
const DefaultMaxRetention = 1000

// Attempt is one immutable entry in the rolling log.
type Attempt struct {
	StrategyKey string         `json:"strategy_key"`
	TaskType    types.TaskType `json:"task_type"`
	Duration    time.Duration  `json:"duration"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// TaskStats aggregates attempts of one task type for one strategy.
type TaskStats struct {
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

// Stats aggregates the rolling log for one strategy key.
type Stats struct {
	TotalAttempts   int                          `json:"total_attempts"`
	SuccessCount    int                          `json:"success_count"`
	FailureCount    int                          `json:"failure_count"`
	SuccessRate     float64                      `json:"success_rate"`
	AverageDuration time.Duration                `json:"average_duration"`
	P95Duration     time.Duration                `json:"p95_duration"`
	ByTaskType      map[types.TaskType]TaskStats `json:"by_task_type"`
	LastSuccess     time.Time                    `json:"last_success,omitempty"`
	LastFailure     time.Time                    `json:"last_failure,omitempty"`
}

// Tracker is the bounded rolling attempt log.
type Tracker struct {
	clock clock.Clock
	max   int

	mu       sync.RWMutex
	attempts []Attempt
}

// New creates a tracker retaining at most maxRetention attempts.
func New(maxRetention int, clk clock.Clock) *Tracker {
	if maxRetention <= 0 {
		maxRetention = DefaultMaxRetention
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Tracker{
		clock:    clk,
		max:      maxRetention,
		attempts: make([]Attempt, 0, maxRetention),
	}
}

// Record appends an attempt outcome, evicting the oldest entry on overflow.
func (t *Tracker) Record(key string, task types.TaskType, duration time.Duration, success bool, err error) {
	entry := Attempt{
		StrategyKey: key,
		TaskType:    task,
		Duration:    duration,
		Success:     success,
		Timestamp:   t.clock.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	t.mu.Lock()
	t.attempts = append(t.attempts, entry)
	if len(t.attempts) > t.max {
		t.attempts = t.attempts[len(t.attempts)-t.max:]
	}
	t.mu.Unlock()
}

// Stats aggregates the log for one strategy key. The second return is false
// when no attempts for the key remain in the window.
func (t *Tracker) Stats(key string) (Stats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var window []Attempt
	for _, a := range t.attempts {
		if a.StrategyKey == key {
			window = append(window, a)
		}
	}
	if len(window) == 0 {
		return Stats{}, false
	}
	return aggregate(window), true
}

// AllStats aggregates the log per distinct strategy key seen.
func (t *Tracker) AllStats() map[string]Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byKey := make(map[string][]Attempt)
	for _, a := range t.attempts {
		byKey[a.StrategyKey] = append(byKey[a.StrategyKey], a)
	}

	out := make(map[string]Stats, len(byKey))
	for key, window := range byKey {
		out[key] = aggregate(window)
	}
	return out
}

// ClearOld prunes entries older than daysToKeep.
func (t *Tracker) ClearOld(daysToKeep int) {
	cutoff := t.clock.Now().AddDate(0, 0, -daysToKeep)

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.attempts[:0]
	for _, a := range t.attempts {
		if !a.Timestamp.Before(cutoff) {
			kept = append(kept, a)
		}
	}
	t.attempts = kept
}

// Len reports the number of retained attempts.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.attempts)
}

func aggregate(window []Attempt) Stats {
	s := Stats{
		TotalAttempts: len(window),
		ByTaskType:    make(map[types.TaskType]TaskStats),
	}

	durations := make([]float64, 0, len(window))
	for _, a := range window {
		durations = append(durations, a.Duration.Seconds())

		ts := s.ByTaskType[a.TaskType]
		ts.Attempts++
		if a.Success {
			s.SuccessCount++
			ts.Successes++
			if a.Timestamp.After(s.LastSuccess) {
				s.LastSuccess = a.Timestamp
			}
		} else {
			s.FailureCount++
			if a.Timestamp.After(s.LastFailure) {
				s.LastFailure = a.Timestamp
			}
		}
		ts.SuccessRate = float64(ts.Successes) / float64(ts.Attempts)
		s.ByTaskType[a.TaskType] = ts
	}

	s.SuccessRate = float64(s.SuccessCount) / float64(s.TotalAttempts)

	sort.Float64s(durations)
	s.AverageDuration = time.Duration(stat.Mean(durations, nil) * float64(time.Second))
	s.P95Duration = time.Duration(stat.Quantile(0.95, stat.Empirical, durations, nil) * float64(time.Second))
	return s
}
