// Package ledger accounts usage and spend for metered providers.
//
// Entries append on every successful metered use and are pruned two ways:
// a retention sweep drops entries older than the configured window (default
// 30 days), and the in-memory store caps at a maximum count, evicting the
// oldest entries on insert.
package ledger

import (
	"sync"
	"time"

	"github.com/cascadehq/solvernet/internal/shared/clock"
	"github.com/cascadehq/solvernet/internal/shared/types"
)

const (
	// DefaultRetentionDays is the age-based pruning window.
	DefaultRetentionDays = 30
	// DefaultMaxEntries caps the in-memory store.
	DefaultMaxEntries = 1000
	// FallbackCost is charged when no provider×taskType rate is configured.
	FallbackCost = 0.003
)

// Entry is one immutable cost record.
type Entry struct {
	Provider  string         `json:"provider"`
	TaskType  types.TaskType `json:"task_type"`
	Cost      float64        `json:"cost"`
	Timestamp time.Time      `json:"timestamp"`
}

// TaskUsage aggregates one provider's spend for a single task type.
type TaskUsage struct {
	Count     int     `json:"count"`
	TotalCost float64 `json:"total_cost"`
}

// Usage aggregates one provider's spend.
type Usage struct {
	Count      int                          `json:"count"`
	TotalCost  float64                      `json:"total_cost"`
	LastUsed   time.Time                    `json:"last_used,omitempty"`
	ByTaskType map[types.TaskType]TaskUsage `json:"by_task_type"`
}

// Ledger is the in-memory cost store.
type Ledger struct {
	clock         clock.Clock
	maxEntries    int
	retentionDays int

	mu           sync.Mutex
	entries      []Entry
	defaultCosts map[string]map[types.TaskType]float64
}

// New creates a ledger with the given bounds; non-positive values take the
// package defaults.
func New(maxEntries, retentionDays int, clk clock.Clock) *Ledger {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Ledger{
		clock:         clk,
		maxEntries:    maxEntries,
		retentionDays: retentionDays,
		defaultCosts:  make(map[string]map[types.TaskType]float64),
	}
}

// SetDefaultCost configures the per-use rate for a provider×taskType pair,
// used when Record is called with a non-positive cost.
func (l *Ledger) SetDefaultCost(provider string, task types.TaskType, cost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.defaultCosts[provider] == nil {
		l.defaultCosts[provider] = make(map[types.TaskType]float64)
	}
	l.defaultCosts[provider][task] = cost
}

// Record appends a cost entry and returns the charged amount. A non-positive
// cost resolves through the provider/taskType rate table, falling back to
// FallbackCost for unknown pairs.
func (l *Ledger) Record(provider string, task types.TaskType, cost float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cost <= 0 {
		cost = l.lookupCost(provider, task)
	}

	l.entries = append(l.entries, Entry{
		Provider:  provider,
		TaskType:  task,
		Cost:      cost,
		Timestamp: l.clock.Now(),
	})
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
	return cost
}

// UsageFor aggregates count, spend, and last use for one provider.
func (l *Ledger) UsageFor(provider string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	usage := Usage{ByTaskType: make(map[types.TaskType]TaskUsage)}
	for _, e := range l.entries {
		if e.Provider != provider {
			continue
		}
		usage.Count++
		usage.TotalCost += e.Cost
		if e.Timestamp.After(usage.LastUsed) {
			usage.LastUsed = e.Timestamp
		}

		tu := usage.ByTaskType[e.TaskType]
		tu.Count++
		tu.TotalCost += e.Cost
		usage.ByTaskType[e.TaskType] = tu
	}
	return usage
}

// TotalCost sums every retained entry.
func (l *Ledger) TotalCost() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, e := range l.entries {
		total += e.Cost
	}
	return total
}

// CostForPeriod sums entries with start ≤ timestamp < end.
func (l *Ledger) CostForPeriod(start, end time.Time) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, e := range l.entries {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			total += e.Cost
		}
	}
	return total
}

// ClearOld prunes entries older than daysToKeep. Zero applies the ledger's
// configured retention window.
func (l *Ledger) ClearOld(daysToKeep int) {
	if daysToKeep <= 0 {
		daysToKeep = l.retentionDays
	}
	cutoff := l.clock.Now().AddDate(0, 0, -daysToKeep)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	for _, e := range l.entries {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	l.entries = kept
}

// Len reports the number of retained entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// lookupCost must be called with the lock held.
func (l *Ledger) lookupCost(provider string, task types.TaskType) float64 {
	if rates, ok := l.defaultCosts[provider]; ok {
		if cost, ok := rates[task]; ok {
			return cost
		}
	}
	return FallbackCost
}
