package registry

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cascadehq/solvernet/internal/logging"
	"github.com/cascadehq/solvernet/internal/shared/clock"
	"github.com/cascadehq/solvernet/internal/shared/types"
)

// Factory constructs a strategy instance for one attempt.
type Factory func() (types.Strategy, error)

// Descriptor is the catalog entry for a registered strategy: static
// capabilities plus the runtime health and usage counters mutated by every
// attempt outcome.
type Descriptor struct {
	Key          string             `json:"key"`
	Capabilities types.Capabilities `json:"capabilities"`
	Factory      Factory            `json:"-"`

	Health              types.HealthStatus `json:"health"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	TotalUses           int64              `json:"total_uses"`
	TotalFailures       int64              `json:"total_failures"`
	LastSuccess         time.Time          `json:"last_success,omitempty"`
	LastFailure         time.Time          `json:"last_failure,omitempty"`
}

// entry guards one descriptor so unrelated keys never contend.
type entry struct {
	mu sync.Mutex
	d  Descriptor
}

// Registry is the catalog of registered strategies.
type Registry struct {
	logger *logging.Logger
	clock  clock.Clock

	mu      sync.RWMutex
	entries map[string]*entry
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock sets the registry's clock.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger:  logging.NewNop(),
		clock:   clock.System(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a strategy under key. An existing key is overwritten
// silently, with a warning logged; history does not carry over.
func (r *Registry) Register(key string, factory Factory, caps types.Capabilities) {
	r.mu.Lock()
	if _, exists := r.entries[key]; exists {
		r.logger.Warn("overwriting registered strategy", zap.String("key", key))
	}
	r.entries[key] = &entry{d: Descriptor{
		Key:          key,
		Capabilities: caps,
		Factory:      factory,
		Health:       types.HealthUnknown,
	}}
	r.mu.Unlock()
}

// Unregister removes a strategy and its history.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// Get returns a copy of the descriptor for key.
func (r *Registry) Get(key string) (Descriptor, bool) {
	e := r.entry(key)
	if e == nil {
		return Descriptor{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.d, true
}

// CandidatesFor returns every enabled descriptor supporting the task type,
// ordered by health, then priority, then base success rate. This ordering is
// the authoritative tie-break for equal selection scores downstream.
func (r *Registry) CandidatesFor(task types.TaskType) []Descriptor {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var out []Descriptor
	for _, e := range entries {
		e.mu.Lock()
		d := e.d
		e.mu.Unlock()
		if d.Capabilities.Enabled && d.Capabilities.Supports(task) {
			out = append(out, d)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if hi, hj := healthRank(out[i].Health), healthRank(out[j].Health); hi != hj {
			return hi < hj
		}
		if out[i].Capabilities.Priority != out[j].Capabilities.Priority {
			return out[i].Capabilities.Priority > out[j].Capabilities.Priority
		}
		return out[i].Capabilities.BaseSuccessRate > out[j].Capabilities.BaseSuccessRate
	})
	return out
}

// RecordSuccess marks an attempt success: health goes healthy and the
// consecutive-failure counter resets. Missing keys are ignored.
func (r *Registry) RecordSuccess(key string) {
	e := r.entry(key)
	if e == nil {
		return
	}

	e.mu.Lock()
	e.d.TotalUses++
	e.d.ConsecutiveFailures = 0
	e.d.Health = types.HealthHealthy
	e.d.LastSuccess = r.clock.Now()
	e.mu.Unlock()
}

// RecordFailure marks an attempt failure. The first failure from healthy
// demotes to unknown only; three consecutive failures force unhealthy.
func (r *Registry) RecordFailure(key string) {
	e := r.entry(key)
	if e == nil {
		return
	}

	e.mu.Lock()
	e.d.TotalUses++
	e.d.TotalFailures++
	e.d.ConsecutiveFailures++
	e.d.LastFailure = r.clock.Now()

	switch {
	case e.d.ConsecutiveFailures >= 3:
		e.d.Health = types.HealthUnhealthy
	case e.d.Health == types.HealthHealthy:
		e.d.Health = types.HealthUnknown
	}
	e.mu.Unlock()
}

// Enable turns the strategy's capability flag on without touching history.
func (r *Registry) Enable(key string) {
	r.setEnabled(key, true)
}

// Disable turns the strategy's capability flag off without touching history.
func (r *Registry) Disable(key string) {
	r.setEnabled(key, false)
}

func (r *Registry) setEnabled(key string, enabled bool) {
	e := r.entry(key)
	if e == nil {
		return
	}

	e.mu.Lock()
	e.d.Capabilities.Enabled = enabled
	e.mu.Unlock()
}

// Keys returns every registered key.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Stats summarizes the catalog for the health endpoint.
type Stats struct {
	Total    int                        `json:"total"`
	Enabled  int                        `json:"enabled"`
	ByHealth map[types.HealthStatus]int `json:"by_health"`
}

// Summary computes catalog statistics.
func (r *Registry) Summary() Stats {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	stats := Stats{ByHealth: make(map[types.HealthStatus]int)}
	for _, e := range entries {
		e.mu.Lock()
		d := e.d
		e.mu.Unlock()

		stats.Total++
		if d.Capabilities.Enabled {
			stats.Enabled++
		}
		stats.ByHealth[d.Health]++
	}
	return stats
}

func (r *Registry) entry(key string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[key]
}

func healthRank(h types.HealthStatus) int {
	switch h {
	case types.HealthHealthy:
		return 0
	case types.HealthUnknown:
		return 1
	case types.HealthValidating:
		return 2
	default:
		return 3
	}
}
