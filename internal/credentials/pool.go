// Package credentials manages rotating API key pools for metered providers.
//
// Each provider keeps an ordered key list and a rotation cursor. Selection
// stable-sorts the rotation order by health, so healthier keys are preferred
// while equal-health keys still round-robin fairly. Keys demoted by three
// consecutive failures are skipped until a success promotes them back; when
// every key is demoted the pool falls back to any active key rather than
// starving the provider.
package credentials

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cascadehq/solvernet/internal/faults"
	"github.com/cascadehq/solvernet/internal/shared/clock"
	"github.com/cascadehq/solvernet/internal/shared/types"
)

// FailureThreshold demotes a key to unhealthy at this many consecutive failures.
const FailureThreshold = 3

// Record tracks one configured API key. Keys are never physically removed,
// only deactivated.
type Record struct {
	Provider            string             `json:"provider"`
	Key                 string             `json:"-"`
	MaskedKey           string             `json:"key"`
	Health              types.HealthStatus `json:"health"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	TotalUses           int64              `json:"total_uses"`
	TotalFailures       int64              `json:"total_failures"`
	LastSuccess         time.Time          `json:"last_success,omitempty"`
	LastFailure         time.Time          `json:"last_failure,omitempty"`
	LastValidationError string             `json:"last_validation_error,omitempty"`
	Active              bool               `json:"active"`
}

// providerPool guards one provider's keys and rotation cursor.
type providerPool struct {
	mu      sync.Mutex
	records []*Record
	cursor  int
}

// Pool is the rotating credential store for all providers.
type Pool struct {
	clock clock.Clock

	mu        sync.RWMutex
	providers map[string]*providerPool
}

// NewPool creates an empty pool.
func NewPool(clk clock.Clock) *Pool {
	if clk == nil {
		clk = clock.System()
	}
	return &Pool{
		clock:     clk,
		providers: make(map[string]*providerPool),
	}
}

// Add registers a key for a provider. Duplicate keys are ignored.
func (p *Pool) Add(provider, key string) {
	pp := p.poolFor(provider, true)

	pp.mu.Lock()
	defer pp.mu.Unlock()

	for _, r := range pp.records {
		if r.Key == key {
			return
		}
	}
	pp.records = append(pp.records, &Record{
		Provider:  provider,
		Key:       key,
		MaskedKey: mask(key),
		Health:    types.HealthUnknown,
		Active:    true,
	})
}

// Deactivate retires a key without deleting its history.
func (p *Pool) Deactivate(provider, key string) {
	pp := p.poolFor(provider, false)
	if pp == nil {
		return
	}

	pp.mu.Lock()
	defer pp.mu.Unlock()
	for _, r := range pp.records {
		if r.Key == key {
			r.Active = false
		}
	}
}

// Key returns the next active key for the provider, preferring healthy keys
// over unknown/unhealthy ones and advancing the rotation cursor past the
// returned key. With at least two equally healthy active keys, consecutive
// calls never return the same key.
func (p *Pool) Key(provider string) (string, error) {
	pp := p.poolFor(provider, false)
	if pp == nil {
		return "", faults.Provider(provider, "no credentials configured for provider", false)
	}

	pp.mu.Lock()
	defer pp.mu.Unlock()

	n := len(pp.records)
	if n == 0 {
		return "", faults.Provider(provider, "no credentials configured for provider", false)
	}

	// Rotation order starting just past the cursor.
	rotation := make([]int, 0, n)
	for i := 0; i < n; i++ {
		idx := (pp.cursor + i) % n
		if pp.records[idx].Active {
			rotation = append(rotation, idx)
		}
	}
	if len(rotation) == 0 {
		return "", faults.Provider(provider, "all credentials deactivated", false)
	}

	// Stable sort by health keeps rotation order within each health class.
	sort.SliceStable(rotation, func(a, b int) bool {
		return healthRank(pp.records[rotation[a]].Health) < healthRank(pp.records[rotation[b]].Health)
	})

	chosen := -1
	for _, idx := range rotation {
		if pp.records[idx].ConsecutiveFailures < FailureThreshold {
			chosen = idx
			break
		}
	}
	if chosen < 0 {
		// Every key is demoted; any active key beats starving the provider.
		chosen = rotation[0]
	}

	pp.cursor = (chosen + 1) % n
	return pp.records[chosen].Key, nil
}

// RecordSuccess promotes the key to healthy and resets its failure counter.
func (p *Pool) RecordSuccess(provider, key string) {
	p.touch(provider, key, func(r *Record) {
		r.TotalUses++
		r.ConsecutiveFailures = 0
		r.Health = types.HealthHealthy
		r.LastSuccess = p.clock.Now()
		r.LastValidationError = ""
	})
}

// RecordFailure increments the key's failure counter, recording the reason;
// at the threshold the key demotes to unhealthy.
func (p *Pool) RecordFailure(provider, key, reason string) {
	p.touch(provider, key, func(r *Record) {
		r.TotalUses++
		r.TotalFailures++
		r.ConsecutiveFailures++
		r.LastFailure = p.clock.Now()
		r.LastValidationError = reason
		if r.ConsecutiveFailures >= FailureThreshold {
			r.Health = types.HealthUnhealthy
		}
	})
}

// ProviderAvailable reports whether the provider has at least one active key
// that is not unhealthy, or has keys that were never health-checked.
func (p *Pool) ProviderAvailable(provider string) bool {
	pp := p.poolFor(provider, false)
	if pp == nil {
		return false
	}

	pp.mu.Lock()
	defer pp.mu.Unlock()
	for _, r := range pp.records {
		if r.Active && r.Health != types.HealthUnhealthy {
			return true
		}
	}
	return false
}

// AvailableProviders lists providers with at least one non-unhealthy active key.
func (p *Pool) AvailableProviders() []string {
	p.mu.RLock()
	names := make([]string, 0, len(p.providers))
	for name := range p.providers {
		names = append(names, name)
	}
	p.mu.RUnlock()

	var out []string
	for _, name := range names {
		if p.ProviderAvailable(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Metadata returns copies of the provider's records with masked keys, for
// the admin surface.
func (p *Pool) Metadata(provider string) []Record {
	pp := p.poolFor(provider, false)
	if pp == nil {
		return nil
	}

	pp.mu.Lock()
	defer pp.mu.Unlock()

	out := make([]Record, len(pp.records))
	for i, r := range pp.records {
		rec := *r
		rec.Key = ""
		out[i] = rec
	}
	return out
}

func (p *Pool) touch(provider, key string, fn func(*Record)) {
	pp := p.poolFor(provider, false)
	if pp == nil {
		return
	}

	pp.mu.Lock()
	defer pp.mu.Unlock()
	for _, r := range pp.records {
		if r.Key == key {
			fn(r)
			return
		}
	}
}

func (p *Pool) poolFor(provider string, create bool) *providerPool {
	p.mu.RLock()
	pp := p.providers[provider]
	p.mu.RUnlock()
	if pp != nil || !create {
		return pp
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if pp = p.providers[provider]; pp == nil {
		pp = &providerPool{}
		p.providers[provider] = pp
	}
	return pp
}

func healthRank(h types.HealthStatus) int {
	switch h {
	case types.HealthHealthy:
		return 0
	case types.HealthUnknown:
		return 1
	default:
		return 2
	}
}

// mask keeps the first and last four characters of a key for log and admin
// output.
func mask(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
