package resilience

import (
	"sync"
	"time"

	"github.com/cascadehq/solvernet/internal/shared/clock"
)

// State represents a circuit's position in the failure-isolation machine.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures breaker behavior. Threshold and cooldown are
// per-deployment constants shared by every key.
type Settings struct {
	// FailureThreshold is the consecutive-failure count that trips a closed
	// circuit. Default 3.
	FailureThreshold int
	// Timeout is the open-state cooldown before a half-open probe is allowed.
	// Default 60s.
	Timeout time.Duration
	// Clock supplies time; tests inject a manual clock to fast-forward
	// cooldowns. Default is the system clock.
	Clock clock.Clock
	// OnStateChange is called on every state transition. It runs with the
	// circuit's lock held, so it must not call back into the breaker.
	OnStateChange func(key string, from State, to State)
}

// Details is a point-in-time snapshot of one circuit, for observability.
type Details struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	NextAttempt         time.Time `json:"next_attempt,omitempty"`
}

// circuit is the per-key record. nextAttempt is only meaningful while open.
type circuit struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailure         time.Time
	nextAttempt         time.Time
}

// Breaker isolates failing strategies behind per-key circuits. Records are
// created lazily on first failure; a key without a record is closed. Each
// circuit carries its own lock so unrelated keys never contend.
type Breaker struct {
	settings Settings

	mu       sync.RWMutex
	circuits map[string]*circuit
}

// New creates a breaker with the given settings, applying defaults.
func New(settings Settings) *Breaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 3
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 60 * time.Second
	}
	if settings.Clock == nil {
		settings.Clock = clock.System()
	}

	return &Breaker{
		settings: settings,
		circuits: make(map[string]*circuit),
	}
}

// IsAvailable reports whether the key may be attempted. An open circuit whose
// cooldown has elapsed transitions to half-open as a side effect of the check;
// concurrent half-open probes are all allowed through.
func (b *Breaker) IsAvailable(key string) bool {
	b.mu.RLock()
	c := b.circuits[key]
	b.mu.RUnlock()
	if c == nil {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if !b.settings.Clock.Now().Before(c.nextAttempt) {
			b.transition(key, c, StateHalfOpen)
			return true
		}
		return false
	}
	return true
}

// RecordSuccess closes the key's circuit and resets its failure count,
// regardless of prior state.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.RLock()
	c := b.circuits[key]
	b.mu.RUnlock()
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures = 0
	if c.state != StateClosed {
		b.transition(key, c, StateClosed)
	}
}

// RecordFailure increments the key's consecutive-failure count. A half-open
// circuit reopens immediately with a fresh cooldown; a closed circuit opens
// once the threshold is reached.
func (b *Breaker) RecordFailure(key string) {
	c := b.circuitFor(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := b.settings.Clock.Now()
	c.consecutiveFailures++
	c.lastFailure = now

	switch {
	case c.state == StateHalfOpen:
		c.nextAttempt = now.Add(b.settings.Timeout)
		b.transition(key, c, StateOpen)
	case c.state == StateClosed && c.consecutiveFailures >= b.settings.FailureThreshold:
		c.nextAttempt = now.Add(b.settings.Timeout)
		b.transition(key, c, StateOpen)
	}
}

// State returns the key's current state. Unknown keys are closed.
func (b *Breaker) State(key string) State {
	b.mu.RLock()
	c := b.circuits[key]
	b.mu.RUnlock()
	if c == nil {
		return StateClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Details returns an observability snapshot for the key.
func (b *Breaker) Details(key string) Details {
	b.mu.RLock()
	c := b.circuits[key]
	b.mu.RUnlock()
	if c == nil {
		return Details{State: StateClosed}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return Details{
		State:               c.state,
		ConsecutiveFailures: c.consecutiveFailures,
		LastFailure:         c.lastFailure,
		NextAttempt:         c.nextAttempt,
	}
}

// Snapshot returns details for every key that has a record.
func (b *Breaker) Snapshot() map[string]Details {
	b.mu.RLock()
	keys := make([]string, 0, len(b.circuits))
	for key := range b.circuits {
		keys = append(keys, key)
	}
	b.mu.RUnlock()

	out := make(map[string]Details, len(keys))
	for _, key := range keys {
		out[key] = b.Details(key)
	}
	return out
}

// circuitFor returns the key's record, creating it if needed.
func (b *Breaker) circuitFor(key string) *circuit {
	b.mu.RLock()
	c := b.circuits[key]
	b.mu.RUnlock()
	if c != nil {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c = b.circuits[key]; c == nil {
		c = &circuit{state: StateClosed}
		b.circuits[key] = c
	}
	return c
}

// transition must be called with the circuit's lock held.
func (b *Breaker) transition(key string, c *circuit, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(key, from, to)
	}
}
