// Package resilience implements per-key circuit breaking for strategy
// failure isolation.
//
// Each strategy key gets its own CLOSED/OPEN/HALF_OPEN state machine:
//
//	CLOSED --(N consecutive failures)--> OPEN
//	OPEN   --(cooldown elapsed, checked on IsAvailable)--> HALF_OPEN
//	HALF_OPEN --(success)--> CLOSED
//	HALF_OPEN --(failure)--> OPEN (fresh cooldown)
//
// IsAvailable is deliberately side-effecting: the open→half-open transition
// happens when the availability check observes an elapsed cooldown, not on a
// timer. Concurrent half-open probes are all allowed through; the first
// settlement decides the next state.
//
// The clock is injected so tests fast-forward cooldowns instead of sleeping.
package resilience
