package dispatch

import (
	"github.com/cascadehq/solvernet/internal/registry"
	"github.com/cascadehq/solvernet/internal/resilience"
	"github.com/cascadehq/solvernet/internal/shared/types"
)

// StrategyView joins a registry descriptor with its circuit state for the
// admin surface.
type StrategyView struct {
	registry.Descriptor
	CircuitState string `json:"circuit_state"`
	Available    bool   `json:"available"`
}

// AvailableStrategies lists strategies that would be considered for the task
// right now: enabled, supporting the task type, and circuit-available. The
// availability check has the usual half-open side effect.
func (d *Dispatcher) AvailableStrategies(task types.TaskType) []StrategyView {
	var out []StrategyView
	for _, c := range d.registry.CandidatesFor(task) {
		if !d.breaker.IsAvailable(c.Key) {
			continue
		}
		out = append(out, d.view(c))
	}
	return out
}

// AllStrategies lists every registered strategy regardless of enablement or
// circuit state. A non-empty task narrows the listing to strategies whose
// capabilities cover it.
func (d *Dispatcher) AllStrategies(task types.TaskType) []StrategyView {
	var out []StrategyView
	for _, key := range d.registry.Keys() {
		c, ok := d.registry.Get(key)
		if !ok {
			continue
		}
		if task != "" && !c.Capabilities.Supports(task) {
			continue
		}
		out = append(out, d.view(c))
	}
	return out
}

// CircuitStates snapshots every circuit that has a record.
func (d *Dispatcher) CircuitStates() map[string]resilience.Details {
	return d.breaker.Snapshot()
}

// view derives availability without the half-open side effect: an open
// circuit whose cooldown has elapsed would admit a probe, so it reports
// available even though the snapshot still says open.
func (d *Dispatcher) view(c registry.Descriptor) StrategyView {
	det := d.breaker.Details(c.Key)
	usable := det.State != resilience.StateOpen || !d.clock.Now().Before(det.NextAttempt)
	return StrategyView{
		Descriptor:   c,
		CircuitState: det.State.String(),
		Available:    c.Capabilities.Enabled && usable,
	}
}
