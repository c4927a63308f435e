package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cascadehq/solvernet/internal/faults"
	"github.com/cascadehq/solvernet/internal/ledger"
	"github.com/cascadehq/solvernet/internal/logging"
	"github.com/cascadehq/solvernet/internal/registry"
	"github.com/cascadehq/solvernet/internal/resilience"
	"github.com/cascadehq/solvernet/internal/scoring"
	"github.com/cascadehq/solvernet/internal/shared/clock"
	"github.com/cascadehq/solvernet/internal/shared/id"
	"github.com/cascadehq/solvernet/internal/shared/types"
	"github.com/cascadehq/solvernet/internal/tracker"
)

// DefaultParallelism is the size of the parallel race batch.
const DefaultParallelism = 3

// Observer is the metrics side channel notified on every attempt. It is
// fire-and-forget: implementations must not block.
type Observer interface {
	RecordSolve(taskType, strategy string, success bool, duration time.Duration)
	AttemptStarted()
	AttemptFinished()
	RecordCost(provider, taskType string, cost float64)
}

type nopObserver struct{}

func (nopObserver) RecordSolve(string, string, bool, time.Duration) {}
func (nopObserver) AttemptStarted()                                 {}
func (nopObserver) AttemptFinished()                                {}
func (nopObserver) RecordCost(string, string, float64)              {}

// Dispatcher orchestrates one solve call across the registered strategies:
// filter by circuit availability, rank, race a parallel batch, then walk the
// remainder sequentially.
type Dispatcher struct {
	registry *registry.Registry
	breaker  *resilience.Breaker
	tracker  *tracker.Tracker
	ledger   *ledger.Ledger

	clock       clock.Clock
	logger      *logging.Logger
	ids         *id.Generator
	observer    Observer
	parallelism int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithClock sets the dispatcher's clock.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithObserver sets the metrics side channel.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithParallelism overrides the race batch size.
func WithParallelism(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.parallelism = n
		}
	}
}

// New creates a dispatcher over the given collaborators.
func New(reg *registry.Registry, brk *resilience.Breaker, trk *tracker.Tracker, led *ledger.Ledger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    reg,
		breaker:     brk,
		tracker:     trk,
		ledger:      led,
		clock:       clock.System(),
		logger:      logging.NewNop(),
		ids:         id.Default(),
		observer:    nopObserver{},
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// outcome is one settled attempt inside a race.
type outcome struct {
	key      string
	solution *types.Solution
	err      error
}

// Solve dispatches one task across the candidate strategies. The parallel
// batch of the top-ranked candidates races first; if it fully fails, the
// remainder is walked sequentially in the rank order computed at the start of
// the call. Every attempt, winner or loser, updates the registry, breaker,
// tracker, and ledger as it settles.
func (d *Dispatcher) Solve(ctx context.Context, task types.TaskType, params types.SolveParams) (*types.Solution, error) {
	if task == "" {
		return nil, faults.Validation("task type is required")
	}
	corr := d.ids.Correlation()
	log := d.logger.WithCorrelation(corr.String())
	params.TaskType = task

	candidates := d.registry.CandidatesFor(task)
	if len(candidates) == 0 {
		return nil, faults.Unavailable(faults.ReasonNoStrategies, "no strategies enabled for task type %q", task).
			WithCorrelation(corr.String())
	}

	available := candidates[:0]
	skipped := make([]string, 0)
	for _, c := range candidates {
		if d.breaker.IsAvailable(c.Key) {
			available = append(available, c)
		} else {
			skipped = append(skipped, c.Key)
		}
	}
	if len(available) == 0 {
		return nil, faults.Unavailable(faults.ReasonAllCircuitBroken, "all %d candidate strategies are circuit-broken", len(skipped)).
			With("skipped", skipped).
			WithCorrelation(corr.String())
	}

	ranked := scoring.Rank(available, d.tracker.Stats, d.clock.Now())

	batch := d.parallelism
	if batch > len(ranked) {
		batch = len(ranked)
	}
	log.Info("dispatching solve",
		zap.String("task_type", string(task)),
		zap.Int("candidates", len(ranked)),
		zap.Int("parallel_batch", batch),
	)

	attempted := make([]string, 0, len(ranked))
	lastErrors := make(map[string]string)

	// Phase 1: race the top-ranked batch.
	solution, raceErrs := d.race(ctx, ranked[:batch], params, corr, log)
	halted := false
	for key, err := range raceErrs {
		lastErrors[key] = err.Error()
		if !faults.IsRetryable(err) {
			halted = true
		}
	}
	for _, c := range ranked[:batch] {
		attempted = append(attempted, c.Key)
	}
	if solution != nil {
		return solution, nil
	}

	// Phase 2: sequential walk of the remainder, re-checking circuits per
	// step. No inter-candidate delay; backoff belongs to the strategies. A
	// non-retryable failure anywhere halts the chain.
	for _, c := range ranked[batch:] {
		if halted {
			break
		}
		if !d.breaker.IsAvailable(c.Key) {
			log.Debug("skipping candidate, circuit opened mid-call", zap.String("strategy", c.Key))
			continue
		}
		attempted = append(attempted, c.Key)

		sol, err := d.attempt(ctx, c, params, corr, log)
		if err == nil {
			return sol, nil
		}
		lastErrors[c.Key] = err.Error()
		if !faults.IsRetryable(err) {
			break
		}
	}

	err := faults.Unavailable(faults.ReasonAllFailed, "all %d attempted strategies failed for task type %q", len(attempted), task).
		With("attempted", attempted).
		With("errors", lastErrors).
		WithCorrelation(corr.String())
	log.Warn("solve exhausted all candidates",
		zap.String("task_type", string(task)),
		zap.Strings("attempted", attempted),
	)
	return nil, err
}

// SolveInParallel races an explicit candidate set. It is the low-level
// primitive behind the parallel phase of Solve and is exposed directly on the
// admin surface.
func (d *Dispatcher) SolveInParallel(ctx context.Context, task types.TaskType, params types.SolveParams, keys []string) (*types.Solution, error) {
	if task == "" {
		return nil, faults.Validation("task type is required")
	}
	corr := d.ids.Correlation()
	log := d.logger.WithCorrelation(corr.String())
	params.TaskType = task

	var batch []registry.Descriptor
	for _, key := range keys {
		c, ok := d.registry.Get(key)
		if !ok || !c.Capabilities.Enabled || !c.Capabilities.Supports(task) {
			continue
		}
		if !d.breaker.IsAvailable(key) {
			continue
		}
		batch = append(batch, c)
	}
	if len(batch) == 0 {
		return nil, faults.Unavailable(faults.ReasonNoParallelCandidates, "no usable candidates among %d requested keys", len(keys)).
			With("requested", keys).
			WithCorrelation(corr.String())
	}

	solution, raceErrs := d.race(ctx, batch, params, corr, log)
	if solution != nil {
		return solution, nil
	}

	attempted := make([]string, 0, len(batch))
	for _, c := range batch {
		attempted = append(attempted, c.Key)
	}
	errs := make(map[string]string, len(raceErrs))
	for key, err := range raceErrs {
		errs[key] = err.Error()
	}
	return nil, faults.Unavailable(faults.ReasonAllFailed, "all %d raced strategies failed for task type %q", len(batch), task).
		With("attempted", attempted).
		With("errors", errs).
		WithCorrelation(corr.String())
}

// race fans out the batch and returns the first fulfillment. Losing attempts
// are not cancelled: they run to completion and record their outcomes to
// shared state as they settle, after the winner has already been returned.
func (d *Dispatcher) race(ctx context.Context, batch []registry.Descriptor, params types.SolveParams, corr id.CorrelationID, log *logging.Logger) (*types.Solution, map[string]error) {
	results := make(chan outcome, len(batch))
	for _, c := range batch {
		go func(c registry.Descriptor) {
			sol, err := d.attempt(ctx, c, params, corr, log)
			results <- outcome{key: c.Key, solution: sol, err: err}
		}(c)
	}

	errs := make(map[string]error, len(batch))
	for i := 0; i < len(batch); i++ {
		res := <-results
		if res.err == nil {
			return res.solution, errs
		}
		errs[res.key] = res.err
	}
	return nil, errs
}

// attempt runs one strategy invocation and records its outcome everywhere:
// tracker, breaker, registry, and (for metered strategies) the ledger.
func (d *Dispatcher) attempt(ctx context.Context, c registry.Descriptor, params types.SolveParams, corr id.CorrelationID, log *logging.Logger) (*types.Solution, error) {
	strategy, err := c.Factory()
	if err != nil || strategy == nil {
		// A broken constructor makes the candidate unusable; it is not a
		// strategy failure, so the circuit and health counters stay put.
		log.Warn("strategy construction failed",
			zap.String("strategy", c.Key),
			zap.Error(err),
		)
		if err == nil {
			return nil, faults.Internal(nil, "strategy %q factory returned nil", c.Key).WithCorrelation(corr.String())
		}
		return nil, faults.Internal(err, "failed to construct strategy %q", c.Key).WithCorrelation(corr.String())
	}

	d.observer.AttemptStarted()
	start := d.clock.Now()
	solution, err := strategy.Solve(ctx, params)
	duration := d.clock.Now().Sub(start)
	d.observer.AttemptFinished()

	d.tracker.Record(c.Key, params.TaskType, duration, err == nil, err)
	d.observer.RecordSolve(string(params.TaskType), c.Key, err == nil, duration)

	if err != nil {
		d.breaker.RecordFailure(c.Key)
		d.registry.RecordFailure(c.Key)
		log.Debug("strategy attempt failed",
			zap.String("strategy", c.Key),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, faults.Tag(err, corr.String())
	}

	d.breaker.RecordSuccess(c.Key)
	d.registry.RecordSuccess(c.Key)
	if c.Capabilities.Metered && c.Capabilities.Provider != "" {
		charged := d.ledger.Record(c.Capabilities.Provider, params.TaskType, solution.Cost)
		d.observer.RecordCost(c.Capabilities.Provider, string(params.TaskType), charged)
	}

	solution.SolverID = c.Key
	solution.TaskType = params.TaskType
	solution.Duration = duration
	solution.CorrelationID = corr.String()
	log.Info("strategy attempt succeeded",
		zap.String("strategy", c.Key),
		zap.Duration("duration", duration),
	)
	return solution, nil
}
