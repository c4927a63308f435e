package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. It doubles as the
// dispatcher's fire-and-forget observer: solve outcomes, in-flight counts,
// circuit trips, and provider availability all land here.
type Metrics struct {
	SolvesTotal      *prometheus.CounterVec
	SolveDuration    *prometheus.HistogramVec
	AttemptsInFlight prometheus.Gauge
	CircuitTrips     *prometheus.CounterVec
	ProviderUp       *prometheus.GaugeVec
	CredentialUses   *prometheus.CounterVec
	CostTotal        *prometheus.CounterVec

	Uptime    prometheus.Gauge
	startTime time.Time
}

// New creates the metrics collectors on the given registerer. Tests pass a
// fresh registry to avoid duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		SolvesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solvernet_solves_total",
				Help: "Total number of solve attempts",
			},
			[]string{"task_type", "strategy", "status"},
		),
		SolveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solvernet_solve_duration_seconds",
				Help:    "Solve attempt duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"task_type", "strategy"},
		),
		AttemptsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "solvernet_attempts_in_flight",
				Help: "Number of strategy invocations currently running",
			},
		),
		CircuitTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solvernet_circuit_trips_total",
				Help: "Total number of circuit breaker trips",
			},
			[]string{"strategy"},
		),
		ProviderUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "solvernet_provider_available",
				Help: "Whether a metered provider has usable credentials (1/0)",
			},
			[]string{"provider"},
		),
		CredentialUses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solvernet_credential_uses_total",
				Help: "Total number of credential uses",
			},
			[]string{"provider", "status"},
		),
		CostTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solvernet_cost_total",
				Help: "Accumulated provider spend",
			},
			[]string{"provider", "task_type"},
		),
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "solvernet_uptime_seconds",
				Help: "Engine uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric.
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordSolve records one strategy invocation outcome.
func (m *Metrics) RecordSolve(taskType, strategy string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.SolvesTotal.WithLabelValues(taskType, strategy, status).Inc()
	m.SolveDuration.WithLabelValues(taskType, strategy).Observe(duration.Seconds())
}

// AttemptStarted increments the in-flight gauge.
func (m *Metrics) AttemptStarted() {
	m.AttemptsInFlight.Inc()
}

// AttemptFinished decrements the in-flight gauge.
func (m *Metrics) AttemptFinished() {
	m.AttemptsInFlight.Dec()
}

// RecordCircuitTrip counts a closed/half-open → open transition.
func (m *Metrics) RecordCircuitTrip(strategy string) {
	m.CircuitTrips.WithLabelValues(strategy).Inc()
}

// SetProviderAvailable publishes a provider-availability change.
func (m *Metrics) SetProviderAvailable(provider string, available bool) {
	v := 0.0
	if available {
		v = 1.0
	}
	m.ProviderUp.WithLabelValues(provider).Set(v)
}

// RecordCredentialUse counts one credential use.
func (m *Metrics) RecordCredentialUse(provider string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.CredentialUses.WithLabelValues(provider, status).Inc()
}

// RecordCost accumulates provider spend.
func (m *Metrics) RecordCost(provider, taskType string, cost float64) {
	m.CostTotal.WithLabelValues(provider, taskType).Add(cost)
}
