// Package monitoring exposes Prometheus metrics for the engine.
//
// The metrics are a fire-and-forget side channel: the dispatcher notifies
// solve outcomes, in-flight counts, and metered spend; the circuit breaker
// notifies trips through its OnStateChange hook; the remote provider notifies
// credential use. Nothing in the core contract depends on a metric value.
//
// Exposition is via the /metrics endpoint on the admin API.
package monitoring
