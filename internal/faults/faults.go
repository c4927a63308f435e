// Package faults defines the error taxonomy surfaced by the orchestration
// engine. Callers always receive one of four kinds (Unavailable, Validation,
// Provider, Internal), never a raw error from a strategy implementation.
//
// Errors carry a machine-readable code, a retryable flag, a structured context
// map, and the correlation id of the solve call that produced them. They are
// constructed via free functions rather than a type hierarchy.
package faults

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy.
type Kind int

const (
	KindUnavailable Kind = iota
	KindValidation
	KindProvider
	KindInternal
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindValidation:
		return "validation"
	case KindProvider:
		return "provider"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Machine-readable reason codes for Unavailable errors.
const (
	ReasonNoStrategies         = "no_strategies_enabled"
	ReasonAllCircuitBroken     = "all_circuit_broken"
	ReasonAllFailed            = "all_failed"
	ReasonNoParallelCandidates = "no_candidates_for_parallel"
)

// Error is the single error type surfaced by the engine.
type Error struct {
	Kind          Kind
	Code          string
	Message       string
	Retryable     bool
	CorrelationID string
	Context       map[string]interface{}

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// With attaches a context entry and returns the error for chaining.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCorrelation stamps the error with a solve call's correlation id.
func (e *Error) WithCorrelation(id string) *Error {
	e.CorrelationID = id
	return e
}

// Unavailable reports that no usable candidate could serve the request.
func Unavailable(code, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindUnavailable,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Validation reports malformed caller input or an administratively disabled
// feature. Never retried.
func Validation(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "invalid_request",
		Message: fmt.Sprintf(format, args...),
	}
}

// Provider reports a structured failure from an external metered strategy.
func Provider(provider, message string, retryable bool) *Error {
	e := &Error{
		Kind:      KindProvider,
		Code:      "provider_error",
		Message:   message,
		Retryable: retryable,
	}
	return e.With("provider", provider)
}

// Internal wraps an unexpected failure with call-site context.
func Internal(cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    "internal_error",
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// KindOf extracts the taxonomy kind, defaulting unknown errors to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err belongs to the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// As extracts the taxonomy error, if err carries one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsRetryable reports whether the fallback chain may continue past err.
// Unknown errors are treated as retryable so a single misbehaving strategy
// cannot stall the chain.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		if e.Kind == KindValidation {
			return false
		}
		if e.Kind == KindProvider {
			return e.Retryable
		}
	}
	return true
}

// Tag injects the correlation id into a known taxonomy error, or wraps an
// unknown error as Internal carrying it.
func Tag(err error, correlationID string) error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		if e.CorrelationID == "" {
			e.CorrelationID = correlationID
		}
		return e
	}
	return Internal(err, "%s", err.Error()).WithCorrelation(correlationID)
}
