// Package types defines the shared contracts between the orchestration
// engine and its strategy collaborators.
package types

import (
	"context"
	"time"
)

// TaskType identifies a challenge family a strategy can solve.
type TaskType string

const (
	TaskRecaptchaV2 TaskType = "recaptcha"
	TaskRecaptchaV3 TaskType = "recaptcha_v3"
	TaskHCaptcha    TaskType = "hcaptcha"
	TaskTurnstile   TaskType = "turnstile"
	TaskFunCaptcha  TaskType = "funcaptcha"
	TaskDataDome    TaskType = "datadome"
	TaskGeeTest     TaskType = "geetest"
)

// HealthStatus classifies a strategy or credential from its recent outcomes.
type HealthStatus string

const (
	HealthHealthy    HealthStatus = "healthy"
	HealthUnknown    HealthStatus = "unknown"
	HealthUnhealthy  HealthStatus = "unhealthy"
	HealthValidating HealthStatus = "validating"
)

// SolveParams carries the challenge inputs handed to a strategy.
type SolveParams struct {
	TaskType  TaskType               `json:"task_type"`
	SiteKey   string                 `json:"site_key,omitempty"`
	PageURL   string                 `json:"page_url,omitempty"`
	Proxy     string                 `json:"proxy,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Solution is the outcome of a successful solve attempt.
type Solution struct {
	Token         string                 `json:"token"`
	SolverID      string                 `json:"solver_id"`
	TaskType      TaskType               `json:"task_type"`
	Duration      time.Duration          `json:"duration"`
	Cost          float64                `json:"cost,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Strategy is the collaborator contract executed by the dispatcher.
// Implementations own their timeouts; the dispatcher never imposes one.
type Strategy interface {
	Solve(ctx context.Context, params SolveParams) (*Solution, error)
	IsAvailable(ctx context.Context) bool
	Name() string
}

// Capabilities is the static description a strategy registers with.
type Capabilities struct {
	TaskTypes       []TaskType    `json:"task_types"`
	MaxConcurrency  int           `json:"max_concurrency"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	BaseSuccessRate float64       `json:"base_success_rate"`
	Enabled         bool          `json:"enabled"`
	Priority        int           `json:"priority"`

	// Metered strategies bill through an external provider; successful
	// attempts are charged to the cost ledger under Provider.
	Metered  bool   `json:"metered,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Supports reports whether the capability set includes the task type.
func (c Capabilities) Supports(task TaskType) bool {
	for _, t := range c.TaskTypes {
		if t == task {
			return true
		}
	}
	return false
}
