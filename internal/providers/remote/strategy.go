package remote

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cascadehq/solvernet/internal/credentials"
	"github.com/cascadehq/solvernet/internal/faults"
	"github.com/cascadehq/solvernet/internal/logging"
	"github.com/cascadehq/solvernet/internal/shared/types"
)

// Task-based solve API: createTask returns a task id, getTaskResult is polled
// until the solution is ready.
const (
	createTaskPath = "/createTask"
	taskResultPath = "/getTaskResult"
)

// Provider error codes that condemn the credential rather than the attempt.
var credentialErrorCodes = map[string]bool{
	"ERROR_KEY_INVALID":  true,
	"ERROR_KEY_EXPIRED":  true,
	"ERROR_ZERO_BALANCE": true,
	"ERROR_IP_BANNED":    true,
}

// taskNames maps engine task types to the provider task type names.
var taskNames = map[types.TaskType]string{
	types.TaskRecaptchaV2: "RecaptchaV2TaskProxyless",
	types.TaskRecaptchaV3: "RecaptchaV3TaskProxyless",
	types.TaskHCaptcha:    "HCaptchaTaskProxyless",
	types.TaskTurnstile:   "TurnstileTaskProxyless",
	types.TaskFunCaptcha:  "FunCaptchaTaskProxyless",
	types.TaskDataDome:    "DataDomeSliderTask",
	types.TaskGeeTest:     "GeeTestTask",
}

type createTaskRequest struct {
	ClientKey string      `json:"clientKey"`
	Task      taskPayload `json:"task"`
}

type taskPayload struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL,omitempty"`
	WebsiteKey string `json:"websiteKey,omitempty"`
	Proxy      string `json:"proxy,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
}

type createTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode,omitempty"`
	ErrorDescription string `json:"errorDescription,omitempty"`
	TaskID           string `json:"taskId,omitempty"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    string `json:"taskId"`
}

type taskResultResponse struct {
	ErrorID          int     `json:"errorId"`
	ErrorCode        string  `json:"errorCode,omitempty"`
	ErrorDescription string  `json:"errorDescription,omitempty"`
	Status           string  `json:"status,omitempty"`
	Cost             float64 `json:"cost,omitempty"`
	Solution         struct {
		Token string `json:"token"`
	} `json:"solution"`
}

// Observer is notified of credential outcomes, for metrics. Implementations
// must not block.
type Observer interface {
	RecordCredentialUse(provider string, success bool)
	SetProviderAvailable(provider string, available bool)
}

type nopObserver struct{}

func (nopObserver) RecordCredentialUse(string, bool)  {}
func (nopObserver) SetProviderAvailable(string, bool) {}

// Config describes one metered provider strategy.
type Config struct {
	// Provider is the credential pool and cost ledger key.
	Provider string
	BaseURL  string
	// RPS caps outbound requests per second. Zero means unlimited.
	RPS float64
	// PollInterval is the delay between result polls. Default 2s.
	PollInterval time.Duration
	// PollTimeout bounds the whole solve. Default 2m.
	PollTimeout time.Duration
	// RetryMax bounds transport-level retries per request. Default 3.
	RetryMax int
	// RetryWaitMin is the initial transport retry backoff. Default 1s.
	RetryWaitMin time.Duration
	// RetryWaitMax caps the transport retry backoff. Default 15s.
	RetryWaitMax time.Duration
}

// Strategy solves through an external task-based provider API, drawing a
// rotated credential per attempt and reporting each outcome back to the pool.
type Strategy struct {
	cfg      Config
	client   *Client
	pool     *credentials.Pool
	logger   *logging.Logger
	observer Observer
}

// New creates a remote strategy for one provider.
func New(cfg Config, pool *credentials.Pool, logger *logging.Logger) *Strategy {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Strategy{
		cfg: cfg,
		client: NewClient(ClientConfig{
			BaseURL:      cfg.BaseURL,
			RPS:          cfg.RPS,
			RetryMax:     cfg.RetryMax,
			RetryWaitMin: cfg.RetryWaitMin,
			RetryWaitMax: cfg.RetryWaitMax,
		}),
		pool:     pool,
		logger:   logger.Named(cfg.Provider),
		observer: nopObserver{},
	}
}

// WithObserver attaches a metrics observer and returns the strategy.
func (s *Strategy) WithObserver(o Observer) *Strategy {
	if o != nil {
		s.observer = o
	}
	return s
}

// Name returns the provider name.
func (s *Strategy) Name() string { return s.cfg.Provider }

// IsAvailable reports whether the provider has a usable credential.
func (s *Strategy) IsAvailable(context.Context) bool {
	return s.pool.ProviderAvailable(s.cfg.Provider)
}

// Solve submits the challenge and polls for the result. Credential health is
// settled per attempt: provider-level credential errors demote the key, any
// fulfilled solve promotes it.
func (s *Strategy) Solve(ctx context.Context, params types.SolveParams) (*types.Solution, error) {
	taskName, ok := taskNames[params.TaskType]
	if !ok {
		return nil, faults.Validation("task type %q is not supported by provider %s", params.TaskType, s.cfg.Provider)
	}

	key, err := s.pool.Key(s.cfg.Provider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	defer cancel()

	taskID, err := s.createTask(ctx, key, taskName, params)
	if err != nil {
		s.settle(key, false, err)
		return nil, err
	}

	solution, err := s.pollResult(ctx, key, taskID)
	if err != nil {
		s.settle(key, false, err)
		return nil, err
	}

	s.settle(key, true, nil)
	return solution, nil
}

// settle reports one credential outcome to the pool and the observer.
func (s *Strategy) settle(key string, success bool, err error) {
	if success {
		s.pool.RecordSuccess(s.cfg.Provider, key)
	} else {
		s.pool.RecordFailure(s.cfg.Provider, key, err.Error())
	}
	s.observer.RecordCredentialUse(s.cfg.Provider, success)
	s.observer.SetProviderAvailable(s.cfg.Provider, s.pool.ProviderAvailable(s.cfg.Provider))
}

func (s *Strategy) createTask(ctx context.Context, key, taskName string, params types.SolveParams) (string, error) {
	req, err := s.client.R(ctx)
	if err != nil {
		return "", faults.Provider(s.cfg.Provider, err.Error(), true)
	}

	var out createTaskResponse
	resp, err := req.
		SetBody(createTaskRequest{
			ClientKey: key,
			Task: taskPayload{
				Type:       taskName,
				WebsiteURL: params.PageURL,
				WebsiteKey: params.SiteKey,
				Proxy:      params.Proxy,
				UserAgent:  params.UserAgent,
			},
		}).
		SetResult(&out).
		Post(createTaskPath)
	if err != nil {
		return "", faults.Provider(s.cfg.Provider, err.Error(), true)
	}
	if resp.IsError() {
		return "", faults.Provider(s.cfg.Provider, resp.Status(), true)
	}
	if out.ErrorID != 0 {
		return "", s.apiError(out.ErrorCode, out.ErrorDescription)
	}
	if out.TaskID == "" {
		return "", faults.Provider(s.cfg.Provider, "createTask returned no task id", true)
	}

	s.logger.Debug("task created",
		zap.String("task_id", out.TaskID),
		zap.String("task_name", taskName),
	)
	return out.TaskID, nil
}

func (s *Strategy) pollResult(ctx context.Context, key, taskID string) (*types.Solution, error) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, faults.Provider(s.cfg.Provider, "solve timed out waiting for result", true)
		case <-ticker.C:
		}

		req, err := s.client.R(ctx)
		if err != nil {
			return nil, faults.Provider(s.cfg.Provider, err.Error(), true)
		}

		var out taskResultResponse
		resp, err := req.
			SetBody(taskResultRequest{ClientKey: key, TaskID: taskID}).
			SetResult(&out).
			Post(taskResultPath)
		if err != nil {
			return nil, faults.Provider(s.cfg.Provider, err.Error(), true)
		}
		if resp.IsError() {
			return nil, faults.Provider(s.cfg.Provider, resp.Status(), true)
		}
		if out.ErrorID != 0 {
			return nil, s.apiError(out.ErrorCode, out.ErrorDescription)
		}
		if out.Status != "ready" {
			continue
		}
		if out.Solution.Token == "" {
			return nil, faults.Provider(s.cfg.Provider, "result is ready but carries no token", true)
		}

		return &types.Solution{
			Token: out.Solution.Token,
			Cost:  out.Cost,
		}, nil
	}
}

// apiError classifies a structured provider error. Credential errors are not
// retryable on this key; the pool demotes it and the next attempt rotates.
func (s *Strategy) apiError(code, description string) error {
	msg := code
	if description != "" {
		msg = code + ": " + description
	}
	return faults.Provider(s.cfg.Provider, msg, !credentialErrorCodes[code]).
		With("error_code", code)
}
