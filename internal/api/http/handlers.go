package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cascadehq/solvernet/internal/credentials"
	"github.com/cascadehq/solvernet/internal/dispatch"
	"github.com/cascadehq/solvernet/internal/faults"
	"github.com/cascadehq/solvernet/internal/ledger"
	"github.com/cascadehq/solvernet/internal/registry"
	"github.com/cascadehq/solvernet/internal/shared/types"
	"github.com/cascadehq/solvernet/internal/tracker"
)

// Handlers contains all admin API handlers.
type Handlers struct {
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	tracker    *tracker.Tracker
	pool       *credentials.Pool
	ledger     *ledger.Ledger
}

// NewHandlers creates the handler set.
func NewHandlers(
	dispatcher *dispatch.Dispatcher,
	reg *registry.Registry,
	trk *tracker.Tracker,
	pool *credentials.Pool,
	led *ledger.Ledger,
) *Handlers {
	return &Handlers{
		dispatcher: dispatcher,
		registry:   reg,
		tracker:    trk,
		pool:       pool,
		ledger:     led,
	}
}

// solveRequest is the body of POST /solve and POST /solve/parallel.
type solveRequest struct {
	TaskType  types.TaskType         `json:"task_type" binding:"required"`
	SiteKey   string                 `json:"site_key"`
	PageURL   string                 `json:"page_url"`
	Proxy     string                 `json:"proxy"`
	UserAgent string                 `json:"user_agent"`
	Extra     map[string]interface{} `json:"extra"`

	// Strategies restricts a parallel solve to an explicit candidate set.
	Strategies []string `json:"strategies"`
}

func (r solveRequest) params() types.SolveParams {
	return types.SolveParams{
		TaskType:  r.TaskType,
		SiteKey:   r.SiteKey,
		PageURL:   r.PageURL,
		Proxy:     r.Proxy,
		UserAgent: r.UserAgent,
		Extra:     r.Extra,
	}
}

// Root handles the liveness check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "solvernet",
	})
}

// Health reports catalog and provider health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"strategies": h.registry.Summary(),
		"providers":  h.pool.AvailableProviders(),
		"circuits":   h.dispatcher.CircuitStates(),
	})
}

// Solve dispatches a challenge across the candidate strategies.
func (h *Handlers) Solve(c *gin.Context) {
	var req solveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, faults.Validation("invalid request body: %s", err.Error()))
		return
	}

	solution, err := h.dispatcher.Solve(c.Request.Context(), req.TaskType, req.params())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, solution)
}

// SolveParallel races an explicit strategy set.
func (h *Handlers) SolveParallel(c *gin.Context) {
	var req solveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, faults.Validation("invalid request body: %s", err.Error()))
		return
	}
	if len(req.Strategies) == 0 {
		respondError(c, faults.Validation("strategies list is required"))
		return
	}

	solution, err := h.dispatcher.SolveInParallel(c.Request.Context(), req.TaskType, req.params(), req.Strategies)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, solution)
}

// ListStrategies lists strategies usable for a task type right now.
func (h *Handlers) ListStrategies(c *gin.Context) {
	task := types.TaskType(c.Query("task_type"))
	if task == "" {
		respondError(c, faults.Validation("task_type query parameter is required"))
		return
	}

	strategies := h.dispatcher.AvailableStrategies(task)
	c.JSON(http.StatusOK, gin.H{
		"task_type":  task,
		"strategies": strategies,
		"count":      len(strategies),
	})
}

// ListAllStrategies lists every registered strategy with circuit state. An
// optional task_type query narrows the listing without hiding disabled or
// circuit-broken entries.
func (h *Handlers) ListAllStrategies(c *gin.Context) {
	task := types.TaskType(c.Query("task_type"))
	strategies := h.dispatcher.AllStrategies(task)
	body := gin.H{
		"strategies": strategies,
		"count":      len(strategies),
	}
	if task != "" {
		body["task_type"] = task
	}
	c.JSON(http.StatusOK, body)
}

// EnableStrategy flips a strategy's enabled flag on.
func (h *Handlers) EnableStrategy(c *gin.Context) {
	h.setStrategyEnabled(c, true)
}

// DisableStrategy flips a strategy's enabled flag off.
func (h *Handlers) DisableStrategy(c *gin.Context) {
	h.setStrategyEnabled(c, false)
}

func (h *Handlers) setStrategyEnabled(c *gin.Context, enabled bool) {
	key := c.Param("key")
	if _, ok := h.registry.Get(key); !ok {
		respondError(c, faults.Validation("unknown strategy %q", key))
		return
	}

	if enabled {
		h.registry.Enable(key)
	} else {
		h.registry.Disable(key)
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "enabled": enabled})
}

// StrategyStats returns one strategy's rolling statistics.
func (h *Handlers) StrategyStats(c *gin.Context) {
	key := c.Param("key")
	if _, ok := h.registry.Get(key); !ok {
		respondError(c, faults.Validation("unknown strategy %q", key))
		return
	}

	stats, ok := h.tracker.Stats(key)
	c.JSON(http.StatusOK, gin.H{
		"key":          key,
		"has_attempts": ok,
		"stats":        stats,
	})
}

// AllStats returns rolling statistics for every strategy with attempts.
func (h *Handlers) AllStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.AllStats())
}

// Circuits snapshots every circuit breaker record.
func (h *Handlers) Circuits(c *gin.Context) {
	c.JSON(http.StatusOK, h.dispatcher.CircuitStates())
}

// Credentials lists a provider's keys, masked.
func (h *Handlers) Credentials(c *gin.Context) {
	provider := c.Param("provider")
	meta := h.pool.Metadata(provider)
	if meta == nil {
		respondError(c, faults.Validation("unknown provider %q", provider))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider":    provider,
		"credentials": meta,
		"available":   h.pool.ProviderAvailable(provider),
	})
}

// Usage reports one provider's accumulated spend.
func (h *Handlers) Usage(c *gin.Context) {
	provider := c.Param("provider")
	c.JSON(http.StatusOK, gin.H{
		"provider": provider,
		"usage":    h.ledger.UsageFor(provider),
	})
}

// TotalUsage reports engine-wide spend.
func (h *Handlers) TotalUsage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"total_cost": h.ledger.TotalCost(),
		"entries":    h.ledger.Len(),
	})
}

// respondError maps the error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	if e, ok := faults.As(err); ok {
		switch e.Kind {
		case faults.KindValidation:
			status = http.StatusBadRequest
		case faults.KindUnavailable:
			status = http.StatusServiceUnavailable
		case faults.KindProvider:
			status = http.StatusBadGateway
		}
		body = gin.H{
			"error":     e.Message,
			"kind":      e.Kind.String(),
			"code":      e.Code,
			"retryable": faults.IsRetryable(e),
		}
		if e.CorrelationID != "" {
			body["correlation_id"] = e.CorrelationID
		}
		if len(e.Context) > 0 {
			body["context"] = e.Context
		}
	}

	c.JSON(status, body)
}
