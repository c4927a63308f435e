package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/solvernet/internal/credentials"
	"github.com/cascadehq/solvernet/internal/dispatch"
	"github.com/cascadehq/solvernet/internal/faults"
	"github.com/cascadehq/solvernet/internal/ledger"
	"github.com/cascadehq/solvernet/internal/registry"
	"github.com/cascadehq/solvernet/internal/resilience"
	"github.com/cascadehq/solvernet/internal/shared/types"
	"github.com/cascadehq/solvernet/internal/tracker"
)

type stubStrategy struct {
	name string
	fn   func() (*types.Solution, error)
}

func (s *stubStrategy) Solve(context.Context, types.SolveParams) (*types.Solution, error) {
	return s.fn()
}
func (s *stubStrategy) IsAvailable(context.Context) bool { return true }
func (s *stubStrategy) Name() string                     { return s.name }

type fixture struct {
	router   *gin.Engine
	registry *registry.Registry
	breaker  *resilience.Breaker
	pool     *credentials.Pool
	ledger   *ledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New()
	brk := resilience.New(resilience.Settings{})
	trk := tracker.New(100, nil)
	led := ledger.New(100, 30, nil)
	pool := credentials.NewPool(nil)
	dispatcher := dispatch.New(reg, brk, trk, led)

	handlers := NewHandlers(dispatcher, reg, trk, pool, led)

	router := gin.New()
	router.GET("/health", handlers.Health)
	router.POST("/solve", handlers.Solve)
	router.POST("/solve/parallel", handlers.SolveParallel)
	router.GET("/strategies", handlers.ListStrategies)
	router.GET("/strategies/all", handlers.ListAllStrategies)
	router.POST("/strategies/:key/enable", handlers.EnableStrategy)
	router.POST("/strategies/:key/disable", handlers.DisableStrategy)
	router.GET("/strategies/:key/stats", handlers.StrategyStats)
	router.GET("/circuits", handlers.Circuits)
	router.GET("/credentials/:provider", handlers.Credentials)
	router.GET("/usage/:provider", handlers.Usage)
	router.GET("/usage", handlers.TotalUsage)

	return &fixture{router: router, registry: reg, breaker: brk, pool: pool, ledger: led}
}

func (f *fixture) register(key string, fn func() (*types.Solution, error)) {
	f.registry.Register(key, func() (types.Strategy, error) {
		return &stubStrategy{name: key, fn: fn}, nil
	}, types.Capabilities{
		TaskTypes:       []types.TaskType{types.TaskRecaptchaV2},
		Enabled:         true,
		BaseSuccessRate: 0.5,
	})
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestSolveEndpoint(t *testing.T) {
	f := newFixture(t)
	f.register("native", func() (*types.Solution, error) {
		return &types.Solution{Token: "tok-123"}, nil
	})

	w, body := f.do(t, http.MethodPost, "/solve", `{"task_type":"recaptcha","site_key":"sk"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok-123", body["token"])
	assert.Equal(t, "native", body["solver_id"])
}

func TestSolveEndpointRejectsBadBody(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/solve", `{"site_key":"sk"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", body["kind"])
}

func TestSolveEndpointMapsUnavailable(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/solve", `{"task_type":"recaptcha"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", body["kind"])
	assert.Equal(t, faults.ReasonNoStrategies, body["code"])
}

func TestSolveEndpointMapsExhaustion(t *testing.T) {
	f := newFixture(t)
	f.register("down", func() (*types.Solution, error) {
		return nil, faults.Provider("acme", "boom", true)
	})

	w, body := f.do(t, http.MethodPost, "/solve", `{"task_type":"recaptcha"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, faults.ReasonAllFailed, body["code"])
	assert.NotEmpty(t, body["correlation_id"])

	ctx, ok := body["context"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, ctx, "attempted")
}

func TestSolveParallelRequiresStrategies(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, http.MethodPost, "/solve/parallel", `{"task_type":"recaptcha"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStrategyListingAndToggle(t *testing.T) {
	f := newFixture(t)
	f.register("native", func() (*types.Solution, error) {
		return &types.Solution{Token: "tok"}, nil
	})

	w, body := f.do(t, http.MethodGet, "/strategies?task_type=recaptcha", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	w, _ = f.do(t, http.MethodPost, "/strategies/native/disable", "")
	assert.Equal(t, http.StatusOK, w.Code)

	_, body = f.do(t, http.MethodGet, "/strategies?task_type=recaptcha", "")
	assert.Equal(t, float64(0), body["count"])

	w, _ = f.do(t, http.MethodPost, "/strategies/missing/enable", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Disabled strategies still appear in the full listing.
	_, body = f.do(t, http.MethodGet, "/strategies/all", "")
	assert.Equal(t, float64(1), body["count"])

	// The full listing takes an optional task type filter.
	_, body = f.do(t, http.MethodGet, "/strategies/all?task_type=recaptcha", "")
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, "recaptcha", body["task_type"])

	_, body = f.do(t, http.MethodGet, "/strategies/all?task_type=hcaptcha", "")
	assert.Equal(t, float64(0), body["count"])
}

func TestStrategyStatsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.register("native", func() (*types.Solution, error) {
		return &types.Solution{Token: "tok"}, nil
	})

	w, _ := f.do(t, http.MethodPost, "/solve", `{"task_type":"recaptcha"}`)
	require.Equal(t, http.StatusOK, w.Code)

	_, body := f.do(t, http.MethodGet, "/strategies/native/stats", "")
	assert.Equal(t, true, body["has_attempts"])
	stats, ok := body["stats"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), stats["total_attempts"])
}

func TestCredentialsEndpointMasksKeys(t *testing.T) {
	f := newFixture(t)
	f.pool.Add("acme", "super-secret-key-1234")

	w, body := f.do(t, http.MethodGet, "/credentials/acme", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["available"])

	creds, ok := body["credentials"].([]interface{})
	require.True(t, ok)
	require.Len(t, creds, 1)
	first := creds[0].(map[string]interface{})
	assert.Equal(t, "supe*************1234", first["key"])

	w, _ = f.do(t, http.MethodGet, "/credentials/ghost", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUsageEndpoints(t *testing.T) {
	f := newFixture(t)
	f.ledger.Record("acme", types.TaskRecaptchaV2, 0.002)

	_, body := f.do(t, http.MethodGet, "/usage/acme", "")
	usage, ok := body["usage"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), usage["count"])

	_, body = f.do(t, http.MethodGet, "/usage", "")
	assert.InDelta(t, 0.002, body["total_cost"].(float64), 1e-9)
}

func TestHealthAndCircuits(t *testing.T) {
	f := newFixture(t)
	f.register("native", func() (*types.Solution, error) {
		return &types.Solution{Token: "tok"}, nil
	})
	f.breaker.RecordFailure("native")

	w, body := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	_, body = f.do(t, http.MethodGet, "/circuits", "")
	assert.Contains(t, body, "native")
}
