package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/solvernet/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.Enabled = false

	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.yaml")
	content := `providers:
  - provider: capsolver
    base_url: https://api.capsolver.example
    task_types: [recaptcha]
    costs:
      recaptcha: 0.002
    keys:
      - test-key-000000000001
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	cfg.Providers.CredentialsFile = path

	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestNewWiresSeededProviders(t *testing.T) {
	s := newTestServer(t)

	d, ok := s.registry.Get("capsolver")
	require.True(t, ok)
	assert.True(t, d.Capabilities.Enabled)
	assert.True(t, d.Capabilities.Metered)
	assert.Equal(t, "capsolver", d.Capabilities.Provider)

	assert.True(t, s.pool.ProviderAvailable("capsolver"))
}

func TestRemoteConfigCarriesRetrySettings(t *testing.T) {
	s := newTestServer(t)
	s.cfg.Retry = config.RetryConfig{MaxAttempts: 5, BackoffMs: 200, MaxBackoffMs: 2000}

	rc := s.remoteConfig(config.CredentialSeed{
		Provider: "acme",
		BaseURL:  "https://api.acme.example",
		RPS:      2,
	})
	assert.Equal(t, "acme", rc.Provider)
	assert.Equal(t, 5, rc.RetryMax)
	assert.Equal(t, 200*time.Millisecond, rc.RetryWaitMin)
	assert.Equal(t, 2*time.Second, rc.RetryWaitMax)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestSolveEndpointRejectsUnknownTask(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/solve", nil)
	s.httpServer.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
