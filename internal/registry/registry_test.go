package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/solvernet/internal/shared/clock"
	"github.com/cascadehq/solvernet/internal/shared/types"
)

func nativeFactory(name string) Factory {
	return func() (types.Strategy, error) { return nil, nil }
}

func caps(tasks []types.TaskType, priority int, rate float64) types.Capabilities {
	return types.Capabilities{
		TaskTypes:       tasks,
		MaxConcurrency:  5,
		BaseSuccessRate: rate,
		Enabled:         true,
		Priority:        priority,
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	r.Register("s1", nativeFactory("s1"), caps([]types.TaskType{types.TaskRecaptchaV2}, 10, 0.9))

	d, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "s1", d.Key)
	assert.Equal(t, types.HealthUnknown, d.Health)
	assert.Equal(t, 10, d.Capabilities.Priority)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterOverwritesSilently(t *testing.T) {
	r := New()
	r.Register("s1", nativeFactory("s1"), caps([]types.TaskType{types.TaskRecaptchaV2}, 10, 0.9))
	r.RecordSuccess("s1")

	r.Register("s1", nativeFactory("s1"), caps([]types.TaskType{types.TaskHCaptcha}, 20, 0.8))

	d, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 20, d.Capabilities.Priority)
	assert.Equal(t, int64(0), d.TotalUses, "overwrite resets history")
}

func TestCandidatesForFiltersByTaskAndEnabled(t *testing.T) {
	r := New()
	r.Register("rec", nativeFactory("rec"), caps([]types.TaskType{types.TaskRecaptchaV2}, 10, 0.9))
	r.Register("multi", nativeFactory("multi"), caps([]types.TaskType{types.TaskRecaptchaV2, types.TaskHCaptcha}, 5, 0.8))
	r.Register("dd", nativeFactory("dd"), caps([]types.TaskType{types.TaskDataDome}, 10, 0.9))
	r.Register("off", nativeFactory("off"), caps([]types.TaskType{types.TaskRecaptchaV2}, 10, 0.9))
	r.Disable("off")

	cands := r.CandidatesFor(types.TaskRecaptchaV2)
	keys := make([]string, len(cands))
	for i, c := range cands {
		keys[i] = c.Key
	}
	assert.ElementsMatch(t, []string{"rec", "multi"}, keys)

	assert.Empty(t, r.CandidatesFor(types.TaskTurnstile))
}

func TestCandidatesOrderedByHealthPriorityRate(t *testing.T) {
	r := New()
	task := []types.TaskType{types.TaskRecaptchaV2}
	r.Register("low-prio-healthy", nativeFactory(""), caps(task, 1, 0.9))
	r.Register("high-prio-unknown", nativeFactory(""), caps(task, 100, 0.9))
	r.Register("high-rate-healthy", nativeFactory(""), caps(task, 1, 0.99))

	r.RecordSuccess("low-prio-healthy")
	r.RecordSuccess("high-rate-healthy")

	cands := r.CandidatesFor(types.TaskRecaptchaV2)
	require.Len(t, cands, 3)
	// Healthy first; equal priority breaks on base success rate; unknown last.
	assert.Equal(t, "high-rate-healthy", cands[0].Key)
	assert.Equal(t, "low-prio-healthy", cands[1].Key)
	assert.Equal(t, "high-prio-unknown", cands[2].Key)
}

func TestHealthTransitions(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	r := New(WithClock(clk))
	r.Register("s1", nativeFactory("s1"), caps([]types.TaskType{types.TaskRecaptchaV2}, 10, 0.9))

	r.RecordSuccess("s1")
	d, _ := r.Get("s1")
	assert.Equal(t, types.HealthHealthy, d.Health)

	// First failure from healthy demotes to unknown, not unhealthy.
	r.RecordFailure("s1")
	d, _ = r.Get("s1")
	assert.Equal(t, types.HealthUnknown, d.Health)
	assert.Equal(t, 1, d.ConsecutiveFailures)

	r.RecordFailure("s1")
	d, _ = r.Get("s1")
	assert.Equal(t, types.HealthUnknown, d.Health)

	// Third consecutive failure forces unhealthy.
	r.RecordFailure("s1")
	d, _ = r.Get("s1")
	assert.Equal(t, types.HealthUnhealthy, d.Health)
	assert.Equal(t, 3, d.ConsecutiveFailures)
	assert.Equal(t, int64(4), d.TotalUses)
	assert.Equal(t, int64(3), d.TotalFailures)

	// Any success restores healthy and resets the counter.
	r.RecordSuccess("s1")
	d, _ = r.Get("s1")
	assert.Equal(t, types.HealthHealthy, d.Health)
	assert.Equal(t, 0, d.ConsecutiveFailures)
	assert.Equal(t, clk.Now(), d.LastSuccess)
}

func TestRecordOnMissingKeyIsNoop(t *testing.T) {
	r := New()
	// Must not panic or create phantom entries.
	r.RecordSuccess("ghost")
	r.RecordFailure("ghost")
	r.Enable("ghost")

	assert.Empty(t, r.Keys())
}

func TestEnableDisableKeepsHistory(t *testing.T) {
	r := New()
	r.Register("s1", nativeFactory("s1"), caps([]types.TaskType{types.TaskRecaptchaV2}, 10, 0.9))
	r.RecordFailure("s1")

	r.Disable("s1")
	d, _ := r.Get("s1")
	assert.False(t, d.Capabilities.Enabled)
	assert.Equal(t, 1, d.ConsecutiveFailures)

	r.Enable("s1")
	d, _ = r.Get("s1")
	assert.True(t, d.Capabilities.Enabled)
	assert.Equal(t, 1, d.ConsecutiveFailures)
}

func TestSummary(t *testing.T) {
	r := New()
	r.Register("a", nativeFactory("a"), caps([]types.TaskType{types.TaskRecaptchaV2}, 10, 0.9))
	r.Register("b", nativeFactory("b"), caps([]types.TaskType{types.TaskRecaptchaV2}, 10, 0.9))
	r.RecordSuccess("a")
	r.Disable("b")

	stats := r.Summary()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Enabled)
	assert.Equal(t, 1, stats.ByHealth[types.HealthHealthy])
	assert.Equal(t, 1, stats.ByHealth[types.HealthUnknown])
}
