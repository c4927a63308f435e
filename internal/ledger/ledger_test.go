package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/solvernet/internal/shared/clock"
	"github.com/cascadehq/solvernet/internal/shared/types"
)

func newTestLedger(t *testing.T) (*Ledger, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	return New(100, 30, clk), clk
}

func TestUsageAggregation(t *testing.T) {
	l, clk := newTestLedger(t)

	l.Record("p", types.TaskRecaptchaV2, 0.002)
	l.Record("p", types.TaskRecaptchaV2, 0.002)
	clk.Advance(time.Hour)
	l.Record("p", types.TaskDataDome, 0.003)
	l.Record("other", types.TaskRecaptchaV2, 1.0)

	usage := l.UsageFor("p")
	assert.Equal(t, 3, usage.Count)
	assert.InDelta(t, 0.007, usage.TotalCost, 1e-9)
	assert.Equal(t, clk.Now(), usage.LastUsed)

	require.Len(t, usage.ByTaskType, 2)
	assert.Equal(t, 2, usage.ByTaskType[types.TaskRecaptchaV2].Count)
	assert.InDelta(t, 0.004, usage.ByTaskType[types.TaskRecaptchaV2].TotalCost, 1e-9)
	assert.Equal(t, 1, usage.ByTaskType[types.TaskDataDome].Count)
}

func TestDefaultCostLookup(t *testing.T) {
	l, _ := newTestLedger(t)
	l.SetDefaultCost("p", types.TaskRecaptchaV2, 0.0015)

	l.Record("p", types.TaskRecaptchaV2, 0)
	l.Record("p", types.TaskTurnstile, 0) // unknown pair → fallback

	usage := l.UsageFor("p")
	assert.InDelta(t, 0.0015, usage.ByTaskType[types.TaskRecaptchaV2].TotalCost, 1e-9)
	assert.InDelta(t, FallbackCost, usage.ByTaskType[types.TaskTurnstile].TotalCost, 1e-9)
}

func TestTotalCostAndPeriod(t *testing.T) {
	l, clk := newTestLedger(t)
	start := clk.Now()

	l.Record("p", types.TaskRecaptchaV2, 0.01)
	clk.Advance(24 * time.Hour)
	l.Record("p", types.TaskRecaptchaV2, 0.02)
	clk.Advance(24 * time.Hour)
	l.Record("p", types.TaskRecaptchaV2, 0.04)

	assert.InDelta(t, 0.07, l.TotalCost(), 1e-9)
	assert.InDelta(t, 0.03, l.CostForPeriod(start, start.Add(36*time.Hour)), 1e-9)
}

func TestRetentionSweep(t *testing.T) {
	l, clk := newTestLedger(t)

	l.Record("p", types.TaskRecaptchaV2, 0.01)
	clk.Advance(40 * 24 * time.Hour)
	l.Record("p", types.TaskRecaptchaV2, 0.02)

	l.ClearOld(0) // configured 30-day window

	assert.Equal(t, 1, l.Len())
	assert.InDelta(t, 0.02, l.TotalCost(), 1e-9)
}

func TestMaxEntriesEvictsOldestOnInsert(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	l := New(3, 30, clk)

	l.Record("p", types.TaskRecaptchaV2, 1)
	l.Record("p", types.TaskRecaptchaV2, 2)
	l.Record("p", types.TaskRecaptchaV2, 4)
	l.Record("p", types.TaskRecaptchaV2, 8)

	assert.Equal(t, 3, l.Len())
	assert.InDelta(t, 14, l.TotalCost(), 1e-9, "the oldest entry is gone")
}
