package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantpulse/quantpulse/internal/models"
)

func equityCurve(values ...float64) []models.EquityPoint {
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]models.EquityPoint, len(values))
	for i, v := range values {
		out[i] = models.EquityPoint{Timestamp: base.AddDate(0, 0, i), Equity: v}
	}
	return out
}

func TestMetricsZeroTrades(t *testing.T) {
	m := ComputeMetrics(100000, equityCurve(100000, 100000, 100000), nil)

	assert.Zero(t, m.TotalTrades)
	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.Sharpe, "flat curve has no variance")
	assert.Zero(t, m.MaxDrawdown)
	assert.Zero(t, m.WinRate, "win rate is zero with zero trades")
	assert.Zero(t, m.AvgDurationMS)
}

func TestMetricsKnownSeries(t *testing.T) {
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	trades := []models.TradeRecord{
		{PnL: 500, EnteredAt: base, ExitedAt: base.Add(2 * time.Hour)},
		{PnL: -200, EnteredAt: base, ExitedAt: base.Add(4 * time.Hour)},
	}

	// returns: +10% then -5%; mean 0.025, stddev 0.075.
	m := ComputeMetrics(100, equityCurve(100, 110, 104.5), trades)

	assert.InDelta(t, 0.045, m.TotalReturn, 1e-9)
	assert.InDelta(t, 0.025/0.075*15.874507866, m.Sharpe, 1e-3)
	assert.InDelta(t, 5.5/110, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, 0.5, m.WinRate, 1e-9)
	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, int64(3*60*60*1000), m.AvgDurationMS)
}

func TestSharpeDegenerateSeries(t *testing.T) {
	assert.Zero(t, sharpe(nil))
	assert.Zero(t, sharpe([]float64{0.1}), "one sample cannot produce a ratio")
	assert.Zero(t, sharpe([]float64{0.1, 0.1, 0.1}), "zero variance")
}

func TestMaxDrawdownPeakRelative(t *testing.T) {
	// Peak 120, trough 90: drawdown 25%. Later recovery does not erase it.
	dd := maxDrawdown(equityCurve(100, 120, 90, 130))
	assert.InDelta(t, 0.25, dd, 1e-9)

	assert.Zero(t, maxDrawdown(equityCurve(100, 110, 120)), "monotonic curve never draws down")
}
