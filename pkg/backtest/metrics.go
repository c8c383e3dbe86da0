package backtest

import (
	"math"
	"time"

	"github.com/quantpulse/quantpulse/internal/models"
)

// tradingDaysPerYear annualizes the Sharpe ratio.
const tradingDaysPerYear = 252

// ComputeMetrics summarizes a finished replay. All edge cases degrade to
// zero: no trades, a flat equity curve, or fewer than two return samples.
func ComputeMetrics(initialCapital float64, equity []models.EquityPoint, trades []models.TradeRecord) models.BacktestMetrics {
	m := models.BacktestMetrics{TotalTrades: len(trades)}

	if len(equity) > 0 && initialCapital > 0 {
		final := equity[len(equity)-1].Equity
		m.TotalReturn = models.Round6((final - initialCapital) / initialCapital)
	}

	m.Sharpe = models.Round6(sharpe(returns(equity)))
	m.MaxDrawdown = models.Round6(maxDrawdown(equity))

	if len(trades) > 0 {
		wins := 0
		var totalDuration time.Duration
		for _, t := range trades {
			if t.PnL > 0 {
				wins++
			}
			totalDuration += t.ExitedAt.Sub(t.EnteredAt)
		}
		m.WinRate = models.Round6(float64(wins) / float64(len(trades)))
		m.AvgDurationMS = (totalDuration / time.Duration(len(trades))).Milliseconds()
	}
	return m
}

// returns computes period-over-period returns from the equity curve.
func returns(equity []models.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		out = append(out, (equity[i].Equity-prev)/prev)
	}
	return out
}

// sharpe annualizes mean/stddev of the return series. Zero when the series
// is too short or has no variance.
func sharpe(rets []float64) float64 {
	if len(rets) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	variance := 0.0
	for _, r := range rets {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(rets))
	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(tradingDaysPerYear)
}

// maxDrawdown is the largest peak-relative equity decline.
func maxDrawdown(equity []models.EquityPoint) float64 {
	peak, worst := 0.0, 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
