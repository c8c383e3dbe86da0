package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BacktestStatus tracks a run's lifecycle.
type BacktestStatus string

const (
	BacktestRunning   BacktestStatus = "running"
	BacktestCompleted BacktestStatus = "completed"
	BacktestFailed    BacktestStatus = "failed"
)

// BacktestConfig is the configuration snapshot stored with every run.
type BacktestConfig struct {
	Symbol           string    `json:"symbol"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	InitialCapital   float64   `json:"initial_capital"`
	PositionFraction float64   `json:"position_fraction"`
	BuyThreshold     float64   `json:"buy_threshold"`
	SellThreshold    float64   `json:"sell_threshold"`
}

// Validate checks the run configuration before the replay starts.
func (c *BacktestConfig) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("backtest: missing symbol")
	}
	if c.Start.IsZero() || c.End.IsZero() || !c.End.After(c.Start) {
		return fmt.Errorf("backtest %s: invalid time range", c.Symbol)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("backtest %s: initial capital must be positive", c.Symbol)
	}
	if c.PositionFraction <= 0 || c.PositionFraction > 1 {
		return fmt.Errorf("backtest %s: position fraction %.4f out of (0,1]", c.Symbol, c.PositionFraction)
	}
	return nil
}

// EquityPoint is one sample on the daily equity curve.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// BacktestMetrics are the summary statistics computed after replay.
type BacktestMetrics struct {
	TotalReturn   float64 `json:"total_return"`
	Sharpe        float64 `json:"sharpe"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	WinRate       float64 `json:"win_rate"`
	TotalTrades   int     `json:"total_trades"`
	AvgDurationMS int64   `json:"avg_duration_ms"`
}

// BacktestResult is a completed (or failed) backtest run.
type BacktestResult struct {
	ID        uuid.UUID       `json:"id"`
	Status    BacktestStatus  `json:"status"`
	Config    BacktestConfig  `json:"config"`
	Trades    []TradeRecord   `json:"trades"`
	Equity    []EquityPoint   `json:"equity_curve"`
	Metrics   BacktestMetrics `json:"metrics"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
