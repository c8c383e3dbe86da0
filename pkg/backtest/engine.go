// Package backtest replays stored market history through the scoring
// pipeline and a simulated long-only executor.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantpulse/quantpulse/internal/cms"
	"github.com/quantpulse/quantpulse/internal/config"
	"github.com/quantpulse/quantpulse/internal/indicators"
	"github.com/quantpulse/quantpulse/internal/models"
	"github.com/quantpulse/quantpulse/internal/nlp"
	"github.com/quantpulse/quantpulse/internal/regime"
)

// Store is the persistence surface the engine replays from and reports to.
type Store interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error)
	GetSentimentScores(ctx context.Context, start, end time.Time) ([]models.SentimentScore, error)
	GetEvents(ctx context.Context, start, end time.Time) ([]models.Event, error)
	SaveBacktestResult(ctx context.Context, r *models.BacktestResult) error
}

// Engine runs backtests against stored history.
type Engine struct {
	store  Store
	logger zerolog.Logger
}

// NewEngine creates a backtest engine.
func NewEngine(store Store) *Engine {
	return &Engine{
		store:  store,
		logger: config.NewLogger("backtest"),
	}
}

// Start validates the configuration, persists an initial running record,
// and completes the run in the background. The returned identifier can be
// polled immediately.
func (e *Engine) Start(ctx context.Context, cfg models.BacktestConfig) (uuid.UUID, error) {
	if err := cfg.Validate(); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	initial := &models.BacktestResult{
		ID:        id,
		Status:    models.BacktestRunning,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.SaveBacktestResult(ctx, initial); err != nil {
		return uuid.Nil, fmt.Errorf("backtest %s: persist initial record: %w", id, err)
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		result := e.Run(bg, id, cfg)
		if err := e.store.SaveBacktestResult(bg, result); err != nil {
			e.logger.Error().Err(err).Str("backtest_id", id.String()).Msg("Backtest result not persisted")
		}
	}()
	return id, nil
}

// Run executes the replay synchronously and returns the finished result.
// Any failure produces a failed-status result rather than an error.
func (e *Engine) Run(ctx context.Context, id uuid.UUID, cfg models.BacktestConfig) *models.BacktestResult {
	result := &models.BacktestResult{
		ID:        id,
		Status:    models.BacktestCompleted,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}

	trades, equity, err := e.replay(ctx, cfg)
	if err != nil {
		e.logger.Warn().Err(err).Str("backtest_id", id.String()).Msg("Backtest failed")
		result.Status = models.BacktestFailed
		result.Error = err.Error()
		return result
	}

	result.Trades = trades
	result.Equity = equity
	result.Metrics = ComputeMetrics(cfg.InitialCapital, equity, trades)

	e.logger.Info().
		Str("backtest_id", id.String()).
		Str("symbol", cfg.Symbol).
		Int("trades", result.Metrics.TotalTrades).
		Float64("total_return", result.Metrics.TotalReturn).
		Msg("Backtest completed")
	return result
}

// replay walks the bars chronologically, scoring each step with only the
// data at or before it, and simulates a long-only single-position book.
func (e *Engine) replay(ctx context.Context, cfg models.BacktestConfig) ([]models.TradeRecord, []models.EquityPoint, error) {
	bars, err := e.store.GetBars(ctx, cfg.Symbol, cfg.Start, cfg.End)
	if err != nil {
		return nil, nil, fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, nil, fmt.Errorf("no bars for %s in range", cfg.Symbol)
	}
	scores, err := e.store.GetSentimentScores(ctx, cfg.Start, cfg.End)
	if err != nil {
		return nil, nil, fmt.Errorf("load sentiment: %w", err)
	}
	events, err := e.store.GetEvents(ctx, cfg.Start, cfg.End)
	if err != nil {
		return nil, nil, fmt.Errorf("load events: %w", err)
	}

	scorer := cms.NewEngine(cms.Weights{}, cms.Thresholds{
		Buy:  cfg.BuyThreshold,
		Sell: cfg.SellThreshold,
	})
	classifier := regime.NewClassifier(0, 0)
	window := nlp.NewWindow(0, 0)

	book := newBook(cfg.InitialCapital, cfg.PositionFraction)
	equity := make([]models.EquityPoint, 0, len(bars))

	scoreIdx, eventIdx := 0, 0
	for i := range bars {
		bar := &bars[i]

		// Admit only news at or before this bar.
		for scoreIdx < len(scores) && !scores[scoreIdx].Timestamp.After(bar.Timestamp) {
			window.AddScore(scores[scoreIdx])
			scoreIdx++
		}
		for eventIdx < len(events) && !events[eventIdx].Timestamp.After(bar.Timestamp) {
			window.AddEvent(events[eventIdx])
			eventIdx++
		}

		if i+1 >= indicators.MinBars {
			idx, _ := window.Indices()
			shock := window.Shock(bar.Timestamp)

			rs, err := classifier.Classify(cfg.Symbol, bars[:i+1], idx.Smoothed)
			if err != nil {
				return nil, nil, fmt.Errorf("regime at %s: %w", bar.Timestamp.Format(time.RFC3339), err)
			}

			score, err := scorer.Score(cfg.Symbol, cms.Inputs{
				SentimentIndex:      idx.Smoothed,
				VolatilityIndex:     rs.Inputs.VolatilityIndex,
				TrendStrength:       rs.Inputs.TrendStrength,
				EventShock:          shock.Total,
				SentimentAvailable:  true,
				VolatilityAvailable: true,
				TrendAvailable:      true,
				EventAvailable:      true,
			}, bar.Timestamp)
			if err != nil {
				return nil, nil, fmt.Errorf("score at %s: %w", bar.Timestamp.Format(time.RFC3339), err)
			}

			book.apply(score.Class, bar)
		}

		equity = append(equity, models.EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    models.Round6(book.equity(bar.Close)),
		})
	}

	return book.trades, equity, nil
}

// book is the simulated long-only, single-position executor. Entries fill
// at the signal bar's close, as do exits.
type book struct {
	cash     float64
	fraction float64
	shares   float64
	entry    float64
	openedAt time.Time
	trades   []models.TradeRecord
	symbol   string
}

func newBook(capital, fraction float64) *book {
	return &book{cash: capital, fraction: fraction}
}

func (b *book) flat() bool { return b.shares == 0 }

func (b *book) apply(class models.SignalClass, bar *models.Bar) {
	switch class {
	case models.SignalBuy:
		if !b.flat() || bar.Close <= 0 {
			return
		}
		value := b.equity(bar.Close) * b.fraction
		if value > b.cash {
			value = b.cash
		}
		b.shares = value / bar.Close
		b.entry = bar.Close
		b.openedAt = bar.Timestamp
		b.cash -= value
		b.symbol = bar.Symbol

	case models.SignalSell:
		if b.flat() {
			return
		}
		proceeds := b.shares * bar.Close
		pnl := (bar.Close - b.entry) * b.shares
		b.trades = append(b.trades, models.TradeRecord{
			ID:         uuid.New(),
			Symbol:     b.symbol,
			Side:       models.OrderSideBuy,
			EntryPrice: b.entry,
			ExitPrice:  bar.Close,
			Quantity:   models.Round6(b.shares),
			PnL:        models.Round6(pnl),
			EnteredAt:  b.openedAt,
			ExitedAt:   bar.Timestamp,
		})
		b.cash += proceeds
		b.shares = 0
		b.entry = 0
	}
}

func (b *book) equity(price float64) float64 {
	return b.cash + b.shares*price
}
