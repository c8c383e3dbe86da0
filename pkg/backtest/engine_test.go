package backtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/quantpulse/internal/models"
)

type memStore struct {
	mu      sync.Mutex
	bars    []models.Bar
	scores  []models.SentimentScore
	events  []models.Event
	results map[uuid.UUID]models.BacktestResult
}

func newMemStore() *memStore {
	return &memStore{results: make(map[uuid.UUID]models.BacktestResult)}
}

func (m *memStore) GetBars(_ context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	var out []models.Bar
	for _, b := range m.bars {
		if b.Symbol == symbol && !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) GetSentimentScores(_ context.Context, start, end time.Time) ([]models.SentimentScore, error) {
	var out []models.SentimentScore
	for _, s := range m.scores {
		if !s.Timestamp.Before(start) && !s.Timestamp.After(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) GetEvents(_ context.Context, start, end time.Time) ([]models.Event, error) {
	var out []models.Event
	for _, e := range m.events {
		if !e.Timestamp.Before(start) && !e.Timestamp.After(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) SaveBacktestResult(_ context.Context, r *models.BacktestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.ID] = *r
	return nil
}

func (m *memStore) result(id uuid.UUID) (models.BacktestResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	return r, ok
}

// trendBars builds a rise-then-fall daily series so the replay produces at
// least one full round trip.
func trendBars(symbol string, start time.Time, rising, falling int) []models.Bar {
	bars := make([]models.Bar, 0, rising+falling)
	price := 100.0
	ts := start
	for i := 0; i < rising; i++ {
		bars = append(bars, models.Bar{
			Symbol: symbol, Timestamp: ts,
			Open: price, High: price + 1.5, Low: price - 0.5, Close: price + 1, Volume: 1000,
		})
		price++
		ts = ts.AddDate(0, 0, 1)
	}
	for i := 0; i < falling; i++ {
		bars = append(bars, models.Bar{
			Symbol: symbol, Timestamp: ts,
			Open: price, High: price + 0.5, Low: price - 2, Close: price - 1.5, Volume: 1000,
		})
		price -= 1.5
		ts = ts.AddDate(0, 0, 1)
	}
	return bars
}

func testConfig(start, end time.Time) models.BacktestConfig {
	return models.BacktestConfig{
		Symbol:           "AAPL",
		Start:            start,
		End:              end,
		InitialCapital:   100000,
		PositionFraction: 0.5,
		BuyThreshold:     5,
		SellThreshold:    5,
	}
}

func TestRunProducesRoundTrip(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	st := newMemStore()
	st.bars = trendBars("AAPL", start, 80, 50)
	end := st.bars[len(st.bars)-1].Timestamp

	e := NewEngine(st)
	result := e.Run(context.Background(), uuid.New(), testConfig(start, end))

	require.Equal(t, models.BacktestCompleted, result.Status)
	assert.Len(t, result.Equity, len(st.bars), "one equity point per bar")
	require.NotEmpty(t, result.Trades, "trend reversal should close at least one trade")
	assert.Equal(t, len(result.Trades), result.Metrics.TotalTrades)

	for _, tr := range result.Trades {
		assert.Equal(t, "AAPL", tr.Symbol)
		assert.True(t, tr.ExitedAt.After(tr.EnteredAt))
	}

	// Equity must always reflect cash plus holdings, never go negative.
	for _, p := range result.Equity {
		assert.Positive(t, p.Equity)
	}
}

func TestRunIgnoresFutureNews(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := trendBars("AAPL", start, 80, 50)
	end := bars[len(bars)-1].Timestamp

	plain := newMemStore()
	plain.bars = bars

	// Same history plus a heavily negative score stamped after the final
	// bar. It must not change a single equity point.
	withFuture := newMemStore()
	withFuture.bars = bars
	withFuture.scores = []models.SentimentScore{{
		ArticleID: "future", Score: -1, Confidence: 1, Timestamp: end.Add(time.Hour),
	}}

	cfg := testConfig(start, end.Add(2*time.Hour))
	a := NewEngine(plain).Run(context.Background(), uuid.New(), cfg)
	b := NewEngine(withFuture).Run(context.Background(), uuid.New(), cfg)

	require.Equal(t, models.BacktestCompleted, a.Status)
	require.Equal(t, models.BacktestCompleted, b.Status)
	require.Equal(t, len(a.Equity), len(b.Equity))
	for i := range a.Equity {
		assert.Equal(t, a.Equity[i].Equity, b.Equity[i].Equity, "future news leaked into bar %d", i)
	}
}

func TestRunWithoutBarsFails(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	e := NewEngine(newMemStore())

	result := e.Run(context.Background(), uuid.New(), testConfig(start, start.AddDate(0, 1, 0)))

	assert.Equal(t, models.BacktestFailed, result.Status)
	assert.Contains(t, result.Error, "no bars")
}

func TestStartPersistsRunningThenFinal(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	st := newMemStore()
	st.bars = trendBars("AAPL", start, 80, 50)
	end := st.bars[len(st.bars)-1].Timestamp

	e := NewEngine(st)
	id, err := e.Start(context.Background(), testConfig(start, end))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	assert.Eventually(t, func() bool {
		r, ok := st.result(id)
		return ok && r.Status == models.BacktestCompleted
	}, 5*time.Second, 20*time.Millisecond)

	r, _ := st.result(id)
	assert.NotEmpty(t, r.Equity)
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	e := NewEngine(newMemStore())
	_, err := e.Start(context.Background(), models.BacktestConfig{Symbol: "AAPL"})
	assert.Error(t, err)
}

func TestBookLongOnlySinglePosition(t *testing.T) {
	b := newBook(1000, 0.5)
	bar := func(ts time.Time, close float64) *models.Bar {
		return &models.Bar{Symbol: "AAPL", Timestamp: ts, Open: close, High: close, Low: close, Close: close, Volume: 1}
	}
	t0 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	// Entry at 100 with half the equity: 5 shares.
	b.apply(models.SignalBuy, bar(t0, 100))
	assert.InDelta(t, 5, b.shares, 1e-9)
	assert.InDelta(t, 500, b.cash, 1e-9)

	// A second BUY while long is ignored.
	b.apply(models.SignalBuy, bar(t0.AddDate(0, 0, 1), 110))
	assert.InDelta(t, 5, b.shares, 1e-9)

	// HOLD never touches the book.
	b.apply(models.SignalHold, bar(t0.AddDate(0, 0, 2), 120))
	assert.InDelta(t, 5, b.shares, 1e-9)

	// Exit at 120 realizes 100 profit.
	b.apply(models.SignalSell, bar(t0.AddDate(0, 0, 3), 120))
	assert.True(t, b.flat())
	assert.InDelta(t, 1100, b.cash, 1e-9)
	require.Len(t, b.trades, 1)
	assert.InDelta(t, 100, b.trades[0].PnL, 1e-9)

	// SELL while flat is a no-op.
	b.apply(models.SignalSell, bar(t0.AddDate(0, 0, 4), 100))
	assert.Len(t, b.trades, 1)
}
