package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/quantpulse/internal/models"
	"github.com/quantpulse/quantpulse/internal/resilience"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithPool(mock), mock
}

func TestSaveBarIdempotent(t *testing.T) {
	s, mock := newMockStore(t)

	bar := &models.Bar{
		Symbol:    "AAPL",
		Timestamp: time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
		Open:      100, High: 101, Low: 99, Close: 100.5, Volume: 5000,
	}

	mock.ExpectExec("INSERT INTO bars").
		WithArgs(bar.Symbol, bar.Timestamp, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.SaveBar(context.Background(), bar))

	// A replay conflicts on the natural key and affects zero rows.
	mock.ExpectExec("INSERT INTO bars").
		WithArgs(bar.Symbol, bar.Timestamp, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	require.NoError(t, s.SaveBar(context.Background(), bar))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBarsOrdered(t *testing.T) {
	s, mock := newMockStore(t)

	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	rows := pgxmock.NewRows([]string{"symbol", "ts", "open", "high", "low", "close", "volume"}).
		AddRow("AAPL", start.Add(time.Minute), 100.0, 101.0, 99.0, 100.5, 1000.0).
		AddRow("AAPL", start.Add(2*time.Minute), 100.5, 102.0, 100.0, 101.5, 1200.0)

	mock.ExpectQuery("SELECT symbol, ts, open, high, low, close, volume").
		WithArgs("AAPL", start, end).
		WillReturnRows(rows)

	bars, err := s.GetBars(context.Background(), "AAPL", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Timestamp.Before(bars[1].Timestamp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSignalAndLatest(t *testing.T) {
	s, mock := newMockStore(t)

	sig := &models.TradingSignal{
		ID:        uuid.New(),
		Symbol:    "AAPL",
		Class:     models.SignalBuy,
		Price:     187.5,
		CMSScore:  62.1,
		Timestamp: time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO signals").
		WithArgs(sig.ID, sig.Symbol, string(sig.Class), sig.Timestamp, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.SaveSignal(context.Background(), sig))

	payload, err := json.Marshal(sig)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT signal FROM signals").
		WithArgs("AAPL").
		WillReturnRows(pgxmock.NewRows([]string{"signal"}).AddRow(payload))

	got, err := s.GetLatestSignal(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, sig.ID, got.ID)
	assert.Equal(t, models.SignalBuy, got.Class)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestSignalNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT signal FROM signals").
		WithArgs("TSLA").
		WillReturnRows(pgxmock.NewRows([]string{"signal"}))

	_, err := s.GetLatestSignal(context.Background(), "TSLA")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyRealizedPnL(t *testing.T) {
	s, mock := newMockStore(t)

	day := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	dayStart := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(dayStart, dayStart.Add(24*time.Hour)).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(-1250.75))

	pnl, err := s.DailyRealizedPnL(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, -1250.75, pnl)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveBacktestResultRoundTrip(t *testing.T) {
	s, mock := newMockStore(t)

	result := &models.BacktestResult{
		ID:     uuid.New(),
		Status: models.BacktestCompleted,
		Config: models.BacktestConfig{Symbol: "AAPL", InitialCapital: 100000},
		Metrics: models.BacktestMetrics{
			TotalReturn: 0.12,
			Sharpe:      1.4,
			TotalTrades: 7,
		},
		CreatedAt: time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO backtest_results").
		WithArgs(result.ID, string(result.Status), pgxmock.AnyArg(), result.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.SaveBacktestResult(context.Background(), result))

	payload, err := json.Marshal(result)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT result FROM backtest_results").
		WithArgs(result.ID).
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow(payload))

	got, err := s.GetBacktestResult(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Metrics, got.Metrics)
	assert.Equal(t, models.BacktestCompleted, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteQueueDefersFailedWrites(t *testing.T) {
	s, mock := newMockStore(t)
	breakers := resilience.NewBreakerManager(nil)
	wq := NewWriteQueue(s, breakers, 100)

	bar := &models.Bar{
		Symbol:    "AAPL",
		Timestamp: time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
		Open:      100, High: 101, Low: 99, Close: 100.5, Volume: 5000,
	}

	mock.ExpectExec("INSERT INTO bars").
		WithArgs(bar.Symbol, bar.Timestamp, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume).
		WillReturnError(errors.New("connection refused"))

	err := wq.Write(context.Background(), func(ctx context.Context, s *Store) error {
		return s.SaveBar(ctx, bar)
	})
	require.Error(t, err)
	assert.Equal(t, 1, wq.Depth(), "failed write lands in the queue")

	// Replay succeeds once the store is reachable again.
	mock.ExpectExec("INSERT INTO bars").
		WithArgs(bar.Symbol, bar.Timestamp, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	wq.Replay(context.Background())
	assert.Zero(t, wq.Depth())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasOrderForSignal(t *testing.T) {
	s, mock := newMockStore(t)

	signalID := uuid.New()
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(signalID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := s.HasOrderForSignal(context.Background(), signalID)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
