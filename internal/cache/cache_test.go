package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/quantpulse/internal/models"
)

func setupTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := New(client, 10*time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSignalRoundTrip(t *testing.T) {
	c := setupTestCache(t)

	sig := &models.TradingSignal{
		ID:         uuid.New(),
		Symbol:     "AAPL",
		Class:      models.SignalBuy,
		Price:      187.5,
		CMSScore:   62.1,
		Confidence: 0.8,
		Timestamp:  time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.SetSignal(context.Background(), sig))

	got, age, ok := c.GetSignal(context.Background(), "AAPL")
	require.True(t, ok)
	assert.Equal(t, sig.ID, got.ID)
	assert.Equal(t, sig.CMSScore, got.CMSScore)
	assert.Less(t, age, time.Minute, "entry just written reports near-zero age")
}

func TestGetSignalMiss(t *testing.T) {
	c := setupTestCache(t)

	_, _, ok := c.GetSignal(context.Background(), "TSLA")
	assert.False(t, ok)
}

func TestRegimeRoundTrip(t *testing.T) {
	c := setupTestCache(t)

	snap := &models.RegimeSnapshot{
		Symbol:     "AAPL",
		Regime:     models.RegimePanic,
		Confidence: 0.95,
		Timestamp:  time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.SetRegime(context.Background(), snap))

	got, _, ok := c.GetRegime(context.Background(), "AAPL")
	require.True(t, ok)
	assert.Equal(t, models.RegimePanic, got.Regime)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
}

func TestNilCacheIsAMiss(t *testing.T) {
	var c *Cache

	assert.NoError(t, c.SetSignal(context.Background(), &models.TradingSignal{Symbol: "X"}))
	_, _, ok := c.GetSignal(context.Background(), "X")
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}

func TestSymbolsAreIsolated(t *testing.T) {
	c := setupTestCache(t)

	require.NoError(t, c.SetSignal(context.Background(), &models.TradingSignal{
		ID: uuid.New(), Symbol: "AAPL", Class: models.SignalBuy,
	}))

	_, _, ok := c.GetSignal(context.Background(), "MSFT")
	assert.False(t, ok)
}
