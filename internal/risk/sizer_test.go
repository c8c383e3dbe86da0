package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/quantpulse/internal/models"
)

func TestSizeFromRiskBudget(t *testing.T) {
	s := NewSizer(Params{
		PerTradeFraction:    0.01,
		MaxPositionFraction: 0.5,
		ATRStopMultiplier:   2.0,
		RewardRiskRatio:     2.0,
	})

	// capital 100k, 1% risk = 1000; ATR 2.5, stop distance 5 -> 200 shares.
	ps, err := s.Size("AAPL", models.OrderSideBuy, 100, 2.5, 100000)
	require.NoError(t, err)

	assert.InDelta(t, 200, ps.Shares, 1e-9)
	assert.InDelta(t, 20000, ps.Value, 1e-9)
	assert.InDelta(t, 1000, ps.RiskAmount, 1e-9)
	assert.InDelta(t, 95, ps.StopLossPrice, 1e-9)
	assert.InDelta(t, 110, ps.TakeProfitPrice, 1e-9)
	assert.Equal(t, 2.0, ps.RiskRewardRatio)
}

func TestSizeCappedByMaxPositionFraction(t *testing.T) {
	s := NewSizer(Params{
		PerTradeFraction:    0.05,
		MaxPositionFraction: 0.1,
		ATRStopMultiplier:   1.0,
	})

	// Uncapped: 5000 / 0.5 = 10000 shares = 1,000,000 value. Cap: 10% of
	// 100k = 10000 value = 100 shares.
	ps, err := s.Size("AAPL", models.OrderSideBuy, 100, 0.5, 100000)
	require.NoError(t, err)

	assert.InDelta(t, 100, ps.Shares, 1e-9)
	assert.InDelta(t, 10000, ps.Value, 1e-9)
	assert.InDelta(t, 50, ps.RiskAmount, 1e-9, "risk shrinks with the capped size")
}

func TestSizeSellBracketsInvert(t *testing.T) {
	s := NewSizer(Params{
		PerTradeFraction:    0.01,
		MaxPositionFraction: 0.5,
		ATRStopMultiplier:   2.0,
		RewardRiskRatio:     2.0,
	})

	ps, err := s.Size("AAPL", models.OrderSideSell, 100, 2.5, 100000)
	require.NoError(t, err)

	assert.InDelta(t, 105, ps.StopLossPrice, 1e-9)
	assert.InDelta(t, 90, ps.TakeProfitPrice, 1e-9)
}

func TestSizeRejectsDegenerateInputs(t *testing.T) {
	s := NewSizer(Params{})

	for _, args := range [][3]float64{
		{0, 1, 1000},  // zero price
		{100, 0, 100}, // zero atr
		{100, 1, 0},   // zero capital
	} {
		_, err := s.Size("X", models.OrderSideBuy, args[0], args[1], args[2])
		assert.ErrorIs(t, err, ErrUnsizeable)
	}
}

func TestTrailingStop(t *testing.T) {
	assert.InDelta(t, 95, TrailingStop(models.OrderSideBuy, 100, 0.05), 1e-9)
	assert.InDelta(t, 105, TrailingStop(models.OrderSideSell, 100, 0.05), 1e-9)
	assert.Zero(t, TrailingStop(models.OrderSideBuy, 100, 0))
}

func TestTrailingStopMonotonicWithPosition(t *testing.T) {
	p := models.Position{Side: models.OrderSideBuy, CurrentStop: 95}

	assert.True(t, p.RaiseStop(TrailingStop(models.OrderSideBuy, 102, 0.05)))
	assert.InDelta(t, 96.9, p.CurrentStop, 1e-9)

	// A lower candidate never loosens the stop.
	assert.False(t, p.RaiseStop(TrailingStop(models.OrderSideBuy, 98, 0.05)))
	assert.InDelta(t, 96.9, p.CurrentStop, 1e-9)
}
