package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/quantpulse/internal/indicators"
	"github.com/quantpulse/quantpulse/internal/models"
)

func barsFromCloses(symbol string, closes []float64) []models.Bar {
	start := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Symbol:    symbol,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 0.1,
			Low:       c - 0.1,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func TestClassifyInsufficientData(t *testing.T) {
	c := NewClassifier(100, 0.3)
	bars := barsFromCloses("AAPL", make([]float64, 0))
	_, err := c.Classify("AAPL", bars, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, indicators.ErrInsufficientData)
}

func TestClassifyBullUptrend(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	c := NewClassifier(100, 0.3)

	snap, err := c.Classify("AAPL", barsFromCloses("AAPL", closes), 0.6)
	require.NoError(t, err)
	require.NoError(t, snap.Validate())

	assert.Equal(t, models.RegimeBull, snap.Regime)
	assert.Greater(t, snap.Inputs.TrendStrength, 0.5)
	assert.InDelta(t, 0.6, snap.Inputs.SentimentIndex, 1e-9)
	assert.GreaterOrEqual(t, snap.Confidence, 0.0)
	assert.LessOrEqual(t, snap.Confidence, 1.0)
	assert.Equal(t, barsFromCloses("AAPL", closes)[99].Timestamp, snap.Timestamp)
}

func TestClassifyUsesOnlyWindowBars(t *testing.T) {
	// 200 bars: a violent first half followed by a calm flat second half.
	// With window=100 only the calm half may influence the result.
	closes := make([]float64, 200)
	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			closes[i] = 50
		} else {
			closes[i] = 150
		}
	}
	for i := 100; i < 200; i++ {
		closes[i] = 100
	}
	c := NewClassifier(100, 0.3)

	full, err := c.Classify("SPY", barsFromCloses("SPY", closes), 0)
	require.NoError(t, err)
	tail, err := c.Classify("SPY", barsFromCloses("SPY", closes)[100:], 0)
	require.NoError(t, err)

	assert.Equal(t, tail.Regime, full.Regime)
	assert.InDelta(t, tail.Inputs.VolatilityIndex, full.Inputs.VolatilityIndex, 1e-9)
	assert.InDelta(t, tail.Inputs.TrendStrength, full.Inputs.TrendStrength, 1e-9)
}

func TestPanicOverride(t *testing.T) {
	c := NewClassifier(100, 0.3)

	snap := c.ClassifyInputs("AAPL", models.RegimeInputs{
		SentimentIndex:  -0.75,
		VolatilityIndex: 0.85,
		TrendStrength:   -0.40,
	})

	assert.Equal(t, models.RegimePanic, snap.Regime)
	assert.InDelta(t, 0.95, snap.Confidence, 1e-9)
}

func TestPanicOverrideRequiresBothConditions(t *testing.T) {
	c := NewClassifier(100, 0.3)

	tests := []struct {
		name   string
		inputs models.RegimeInputs
	}{
		{
			name:   "high volatility alone",
			inputs: models.RegimeInputs{SentimentIndex: 0.1, VolatilityIndex: 0.9, TrendStrength: 0},
		},
		{
			name:   "negative sentiment alone",
			inputs: models.RegimeInputs{SentimentIndex: -0.9, VolatilityIndex: 0.2, TrendStrength: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := c.ClassifyInputs("AAPL", tt.inputs)
			if snap.Regime == models.RegimePanic {
				assert.NotEqual(t, 0.95, snap.Confidence, "override confidence without both conditions")
			}
		})
	}
}

func TestLowConfidenceFallsBackToNeutral(t *testing.T) {
	// A confidence floor of 0.99 can never be met by argmax over four
	// positive scores, so everything collapses to NEUTRAL.
	c := NewClassifier(100, 0.99)

	snap := c.ClassifyInputs("AAPL", models.RegimeInputs{
		SentimentIndex:  0.9,
		VolatilityIndex: 0.1,
		TrendStrength:   0.9,
	})
	assert.Equal(t, models.RegimeNeutral, snap.Regime)
}

func TestBearDowntrend(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 200 - float64(i)*0.8
	}
	c := NewClassifier(100, 0.3)

	snap, err := c.Classify("AAPL", barsFromCloses("AAPL", closes), -0.6)
	require.NoError(t, err)

	assert.Equal(t, models.RegimeBear, snap.Regime)
	assert.Less(t, snap.Inputs.TrendStrength, -0.5)
}

func TestVolatilityIndexBounds(t *testing.T) {
	assert.Equal(t, 1.0, volatilityIndex(10, 100), "10% range clamps to 1")
	assert.InDelta(t, 0.5, volatilityIndex(2.5, 100), 1e-9)
	assert.Equal(t, 1.0, volatilityIndex(1, 0), "zero price is maximal volatility")
}
