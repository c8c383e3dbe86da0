package regime

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/quantpulse/quantpulse/internal/indicators"
	"github.com/quantpulse/quantpulse/internal/models"
)

// Classification constants.
const (
	// DefaultWindow caps how many trailing bars the classifier consumes.
	DefaultWindow = 100
	// DefaultConfidenceFloor is the argmax confidence below which the
	// classifier falls back to NEUTRAL.
	DefaultConfidenceFloor = 0.3

	// Panic override bounds.
	panicVolatility = 0.8
	panicSentiment  = -0.5
	panicConfidence = 0.95

	// volatilityScale normalizes ATR/price so that 5% per-bar range maps to
	// a volatility index of 1.
	volatilityScale = 0.05

	trendEMAShort = 20
	trendEMALong  = 50
)

// Classifier maps a bar window plus smoothed sentiment to a market regime.
type Classifier struct {
	window          int
	confidenceFloor float64
}

// NewClassifier creates a classifier. Non-positive arguments fall back to
// the defaults.
func NewClassifier(window int, confidenceFloor float64) *Classifier {
	if window <= 0 {
		window = DefaultWindow
	}
	if confidenceFloor <= 0 {
		confidenceFloor = DefaultConfidenceFloor
	}
	return &Classifier{window: window, confidenceFloor: confidenceFloor}
}

// Classify computes the regime snapshot for one symbol. Only the most recent
// window bars are consulted; sentiment is the symbol's smoothed index in
// [-1, +1].
func (c *Classifier) Classify(symbol string, bars []models.Bar, sentiment float64) (*models.RegimeSnapshot, error) {
	if len(bars) < indicators.MinBars {
		return nil, fmt.Errorf("%w: regime needs %d bars, got %d",
			indicators.ErrInsufficientData, indicators.MinBars, len(bars))
	}
	if len(bars) > c.window {
		bars = bars[len(bars)-c.window:]
	}

	last := bars[len(bars)-1]
	atr, err := indicators.WilderATR(bars, 14)
	if err != nil {
		return nil, err
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	emaShort := indicators.LastEMA(closes, trendEMAShort)
	emaLong := indicators.LastEMA(closes, trendEMALong)

	inputs := models.RegimeInputs{
		SentimentIndex:  clamp(sentiment, -1, 1),
		VolatilityIndex: volatilityIndex(atr, last.Close),
		TrendStrength:   trendStrength(emaShort, emaLong),
	}

	snap := c.classify(symbol, inputs)
	snap.Timestamp = last.Timestamp

	log.Debug().
		Str("symbol", symbol).
		Str("regime", string(snap.Regime)).
		Float64("confidence", snap.Confidence).
		Float64("volatility_index", inputs.VolatilityIndex).
		Float64("trend_strength", inputs.TrendStrength).
		Msg("Regime classified")

	return snap, nil
}

// ClassifyInputs scores pre-computed inputs directly, bypassing the bar
// window.
func (c *Classifier) ClassifyInputs(symbol string, inputs models.RegimeInputs) *models.RegimeSnapshot {
	return c.classify(symbol, inputs)
}

func (c *Classifier) classify(symbol string, inputs models.RegimeInputs) *models.RegimeSnapshot {
	si, vi, ts := inputs.SentimentIndex, inputs.VolatilityIndex, inputs.TrendStrength

	scores := models.RegimeScores{
		Bull:    0.4*math.Max(ts, 0) + 0.4*math.Max(si, 0) + 0.2*(1-vi),
		Bear:    0.4*math.Max(-ts, 0) + 0.4*math.Max(-si, 0) + 0.2*vi,
		Neutral: 0.5*(1-math.Abs(ts)) + 0.3*(1-math.Abs(si)) + 0.2*(1-vi),
		Panic:   0.5*vi + 0.5*math.Max(-si, 0),
	}

	snap := &models.RegimeSnapshot{
		Symbol: symbol,
		Scores: scores,
		Inputs: inputs,
	}

	// The panic override bypasses argmax entirely.
	if vi > panicVolatility && si < panicSentiment {
		snap.Regime = models.RegimePanic
		snap.Confidence = panicConfidence
		return snap
	}

	snap.Regime, snap.Confidence = argmax(scores)
	if snap.Confidence < c.confidenceFloor {
		snap.Regime = models.RegimeNeutral
	}
	return snap
}

func argmax(s models.RegimeScores) (models.Regime, float64) {
	best, bestScore := models.RegimeNeutral, s.Neutral
	if s.Bull > bestScore {
		best, bestScore = models.RegimeBull, s.Bull
	}
	if s.Bear > bestScore {
		best, bestScore = models.RegimeBear, s.Bear
	}
	if s.Panic > bestScore {
		best, bestScore = models.RegimePanic, s.Panic
	}

	total := s.Bull + s.Bear + s.Neutral + s.Panic
	if total <= 0 {
		return models.RegimeNeutral, 0
	}
	return best, bestScore / total
}

func volatilityIndex(atr, price float64) float64 {
	if price <= 0 {
		return 1
	}
	return clamp((atr/price)/volatilityScale, 0, 1)
}

func trendStrength(emaShort, emaLong float64) float64 {
	if emaLong == 0 {
		return 0
	}
	return math.Tanh(10 * (emaShort - emaLong) / emaLong)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
