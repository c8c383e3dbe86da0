package cms

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantpulse/quantpulse/internal/models"
)

// ErrInsufficientComponents is returned when fewer than two components are
// available; no score is produced and the signal stays suppressed.
var ErrInsufficientComponents = errors.New("insufficient components for composite score")

// Component names as they appear in contributions and explanations.
const (
	ComponentSentiment  = "sentiment"
	ComponentVolatility = "volatility"
	ComponentTrend      = "trend"
	ComponentEvent      = "event"
)

// Weights are the four component weights. They are normalized to sum 1
// before use, so any positive shape is accepted.
type Weights struct {
	Sentiment  float64
	Volatility float64
	Trend      float64
	Event      float64
}

// DefaultWeights returns the standard 0.4/0.3/0.2/0.1 composition.
func DefaultWeights() Weights {
	return Weights{Sentiment: 0.4, Volatility: 0.3, Trend: 0.2, Event: 0.1}
}

// Thresholds are the CMS class boundaries: BUY above +Buy, SELL below -Sell.
type Thresholds struct {
	Buy  float64
	Sell float64
}

// DefaultThresholds returns the standard +/-50 boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Buy: 50, Sell: 50}
}

// Inputs are the four normalized components. Each carries an availability
// flag so degraded collaborators drop out of the composition cleanly.
type Inputs struct {
	SentimentIndex  float64 // [-1, +1]
	VolatilityIndex float64 // [0, 1]
	TrendStrength   float64 // [-1, +1]
	EventShock      float64 // [0, 1]

	SentimentAvailable  bool
	VolatilityAvailable bool
	TrendAvailable      bool
	EventAvailable      bool
}

// AllAvailable marks every component present. Convenience for the
// backtester and tests.
func (in Inputs) AllAvailable() Inputs {
	in.SentimentAvailable = true
	in.VolatilityAvailable = true
	in.TrendAvailable = true
	in.EventAvailable = true
	return in
}

// Engine computes the Composite Market Score. It is a pure function of its
// inputs; construction just pins weights and thresholds.
type Engine struct {
	weights    Weights
	thresholds Thresholds
}

// NewEngine creates a scorer with the given weights and thresholds.
// Non-positive weight sums or thresholds fall back to the defaults.
func NewEngine(weights Weights, thresholds Thresholds) *Engine {
	if weights.Sentiment+weights.Volatility+weights.Trend+weights.Event <= 0 {
		weights = DefaultWeights()
	}
	if thresholds.Buy <= 0 {
		thresholds.Buy = DefaultThresholds().Buy
	}
	if thresholds.Sell <= 0 {
		thresholds.Sell = DefaultThresholds().Sell
	}
	return &Engine{weights: weights, thresholds: thresholds}
}

// component is one available input with its configured weight and signed
// direction applied.
type component struct {
	name   string
	signed float64 // signed normalized value as it enters the sum
	weight float64
}

// Score computes the CMS for one symbol at the given instant. Weights are
// re-normalized over the available components; with fewer than two present
// the score is suppressed.
func (e *Engine) Score(symbol string, in Inputs, at time.Time) (*models.CMSResult, error) {
	components := e.available(in)
	if len(components) < 2 {
		return nil, fmt.Errorf("%w: %d of 4 available", ErrInsufficientComponents, len(components))
	}

	var weightSum float64
	for _, c := range components {
		weightSum += c.weight
	}

	var raw float64
	contributions := make([]models.Contribution, 0, len(components))
	for _, c := range components {
		w := c.weight / weightSum
		weighted := w * c.signed
		raw += weighted
		contributions = append(contributions, models.Contribution{
			Component:  c.name,
			Normalized: models.Round6(c.signed),
			Weight:     models.Round6(w),
			Weighted:   models.Round6(weighted),
		})
	}

	score := clamp(raw*100, -100, 100)

	result := &models.CMSResult{
		Symbol:        symbol,
		Score:         models.Round6(score),
		Class:         e.classify(score),
		Confidence:    models.Round6(e.confidence(score, components, in)),
		Contributions: contributions,
		Timestamp:     at,
	}
	result.Explanation = explain(result)

	if err := result.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("symbol", symbol).
		Float64("cms", result.Score).
		Str("class", string(result.Class)).
		Float64("confidence", result.Confidence).
		Int("components", len(components)).
		Msg("CMS computed")

	return result, nil
}

func (e *Engine) available(in Inputs) []component {
	var out []component
	if in.SentimentAvailable {
		out = append(out, component{ComponentSentiment, clamp(in.SentimentIndex, -1, 1), e.weights.Sentiment})
	}
	if in.VolatilityAvailable {
		// Volatility drags the score down, so it enters negated.
		out = append(out, component{ComponentVolatility, -clamp(in.VolatilityIndex, 0, 1), e.weights.Volatility})
	}
	if in.TrendAvailable {
		out = append(out, component{ComponentTrend, clamp(in.TrendStrength, -1, 1), e.weights.Trend})
	}
	if in.EventAvailable {
		out = append(out, component{ComponentEvent, clamp(in.EventShock, 0, 1), e.weights.Event})
	}
	return out
}

func (e *Engine) classify(score float64) models.SignalClass {
	switch {
	case score > e.thresholds.Buy:
		return models.SignalBuy
	case score < -e.thresholds.Sell:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}

// confidence blends signal strength, component agreement, and a volatility
// penalty: 0.5*strength + 0.3*agreement + 0.2*(1-VI).
func (e *Engine) confidence(score float64, components []component, in Inputs) float64 {
	strength := math.Abs(score) / 100

	agreement := 1 - stddev(components)
	if agreement < 0 {
		agreement = 0
	}

	penalty := 1.0
	if in.VolatilityAvailable {
		penalty = 1 - clamp(in.VolatilityIndex, 0, 1)
	}

	return clamp(0.5*strength+0.3*agreement+0.2*penalty, 0, 1)
}

func stddev(components []component) float64 {
	if len(components) == 0 {
		return 0
	}
	var mean float64
	for _, c := range components {
		mean += c.signed
	}
	mean /= float64(len(components))

	var variance float64
	for _, c := range components {
		d := c.signed - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(components)))
}

// explain renders the human-readable breakdown, listing every contribution
// and naming the dominant component by absolute weighted share.
func explain(r *models.CMSResult) string {
	parts := make([]string, 0, len(r.Contributions))
	dominant := ""
	dominantAbs := -1.0

	for _, c := range r.Contributions {
		parts = append(parts, fmt.Sprintf("%s %+.2f x %.2f = %+.2f", c.Component, c.Normalized, c.Weight, c.Weighted))
		if abs := math.Abs(c.Weighted); abs > dominantAbs {
			dominantAbs = abs
			dominant = c.Component
		}
	}

	return fmt.Sprintf("CMS %+.2f (%s): %s; dominant: %s",
		r.Score, r.Class, strings.Join(parts, ", "), dominant)
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
