package models

import (
	"fmt"
	"math"
	"time"
)

// MACDValue holds the MACD line, signal line, and histogram.
type MACDValue struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BollingerValue holds the Bollinger band levels.
type BollingerValue struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// IndicatorSnapshot is the full per-bar indicator set for one symbol,
// derived purely from the trailing bar window.
type IndicatorSnapshot struct {
	Symbol    string         `json:"symbol"`
	Timestamp time.Time      `json:"timestamp"`
	RSI       float64        `json:"rsi"`
	MACD      MACDValue      `json:"macd"`
	Bollinger BollingerValue `json:"bollinger"`
	SMA20     float64        `json:"sma_20"`
	SMA50     float64        `json:"sma_50"`
	EMA12     float64        `json:"ema_12"`
	EMA26     float64        `json:"ema_26"`
	ATR       float64        `json:"atr"`
	Close     float64        `json:"close"`
}

// TechnicalState classifies one indicator's reading.
type TechnicalState string

const (
	TechnicalNeutral    TechnicalState = "NEUTRAL"
	TechnicalOverbought TechnicalState = "OVERBOUGHT"
	TechnicalOversold   TechnicalState = "OVERSOLD"
	TechnicalBullCross  TechnicalState = "BULLISH_CROSS"
	TechnicalBearCross  TechnicalState = "BEARISH_CROSS"
	TechnicalUpperBreak TechnicalState = "UPPER_BREACH"
	TechnicalLowerBreak TechnicalState = "LOWER_BREACH"
)

// TechnicalSignals is the derived classification of an indicator snapshot.
type TechnicalSignals struct {
	RSI       TechnicalState `json:"rsi"`
	MACD      TechnicalState `json:"macd"`
	Bollinger TechnicalState `json:"bollinger"`
}

// Regime is the categorical market-state classification.
type Regime string

const (
	RegimeBull    Regime = "BULL"
	RegimeBear    Regime = "BEAR"
	RegimeNeutral Regime = "NEUTRAL"
	RegimePanic   Regime = "PANIC"
)

// RegimeInputs are the normalized inputs the classifier scored.
type RegimeInputs struct {
	SentimentIndex  float64 `json:"sentiment_index"`
	VolatilityIndex float64 `json:"volatility_index"`
	TrendStrength   float64 `json:"trend_strength"`
}

// RegimeScores holds the four composite scores before argmax selection.
type RegimeScores struct {
	Bull    float64 `json:"bull"`
	Bear    float64 `json:"bear"`
	Neutral float64 `json:"neutral"`
	Panic   float64 `json:"panic"`
}

// RegimeSnapshot is one classification result for a symbol.
type RegimeSnapshot struct {
	Symbol     string       `json:"symbol"`
	Regime     Regime       `json:"regime"`
	Confidence float64      `json:"confidence"`
	Scores     RegimeScores `json:"scores"`
	Inputs     RegimeInputs `json:"inputs"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Validate enforces the regime confidence range.
func (r *RegimeSnapshot) Validate() error {
	switch r.Regime {
	case RegimeBull, RegimeBear, RegimeNeutral, RegimePanic:
	default:
		return fmt.Errorf("regime %s: unknown regime %q", r.Symbol, r.Regime)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("regime %s: confidence %.6f out of [0,1]", r.Symbol, r.Confidence)
	}
	return nil
}

// Round6 truncates a float to at most six decimal places, the precision the
// bus contract allows.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
