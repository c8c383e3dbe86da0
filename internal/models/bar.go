package models

import (
	"fmt"
	"time"
)

// Bar represents a single OHLCV candle for one symbol. Bars are immutable
// after ingestion; Validate is applied once at the boundary.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate checks the OHLC invariants: non-negative prices and volume,
// high >= max(open, close), low <= min(open, close).
func (b *Bar) Validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("bar: missing symbol")
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("bar %s: missing timestamp", b.Symbol)
	}
	if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 {
		return fmt.Errorf("bar %s@%s: negative price", b.Symbol, b.Timestamp.Format(time.RFC3339))
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s@%s: negative volume", b.Symbol, b.Timestamp.Format(time.RFC3339))
	}
	if b.High < max(b.Open, b.Close) {
		return fmt.Errorf("bar %s@%s: high %.6f below body", b.Symbol, b.Timestamp.Format(time.RFC3339), b.High)
	}
	if b.Low > min(b.Open, b.Close) {
		return fmt.Errorf("bar %s@%s: low %.6f above body", b.Symbol, b.Timestamp.Format(time.RFC3339), b.Low)
	}
	return nil
}

// TypicalPrice returns (high + low + close) / 3.
func (b *Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3.0
}
