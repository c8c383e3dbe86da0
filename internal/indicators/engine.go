package indicators

import (
	"errors"
	"fmt"

	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/rs/zerolog/log"

	"github.com/quantpulse/quantpulse/internal/models"
)

// MinBars is the shortest bar window the engine accepts. SMA(50) needs the
// full window; everything else converges inside it.
const MinBars = 50

var (
	// ErrInsufficientData is returned when fewer than MinBars bars are supplied.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidBar is returned when a bar violates its OHLC invariants or the
	// sequence is not ordered by timestamp.
	ErrInvalidBar = errors.New("invalid bar")
)

// Standard indicator periods. The snapshot contract fixes these; they are not
// configurable.
const (
	rsiPeriod        = 14
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
	bollingerPeriod  = 20
	atrPeriod        = 14
	smaShortPeriod   = 20
	smaLongPeriod    = 50
	emaShortPeriod   = 12
	emaLongPeriod    = 26
)

// Compute derives the full indicator snapshot for one symbol from an ordered
// OHLC window. It is pure: the output depends only on the bars passed in.
func Compute(symbol string, bars []models.Bar) (*models.IndicatorSnapshot, error) {
	if len(bars) < MinBars {
		return nil, fmt.Errorf("%w: need at least %d bars, got %d", ErrInsufficientData, MinBars, len(bars))
	}
	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: bar %d: %v", ErrInvalidBar, i, err)
		}
		if i > 0 && !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: bar %d timestamp %s not after previous %s",
				ErrInvalidBar, i, bars[i].Timestamp, bars[i-1].Timestamp)
		}
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	last := bars[len(bars)-1]

	rsi, err := WilderRSI(closes, rsiPeriod)
	if err != nil {
		return nil, err
	}
	atr, err := WilderATR(bars, atrPeriod)
	if err != nil {
		return nil, err
	}

	macdLine, macdSignal := lastMACD(closes)
	bbLower, bbMiddle, bbUpper := lastBollinger(closes)

	snap := &models.IndicatorSnapshot{
		Symbol:    symbol,
		Timestamp: last.Timestamp,
		RSI:       rsi,
		MACD: models.MACDValue{
			Line:      macdLine,
			Signal:    macdSignal,
			Histogram: macdLine - macdSignal,
		},
		Bollinger: models.BollingerValue{
			Upper:  bbUpper,
			Middle: bbMiddle,
			Lower:  bbLower,
		},
		SMA20: lastSMA(closes, smaShortPeriod),
		SMA50: lastSMA(closes, smaLongPeriod),
		EMA12: LastEMA(closes, emaShortPeriod),
		EMA26: LastEMA(closes, emaLongPeriod),
		ATR:   atr,
		Close: last.Close,
	}

	log.Debug().
		Str("symbol", symbol).
		Int("bars", len(bars)).
		Float64("rsi", snap.RSI).
		Float64("macd_histogram", snap.MACD.Histogram).
		Float64("atr", snap.ATR).
		Msg("Indicator snapshot computed")

	return snap, nil
}

// Signals classifies a snapshot into the categorical technical signals the
// downstream scorer consumes.
func Signals(snap *models.IndicatorSnapshot) models.TechnicalSignals {
	sig := models.TechnicalSignals{
		RSI:       models.TechnicalNeutral,
		MACD:      models.TechnicalNeutral,
		Bollinger: models.TechnicalNeutral,
	}

	switch {
	case snap.RSI > 70:
		sig.RSI = models.TechnicalOverbought
	case snap.RSI < 30:
		sig.RSI = models.TechnicalOversold
	}

	switch {
	case snap.MACD.Histogram > 0:
		sig.MACD = models.TechnicalBullCross
	case snap.MACD.Histogram < 0:
		sig.MACD = models.TechnicalBearCross
	}

	switch {
	case snap.Close > snap.Bollinger.Upper:
		sig.Bollinger = models.TechnicalUpperBreak
	case snap.Close < snap.Bollinger.Lower:
		sig.Bollinger = models.TechnicalLowerBreak
	}

	return sig
}

func feed(values []float64) chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func lastOf(ch <-chan float64) float64 {
	var v float64
	for x := range ch {
		v = x
	}
	return v
}

func lastSMA(closes []float64, period int) float64 {
	sma := trend.NewSmaWithPeriod[float64](period)
	return lastOf(sma.Compute(feed(closes)))
}

// LastEMA returns the final EMA value over the series. Exported because the
// regime classifier needs EMAs at periods the snapshot does not carry.
func LastEMA(closes []float64, period int) float64 {
	ema := trend.NewEmaWithPeriod[float64](period)
	return lastOf(ema.Compute(feed(closes)))
}

func lastMACD(closes []float64) (line, signal float64) {
	macd := trend.NewMacdWithPeriod[float64](macdFastPeriod, macdSlowPeriod, macdSignalPeriod)
	macdChan, signalChan := macd.Compute(feed(closes))
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		line, signal = m, s
	}
	return line, signal
}

func lastBollinger(closes []float64) (lower, middle, upper float64) {
	bb := volatility.NewBollingerBandsWithPeriod[float64](bollingerPeriod)
	lowerChan, middleChan, upperChan := bb.Compute(feed(closes))
	for {
		l, lok := <-lowerChan
		m, mok := <-middleChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		lower, middle, upper = l, m, u
	}
	return lower, middle, upper
}
