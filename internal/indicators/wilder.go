package indicators

import (
	"fmt"
	"math"

	"github.com/quantpulse/quantpulse/internal/models"
)

// WilderRSI computes the Relative Strength Index over the full series using
// Wilder smoothing: the first average gain/loss is a simple mean over the
// period, every later one is ((prev*(period-1))+current)/period.
func WilderRSI(closes []float64, period int) (float64, error) {
	if len(closes) < period+1 {
		return 0, fmt.Errorf("%w: RSI(%d) needs %d closes, got %d",
			ErrInsufficientData, period, period+1, len(closes))
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// WilderATR computes the Average True Range with Wilder smoothing. True range
// uses the previous close: max(high-low, |high-prevClose|, |low-prevClose|).
func WilderATR(bars []models.Bar, period int) (float64, error) {
	if len(bars) < period+1 {
		return 0, fmt.Errorf("%w: ATR(%d) needs %d bars, got %d",
			ErrInsufficientData, period, period+1, len(bars))
	}

	trueRange := func(i int) float64 {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		return math.Max(hl, math.Max(hc, lc))
	}

	var atr float64
	for i := 1; i <= period; i++ {
		atr += trueRange(i)
	}
	atr /= float64(period)

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + trueRange(i)) / float64(period)
	}
	return atr, nil
}
