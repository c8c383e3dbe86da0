package risk

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/quantpulse/quantpulse/internal/models"
)

// ErrUnsizeable is returned when the inputs cannot produce a position
// (zero price, zero ATR, or zero capital).
var ErrUnsizeable = errors.New("cannot size position")

// defaultRewardRisk sets the take-profit distance as a multiple of the stop
// distance.
const defaultRewardRisk = 2.0

// Params configure the sizer from the risk section of the config.
type Params struct {
	PerTradeFraction    float64 // fraction of capital risked per trade
	MaxPositionFraction float64 // cap on position value / capital
	ATRStopMultiplier   float64 // stop distance = ATR * multiplier
	RewardRiskRatio     float64 // take-profit distance / stop distance
}

// Sizer converts a signal's reference price and volatility into a sized,
// stop-bracketed position.
type Sizer struct {
	params Params
}

// NewSizer creates a position sizer. Zero-valued params fall back to
// conservative defaults.
func NewSizer(p Params) *Sizer {
	if p.PerTradeFraction <= 0 {
		p.PerTradeFraction = 0.01
	}
	if p.MaxPositionFraction <= 0 {
		p.MaxPositionFraction = 0.1
	}
	if p.ATRStopMultiplier <= 0 {
		p.ATRStopMultiplier = 2.0
	}
	if p.RewardRiskRatio <= 0 {
		p.RewardRiskRatio = defaultRewardRisk
	}
	return &Sizer{params: p}
}

// Size computes shares from the volatility-scaled risk budget:
// shares = (capital * per_trade_fraction) / (ATR * stop_multiplier),
// value-capped at capital * max_position_fraction.
func (s *Sizer) Size(symbol string, side models.OrderSide, price, atr, capital float64) (*models.PositionSize, error) {
	if price <= 0 || atr <= 0 || capital <= 0 {
		return nil, fmt.Errorf("%w: price=%.4f atr=%.4f capital=%.2f", ErrUnsizeable, price, atr, capital)
	}

	riskAmount := capital * s.params.PerTradeFraction
	stopDistance := atr * s.params.ATRStopMultiplier
	shares := riskAmount / stopDistance

	maxValue := capital * s.params.MaxPositionFraction
	if shares*price > maxValue {
		shares = maxValue / price
		riskAmount = shares * stopDistance
	}

	takeDistance := stopDistance * s.params.RewardRiskRatio
	ps := &models.PositionSize{
		Shares:          models.Round6(shares),
		Value:           models.Round6(shares * price),
		RiskAmount:      models.Round6(riskAmount),
		RiskRewardRatio: s.params.RewardRiskRatio,
	}
	switch side {
	case models.OrderSideBuy:
		ps.StopLossPrice = models.Round6(price - stopDistance)
		ps.TakeProfitPrice = models.Round6(price + takeDistance)
	case models.OrderSideSell:
		ps.StopLossPrice = models.Round6(price + stopDistance)
		ps.TakeProfitPrice = models.Round6(price - takeDistance)
	default:
		return nil, fmt.Errorf("%w: side %q", ErrUnsizeable, side)
	}

	log.Debug().
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("shares", ps.Shares).
		Float64("risk_amount", ps.RiskAmount).
		Float64("stop_loss", ps.StopLossPrice).
		Msg("Position sized")

	return ps, nil
}

// TrailingStop computes a trailing stop candidate for an open position from
// the latest price: a fixed fraction below (long) or above (short). The
// position's RaiseStop keeps the stop monotonic.
func TrailingStop(side models.OrderSide, price, fraction float64) float64 {
	if fraction <= 0 {
		return 0
	}
	if side == models.OrderSideBuy {
		return price * (1 - fraction)
	}
	return price * (1 + fraction)
}
