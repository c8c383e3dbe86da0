package config

import (
	"fmt"
)

// Validate checks ranges and normalizes the CMS weights in place.
func (c *Config) Validate() error {
	if err := c.Pipeline.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if c.Resilience.StoreWriteQueueCapacity <= 0 {
		return fmt.Errorf("resilience.store_write_queue_capacity must be positive, got %d", c.Resilience.StoreWriteQueueCapacity)
	}
	if c.Resilience.BusBufferCapacity <= 0 {
		return fmt.Errorf("resilience.bus_buffer_capacity must be positive, got %d", c.Resilience.BusBufferCapacity)
	}
	if c.Resilience.Retry.MaxAttempts < 1 {
		return fmt.Errorf("resilience.retry.max_attempts must be at least 1, got %d", c.Resilience.Retry.MaxAttempts)
	}
	if c.Database.PoolSize <= 0 {
		return fmt.Errorf("database.pool_size must be positive, got %d", c.Database.PoolSize)
	}
	return nil
}

func (p *PipelineConfig) validate() error {
	w := &p.CMSWeights
	sum := w.Sentiment + w.Volatility + w.Trend + w.Event
	if w.Sentiment < 0 || w.Volatility < 0 || w.Trend < 0 || w.Event < 0 {
		return fmt.Errorf("pipeline.cms_weights must be non-negative")
	}
	if sum <= 0 {
		return fmt.Errorf("pipeline.cms_weights must sum to a positive value")
	}
	// Auto-normalize so callers can assume the weights sum to 1.
	w.Sentiment /= sum
	w.Volatility /= sum
	w.Trend /= sum
	w.Event /= sum

	if p.CMSThresholds.Buy <= 0 || p.CMSThresholds.Buy > 100 {
		return fmt.Errorf("pipeline.cms_thresholds.buy must be in (0,100], got %.2f", p.CMSThresholds.Buy)
	}
	if p.CMSThresholds.Sell <= 0 || p.CMSThresholds.Sell > 100 {
		return fmt.Errorf("pipeline.cms_thresholds.sell must be in (0,100], got %.2f", p.CMSThresholds.Sell)
	}
	if p.SignalEmissionEpsilon < 0 {
		return fmt.Errorf("pipeline.signal_emission_epsilon must be non-negative, got %.2f", p.SignalEmissionEpsilon)
	}
	if p.SlotStalenessSeconds <= 0 {
		return fmt.Errorf("pipeline.slot_staleness_seconds must be positive, got %d", p.SlotStalenessSeconds)
	}
	if p.SentimentWindow <= 0 {
		return fmt.Errorf("pipeline.sentiment_window must be positive, got %d", p.SentimentWindow)
	}
	if p.RegimeWindow < 50 {
		return fmt.Errorf("pipeline.regime_window must be at least 50, got %d", p.RegimeWindow)
	}
	if p.RegimeConfidenceFloor < 0 || p.RegimeConfidenceFloor > 1 {
		return fmt.Errorf("pipeline.regime_confidence_floor must be in [0,1], got %.2f", p.RegimeConfidenceFloor)
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.PerTradeFraction <= 0 || r.PerTradeFraction > 1 {
		return fmt.Errorf("risk.per_trade_fraction must be in (0,1], got %.4f", r.PerTradeFraction)
	}
	if r.MaxPositionFraction <= 0 || r.MaxPositionFraction > 1 {
		return fmt.Errorf("risk.max_position_fraction must be in (0,1], got %.4f", r.MaxPositionFraction)
	}
	if r.ATRStopMultiplier <= 0 {
		return fmt.Errorf("risk.atr_stop_multiplier must be positive, got %.4f", r.ATRStopMultiplier)
	}
	if r.TrailingStopFraction < 0 || r.TrailingStopFraction > 1 {
		return fmt.Errorf("risk.trailing_stop_fraction must be in [0,1], got %.4f", r.TrailingStopFraction)
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if t.MaxDailyTrades < 0 {
		return fmt.Errorf("trading.max_daily_trades must be non-negative, got %d", t.MaxDailyTrades)
	}
	if t.MaxDailyLoss < 0 {
		return fmt.Errorf("trading.max_daily_loss must be non-negative, got %.2f", t.MaxDailyLoss)
	}
	if t.MaxPositionSize <= 0 {
		return fmt.Errorf("trading.max_position_size must be positive, got %.2f", t.MaxPositionSize)
	}
	if t.Capital <= 0 {
		return fmt.Errorf("trading.capital must be positive, got %.2f", t.Capital)
	}
	return nil
}
