package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SignalClass is the emitted trade direction.
type SignalClass string

const (
	SignalBuy  SignalClass = "BUY"
	SignalSell SignalClass = "SELL"
	SignalHold SignalClass = "HOLD"
)

// Contribution is one component's share of a composite score.
type Contribution struct {
	Component  string  `json:"component"`
	Normalized float64 `json:"normalized"` // signed input in its declared range
	Weight     float64 `json:"weight"`
	Weighted   float64 `json:"weighted"` // normalized * weight (signed)
}

// CMSResult is the Composite Market Score output. Score is in [-100, +100].
type CMSResult struct {
	Symbol        string         `json:"symbol"`
	Score         float64        `json:"cms_score"`
	Class         SignalClass    `json:"signal_class"`
	Confidence    float64        `json:"confidence"`
	Contributions []Contribution `json:"contributions"`
	Explanation   string         `json:"explanation"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Validate enforces the CMS ranges.
func (c *CMSResult) Validate() error {
	if c.Score < -100 || c.Score > 100 {
		return fmt.Errorf("cms %s: score %.6f out of [-100,100]", c.Symbol, c.Score)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("cms %s: confidence %.6f out of [0,1]", c.Symbol, c.Confidence)
	}
	return nil
}

// PositionSize describes the sized exposure attached to a signal.
type PositionSize struct {
	Shares          float64 `json:"shares"`
	Value           float64 `json:"value"`
	RiskAmount      float64 `json:"risk_amount"`
	StopLossPrice   float64 `json:"stop_loss_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
}

// TradingSignal is the fully assembled, explainable signal published on the
// signals channel and consumed by the executor.
type TradingSignal struct {
	ID           uuid.UUID    `json:"id"`
	Symbol       string       `json:"symbol"`
	Class        SignalClass  `json:"signal_class"`
	Price        float64      `json:"price"`
	CMSScore     float64      `json:"cms_score"`
	Confidence   float64      `json:"confidence"`
	PositionSize PositionSize `json:"position_size"`
	Reasons      []string     `json:"reasons"`
	Explanation  string       `json:"explanation"`
	Timestamp    time.Time    `json:"timestamp"`
}
