package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents market or limit order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus represents the current state of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status absorbs further updates.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// orderStatusRank orders the lifecycle so transitions never regress.
var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:         0,
	OrderStatusSubmitted:       1,
	OrderStatusPartiallyFilled: 2,
	OrderStatusFilled:          3,
	OrderStatusCancelled:       3,
	OrderStatusRejected:        3,
}

// CanTransition reports whether moving from s to next is a legal,
// non-regressing lifecycle step.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	from, ok := orderStatusRank[s]
	if !ok {
		return false
	}
	to, ok := orderStatusRank[next]
	if !ok {
		return false
	}
	return to > from || (to == from && s == next)
}

// Order is a broker order tracked by the executor.
type Order struct {
	ID            uuid.UUID   `json:"id"`
	BrokerOrderID string      `json:"broker_order_id"`
	SignalID      uuid.UUID   `json:"signal_id"`
	Symbol        string      `json:"symbol"`
	Side          OrderSide   `json:"side"`
	Type          OrderType   `json:"order_type"`
	Quantity      float64     `json:"quantity"`
	LimitPrice    *float64    `json:"limit_price,omitempty"`
	Status        OrderStatus `json:"status"`
	FilledQty     float64     `json:"filled_quantity"`
	AvgFillPrice  float64     `json:"average_price"`
	PlacedAt      time.Time   `json:"placed_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	RejectReason  string      `json:"reject_reason,omitempty"`
}

// OrderUpdate is the orders.updates channel message shape.
type OrderUpdate struct {
	OrderID   string      `json:"order_id"`
	Symbol    string      `json:"symbol"`
	Status    OrderStatus `json:"status"`
	FilledQty float64     `json:"filled_quantity"`
	AvgPrice  float64     `json:"average_price"`
	Timestamp time.Time   `json:"timestamp"`
}

// Position is an open or closed holding in one symbol. CurrentStop only
// moves in the favorable direction once set.
type Position struct {
	ID          uuid.UUID  `json:"id"`
	Symbol      string     `json:"symbol"`
	Side        OrderSide  `json:"side"`
	EntryPrice  float64    `json:"entry_price"`
	Quantity    float64    `json:"quantity"`
	InitialStop float64    `json:"initial_stop"`
	CurrentStop float64    `json:"current_stop"`
	TakeProfit  float64    `json:"take_profit"`
	Open        bool       `json:"open"`
	EnteredAt   time.Time  `json:"entered_at"`
	ExitedAt    *time.Time `json:"exited_at,omitempty"`
	ExitPrice   float64    `json:"exit_price,omitempty"`
}

// RaiseStop tightens the stop toward price, never loosening it. Returns true
// when the stop actually moved.
func (p *Position) RaiseStop(candidate float64) bool {
	switch p.Side {
	case OrderSideBuy:
		if candidate > p.CurrentStop {
			p.CurrentStop = candidate
			return true
		}
	case OrderSideSell:
		if p.CurrentStop == 0 || candidate < p.CurrentStop {
			p.CurrentStop = candidate
			return true
		}
	}
	return false
}

// TradeRecord is a completed round trip recorded for P&L accounting.
type TradeRecord struct {
	ID         uuid.UUID `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	PnL        float64   `json:"pnl"`
	EnteredAt  time.Time `json:"entered_at"`
	ExitedAt   time.Time `json:"exited_at"`
}
