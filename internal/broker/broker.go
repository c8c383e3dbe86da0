package broker

import (
	"context"
	"errors"
	"time"

	"github.com/quantpulse/quantpulse/internal/models"
)

// BreakerName identifies the broker collaborator in the breaker manager.
const BreakerName = "broker"

// ErrAuth marks authentication and permission failures. These are terminal:
// they trip the breaker and disable automatic trading.
var ErrAuth = errors.New("broker authentication failed")

// ErrUnknownOrder is returned when a broker order id is not recognized.
var ErrUnknownOrder = errors.New("unknown broker order")

// OrderRequest is the placement payload sent to the broker.
type OrderRequest struct {
	Symbol     string
	Side       models.OrderSide
	Type       models.OrderType
	Quantity   float64
	LimitPrice *float64
}

// StatusReport is one polled order status.
type StatusReport struct {
	BrokerOrderID string
	Status        models.OrderStatus
	FilledQty     float64
	AvgFillPrice  float64
	UpdatedAt     time.Time
}

// BrokerPosition is one holding as the broker reports it.
type BrokerPosition struct {
	Symbol   string
	Side     models.OrderSide
	Quantity float64
	AvgPrice float64
}

// Margins is the broker's funds snapshot.
type Margins struct {
	Available float64
	Used      float64
}

// Broker is the abstract trading venue. Every call is remote I/O: callers
// wrap these in the circuit breaker and retry policy, and pass deadlines
// via ctx.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	OrderStatus(ctx context.Context, brokerOrderID string) (*StatusReport, error)
	Cancel(ctx context.Context, brokerOrderID string) error
	Positions(ctx context.Context) ([]BrokerPosition, error)
	Margins(ctx context.Context) (*Margins, error)
}
