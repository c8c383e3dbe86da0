package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/quantpulse/quantpulse/internal/models"
)

// Simulated is the paper-trading venue used when no real broker is
// configured. Market orders fill at the mark price on the first status
// poll; limit orders fill at their limit. A rate limiter mimics venue API
// throttling so executor pacing is exercised realistically.
type Simulated struct {
	mu       sync.Mutex
	orders   map[string]*simOrder
	position map[string]*BrokerPosition
	margins  Margins
	marks    map[string]float64
	seq      int
	limiter  *rate.Limiter
}

type simOrder struct {
	req       OrderRequest
	status    models.OrderStatus
	filled    float64
	avgPrice  float64
	updatedAt time.Time
}

// NewSimulated creates a paper broker with the given available margin.
func NewSimulated(availableMargin float64) *Simulated {
	return &Simulated{
		orders:   make(map[string]*simOrder),
		position: make(map[string]*BrokerPosition),
		margins:  Margins{Available: availableMargin},
		marks:    make(map[string]float64),
		limiter:  rate.NewLimiter(rate.Limit(50), 10),
	}
}

// SetMark sets the simulated market price for a symbol. The price feed
// consumer calls this on every bar.
func (b *Simulated) SetMark(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marks[symbol] = price
}

// PlaceOrder accepts the order and assigns a synthetic identifier. The
// order fills on the next status poll.
func (b *Simulated) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if req.Quantity <= 0 {
		return "", fmt.Errorf("invalid quantity %.4f", req.Quantity)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := fmt.Sprintf("SIM-%06d", b.seq)
	b.orders[id] = &simOrder{
		req:       req,
		status:    models.OrderStatusSubmitted,
		updatedAt: time.Now().UTC(),
	}

	log.Info().
		Str("broker_order_id", id).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("quantity", req.Quantity).
		Msg("Simulated order placed")

	return id, nil
}

// OrderStatus advances the simulated lifecycle: a submitted order fills
// completely at the mark (or limit) price.
func (b *Simulated) OrderStatus(ctx context.Context, brokerOrderID string) (*StatusReport, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[brokerOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, brokerOrderID)
	}

	if o.status == models.OrderStatusSubmitted {
		price := b.fillPrice(o.req)
		o.status = models.OrderStatusFilled
		o.filled = o.req.Quantity
		o.avgPrice = price
		o.updatedAt = time.Now().UTC()
		b.applyFill(o.req, price)
	}

	return &StatusReport{
		BrokerOrderID: brokerOrderID,
		Status:        o.status,
		FilledQty:     o.filled,
		AvgFillPrice:  o.avgPrice,
		UpdatedAt:     o.updatedAt,
	}, nil
}

// Cancel cancels a not-yet-filled order. Terminal orders are left alone.
func (b *Simulated) Cancel(ctx context.Context, brokerOrderID string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, brokerOrderID)
	}
	if !o.status.IsTerminal() {
		o.status = models.OrderStatusCancelled
		o.updatedAt = time.Now().UTC()
	}
	return nil
}

// Positions lists current simulated holdings.
func (b *Simulated) Positions(ctx context.Context) ([]BrokerPosition, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]BrokerPosition, 0, len(b.position))
	for _, p := range b.position {
		out = append(out, *p)
	}
	return out, nil
}

// Margins reports simulated funds.
func (b *Simulated) Margins(ctx context.Context) (*Margins, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.margins
	return &m, nil
}

func (b *Simulated) fillPrice(req OrderRequest) float64 {
	if req.Type == models.OrderTypeLimit && req.LimitPrice != nil {
		return *req.LimitPrice
	}
	if mark, ok := b.marks[req.Symbol]; ok {
		return mark
	}
	if req.LimitPrice != nil {
		return *req.LimitPrice
	}
	return 0
}

// applyFill nets the fill into the position book and moves margin.
func (b *Simulated) applyFill(req OrderRequest, price float64) {
	notional := req.Quantity * price
	p, ok := b.position[req.Symbol]
	if !ok {
		b.position[req.Symbol] = &BrokerPosition{
			Symbol:   req.Symbol,
			Side:     req.Side,
			Quantity: req.Quantity,
			AvgPrice: price,
		}
		b.margins.Available -= notional
		b.margins.Used += notional
		return
	}

	if p.Side == req.Side {
		total := p.Quantity + req.Quantity
		p.AvgPrice = (p.AvgPrice*p.Quantity + price*req.Quantity) / total
		p.Quantity = total
		b.margins.Available -= notional
		b.margins.Used += notional
		return
	}

	// Opposite side reduces the position.
	released := req.Quantity * p.AvgPrice
	p.Quantity -= req.Quantity
	b.margins.Used -= released
	b.margins.Available += req.Quantity * price
	if p.Quantity <= 0 {
		delete(b.position, req.Symbol)
	}
}
