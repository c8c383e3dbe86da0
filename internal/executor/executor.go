package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantpulse/quantpulse/internal/alerts"
	"github.com/quantpulse/quantpulse/internal/broker"
	"github.com/quantpulse/quantpulse/internal/bus"
	"github.com/quantpulse/quantpulse/internal/config"
	"github.com/quantpulse/quantpulse/internal/metrics"
	"github.com/quantpulse/quantpulse/internal/models"
	"github.com/quantpulse/quantpulse/internal/resilience"
	"github.com/quantpulse/quantpulse/internal/risk"
)

// Admission rejection reasons, in gate order.
const (
	ReasonTradingDisabled    = "trading_disabled"
	ReasonDailyTradeLimit    = "daily_trade_limit"
	ReasonMaxPositionSize    = "max_position_size"
	ReasonCMSThreshold       = "cms_threshold"
	ReasonInsufficientMargin = "insufficient_margin"
	ReasonOppositePosition   = "opposite_position"
)

// Broker interaction defaults.
const (
	// DefaultPollInterval paces broker status polling.
	DefaultPollInterval = 2 * time.Second
	// DefaultBrokerTimeout bounds each individual broker call.
	DefaultBrokerTimeout = 30 * time.Second
	// cancelSweepBatch pages the halt cancel sweep through the store.
	cancelSweepBatch = 100
)

// Store is the persistence surface the executor needs.
type Store interface {
	HasOrderForSignal(ctx context.Context, signalID uuid.UUID) (bool, error)
	SaveOrder(ctx context.Context, o *models.Order) error
	GetOrders(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error)
	GetOpenPositions(ctx context.Context) ([]models.Position, error)
	SavePosition(ctx context.Context, p *models.Position) error
	SaveTrade(ctx context.Context, t *models.TradeRecord) error
	DailyRealizedPnL(ctx context.Context, day time.Time) (float64, error)
	CountTradesSince(ctx context.Context, cutoff time.Time) (int, error)
}

// Publisher is the bus surface for order updates.
type Publisher interface {
	Publish(ctx context.Context, channel string, v any) error
}

// markSetter is the optional venue surface for pushing mark prices. The
// simulated broker implements it; live venues observe the market themselves.
type markSetter interface {
	SetMark(symbol string, price float64)
}

// Params configure the admission gates and polling cadence.
type Params struct {
	Enabled              bool
	MaxDailyTrades       int
	MaxDailyLoss         float64
	MaxPositionSize      float64 // notional cap across open exposure
	MinBuyCMS            float64 // BUY requires CMS above this
	MinSellCMS           float64 // SELL requires CMS below the negation
	PollInterval         time.Duration
	BrokerTimeout        time.Duration // per-call deadline on broker RPCs
	TrailingStopFraction float64
}

func (p Params) withDefaults() Params {
	if p.PollInterval <= 0 {
		p.PollInterval = DefaultPollInterval
	}
	if p.BrokerTimeout <= 0 {
		p.BrokerTimeout = DefaultBrokerTimeout
	}
	if p.MinBuyCMS <= 0 {
		p.MinBuyCMS = 50
	}
	if p.MinSellCMS <= 0 {
		p.MinSellCMS = 50
	}
	return p
}

// Executor consumes trading signals and turns admitted ones into tracked
// broker orders. The enabled flag and daily counters are mutated only from
// executor goroutines and read by others under the lock.
type Executor struct {
	params    Params
	brk       broker.Broker
	store     Store
	breakers  *resilience.BreakerManager
	retry     resilience.RetryPolicy
	alerts    *alerts.Manager
	publisher Publisher
	logger    zerolog.Logger

	mu         sync.RWMutex
	enabled    bool
	haltReason string

	wg sync.WaitGroup
}

// New creates an executor.
func New(params Params, brk broker.Broker, st Store, breakers *resilience.BreakerManager,
	retry resilience.RetryPolicy, alertMgr *alerts.Manager, publisher Publisher) *Executor {
	params = params.withDefaults()
	return &Executor{
		params:    params,
		brk:       brk,
		store:     st,
		breakers:  breakers,
		retry:     retry,
		alerts:    alertMgr,
		publisher: publisher,
		logger:    config.NewLogger("executor"),
		enabled:   params.Enabled,
	}
}

// Enabled reports whether automatic trading is on.
func (e *Executor) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// HaltReason returns why trading was disabled, empty while enabled.
func (e *Executor) HaltReason() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.haltReason
}

// Resume re-enables trading after an operator halt.
func (e *Executor) Resume() {
	e.mu.Lock()
	e.enabled = true
	e.haltReason = ""
	e.mu.Unlock()
	e.logger.Info().Msg("Automatic trading resumed")
}

// Wait blocks until all order-tracking goroutines finish.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// HandleSignal processes one published signal. HOLD signals and redelivered
// signals are ignored; rejected signals are logged with the failing gate.
func (e *Executor) HandleSignal(ctx context.Context, sig *models.TradingSignal) error {
	if sig.Class == models.SignalHold {
		return nil
	}

	seen, err := e.store.HasOrderForSignal(ctx, sig.ID)
	if err != nil {
		return fmt.Errorf("signal dedup check: %w", err)
	}
	if seen {
		e.logger.Debug().Str("signal_id", sig.ID.String()).Msg("Signal already executed, skipping")
		return nil
	}

	if reason, err := e.admit(ctx, sig); err != nil {
		return err
	} else if reason != "" {
		metrics.OrdersRejected.WithLabelValues(reason).Inc()
		e.logger.Info().
			Str("signal_id", sig.ID.String()).
			Str("symbol", sig.Symbol).
			Str("class", string(sig.Class)).
			Str("reason", reason).
			Msg("Order admission rejected")
		return nil
	}

	if sig.PositionSize.Shares <= 0 {
		e.logger.Warn().Str("signal_id", sig.ID.String()).Msg("Signal carries no size, skipping")
		return nil
	}

	order := &models.Order{
		ID:       uuid.New(),
		SignalID: sig.ID,
		Symbol:   sig.Symbol,
		Side:     models.OrderSide(sig.Class),
		Type:     models.OrderTypeMarket,
		Quantity: sig.PositionSize.Shares,
		Status:   models.OrderStatusPending,
		PlacedAt: time.Now().UTC(),
	}
	return e.place(ctx, order, sig)
}

// admit runs the gates in their documented order and returns the first
// failing reason.
func (e *Executor) admit(ctx context.Context, sig *models.TradingSignal) (string, error) {
	if !e.Enabled() {
		return ReasonTradingDisabled, nil
	}

	if e.params.MaxDailyTrades > 0 {
		count, err := e.store.CountTradesSince(ctx, startOfDay(time.Now().UTC()))
		if err != nil {
			return "", fmt.Errorf("daily trade count: %w", err)
		}
		if count >= e.params.MaxDailyTrades {
			return ReasonDailyTradeLimit, nil
		}
	}

	positions, err := e.store.GetOpenPositions(ctx)
	if err != nil {
		return "", fmt.Errorf("open positions: %w", err)
	}
	notional := sig.PositionSize.Value
	if e.params.MaxPositionSize > 0 {
		exposure := 0.0
		for _, p := range positions {
			exposure += p.EntryPrice * p.Quantity
		}
		if exposure+notional > e.params.MaxPositionSize {
			return ReasonMaxPositionSize, nil
		}
	}

	switch sig.Class {
	case models.SignalBuy:
		if sig.CMSScore <= e.params.MinBuyCMS {
			return ReasonCMSThreshold, nil
		}
	case models.SignalSell:
		if sig.CMSScore >= -e.params.MinSellCMS {
			return ReasonCMSThreshold, nil
		}
	}

	var margins *broker.Margins
	err = e.breakers.Execute(ctx, broker.BreakerName, func(ctx context.Context) error {
		ctx, cancel := e.brokerCtx(ctx)
		defer cancel()
		var err error
		margins, err = e.brk.Margins(ctx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("broker margins: %w", err)
	}
	if margins.Available < notional {
		return ReasonInsufficientMargin, nil
	}

	side := models.OrderSide(sig.Class)
	for _, p := range positions {
		if p.Symbol == sig.Symbol && p.Side != side {
			return ReasonOppositePosition, nil
		}
	}
	return "", nil
}

// place submits the order through the breaker and retry policy, persists
// it, and starts status tracking.
func (e *Executor) place(ctx context.Context, order *models.Order, sig *models.TradingSignal) error {
	req := broker.OrderRequest{
		Symbol:     order.Symbol,
		Side:       order.Side,
		Type:       order.Type,
		Quantity:   order.Quantity,
		LimitPrice: order.LimitPrice,
	}

	err := e.breakers.Execute(ctx, broker.BreakerName, func(ctx context.Context) error {
		// Each retry attempt gets its own deadline.
		return resilience.WithRetry(ctx, e.retry, func(ctx context.Context) error {
			ctx, cancel := e.brokerCtx(ctx)
			defer cancel()
			id, err := e.brk.PlaceOrder(ctx, req)
			if err != nil {
				return err
			}
			order.BrokerOrderID = id
			return nil
		})
	})
	if err != nil {
		if resilience.KindOf(err) == resilience.KindAuth || errors.Is(err, broker.ErrAuth) {
			e.halt(ctx, "broker authentication failure")
			if e.alerts != nil {
				e.alerts.Critical(ctx, "executor", "Broker authentication failure, trading disabled", nil)
			}
		}
		order.Status = models.OrderStatusRejected
		order.RejectReason = err.Error()
		order.UpdatedAt = time.Now().UTC()
		if saveErr := e.store.SaveOrder(ctx, order); saveErr != nil {
			e.logger.Warn().Err(saveErr).Msg("Rejected order not persisted")
		}
		return fmt.Errorf("place order %s: %w", order.ID, err)
	}

	metrics.OrdersPlaced.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	order.Status = models.OrderStatusSubmitted
	order.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveOrder(ctx, order); err != nil {
		e.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("Order not persisted")
	}
	e.publishUpdate(ctx, order)

	e.logger.Info().
		Str("order_id", order.ID.String()).
		Str("broker_order_id", order.BrokerOrderID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Float64("quantity", order.Quantity).
		Msg("Order placed")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.track(ctx, order, sig)
	}()
	return nil
}

// track polls broker status until the order reaches a terminal state,
// persisting every transition.
func (e *Executor) track(ctx context.Context, order *models.Order, sig *models.TradingSignal) {
	ticker := time.NewTicker(e.params.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var report *broker.StatusReport
		err := e.breakers.Execute(ctx, broker.BreakerName, func(ctx context.Context) error {
			ctx, cancel := e.brokerCtx(ctx)
			defer cancel()
			var err error
			report, err = e.brk.OrderStatus(ctx, order.BrokerOrderID)
			return err
		})
		if err != nil {
			e.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("Status poll failed")
			continue
		}

		if report.Status == order.Status {
			continue
		}
		if !order.Status.CanTransition(report.Status) {
			e.logger.Warn().
				Str("order_id", order.ID.String()).
				Str("from", string(order.Status)).
				Str("to", string(report.Status)).
				Msg("Illegal order transition ignored")
			continue
		}

		order.Status = report.Status
		order.FilledQty = report.FilledQty
		order.AvgFillPrice = report.AvgFillPrice
		order.UpdatedAt = report.UpdatedAt
		if err := e.store.SaveOrder(ctx, order); err != nil {
			e.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("Order update not persisted")
		}
		e.publishUpdate(ctx, order)

		if order.Status.IsTerminal() {
			if order.Status == models.OrderStatusFilled {
				e.onFill(ctx, order, sig)
			}
			return
		}
	}
}

// onFill opens a new position or closes the opposite one, records the
// round trip, and enforces the daily-loss limit.
func (e *Executor) onFill(ctx context.Context, order *models.Order, sig *models.TradingSignal) {
	positions, err := e.store.GetOpenPositions(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Fill handling: open positions unavailable")
		return
	}

	for i := range positions {
		p := &positions[i]
		if p.Symbol == order.Symbol && p.Side != order.Side {
			e.closePosition(ctx, p, order)
			return
		}
	}

	pos := &models.Position{
		ID:         uuid.New(),
		Symbol:     order.Symbol,
		Side:       order.Side,
		EntryPrice: order.AvgFillPrice,
		Quantity:   order.FilledQty,
		Open:       true,
		EnteredAt:  order.UpdatedAt,
	}
	if sig != nil {
		pos.InitialStop = sig.PositionSize.StopLossPrice
		pos.CurrentStop = sig.PositionSize.StopLossPrice
		pos.TakeProfit = sig.PositionSize.TakeProfitPrice
	}
	if err := e.store.SavePosition(ctx, pos); err != nil {
		e.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("Position not persisted")
		return
	}
	e.logger.Info().
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Float64("entry", pos.EntryPrice).
		Float64("quantity", pos.Quantity).
		Msg("Position opened")
}

func (e *Executor) closePosition(ctx context.Context, p *models.Position, order *models.Order) {
	exitedAt := order.UpdatedAt
	p.Open = false
	p.ExitedAt = &exitedAt
	p.ExitPrice = order.AvgFillPrice

	pnl := (p.ExitPrice - p.EntryPrice) * p.Quantity
	if p.Side == models.OrderSideSell {
		pnl = -pnl
	}

	if err := e.store.SavePosition(ctx, p); err != nil {
		e.logger.Error().Err(err).Str("symbol", p.Symbol).Msg("Position close not persisted")
	}
	trade := &models.TradeRecord{
		ID:         uuid.New(),
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		ExitPrice:  p.ExitPrice,
		Quantity:   p.Quantity,
		PnL:        models.Round6(pnl),
		EnteredAt:  p.EnteredAt,
		ExitedAt:   exitedAt,
	}
	if err := e.store.SaveTrade(ctx, trade); err != nil {
		e.logger.Error().Err(err).Str("symbol", p.Symbol).Msg("Trade not persisted")
	}

	e.logger.Info().
		Str("symbol", p.Symbol).
		Float64("pnl", trade.PnL).
		Msg("Position closed")

	e.enforceDailyLoss(ctx)
}

// enforceDailyLoss disables trading and cancels working orders once the
// realized daily loss crosses the configured limit.
func (e *Executor) enforceDailyLoss(ctx context.Context) {
	if e.params.MaxDailyLoss <= 0 {
		return
	}
	pnl, err := e.store.DailyRealizedPnL(ctx, time.Now().UTC())
	if err != nil {
		e.logger.Warn().Err(err).Msg("Daily P&L unavailable")
		return
	}
	if pnl > -e.params.MaxDailyLoss {
		return
	}

	e.halt(ctx, fmt.Sprintf("daily loss limit breached: %.2f", pnl))
	e.cancelWorkingOrders(ctx)

	if e.alerts != nil {
		e.alerts.Critical(ctx, "executor", "Daily loss limit breached, trading disabled", map[string]string{
			"daily_pnl": fmt.Sprintf("%.2f", pnl),
			"limit":     fmt.Sprintf("%.2f", e.params.MaxDailyLoss),
		})
	}
}

func (e *Executor) halt(ctx context.Context, reason string) {
	e.mu.Lock()
	already := !e.enabled
	e.enabled = false
	e.haltReason = reason
	e.mu.Unlock()
	if !already {
		e.logger.Error().Str("reason", reason).Msg("Automatic trading disabled")
	}
}

// cancelWorkingOrders sweeps every submitted and partially filled order,
// paging through the store until none remain. Cancelled orders drop out of
// the next page; a page where nothing moved ends the sweep.
func (e *Executor) cancelWorkingOrders(ctx context.Context) {
	for _, status := range []models.OrderStatus{
		models.OrderStatusSubmitted, models.OrderStatusPartiallyFilled,
	} {
		for {
			orders, err := e.store.GetOrders(ctx, status, cancelSweepBatch)
			if err != nil {
				e.logger.Warn().Err(err).Msg("Working orders unavailable for cancel sweep")
				break
			}
			cancelled := 0
			for i := range orders {
				o := &orders[i]
				err := e.breakers.Execute(ctx, broker.BreakerName, func(ctx context.Context) error {
					ctx, cancel := e.brokerCtx(ctx)
					defer cancel()
					return e.brk.Cancel(ctx, o.BrokerOrderID)
				})
				if err != nil {
					e.logger.Warn().Err(err).Str("order_id", o.ID.String()).Msg("Cancel failed")
					continue
				}
				o.Status = models.OrderStatusCancelled
				o.UpdatedAt = time.Now().UTC()
				if err := e.store.SaveOrder(ctx, o); err != nil {
					e.logger.Warn().Err(err).Str("order_id", o.ID.String()).Msg("Cancel not persisted")
				}
				e.publishUpdate(ctx, o)
				cancelled++
			}
			if len(orders) < cancelSweepBatch || cancelled == 0 {
				break
			}
		}
	}
}

// brokerCtx derives the per-call deadline every broker RPC runs under.
func (e *Executor) brokerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.params.BrokerTimeout)
}

// OnBar feeds the latest close to the venue mark and maintains open
// positions against it: trailing stops ratchet and stop or take-profit
// breaches place closing orders. Exit orders bypass the admission gates.
func (e *Executor) OnBar(ctx context.Context, bar *models.Bar) {
	if ms, ok := e.brk.(markSetter); ok {
		ms.SetMark(bar.Symbol, bar.Close)
	}

	positions, err := e.store.GetOpenPositions(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Positions unavailable for exit check")
		return
	}

	for i := range positions {
		p := &positions[i]
		if p.Symbol != bar.Symbol {
			continue
		}

		if e.params.TrailingStopFraction > 0 {
			candidate := risk.TrailingStop(p.Side, bar.Close, e.params.TrailingStopFraction)
			if p.RaiseStop(candidate) {
				if err := e.store.SavePosition(ctx, p); err != nil {
					e.logger.Warn().Err(err).Str("symbol", p.Symbol).Msg("Stop update not persisted")
				}
				e.logger.Debug().
					Str("symbol", p.Symbol).
					Float64("stop", p.CurrentStop).
					Msg("Trailing stop raised")
			}
		}

		if exitReason := exitTrigger(p, bar.Close); exitReason != "" {
			e.logger.Info().
				Str("symbol", p.Symbol).
				Str("trigger", exitReason).
				Float64("price", bar.Close).
				Msg("Exit triggered")
			e.placeExit(ctx, p)
		}
	}
}

// exitTrigger names the breached level, or returns empty.
func exitTrigger(p *models.Position, price float64) string {
	if p.Side == models.OrderSideBuy {
		if p.CurrentStop > 0 && price <= p.CurrentStop {
			return "stop_loss"
		}
		if p.TakeProfit > 0 && price >= p.TakeProfit {
			return "take_profit"
		}
		return ""
	}
	if p.CurrentStop > 0 && price >= p.CurrentStop {
		return "stop_loss"
	}
	if p.TakeProfit > 0 && price <= p.TakeProfit {
		return "take_profit"
	}
	return ""
}

func (e *Executor) placeExit(ctx context.Context, p *models.Position) {
	side := models.OrderSideSell
	if p.Side == models.OrderSideSell {
		side = models.OrderSideBuy
	}
	order := &models.Order{
		ID:       uuid.New(),
		Symbol:   p.Symbol,
		Side:     side,
		Type:     models.OrderTypeMarket,
		Quantity: p.Quantity,
		Status:   models.OrderStatusPending,
		PlacedAt: time.Now().UTC(),
	}
	if err := e.place(ctx, order, nil); err != nil {
		e.logger.Error().Err(err).Str("symbol", p.Symbol).Msg("Exit order failed")
	}
}

func (e *Executor) publishUpdate(ctx context.Context, order *models.Order) {
	if e.publisher == nil {
		return
	}
	update := models.OrderUpdate{
		OrderID:   order.ID.String(),
		Symbol:    order.Symbol,
		Status:    order.Status,
		FilledQty: order.FilledQty,
		AvgPrice:  order.AvgFillPrice,
		Timestamp: order.UpdatedAt,
	}
	if err := e.publisher.Publish(ctx, bus.ChannelOrderUpdates, update); err != nil {
		e.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("Order update publish failed")
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
