package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantpulse/quantpulse/internal/models"
)

// SaveOrder upserts the full order row. Later writes win because the
// executor is the single writer and only moves status forward.
func (s *Store) SaveOrder(ctx context.Context, o *models.Order) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, broker_order_id, signal_id, symbol, side, order_type,
			quantity, limit_price, status, filled_qty, avg_fill_price,
			placed_at, updated_at, reject_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			broker_order_id = EXCLUDED.broker_order_id,
			status = EXCLUDED.status,
			filled_qty = EXCLUDED.filled_qty,
			avg_fill_price = EXCLUDED.avg_fill_price,
			updated_at = EXCLUDED.updated_at,
			reject_reason = EXCLUDED.reject_reason`,
		o.ID, o.BrokerOrderID, o.SignalID, o.Symbol, string(o.Side), string(o.Type),
		o.Quantity, o.LimitPrice, string(o.Status), o.FilledQty, o.AvgFillPrice,
		o.PlacedAt, o.UpdatedAt, o.RejectReason)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// GetOrders returns orders filtered by status (empty matches all), newest
// first, capped at limit.
func (s *Store) GetOrders(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, broker_order_id, signal_id, symbol, side, order_type,
			quantity, limit_price, status, filled_qty, avg_fill_price,
			placed_at, updated_at, reject_reason
		FROM orders`
	args := []any{}
	if status != "" {
		query += " WHERE status = $1 ORDER BY placed_at DESC LIMIT $2"
		args = append(args, string(status), limit)
	} else {
		query += " ORDER BY placed_at DESC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		var side, orderType, orderStatus string
		if err := rows.Scan(&o.ID, &o.BrokerOrderID, &o.SignalID, &o.Symbol, &side, &orderType,
			&o.Quantity, &o.LimitPrice, &orderStatus, &o.FilledQty, &o.AvgFillPrice,
			&o.PlacedAt, &o.UpdatedAt, &o.RejectReason); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Side = models.OrderSide(side)
		o.Type = models.OrderType(orderType)
		o.Status = models.OrderStatus(orderStatus)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

// SavePosition upserts one position row.
func (s *Store) SavePosition(ctx context.Context, p *models.Position) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (id, symbol, side, entry_price, quantity, initial_stop,
			current_stop, take_profit, open, entered_at, exited_at, exit_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			current_stop = EXCLUDED.current_stop,
			open = EXCLUDED.open,
			exited_at = EXCLUDED.exited_at,
			exit_price = EXCLUDED.exit_price`,
		p.ID, p.Symbol, string(p.Side), p.EntryPrice, p.Quantity, p.InitialStop,
		p.CurrentStop, p.TakeProfit, p.Open, p.EnteredAt, p.ExitedAt, p.ExitPrice)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// GetOpenPositions returns all open positions.
func (s *Store) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, side, entry_price, quantity, initial_stop,
			current_stop, take_profit, open, entered_at, exited_at, exit_price
		FROM positions
		WHERE open = TRUE
		ORDER BY entered_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		var side string
		if err := rows.Scan(&p.ID, &p.Symbol, &side, &p.EntryPrice, &p.Quantity, &p.InitialStop,
			&p.CurrentStop, &p.TakeProfit, &p.Open, &p.EnteredAt, &p.ExitedAt, &p.ExitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.Side = models.OrderSide(side)
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

// SaveTrade records one completed round trip.
func (s *Store) SaveTrade(ctx context.Context, t *models.TradeRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trades (id, symbol, side, entry_price, exit_price, quantity, pnl, entered_at, exited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, t.Symbol, string(t.Side), t.EntryPrice, t.ExitPrice, t.Quantity, t.PnL, t.EnteredAt, t.ExitedAt)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// DailyRealizedPnL sums trade P&L for trades exited on the given UTC day.
// The executor rebuilds its daily-loss counter from this on restart.
func (s *Store) DailyRealizedPnL(ctx context.Context, day time.Time) (float64, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var pnl float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(pnl), 0) FROM trades
		WHERE exited_at >= $1 AND exited_at < $2`,
		dayStart, dayEnd).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("failed to sum daily pnl: %w", err)
	}
	return pnl, nil
}

// CountTradesSince counts trades entered at or after the cutoff. Used for
// the daily trade limit gate.
func (s *Store) CountTradesSince(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM trades WHERE entered_at >= $1`, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return count, nil
}

// HasOrderForSignal reports whether an order was already created for the
// signal. Makes order placement idempotent across executor restarts.
func (s *Store) HasOrderForSignal(ctx context.Context, signalID uuid.UUID) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders WHERE signal_id = $1`, signalID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check order for signal: %w", err)
	}
	return count > 0, nil
}
