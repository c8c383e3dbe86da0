package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quantpulse/quantpulse/internal/models"
)

// SaveBacktestResult upserts a run. The same identifier is written first as
// running and again on completion or failure.
func (s *Store) SaveBacktestResult(ctx context.Context, r *models.BacktestResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal backtest result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO backtest_results (id, status, result, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, result = EXCLUDED.result`,
		r.ID, string(r.Status), payload, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save backtest result: %w", err)
	}
	return nil
}

// GetBacktestResult loads one run by identifier.
func (s *Store) GetBacktestResult(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT result FROM backtest_results WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest result: %w", err)
	}

	var result models.BacktestResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backtest result: %w", err)
	}
	return &result, nil
}
