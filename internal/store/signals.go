package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quantpulse/quantpulse/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// SaveSignal upserts one emitted trading signal.
func (s *Store) SaveSignal(ctx context.Context, sig *models.TradingSignal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO signals (id, symbol, class, ts, signal)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		sig.ID, sig.Symbol, string(sig.Class), sig.Timestamp, payload)
	if err != nil {
		return fmt.Errorf("failed to save signal: %w", err)
	}
	return nil
}

// GetLatestSignal returns the most recent signal for a symbol.
func (s *Store) GetLatestSignal(ctx context.Context, symbol string) (*models.TradingSignal, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT signal FROM signals
		WHERE symbol = $1
		ORDER BY ts DESC
		LIMIT 1`,
		symbol).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest signal: %w", err)
	}

	var sig models.TradingSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signal: %w", err)
	}
	return &sig, nil
}

// GetSignalHistory returns signals within [start, end], newest first,
// capped at limit.
func (s *Store) GetSignalHistory(ctx context.Context, start, end time.Time, limit int) ([]models.TradingSignal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT signal FROM signals
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts DESC
		LIMIT $3`,
		start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal history: %w", err)
	}
	defer rows.Close()

	var signals []models.TradingSignal
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		var sig models.TradingSignal
		if err := json.Unmarshal(payload, &sig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signal: %w", err)
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}
	return signals, nil
}
