package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantpulse/quantpulse/internal/models"
)

// SaveBar upserts one OHLC bar. Replaying the same bar is a no-op.
func (s *Store) SaveBar(ctx context.Context, bar *models.Bar) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bars (symbol, ts, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, ts) DO NOTHING`,
		bar.Symbol, bar.Timestamp, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	if err != nil {
		return fmt.Errorf("failed to save bar: %w", err)
	}
	return nil
}

// GetBars returns bars for a symbol within [start, end], ordered by
// timestamp ascending.
func (s *Store) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC`,
		symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Symbol, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}
	return bars, nil
}

// SaveIndicatorSnapshot upserts one indicator snapshot keyed on
// (symbol, timestamp).
func (s *Store) SaveIndicatorSnapshot(ctx context.Context, snap *models.IndicatorSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal indicator snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO indicator_snapshots (symbol, ts, snapshot)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, ts) DO UPDATE SET snapshot = EXCLUDED.snapshot`,
		snap.Symbol, snap.Timestamp, payload)
	if err != nil {
		return fmt.Errorf("failed to save indicator snapshot: %w", err)
	}
	return nil
}

// SaveRegimeSnapshot upserts one regime classification.
func (s *Store) SaveRegimeSnapshot(ctx context.Context, snap *models.RegimeSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal regime snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO regime_snapshots (symbol, ts, regime, confidence, snapshot)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, ts) DO UPDATE
		SET regime = EXCLUDED.regime, confidence = EXCLUDED.confidence, snapshot = EXCLUDED.snapshot`,
		snap.Symbol, snap.Timestamp, string(snap.Regime), snap.Confidence, payload)
	if err != nil {
		return fmt.Errorf("failed to save regime snapshot: %w", err)
	}
	return nil
}

// SaveCMSResult upserts one composite score keyed on (symbol, timestamp).
func (s *Store) SaveCMSResult(ctx context.Context, result *models.CMSResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal cms result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cms_results (symbol, ts, score, class, result)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, ts) DO UPDATE
		SET score = EXCLUDED.score, class = EXCLUDED.class, result = EXCLUDED.result`,
		result.Symbol, result.Timestamp, result.Score, string(result.Class), payload)
	if err != nil {
		return fmt.Errorf("failed to save cms result: %w", err)
	}
	return nil
}
