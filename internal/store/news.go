package store

import (
	"context"
	"fmt"
	"time"

	"github.com/quantpulse/quantpulse/internal/models"
)

// SaveArticle upserts one article keyed on its stable identifier.
func (s *Store) SaveArticle(ctx context.Context, a *models.Article) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO articles (id, title, body, source, published_at, symbols)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, a.Title, a.Body, a.Source, a.PublishedAt, a.Symbols)
	if err != nil {
		return fmt.Errorf("failed to save article: %w", err)
	}
	return nil
}

// SaveSentimentScore upserts the one score an article carries.
func (s *Store) SaveSentimentScore(ctx context.Context, score *models.SentimentScore) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sentiment_scores (article_id, score, confidence, keywords_positive, keywords_negative, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (article_id) DO NOTHING`,
		score.ArticleID, score.Score, score.Confidence,
		score.KeywordsPositive, score.KeywordsNegative, score.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save sentiment score: %w", err)
	}
	return nil
}

// SaveEvent upserts one detected event.
func (s *Store) SaveEvent(ctx context.Context, ev *models.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (id, article_id, event_type, severity, keywords, ts, high_priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.ArticleID, string(ev.Type), ev.Severity, ev.Keywords, ev.Timestamp, ev.HighPriority)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// GetSentimentScores returns scores within [start, end] ordered ascending.
// The backtester replays these chronologically.
func (s *Store) GetSentimentScores(ctx context.Context, start, end time.Time) ([]models.SentimentScore, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT article_id, score, confidence, keywords_positive, keywords_negative, ts
		FROM sentiment_scores
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts ASC`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiment scores: %w", err)
	}
	defer rows.Close()

	var scores []models.SentimentScore
	for rows.Next() {
		var sc models.SentimentScore
		if err := rows.Scan(&sc.ArticleID, &sc.Score, &sc.Confidence,
			&sc.KeywordsPositive, &sc.KeywordsNegative, &sc.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan sentiment score: %w", err)
		}
		scores = append(scores, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sentiment scores: %w", err)
	}
	return scores, nil
}

// GetEvents returns events within [start, end] ordered ascending.
func (s *Store) GetEvents(ctx context.Context, start, end time.Time) ([]models.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, article_id, event_type, severity, keywords, ts, high_priority
		FROM events
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts ASC`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		var eventType string
		if err := rows.Scan(&ev.ID, &ev.ArticleID, &eventType, &ev.Severity,
			&ev.Keywords, &ev.Timestamp, &ev.HighPriority); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Type = models.EventType(eventType)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}
