package models

import (
	"fmt"
	"time"
)

// Article is a news item as received from the ingestion feed.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Symbols     []string  `json:"symbols"`
}

// SentimentScore is the lexicon sentiment result for one article.
// Score is in [-1, +1] and Confidence in [0, 1].
type SentimentScore struct {
	ArticleID        string    `json:"article_id"`
	Score            float64   `json:"score"`
	Confidence       float64   `json:"confidence"`
	KeywordsPositive []string  `json:"keywords_positive"`
	KeywordsNegative []string  `json:"keywords_negative"`
	Timestamp        time.Time `json:"timestamp"`
}

// Validate enforces the sentiment ranges.
func (s *SentimentScore) Validate() error {
	if s.Score < -1 || s.Score > 1 {
		return fmt.Errorf("sentiment %s: score %.6f out of [-1,1]", s.ArticleID, s.Score)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("sentiment %s: confidence %.6f out of [0,1]", s.ArticleID, s.Confidence)
	}
	return nil
}

// EventType classifies a detected market event.
type EventType string

const (
	EventEarnings         EventType = "EARNINGS"
	EventMerger           EventType = "MERGER"
	EventAcquisition      EventType = "ACQUISITION"
	EventBankruptcy       EventType = "BANKRUPTCY"
	EventRegulatory       EventType = "REGULATORY"
	EventProductLaunch    EventType = "PRODUCT_LAUNCH"
	EventLeadershipChange EventType = "LEADERSHIP_CHANGE"
)

// EventTypes lists every recognized event type.
func EventTypes() []EventType {
	return []EventType{
		EventEarnings, EventMerger, EventAcquisition, EventBankruptcy,
		EventRegulatory, EventProductLaunch, EventLeadershipChange,
	}
}

// SymbolSentiment is the sentiment channel message shape: one article's
// score fanned out to a single symbol it mentions.
type SymbolSentiment struct {
	Symbol string         `json:"symbol"`
	Score  SentimentScore `json:"score"`
}

// SymbolEvent is the events channel message shape.
type SymbolEvent struct {
	Symbol string `json:"symbol"`
	Event  Event  `json:"event"`
}

// HighPriorityThreshold marks the severity at which an event is published
// with the high_priority flag set.
const HighPriorityThreshold = 0.7

// Event is a typed market event detected in an article. Severity is in [0, 1].
type Event struct {
	ID           string    `json:"id"`
	ArticleID    string    `json:"article_id"`
	Type         EventType `json:"event_type"`
	Severity     float64   `json:"severity"`
	Keywords     []string  `json:"keywords"`
	Timestamp    time.Time `json:"timestamp"`
	HighPriority bool      `json:"high_priority"`
}

// Validate enforces the severity range and the high-priority flag invariant.
func (e *Event) Validate() error {
	if e.Severity < 0 || e.Severity > 1 {
		return fmt.Errorf("event %s: severity %.6f out of [0,1]", e.ID, e.Severity)
	}
	if e.Severity > HighPriorityThreshold && !e.HighPriority {
		return fmt.Errorf("event %s: severity %.2f requires high_priority", e.ID, e.Severity)
	}
	return nil
}
