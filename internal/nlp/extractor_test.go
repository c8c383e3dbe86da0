package nlp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/quantpulse/internal/models"
)

func testArticle(title, body string) *models.Article {
	return &models.Article{
		ID:          "art-1",
		Title:       title,
		Body:        body,
		Source:      "newswire",
		PublishedAt: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
		Symbols:     []string{"ACME"},
	}
}

func TestAnalyzeFraudBankruptcyArticle(t *testing.T) {
	e := NewExtractor()
	article := testArticle(
		"Company announces major fraud investigation and bankruptcy filing", "")

	score, events, err := e.Analyze(article)
	require.NoError(t, err)

	assert.Less(t, score.Score, 0.0)
	assert.NotEmpty(t, score.KeywordsNegative)

	byType := make(map[models.EventType]models.Event)
	for _, ev := range events {
		byType[ev.Type] = ev
	}
	require.Contains(t, byType, models.EventRegulatory)
	require.Contains(t, byType, models.EventBankruptcy)

	for _, eventType := range []models.EventType{models.EventRegulatory, models.EventBankruptcy} {
		ev := byType[eventType]
		assert.GreaterOrEqual(t, ev.Severity, 0.7, "%s severity", eventType)
		assert.True(t, ev.HighPriority, "%s high priority", eventType)
		assert.Equal(t, article.ID, ev.ArticleID)
	}
}

func TestAnalyzeSentimentScoring(t *testing.T) {
	e := NewExtractor()

	tests := []struct {
		name           string
		text           string
		wantSign       int // -1, 0, +1
		wantConfidence float64
	}{
		{
			name:           "positive text",
			text:           "Record profits and strong growth drive a rally",
			wantSign:       1,
			wantConfidence: 1.0, // 5 hits saturate confidence at K=5
		},
		{
			name:           "negative text",
			text:           "Shares plunge after earnings miss",
			wantSign:       -1,
			wantConfidence: 0.4, // 2 hits
		},
		{
			name:           "no lexicon hits",
			text:           "The committee met on Tuesday",
			wantSign:       0,
			wantConfidence: 0,
		},
		{
			name:     "negation flips polarity",
			text:     "The company did not report growth this quarter",
			wantSign: -1,
		},
		{
			name:     "negation outside window has no effect",
			text:     "not expected by many skeptical industry analysts, growth returned",
			wantSign: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, _, err := e.Analyze(testArticle(tt.text, ""))
			require.NoError(t, err)

			switch tt.wantSign {
			case 1:
				assert.Greater(t, score.Score, 0.0)
			case -1:
				assert.Less(t, score.Score, 0.0)
			default:
				assert.Zero(t, score.Score)
			}
			if tt.wantConfidence > 0 || tt.wantSign == 0 {
				assert.InDelta(t, tt.wantConfidence, score.Confidence, 1e-9)
			}
			assert.GreaterOrEqual(t, score.Score, -1.0)
			assert.LessOrEqual(t, score.Score, 1.0)
		})
	}
}

func TestDetectEventsOnePerMatchedType(t *testing.T) {
	e := NewExtractor()
	article := testArticle(
		"Quarterly earnings beat guidance as the merger closes and the CEO resigns", "")

	_, events, err := e.Analyze(article)
	require.NoError(t, err)

	types := make(map[models.EventType]int)
	for _, ev := range events {
		types[ev.Type]++
	}
	assert.Equal(t, 1, types[models.EventEarnings])
	assert.Equal(t, 1, types[models.EventMerger])
	assert.Equal(t, 1, types[models.EventLeadershipChange])
	for eventType, count := range types {
		assert.Equal(t, 1, count, "duplicate events for %s", eventType)
	}
}

func TestSeverityModifiers(t *testing.T) {
	e := NewExtractor()

	_, plain, err := e.Analyze(testArticle("Earnings results released", ""))
	require.NoError(t, err)
	require.NotEmpty(t, plain)

	_, events, err := e.Analyze(testArticle("Massive unprecedented severe earnings results released", ""))
	require.NoError(t, err)
	require.NotEmpty(t, events)

	// Three intensifiers hit the +0.30 cap.
	assert.InDelta(t, plain[0].Severity+0.30, events[0].Severity, 1e-9)

	_, damped, err := e.Analyze(testArticle("Minor slight possible earnings results released", ""))
	require.NoError(t, err)
	require.NotEmpty(t, damped)
	assert.InDelta(t, plain[0].Severity-0.20, damped[0].Severity, 1e-9)
}

func TestSeverityClamped(t *testing.T) {
	e := NewExtractor()
	article := testArticle(
		"Major massive bankruptcy insolvency liquidation restructuring bankrupt insolvent filing", "")

	_, events, err := e.Analyze(article)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.LessOrEqual(t, ev.Severity, 1.0)
		assert.GreaterOrEqual(t, ev.Severity, 0.0)
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Q3 Earnings: Up 12%, beating-estimates!")
	assert.Equal(t, []string{"q3", "earnings", "up", "12", "beating", "estimates"}, tokens)
}
