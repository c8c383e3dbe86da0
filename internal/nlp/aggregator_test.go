package nlp

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/quantpulse/internal/models"
)

func scoreAt(score, confidence float64) models.SentimentScore {
	return models.SentimentScore{
		ArticleID:  "art",
		Score:      score,
		Confidence: confidence,
		Timestamp:  time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
	}
}

func TestIndicesEmptyWindow(t *testing.T) {
	w := NewWindow(20, 6)
	_, ok := w.Indices()
	assert.False(t, ok)
}

func TestIndicesRawAndWeighted(t *testing.T) {
	w := NewWindow(20, 6)
	w.AddScore(scoreAt(0.8, 1.0))
	w.AddScore(scoreAt(-0.4, 0.5))
	w.AddScore(scoreAt(0.2, 0.0))

	idx, ok := w.Indices()
	require.True(t, ok)

	assert.InDelta(t, (0.8-0.4+0.2)/3, idx.Raw, 1e-9)
	// Weighted mean ignores the zero-confidence entry.
	assert.InDelta(t, (0.8*1.0-0.4*0.5)/1.5, idx.Weighted, 1e-9)
}

func TestSmoothedEWMA(t *testing.T) {
	w := NewWindow(20, 6)

	w.AddScore(scoreAt(0.5, 1))
	idx, ok := w.Indices()
	require.True(t, ok)
	assert.InDelta(t, 0.5, idx.Smoothed, 1e-9, "EWMA seeds from the first value")

	w.AddScore(scoreAt(-0.5, 1))
	idx, _ = w.Indices()
	assert.InDelta(t, 0.3*(-0.5)+0.7*0.5, idx.Smoothed, 1e-9)
}

func TestWindowEviction(t *testing.T) {
	w := NewWindow(3, 6)
	for i := 0; i < 5; i++ {
		w.AddScore(scoreAt(float64(i), 1))
	}
	assert.Equal(t, 3, w.Len())

	idx, ok := w.Indices()
	require.True(t, ok)
	assert.InDelta(t, (2.0+3.0+4.0)/3, idx.Raw, 1e-9, "only the newest entries survive")
}

func TestShockEmptyWindow(t *testing.T) {
	w := NewWindow(20, 6)
	s := w.Shock(time.Now())
	assert.Zero(t, s.Total)
	assert.Zero(t, s.Base)
}

func TestShockFactor(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	w := NewWindow(20, 6)

	// Two events, severities 0.8 and 0.6, both 6h old so recency = e^-1.
	for i, severity := range []float64{0.8, 0.6} {
		w.AddEvent(models.Event{
			ID:           fmt.Sprintf("ev-%d", i),
			ArticleID:    "art",
			Type:         models.EventRegulatory,
			Severity:     severity,
			Timestamp:    now.Add(-6 * time.Hour),
			HighPriority: severity >= models.HighPriorityThreshold,
		})
	}

	s := w.Shock(now)
	assert.InDelta(t, 0.7, s.Base, 1e-9)
	assert.InDelta(t, 0.2, s.ClusteringBonus, 1e-9)
	assert.InDelta(t, 0.3678794411714423, s.RecencyFactor, 1e-9)
	assert.InDelta(t, (0.7+0.2)*0.3678794411714423, s.Total, 1e-9)
	assert.GreaterOrEqual(t, s.Total, 0.0)
	assert.LessOrEqual(t, s.Total, 1.0)
}

func TestShockClusteringBonusCap(t *testing.T) {
	now := time.Now().UTC()
	w := NewWindow(20, 6)
	for i := 0; i < 15; i++ {
		w.AddEvent(models.Event{
			ID:        fmt.Sprintf("ev-%d", i),
			Type:      models.EventEarnings,
			Severity:  0.5,
			Timestamp: now,
		})
	}
	s := w.Shock(now)
	assert.InDelta(t, 0.3, s.ClusteringBonus, 1e-9)
	assert.LessOrEqual(t, s.Total, 1.0)
}

func TestDominantType(t *testing.T) {
	now := time.Now().UTC()
	w := NewWindow(20, 6)

	_, ok := w.DominantType()
	assert.False(t, ok)

	// 3 of 5 regulatory events exceeds the 0.4 dominance fraction.
	types := []models.EventType{
		models.EventRegulatory, models.EventRegulatory, models.EventRegulatory,
		models.EventEarnings, models.EventMerger,
	}
	for i, eventType := range types {
		w.AddEvent(models.Event{
			ID:        fmt.Sprintf("ev-%d", i),
			Type:      eventType,
			Severity:  0.5,
			Timestamp: now,
		})
	}

	dom, ok := w.DominantType()
	require.True(t, ok)
	assert.Equal(t, models.EventRegulatory, dom)

	s := w.Shock(now)
	assert.Equal(t, models.EventRegulatory, s.DominantType)
}
