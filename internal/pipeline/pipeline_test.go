package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/quantpulse/internal/bus"
	"github.com/quantpulse/quantpulse/internal/indicators"
	"github.com/quantpulse/quantpulse/internal/models"
	"github.com/quantpulse/quantpulse/internal/nlp"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][]any
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{messages: make(map[string][]any)}
}

func (r *recordingPublisher) Publish(_ context.Context, channel string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[channel] = append(r.messages[channel], v)
	return nil
}

func (r *recordingPublisher) on(channel string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[channel]
}

func TestProcessArticleFansOutPerSymbol(t *testing.T) {
	pub := newRecordingPublisher()
	p := New(pub, nil, nil)
	ctx := context.Background()

	err := p.ProcessArticle(ctx, &models.Article{
		ID:          "a1",
		Title:       "Company beats earnings expectations with record profit",
		Body:        "Strong growth and record revenue beat analyst expectations.",
		PublishedAt: time.Now().UTC(),
		Symbols:     []string{"AAPL", "TSLA"},
	})
	require.NoError(t, err)

	sentiments := pub.on(bus.ChannelSentiment)
	require.Len(t, sentiments, 2)
	first, ok := sentiments[0].(models.SymbolSentiment)
	require.True(t, ok)
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Positive(t, first.Score.Score)

	events := pub.on(bus.ChannelEvents)
	require.NotEmpty(t, events, "earnings keywords should produce an event")
	ev, ok := events[0].(models.SymbolEvent)
	require.True(t, ok)
	assert.Equal(t, models.EventEarnings, ev.Event.Type)
}

func TestProcessArticleRejectsUnroutable(t *testing.T) {
	p := New(newRecordingPublisher(), nil, nil)
	err := p.ProcessArticle(context.Background(), &models.Article{ID: "a1"})
	assert.Error(t, err, "article without symbols cannot be routed")
}

func TestProcessBarPublishesFeaturesOnceWarm(t *testing.T) {
	pub := newRecordingPublisher()
	p := New(pub, nil, nil)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	for i := 0; i < indicators.MinBars-1; i++ {
		price := 100 + float64(i)*0.2
		require.NoError(t, p.ProcessBar(ctx, &models.Bar{
			Symbol: "AAPL", Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000,
		}))
	}
	assert.Empty(t, pub.on(bus.ChannelIndicators), "no features before warmup")

	require.NoError(t, p.ProcessBar(ctx, &models.Bar{
		Symbol: "AAPL", Timestamp: base.Add(time.Duration(indicators.MinBars) * time.Minute),
		Open: 110, High: 111, Low: 109, Close: 110, Volume: 1000,
	}))

	require.Len(t, pub.on(bus.ChannelIndicators), 1)
	snap, ok := pub.on(bus.ChannelIndicators)[0].(*models.IndicatorSnapshot)
	require.True(t, ok)
	assert.Equal(t, "AAPL", snap.Symbol)
	assert.InDelta(t, 110, snap.Close, 1e-9)

	require.Len(t, pub.on(bus.ChannelRegime), 1)
	rs, ok := pub.on(bus.ChannelRegime)[0].(*models.RegimeSnapshot)
	require.True(t, ok)
	assert.NoError(t, rs.Validate())
}

func TestProcessBarSeedsRegimeWithSmoothedSentiment(t *testing.T) {
	pub := newRecordingPublisher()
	p := New(pub, nil, nil)
	ctx := context.Background()

	// A bullish article followed by a bearish outlier. The classifier must
	// see the exponentially smoothed index, not the last raw score.
	require.NoError(t, p.ProcessArticle(ctx, &models.Article{
		ID:          "a1",
		Title:       "Company beats earnings expectations with record profit",
		Body:        "Strong growth and record revenue beat analyst expectations.",
		PublishedAt: time.Now().UTC(),
		Symbols:     []string{"AAPL"},
	}))
	require.NoError(t, p.ProcessArticle(ctx, &models.Article{
		ID:          "a2",
		Title:       "Company faces fraud investigation and bankruptcy fears",
		Body:        "Regulators allege fraud as losses plunge the company toward bankruptcy.",
		PublishedAt: time.Now().UTC(),
		Symbols:     []string{"AAPL"},
	}))

	published := pub.on(bus.ChannelSentiment)
	require.Len(t, published, 2)

	// Replay the published scores through a fresh window to derive the
	// smoothed index the classifier should receive.
	ref := nlp.NewWindow(0, 0)
	for _, msg := range published {
		ss, ok := msg.(models.SymbolSentiment)
		require.True(t, ok)
		ref.AddScore(ss.Score)
	}
	idx, ok := ref.Indices()
	require.True(t, ok)
	last, _ := published[1].(models.SymbolSentiment)
	require.NotEqual(t, last.Score.Score, idx.Smoothed, "articles must disagree for smoothing to matter")

	base := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	for i := 0; i < indicators.MinBars; i++ {
		price := 100 + float64(i)*0.2
		require.NoError(t, p.ProcessBar(ctx, &models.Bar{
			Symbol: "AAPL", Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000,
		}))
	}

	regimes := pub.on(bus.ChannelRegime)
	require.Len(t, regimes, 1)
	rs, ok := regimes[0].(*models.RegimeSnapshot)
	require.True(t, ok)
	assert.InDelta(t, idx.Smoothed, rs.Inputs.SentimentIndex, 1e-9,
		"one outlier article must not swing the regime input")
}

func TestProcessBarDropsOutOfOrder(t *testing.T) {
	pub := newRecordingPublisher()
	p := New(pub, nil, nil)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	require.NoError(t, p.ProcessBar(ctx, &models.Bar{
		Symbol: "AAPL", Timestamp: base, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1,
	}))
	require.NoError(t, p.ProcessBar(ctx, &models.Bar{
		Symbol: "AAPL", Timestamp: base.Add(-time.Minute), Open: 99, High: 100, Low: 98, Close: 99, Volume: 1,
	}))

	assert.Equal(t, 1, p.BarCount("AAPL"), "older bar must not enter the window")
}

func TestProcessBarRejectsInvalid(t *testing.T) {
	p := New(newRecordingPublisher(), nil, nil)
	err := p.ProcessBar(context.Background(), &models.Bar{
		Symbol: "AAPL", Timestamp: time.Now(), Open: 100, High: 90, Low: 99, Close: 100,
	})
	assert.Error(t, err, "high below low violates the OHLC invariant")
}
