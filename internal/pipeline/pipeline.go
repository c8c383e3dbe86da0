// Package pipeline is the feature side of the system: it turns raw news
// articles and OHLC bars into the sentiment, event, indicator, and regime
// messages the aggregator consumes.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quantpulse/quantpulse/internal/bus"
	"github.com/quantpulse/quantpulse/internal/config"
	"github.com/quantpulse/quantpulse/internal/indicators"
	"github.com/quantpulse/quantpulse/internal/metrics"
	"github.com/quantpulse/quantpulse/internal/models"
	"github.com/quantpulse/quantpulse/internal/nlp"
	"github.com/quantpulse/quantpulse/internal/regime"
	"github.com/quantpulse/quantpulse/internal/resilience"
	"github.com/quantpulse/quantpulse/internal/store"
)

// BarWindow bounds the per-symbol bar history kept in memory. Large enough
// for the regime classifier's window plus the longest indicator warmup.
const BarWindow = 200

// Publisher is the bus surface the pipeline publishes through.
type Publisher interface {
	Publish(ctx context.Context, channel string, v any) error
}

// Pipeline consumes articles and bars, computes features, publishes them,
// and persists everything best-effort through the store write queue.
type Pipeline struct {
	extractor  *nlp.Extractor
	classifier *regime.Classifier
	publisher  Publisher
	writes     *store.WriteQueue
	registry   *resilience.Registry
	logger     zerolog.Logger

	mu        sync.Mutex
	bars      map[string][]models.Bar
	sentiment map[string]*nlp.Window
}

// New creates a pipeline. writes and registry may be nil in tests.
func New(publisher Publisher, writes *store.WriteQueue, registry *resilience.Registry) *Pipeline {
	return &Pipeline{
		extractor:  nlp.NewExtractor(),
		classifier: regime.NewClassifier(0, 0),
		publisher:  publisher,
		writes:     writes,
		registry:   registry,
		logger:     config.NewLogger("pipeline"),
		bars:       make(map[string][]models.Bar),
		sentiment:  make(map[string]*nlp.Window),
	}
}

// ProcessArticle runs the lexicon extractor over one article and fans the
// score and any detected events out to every symbol the article mentions.
func (p *Pipeline) ProcessArticle(ctx context.Context, article *models.Article) error {
	if article.ID == "" || len(article.Symbols) == 0 {
		return fmt.Errorf("article rejected: missing id or symbols")
	}
	metrics.ArticlesProcessed.Inc()

	score, events, err := p.extractor.Analyze(article)
	if err != nil {
		p.reportFailure("sentiment")
		return fmt.Errorf("analyze article %s: %w", article.ID, err)
	}

	p.persist(ctx, func(ctx context.Context, s *store.Store) error {
		if err := s.SaveArticle(ctx, article); err != nil {
			return err
		}
		if err := s.SaveSentimentScore(ctx, score); err != nil {
			return err
		}
		for i := range events {
			if err := s.SaveEvent(ctx, &events[i]); err != nil {
				return err
			}
		}
		return nil
	})

	for _, symbol := range article.Symbols {
		p.window(symbol).AddScore(*score)

		msg := models.SymbolSentiment{Symbol: symbol, Score: *score}
		if err := p.publisher.Publish(ctx, bus.ChannelSentiment, msg); err != nil {
			p.logger.Warn().Err(err).Str("symbol", symbol).Msg("Sentiment publish failed")
		}
		for i := range events {
			ev := models.SymbolEvent{Symbol: symbol, Event: events[i]}
			if err := p.publisher.Publish(ctx, bus.ChannelEvents, ev); err != nil {
				p.logger.Warn().Err(err).Str("symbol", symbol).Msg("Event publish failed")
			}
		}
	}

	p.reportHealthy("sentiment")
	if len(events) > 0 {
		p.reportHealthy("events")
	}

	p.logger.Debug().
		Str("article_id", article.ID).
		Float64("score", score.Score).
		Int("events", len(events)).
		Msg("Article processed")
	return nil
}

// ProcessBar appends one bar to the symbol's window and, once warm,
// publishes the indicator snapshot and regime classification derived from
// it. Out-of-order bars are dropped.
func (p *Pipeline) ProcessBar(ctx context.Context, bar *models.Bar) error {
	if err := bar.Validate(); err != nil {
		return fmt.Errorf("bar rejected: %w", err)
	}
	metrics.BarsProcessed.WithLabelValues(bar.Symbol).Inc()

	p.mu.Lock()
	window := p.bars[bar.Symbol]
	if n := len(window); n > 0 && !bar.Timestamp.After(window[n-1].Timestamp) {
		p.mu.Unlock()
		p.logger.Debug().
			Str("symbol", bar.Symbol).
			Time("timestamp", bar.Timestamp).
			Msg("Out-of-order bar dropped")
		return nil
	}
	window = append(window, *bar)
	if len(window) > BarWindow {
		window = window[len(window)-BarWindow:]
	}
	p.bars[bar.Symbol] = window
	sentiment := 0.0
	if w := p.sentiment[bar.Symbol]; w != nil {
		if idx, ok := w.Indices(); ok {
			sentiment = idx.Smoothed
		}
	}
	p.mu.Unlock()

	p.persist(ctx, func(ctx context.Context, s *store.Store) error {
		return s.SaveBar(ctx, bar)
	})

	if len(window) < indicators.MinBars {
		return nil
	}

	snap, err := indicators.Compute(bar.Symbol, window)
	if err != nil {
		p.reportFailure("indicators")
		return fmt.Errorf("indicators %s: %w", bar.Symbol, err)
	}
	if err := p.publisher.Publish(ctx, bus.ChannelIndicators, snap); err != nil {
		p.logger.Warn().Err(err).Str("symbol", bar.Symbol).Msg("Indicator publish failed")
	}
	p.persist(ctx, func(ctx context.Context, s *store.Store) error {
		return s.SaveIndicatorSnapshot(ctx, snap)
	})
	p.reportHealthy("indicators")

	rs, err := p.classifier.Classify(bar.Symbol, window, sentiment)
	if err != nil {
		p.reportFailure("regime")
		return fmt.Errorf("regime %s: %w", bar.Symbol, err)
	}
	metrics.RegimeTransitions.WithLabelValues(bar.Symbol, string(rs.Regime)).Inc()
	if err := p.publisher.Publish(ctx, bus.ChannelRegime, rs); err != nil {
		p.logger.Warn().Err(err).Str("symbol", bar.Symbol).Msg("Regime publish failed")
	}
	p.persist(ctx, func(ctx context.Context, s *store.Store) error {
		return s.SaveRegimeSnapshot(ctx, rs)
	})
	p.reportHealthy("regime")
	return nil
}

// window returns the symbol's sentiment window, creating it on first use.
// The classifier consumes its smoothed index, never a single raw score.
func (p *Pipeline) window(symbol string) *nlp.Window {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.sentiment[symbol]
	if w == nil {
		w = nlp.NewWindow(0, 0)
		p.sentiment[symbol] = w
	}
	return w
}

// BarCount reports the warmup progress for a symbol.
func (p *Pipeline) BarCount(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bars[symbol])
}

func (p *Pipeline) persist(ctx context.Context, op store.WriteOp) {
	if p.writes == nil {
		return
	}
	if err := p.writes.Write(ctx, op); err != nil {
		p.logger.Warn().Err(err).Msg("Store write deferred")
	}
}

func (p *Pipeline) reportHealthy(component string) {
	if p.registry != nil {
		p.registry.ReportHealthy(component, nil)
	}
}

func (p *Pipeline) reportFailure(component string) {
	if p.registry != nil {
		p.registry.ReportFailure(component)
	}
}
