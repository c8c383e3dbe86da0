package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantpulse/quantpulse/internal/bus"
	"github.com/quantpulse/quantpulse/internal/cms"
	"github.com/quantpulse/quantpulse/internal/config"
	"github.com/quantpulse/quantpulse/internal/indicators"
	"github.com/quantpulse/quantpulse/internal/metrics"
	"github.com/quantpulse/quantpulse/internal/models"
	"github.com/quantpulse/quantpulse/internal/nlp"
	"github.com/quantpulse/quantpulse/internal/resilience"
	"github.com/quantpulse/quantpulse/internal/risk"
)

// Update is one fan-in message routed to a symbol worker. Exactly one
// payload pointer is set, matching the channel.
type Update struct {
	Channel   string
	Symbol    string
	Timestamp time.Time

	Sentiment  *models.SentimentScore
	Event      *models.Event
	Indicators *models.IndicatorSnapshot
	Regime     *models.RegimeSnapshot
	Bar        *models.Bar
}

// Publisher is the bus surface the worker publishes signals through.
type Publisher interface {
	Publish(ctx context.Context, channel string, v any) error
}

// Persister archives emitted signals and scores. Persistence is
// best-effort: failures are logged and retried by the store write queue,
// never blocking publication.
type Persister interface {
	SaveSignal(ctx context.Context, sig *models.TradingSignal) error
	SaveCMSResult(ctx context.Context, result *models.CMSResult) error
}

// Config tunes one symbol worker.
type Config struct {
	Epsilon         float64
	MaxSlotAge      time.Duration
	SentimentWindow int
	EventDecayHours float64
	Capital         float64
	InboxCapacity   int
}

func (c Config) withDefaults() Config {
	if c.Epsilon <= 0 {
		c.Epsilon = DefaultEmissionEpsilon
	}
	if c.MaxSlotAge <= 0 {
		c.MaxSlotAge = DefaultMaxSlotAge
	}
	if c.InboxCapacity <= 0 {
		c.InboxCapacity = 256
	}
	if c.Capital <= 0 {
		c.Capital = 100000
	}
	return c
}

// Worker owns one symbol's latest-feature view. All slot mutation happens
// on the worker goroutine; the mutex exists for dashboard snapshot reads.
type Worker struct {
	symbol    string
	cfg       Config
	engine    *cms.Engine
	sizer     *risk.Sizer
	publisher Publisher
	persister Persister
	registry  *resilience.Registry
	window    *nlp.Window
	logger    zerolog.Logger

	inbox chan Update

	mu    sync.Mutex
	st    symbolState
	state State
}

// NewWorker creates a symbol worker. Run must be called to start consuming.
func NewWorker(symbol string, cfg Config, engine *cms.Engine, sizer *risk.Sizer,
	publisher Publisher, persister Persister, registry *resilience.Registry) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		symbol:    symbol,
		cfg:       cfg,
		engine:    engine,
		sizer:     sizer,
		publisher: publisher,
		persister: persister,
		registry:  registry,
		window:    nlp.NewWindow(cfg.SentimentWindow, cfg.EventDecayHours),
		logger:    config.NewSymbolLogger("aggregator", symbol),
		inbox:     make(chan Update, cfg.InboxCapacity),
		state:     StateBootstrapping,
	}
}

// Offer enqueues an update without blocking. When the inbox is full the
// update is dropped and logged as a degradation event.
func (w *Worker) Offer(u Update) bool {
	select {
	case w.inbox <- u:
		return true
	default:
		w.logger.Warn().
			Str("channel", u.Channel).
			Int("inbox_capacity", w.cfg.InboxCapacity).
			Msg("Inbox full, update dropped")
		return false
	}
}

// Run consumes the inbox until ctx is cancelled, finishing the in-flight
// update before exiting.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-w.inbox:
			w.handle(ctx, u, time.Now())
		}
	}
}

// handle applies one update to the slot view and re-evaluates emission.
func (w *Worker) handle(ctx context.Context, u Update, now time.Time) {
	w.mu.Lock()

	accepted := true
	switch u.Channel {
	case bus.ChannelSentiment:
		if u.Sentiment == nil {
			accepted = false
			break
		}
		if accepted = w.st.sentiment.acceptable(u.Timestamp); accepted {
			w.window.AddScore(*u.Sentiment)
			idx, _ := w.window.Indices()
			w.st.sentiment.accept(idx, u.Timestamp, now)
		}
	case bus.ChannelEvents:
		if u.Event == nil {
			accepted = false
			break
		}
		if accepted = w.st.shock.acceptable(u.Timestamp); accepted {
			w.window.AddEvent(*u.Event)
			w.st.pushEvent(*u.Event)
			w.st.shock.accept(w.window.Shock(now), u.Timestamp, now)
		}
	case bus.ChannelIndicators:
		if u.Indicators == nil {
			accepted = false
			break
		}
		view := technicalView{snapshot: *u.Indicators, signals: indicators.Signals(u.Indicators)}
		accepted = w.st.technical.accept(view, u.Timestamp, now)
		if accepted && u.Indicators.Close > 0 {
			w.st.lastPrice = u.Indicators.Close
		}
	case bus.ChannelRegime:
		if u.Regime == nil {
			accepted = false
			break
		}
		accepted = w.st.regime.accept(*u.Regime, u.Timestamp, now)
	case bus.ChannelPrices:
		if u.Bar != nil && u.Bar.Close > 0 {
			w.st.lastPrice = u.Bar.Close
		}
		w.mu.Unlock()
		return
	default:
		accepted = false
	}

	if !accepted {
		w.mu.Unlock()
		w.logger.Debug().
			Str("channel", u.Channel).
			Time("timestamp", u.Timestamp).
			Msg("Out-of-order or malformed update dropped")
		return
	}

	signal, result := w.evaluateLocked(now)
	w.mu.Unlock()

	if signal != nil {
		w.emit(ctx, signal, result)
	}
}

// evaluateLocked recomputes state and decides emission. Caller holds the
// lock. Returns a signal only when the emission rule fires.
func (w *Worker) evaluateLocked(now time.Time) (*models.TradingSignal, *models.CMSResult) {
	maxAge := w.cfg.MaxSlotAge

	type slotView struct {
		name    string
		set     bool
		isFresh bool
	}
	views := []slotView{
		{"sentiment", w.st.sentiment.set, w.st.sentiment.fresh(now, maxAge)},
		{"events", w.st.shock.set, w.st.shock.fresh(now, maxAge)},
		{"indicators", w.st.technical.set, w.st.technical.fresh(now, maxAge)},
		{"regime", w.st.regime.set, w.st.regime.fresh(now, maxAge)},
	}

	freshCount, staleName, missing := 0, "", 0
	for _, v := range views {
		excluded := w.excluded(v.name)
		switch {
		case excluded:
		case v.isFresh:
			freshCount++
		case v.set:
			staleName = v.name
		default:
			missing++
		}
	}

	if freshCount < 2 {
		w.state = StateSuppressed
		return nil, nil
	}
	if staleName != "" {
		w.state = StateDegraded
		w.logger.Warn().
			Str("slot", staleName).
			Dur("max_age", maxAge).
			Msg("Stale input, emission skipped")
		return nil, nil
	}
	if missing > 0 {
		w.state = StateBootstrapping
		return nil, nil
	}
	if freshCount == len(views) {
		w.state = StateReady
	} else {
		w.state = StateDegraded
	}

	inputs := cms.Inputs{}
	if w.st.sentiment.fresh(now, maxAge) && !w.excluded("sentiment") {
		inputs.SentimentIndex = w.st.sentiment.value.Smoothed
		inputs.SentimentAvailable = true
	}
	if w.st.shock.fresh(now, maxAge) && !w.excluded("events") {
		inputs.EventShock = w.st.shock.value.Total
		inputs.EventAvailable = true
	}
	if w.st.regime.fresh(now, maxAge) && !w.excluded("regime") {
		inputs.VolatilityIndex = w.st.regime.value.Inputs.VolatilityIndex
		inputs.TrendStrength = w.st.regime.value.Inputs.TrendStrength
		inputs.VolatilityAvailable = true
		inputs.TrendAvailable = true
	}

	result, err := w.engine.Score(w.symbol, inputs, now)
	if err != nil {
		w.state = StateSuppressed
		w.logger.Debug().Err(err).Msg("Composite score suppressed")
		return nil, nil
	}

	if w.st.emitted &&
		result.Class == w.st.lastEmittedClass &&
		absFloat(result.Score-w.st.lastEmittedCMS) < w.cfg.Epsilon {
		return nil, nil
	}

	signal := w.buildSignalLocked(result, now)
	w.st.lastEmittedCMS = result.Score
	w.st.lastEmittedClass = result.Class
	w.st.lastEmissionTime = now
	w.st.emitted = true
	return signal, result
}

// buildSignalLocked assembles the published signal from the current view.
func (w *Worker) buildSignalLocked(result *models.CMSResult, now time.Time) *models.TradingSignal {
	price := w.st.lastPrice
	if w.st.technical.set && w.st.technical.value.snapshot.Close > 0 {
		price = w.st.technical.value.snapshot.Close
	}

	signal := &models.TradingSignal{
		ID:          uuid.New(),
		Symbol:      w.symbol,
		Class:       result.Class,
		Price:       price,
		CMSScore:    result.Score,
		Confidence:  result.Confidence,
		Explanation: result.Explanation,
		Timestamp:   now,
		Reasons:     w.reasonsLocked(result),
	}

	if signal.Class != models.SignalHold && w.sizer != nil && w.st.technical.set {
		atr := w.st.technical.value.snapshot.ATR
		side := models.OrderSideBuy
		if signal.Class == models.SignalSell {
			side = models.OrderSideSell
		}
		if ps, err := w.sizer.Size(w.symbol, side, price, atr, w.cfg.Capital); err == nil {
			signal.PositionSize = *ps
		} else {
			w.logger.Warn().Err(err).Msg("Position sizing failed, signal carries no size")
			signal.Reasons = append(signal.Reasons, "sizing_unavailable")
		}
	}
	return signal
}

// reasonsLocked lists every rule that fired, in a stable order.
func (w *Worker) reasonsLocked(result *models.CMSResult) []string {
	var reasons []string
	if w.st.technical.set {
		sig := w.st.technical.value.signals
		if sig.RSI != models.TechnicalNeutral {
			reasons = append(reasons, fmt.Sprintf("rsi:%s", sig.RSI))
		}
		if sig.MACD != models.TechnicalNeutral {
			reasons = append(reasons, fmt.Sprintf("macd:%s", sig.MACD))
		}
		if sig.Bollinger != models.TechnicalNeutral {
			reasons = append(reasons, fmt.Sprintf("bollinger:%s", sig.Bollinger))
		}
	}
	if w.st.regime.set {
		reasons = append(reasons, fmt.Sprintf("regime:%s", w.st.regime.value.Regime))
	}
	if w.st.shock.set && w.st.shock.value.DominantType != "" {
		reasons = append(reasons, fmt.Sprintf("dominant_event:%s", w.st.shock.value.DominantType))
	}
	if !w.st.emitted {
		reasons = append(reasons, "emission:first")
	} else if result.Class != w.st.lastEmittedClass {
		reasons = append(reasons, "emission:class_changed")
	} else {
		reasons = append(reasons, fmt.Sprintf("emission:cms_moved_%.2f", absFloat(result.Score-w.st.lastEmittedCMS)))
	}
	return reasons
}

// emit publishes first, then persists best-effort. A store failure must
// never delay dashboard delivery.
func (w *Worker) emit(ctx context.Context, signal *models.TradingSignal, result *models.CMSResult) {
	if err := w.publisher.Publish(ctx, bus.ChannelSignals, signal); err != nil {
		w.logger.Warn().Err(err).Msg("Signal publish failed")
	}

	metrics.SignalsEmitted.WithLabelValues(signal.Symbol, string(signal.Class)).Inc()
	metrics.CMSScore.WithLabelValues(signal.Symbol).Set(signal.CMSScore)

	w.logger.Info().
		Str("signal_id", signal.ID.String()).
		Str("class", string(signal.Class)).
		Float64("cms", signal.CMSScore).
		Float64("confidence", signal.Confidence).
		Msg("Signal emitted")

	if w.persister == nil {
		return
	}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.persister.SaveCMSResult(persistCtx, result); err != nil {
		w.logger.Warn().Err(err).Msg("CMS persistence deferred")
	}
	if err := w.persister.SaveSignal(persistCtx, signal); err != nil {
		w.logger.Warn().Err(err).Msg("Signal persistence deferred")
	}
}

// excluded reports whether the degradation registry marks a component
// explicitly unavailable. A component the registry has never seen is not
// excluded; exclusion requires a reported outage.
func (w *Worker) excluded(component string) bool {
	if w.registry == nil || !w.registry.Known(component) {
		return false
	}
	state, _ := w.registry.Check(component)
	return state == resilience.Unavailable
}

// Snapshot returns the worker state for dashboard queries.
func (w *Worker) Snapshot() (State, models.SignalClass, float64, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.st.lastEmittedClass, w.st.lastEmittedCMS, w.st.lastEmissionTime
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
