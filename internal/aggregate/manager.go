package aggregate

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quantpulse/quantpulse/internal/cms"
	"github.com/quantpulse/quantpulse/internal/config"
	"github.com/quantpulse/quantpulse/internal/resilience"
	"github.com/quantpulse/quantpulse/internal/risk"
)

// Manager fans updates out to per-symbol workers, creating them lazily on
// first sight of a symbol.
type Manager struct {
	cfg       Config
	engine    *cms.Engine
	sizer     *risk.Sizer
	publisher Publisher
	persister Persister
	registry  *resilience.Registry
	logger    zerolog.Logger

	mu      sync.RWMutex
	workers map[string]*Worker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates the aggregator manager. Start must be called before
// Dispatch.
func NewManager(cfg Config, engine *cms.Engine, sizer *risk.Sizer,
	publisher Publisher, persister Persister, registry *resilience.Registry) *Manager {
	return &Manager{
		cfg:       cfg.withDefaults(),
		engine:    engine,
		sizer:     sizer,
		publisher: publisher,
		persister: persister,
		registry:  registry,
		logger:    config.NewLogger("aggregator"),
		workers:   make(map[string]*Worker),
	}
}

// Start anchors the worker lifetime to ctx.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx, m.cancel = context.WithCancel(ctx)
}

// Dispatch routes an update to its symbol's worker. Updates without a
// symbol are dropped.
func (m *Manager) Dispatch(u Update) {
	if u.Symbol == "" {
		m.logger.Debug().Str("channel", u.Channel).Msg("Update without symbol dropped")
		return
	}

	m.mu.RLock()
	w := m.workers[u.Symbol]
	running := m.ctx != nil
	m.mu.RUnlock()

	if !running {
		m.logger.Warn().Str("symbol", u.Symbol).Msg("Dispatch before Start, update dropped")
		return
	}

	if w == nil {
		w = m.spawn(u.Symbol)
	}
	w.Offer(u)
}

func (m *Manager) spawn(symbol string) *Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workers[symbol]; ok {
		return w
	}
	w := NewWorker(symbol, m.cfg, m.engine, m.sizer, m.publisher, m.persister, m.registry)
	m.workers[symbol] = w
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		w.Run(m.ctx)
	}()
	m.logger.Info().Str("symbol", symbol).Msg("Symbol worker started")
	return w
}

// Worker returns the worker for a symbol, or nil when none exists.
func (m *Manager) Worker(symbol string) *Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workers[symbol]
}

// States reports every worker's lifecycle state, for the health endpoint.
func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.workers))
	for symbol, w := range m.workers {
		out[symbol] = w.State()
	}
	return out
}

// Close stops all workers and waits for them to drain their in-flight
// update.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}
