package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Circuit breaker defaults, applied when a collaborator has no explicit
// configuration.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 30 * time.Second
	DefaultHalfOpenMaxReqs  = 1
)

// BreakerSettings configures one collaborator's circuit breaker.
type BreakerSettings struct {
	FailureThreshold uint32
	RecoveryTimeout  time.Duration
}

// BreakerManager holds one circuit breaker per external collaborator and the
// Prometheus gauges tracking their state.
type BreakerManager struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	settings map[string]BreakerSettings
	onChange []func(name string, to gobreaker.State)
	metrics  *breakerMetrics
}

type breakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
}

var (
	globalBreakerMetrics *breakerMetrics
	breakerMetricsOnce   sync.Once
)

func initBreakerMetrics() *breakerMetrics {
	breakerMetricsOnce.Do(func() {
		globalBreakerMetrics = &breakerMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "quantpulse_circuit_breaker_state",
					Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"collaborator"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "quantpulse_circuit_breaker_requests_total",
					Help: "Total requests through circuit breakers",
				},
				[]string{"collaborator", "result"},
			),
		}
	})
	return globalBreakerMetrics
}

// NewBreakerManager creates a manager with the given per-collaborator
// settings. Unknown collaborators get defaults on first use.
func NewBreakerManager(settings map[string]BreakerSettings) *BreakerManager {
	m := &BreakerManager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		settings: make(map[string]BreakerSettings),
		metrics:  initBreakerMetrics(),
	}
	for name, s := range settings {
		m.settings[name] = s
	}
	return m
}

// OnStateChange registers a callback fired on every breaker transition.
// Used by queues to drain when their collaborator returns to Closed.
func (m *BreakerManager) OnStateChange(fn func(name string, to gobreaker.State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Get returns the breaker for a collaborator, creating it on first use.
func (m *BreakerManager) Get(name string) *gobreaker.CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok = m.breakers[name]; ok {
		return cb
	}

	s, ok := m.settings[name]
	if !ok {
		s = BreakerSettings{
			FailureThreshold: DefaultFailureThreshold,
			RecoveryTimeout:  DefaultRecoveryTimeout,
		}
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.RecoveryTimeout <= 0 {
		s.RecoveryTimeout = DefaultRecoveryTimeout
	}

	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: DefaultHalfOpenMaxReqs,
		Timeout:     s.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.recordState(name, to)
			log.Warn().
				Str("collaborator", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
			m.mu.RLock()
			callbacks := make([]func(string, gobreaker.State), len(m.onChange))
			copy(callbacks, m.onChange)
			m.mu.RUnlock()
			for _, fn := range callbacks {
				fn(name, to)
			}
		},
	})
	m.breakers[name] = cb
	m.recordState(name, cb.State())
	return cb
}

// Execute runs fn through the named collaborator's breaker.
func (m *BreakerManager) Execute(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	cb := m.Get(name)
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.metrics.requests.WithLabelValues(name, result).Inc()
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return Classify(KindTransient, name, fmt.Errorf("circuit open: %w", err))
	}
	return err
}

// State returns the named breaker's current state.
func (m *BreakerManager) State(name string) gobreaker.State {
	return m.Get(name).State()
}

// States returns every known breaker state, for health reporting.
func (m *BreakerManager) States() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.breakers))
	for name, cb := range m.breakers {
		out[name] = cb.State().String()
	}
	return out
}

func (m *BreakerManager) recordState(name string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateClosed:
		v = 0
	case gobreaker.StateOpen:
		v = 1
	case gobreaker.StateHalfOpen:
		v = 2
	}
	m.metrics.state.WithLabelValues(name).Set(v)
}
