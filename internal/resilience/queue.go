package resilience

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// MaxEntryAge is how long a queued entry stays eligible; older entries are
// discarded on drain.
const MaxEntryAge = 5 * time.Minute

// queueEntry pairs a payload with its enqueue time.
type queueEntry[T any] struct {
	value    T
	enqueued time.Time
}

// Queue is a bounded FIFO buffer with a drop-oldest overflow policy. It
// buffers work for a collaborator whose breaker is open and is drained when
// the breaker closes again.
type Queue[T any] struct {
	mu       sync.Mutex
	name     string
	capacity int
	entries  []queueEntry[T]
	dropped  uint64
}

var (
	queueDepth   *prometheus.GaugeVec
	queueDropped *prometheus.CounterVec
	queueOnce    sync.Once
)

func initQueueMetrics() {
	queueOnce.Do(func() {
		queueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantpulse_queue_depth",
				Help: "Current depth of bounded buffer queues",
			},
			[]string{"queue"},
		)
		queueDropped = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantpulse_queue_dropped_total",
				Help: "Entries dropped by the drop-oldest overflow policy",
			},
			[]string{"queue"},
		)
	})
}

// NewQueue creates a bounded queue with the given capacity.
func NewQueue[T any](name string, capacity int) *Queue[T] {
	initQueueMetrics()
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{
		name:     name,
		capacity: capacity,
	}
}

// Push appends a value, evicting the oldest entry when full. Returns true
// when an entry was dropped to make room.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if len(q.entries) >= q.capacity {
		q.entries = q.entries[1:]
		q.dropped++
		dropped = true
		queueDropped.WithLabelValues(q.name).Inc()
		log.Warn().
			Str("queue", q.name).
			Int("capacity", q.capacity).
			Msg("Queue full, dropped oldest entry")
	}
	q.entries = append(q.entries, queueEntry[T]{value: v, enqueued: time.Now()})
	queueDepth.WithLabelValues(q.name).Set(float64(len(q.entries)))
	return dropped
}

// Drain removes and returns every entry younger than MaxEntryAge, discarding
// expired ones.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-MaxEntryAge)
	out := make([]T, 0, len(q.entries))
	expired := 0
	for _, e := range q.entries {
		if e.enqueued.Before(cutoff) {
			expired++
			continue
		}
		out = append(out, e.value)
	}
	if expired > 0 {
		log.Info().
			Str("queue", q.name).
			Int("expired", expired).
			Msg("Discarded expired queue entries on drain")
	}
	q.entries = q.entries[:0]
	queueDepth.WithLabelValues(q.name).Set(0)
	return out
}

// Len returns the current queue depth.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Dropped returns the total number of entries evicted by overflow.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
