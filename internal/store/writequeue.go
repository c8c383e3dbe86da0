package store

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/quantpulse/quantpulse/internal/resilience"
)

// DefaultWriteQueueCapacity bounds the deferred-write buffer.
const DefaultWriteQueueCapacity = 10000

// WriteOp is one deferred store write, replayed after breaker recovery.
type WriteOp func(ctx context.Context, s *Store) error

// WriteQueue buffers failed store writes while the store breaker is open
// and replays them when it closes. Persistence stays best-effort: callers
// enqueue and move on.
type WriteQueue struct {
	store    *Store
	breakers *resilience.BreakerManager
	queue    *resilience.Queue[WriteOp]
}

// NewWriteQueue creates the deferred-write buffer and hooks breaker
// recovery.
func NewWriteQueue(store *Store, breakers *resilience.BreakerManager, capacity int) *WriteQueue {
	if capacity <= 0 {
		capacity = DefaultWriteQueueCapacity
	}
	wq := &WriteQueue{
		store:    store,
		breakers: breakers,
		queue:    resilience.NewQueue[WriteOp]("store.writes", capacity),
	}
	if breakers != nil {
		breakers.OnStateChange(func(name string, to gobreaker.State) {
			if name == BreakerName && to == gobreaker.StateClosed {
				go wq.Replay(context.Background())
			}
		})
	}
	return wq
}

// Write attempts the operation through the store breaker, enqueueing it on
// failure. The error is returned for logging but callers need not block on
// it.
func (wq *WriteQueue) Write(ctx context.Context, op WriteOp) error {
	err := wq.breakers.Execute(ctx, BreakerName, func(ctx context.Context) error {
		return op(ctx, wq.store)
	})
	if err != nil {
		wq.queue.Push(op)
		log.Warn().Err(err).Int("queued", wq.queue.Len()).Msg("Store write deferred")
		return err
	}
	return nil
}

// Replay drains the queue through the (now closed) breaker. Writes that
// fail again are re-enqueued and the replay stops.
func (wq *WriteQueue) Replay(ctx context.Context) {
	ops := wq.queue.Drain()
	if len(ops) == 0 {
		return
	}

	replayed := 0
	for i, op := range ops {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := wq.breakers.Execute(ctx, BreakerName, func(ctx context.Context) error {
			return op(ctx, wq.store)
		})
		cancel()
		if err != nil {
			for _, remaining := range ops[i:] {
				wq.queue.Push(remaining)
			}
			log.Warn().Err(err).Int("requeued", len(ops)-i).Msg("Write replay interrupted")
			return
		}
		replayed++
	}
	log.Info().Int("replayed", replayed).Msg("Deferred store writes replayed")
}

// Depth returns the number of deferred writes.
func (wq *WriteQueue) Depth() int {
	return wq.queue.Len()
}
