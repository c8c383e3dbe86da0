package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	m := NewBreakerManager(map[string]BreakerSettings{
		"broker": {FailureThreshold: 3, RecoveryTimeout: time.Hour},
	})

	boom := errors.New("exchange down")
	calls := 0
	fail := func(ctx context.Context) error {
		calls++
		return boom
	}

	for i := 0; i < 3; i++ {
		err := m.Execute(context.Background(), "broker", fail)
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, m.State("broker"))

	// An open breaker sheds load without invoking the operation.
	err := m.Execute(context.Background(), "broker", fail)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, KindTransient, KindOf(err), "shed requests classify as transient")
}

func TestBreakerRecovers(t *testing.T) {
	m := NewBreakerManager(map[string]BreakerSettings{
		"store": {FailureThreshold: 1, RecoveryTimeout: 30 * time.Millisecond},
	})

	var mu sync.Mutex
	var transitions []gobreaker.State
	m.OnStateChange(func(name string, to gobreaker.State) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	})

	err := m.Execute(context.Background(), "store", func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, gobreaker.StateOpen, m.State("store"))

	time.Sleep(50 * time.Millisecond)

	err = m.Execute(context.Background(), "store", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, m.State("store"))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, transitions, gobreaker.StateOpen)
	assert.Contains(t, transitions, gobreaker.StateClosed)
}

func TestBreakerIsolation(t *testing.T) {
	m := NewBreakerManager(nil)

	for i := 0; i < DefaultFailureThreshold; i++ {
		_ = m.Execute(context.Background(), "bus", func(ctx context.Context) error {
			return errors.New("publish failed")
		})
	}
	assert.Equal(t, gobreaker.StateOpen, m.State("bus"))
	assert.Equal(t, gobreaker.StateClosed, m.State("store"), "one collaborator's failures never trip another")

	states := m.States()
	assert.Equal(t, "open", states["bus"])
	assert.Equal(t, "closed", states["store"])
}
