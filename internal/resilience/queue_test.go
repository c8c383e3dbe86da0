package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDropOldestOnOverflow(t *testing.T) {
	q := NewQueue[int]("test", 3)

	assert.False(t, q.Push(1))
	assert.False(t, q.Push(2))
	assert.False(t, q.Push(3))
	assert.True(t, q.Push(4), "push into a full queue evicts the oldest")
	assert.True(t, q.Push(5))

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(2), q.Dropped())
	assert.Equal(t, []int{3, 4, 5}, q.Drain())
	assert.Zero(t, q.Len())
}

func TestQueueDrainDiscardsExpired(t *testing.T) {
	q := NewQueue[string]("test", 10)
	q.Push("old")
	q.Push("fresh")

	// Age the first entry past the eligibility window.
	q.mu.Lock()
	q.entries[0].enqueued = time.Now().Add(-MaxEntryAge - time.Minute)
	q.mu.Unlock()

	out := q.Drain()
	require.Len(t, out, 1)
	assert.Equal(t, "fresh", out[0])
}

func TestQueueDrainEmpty(t *testing.T) {
	q := NewQueue[int]("test", 4)
	assert.Empty(t, q.Drain())
}
