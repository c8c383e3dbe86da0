package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry(time.Hour)

	avail, _ := r.Check("sentiment")
	assert.Equal(t, Unavailable, avail, "never-reported component")
	assert.False(t, r.Known("sentiment"))

	r.ReportHealthy("sentiment", nil)
	avail, _ = r.Check("sentiment")
	assert.Equal(t, Available, avail)
	assert.True(t, r.Known("sentiment"))

	r.ReportFailure("sentiment")
	avail, _ = r.Check("sentiment")
	assert.Equal(t, Stale, avail, "recent last-good plus failures is stale, not gone")

	// Age the last good interaction past the staleness window.
	r.mu.Lock()
	r.components["sentiment"].LastGood = time.Now().Add(-2 * time.Hour)
	r.mu.Unlock()

	avail, _ = r.Check("sentiment")
	assert.Equal(t, Unavailable, avail)

	r.ReportHealthy("sentiment", nil)
	avail, _ = r.Check("sentiment")
	assert.Equal(t, Available, avail, "recovery resets the failure count")
}

func TestRegistryFallbackPayload(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.ReportHealthy("regime", "BULL")
	r.ReportFailure("regime")

	avail, fallback := r.Check("regime")
	assert.Equal(t, Stale, avail)
	assert.Equal(t, "BULL", fallback, "stale components still serve the last-known value")
}

func TestRegistryFailureBeforeAnySuccess(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.ReportFailure("events")

	assert.True(t, r.Known("events"))
	avail, _ := r.Check("events")
	assert.Equal(t, Unavailable, avail, "no last-good value to fall back on")
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.ReportHealthy("sentiment", nil)
	r.ReportFailure("regime")

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, Available, snap["sentiment"])
	assert.Equal(t, Unavailable, snap["regime"])
}
