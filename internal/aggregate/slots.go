package aggregate

import (
	"time"

	"github.com/quantpulse/quantpulse/internal/models"
	"github.com/quantpulse/quantpulse/internal/nlp"
)

// State is the per-symbol aggregator lifecycle, driven only by slot updates
// and the age clock.
type State string

const (
	// StateBootstrapping: one or more slots have never been filled.
	StateBootstrapping State = "bootstrapping"
	// StateReady: all four slots fresh.
	StateReady State = "ready"
	// StateDegraded: a slot is missing or stale but at least two are fresh.
	StateDegraded State = "degraded"
	// StateSuppressed: fewer than two fresh slots; no signals are emitted.
	StateSuppressed State = "suppressed"
)

// DefaultMaxSlotAge disqualifies a slot from emission once its value is
// older than this.
const DefaultMaxSlotAge = 5 * time.Minute

// DefaultEmissionEpsilon is the minimum CMS move that triggers re-emission
// without a class change.
const DefaultEmissionEpsilon = 5.0

// slot is one latest-value cell with its update instant and the monotonic
// message-timestamp watermark for its channel.
type slot[T any] struct {
	value     T
	updatedAt time.Time // wall-clock receipt, drives staleness
	watermark time.Time // message timestamp, drives ordering
	set       bool
}

// accept updates the slot if ts does not regress the watermark. Returns
// false for out-of-order messages, which are dropped.
func (s *slot[T]) accept(v T, ts, now time.Time) bool {
	if s.set && ts.Before(s.watermark) {
		return false
	}
	s.value = v
	s.watermark = ts
	s.updatedAt = now
	s.set = true
	return true
}

// acceptable reports whether a message with the given timestamp would pass
// the watermark, without mutating the slot. Used when the update has side
// effects that must only happen for in-order messages.
func (s *slot[T]) acceptable(ts time.Time) bool {
	return !s.set || !ts.Before(s.watermark)
}

// fresh reports whether the slot holds a usable value at the given instant.
func (s *slot[T]) fresh(now time.Time, maxAge time.Duration) bool {
	return s.set && now.Sub(s.updatedAt) <= maxAge
}

// symbolState is the full per-symbol latest-feature view. It is owned by a
// single worker; the mutex in Worker guards dashboard reads.
type symbolState struct {
	sentiment slot[nlp.Indices]
	shock     slot[nlp.Shock]
	technical slot[technicalView]
	regime    slot[models.RegimeSnapshot]

	recentEvents []models.Event // bounded deque, newest last
	lastPrice    float64

	lastEmittedCMS   float64
	lastEmittedClass models.SignalClass
	lastEmissionTime time.Time
	emitted          bool
}

// technicalView pairs the indicator snapshot with its derived signals so
// emission reasons and sizing inputs come from the same bar.
type technicalView struct {
	snapshot models.IndicatorSnapshot
	signals  models.TechnicalSignals
}

const recentEventsCap = 10

func (st *symbolState) pushEvent(ev models.Event) {
	if len(st.recentEvents) >= recentEventsCap {
		st.recentEvents = st.recentEvents[1:]
	}
	st.recentEvents = append(st.recentEvents, ev)
}
