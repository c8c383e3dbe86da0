package nlp

import (
	"math"
	"sync"
	"time"

	"github.com/quantpulse/quantpulse/internal/models"
)

// Aggregation defaults.
const (
	DefaultWindowSize = 20
	DefaultDecayHours = 6.0
	ewmaAlpha         = 0.3
	dominantFraction  = 0.4
)

// Indices are the three per-symbol sentiment indices derived from the
// sliding window.
type Indices struct {
	Raw      float64 `json:"raw"`
	Weighted float64 `json:"weighted"`
	Smoothed float64 `json:"smoothed"`
}

// Shock is the Event Shock Factor breakdown for one symbol.
type Shock struct {
	Base            float64          `json:"base"`
	ClusteringBonus float64          `json:"clustering_bonus"`
	RecencyFactor   float64          `json:"recency_factor"`
	Total           float64          `json:"total"`
	DominantType    models.EventType `json:"dominant_type,omitempty"`
}

// Window maintains one symbol's bounded sliding windows of sentiment scores
// and events. Writes come from the symbol's aggregator worker; reads may
// come from dashboard queries, hence the lock.
type Window struct {
	mu         sync.Mutex
	size       int
	decayHours float64

	scores   []models.SentimentScore
	events   []models.Event
	smoothed float64
	seeded   bool
}

// NewWindow creates a sliding window. Non-positive arguments fall back to
// the defaults.
func NewWindow(size int, decayHours float64) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if decayHours <= 0 {
		decayHours = DefaultDecayHours
	}
	return &Window{size: size, decayHours: decayHours}
}

// AddScore appends a sentiment score, evicting the oldest when the window is
// full, and advances the EWMA.
func (w *Window) AddScore(s models.SentimentScore) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.scores) >= w.size {
		w.scores = w.scores[1:]
	}
	w.scores = append(w.scores, s)

	if !w.seeded {
		w.smoothed = s.Score
		w.seeded = true
		return
	}
	w.smoothed = ewmaAlpha*s.Score + (1-ewmaAlpha)*w.smoothed
}

// AddEvent appends an event, evicting the oldest when the window is full.
func (w *Window) AddEvent(ev models.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.events) >= w.size {
		w.events = w.events[1:]
	}
	w.events = append(w.events, ev)
}

// Indices returns the three sentiment indices. The second return is false
// while the window is empty.
func (w *Window) Indices() (Indices, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.scores) == 0 {
		return Indices{}, false
	}

	var sum, weightedSum, weightTotal float64
	for _, s := range w.scores {
		sum += s.Score
		weightedSum += s.Score * s.Confidence
		weightTotal += s.Confidence
	}

	idx := Indices{
		Raw:      sum / float64(len(w.scores)),
		Smoothed: w.smoothed,
	}
	if weightTotal > 0 {
		idx.Weighted = weightedSum / weightTotal
	} else {
		idx.Weighted = idx.Raw
	}
	return idx, true
}

// Shock computes the Event Shock Factor at the given instant: mean severity
// plus a clustering bonus, scaled by an exponential recency factor.
func (w *Window) Shock(now time.Time) Shock {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.events) == 0 {
		return Shock{RecencyFactor: 1}
	}

	var severitySum, ageSum float64
	for _, ev := range w.events {
		severitySum += ev.Severity
		ageSum += now.Sub(ev.Timestamp).Hours()
	}
	n := float64(len(w.events))

	base := severitySum / n
	bonus := math.Min(n/10.0, 0.3)
	meanAge := ageSum / n
	if meanAge < 0 {
		meanAge = 0
	}
	recency := math.Exp(-meanAge / w.decayHours)

	s := Shock{
		Base:            base,
		ClusteringBonus: bonus,
		RecencyFactor:   recency,
		Total:           clamp((base+bonus)*recency, 0, 1),
	}
	if dom, ok := w.dominantLocked(); ok {
		s.DominantType = dom
	}
	return s
}

// DominantType returns the event type exceeding the dominance fraction of
// the window, when one exists.
func (w *Window) DominantType() (models.EventType, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dominantLocked()
}

func (w *Window) dominantLocked() (models.EventType, bool) {
	if len(w.events) == 0 {
		return "", false
	}
	counts := make(map[models.EventType]int)
	for _, ev := range w.events {
		counts[ev.Type]++
	}
	for eventType, count := range counts {
		if float64(count)/float64(len(w.events)) > dominantFraction {
			return eventType, true
		}
	}
	return "", false
}

// Len returns the current score window depth.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.scores)
}
