package resilience

import (
	"sync"
	"time"
)

// Availability tags a component's health for consumers. A consumer must
// handle all three cases; Stale carries the last value and its age.
type Availability string

const (
	Available   Availability = "available"
	Stale       Availability = "stale"
	Unavailable Availability = "unavailable"
)

// ComponentHealth is one collaborator's entry in the degradation registry.
type ComponentHealth struct {
	State        Availability `json:"state"`
	LastGood     time.Time    `json:"last_good"`
	Fallback     any          `json:"-"`
	FailureCount int          `json:"failure_count"`
}

// Registry tracks collaborator availability process-wide. Consumers query it
// before using a component and re-normalize their weights when components
// are missing.
type Registry struct {
	mu         sync.RWMutex
	components map[string]*ComponentHealth
	staleAfter time.Duration
}

// NewRegistry creates a degradation registry. Components older than
// staleAfter report Stale; components never reported are Unavailable.
func NewRegistry(staleAfter time.Duration) *Registry {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &Registry{
		components: make(map[string]*ComponentHealth),
		staleAfter: staleAfter,
	}
}

// ReportHealthy records a successful interaction, optionally storing a
// fallback payload served while the component is degraded.
func (r *Registry) ReportHealthy(name string, fallback any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.components[name]
	if c == nil {
		c = &ComponentHealth{}
		r.components[name] = c
	}
	c.State = Available
	c.LastGood = time.Now()
	c.FailureCount = 0
	if fallback != nil {
		c.Fallback = fallback
	}
}

// ReportFailure records a failed interaction. The component stays Stale
// until staleAfter has elapsed since the last good interaction, after which
// it is Unavailable.
func (r *Registry) ReportFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.components[name]
	if c == nil {
		c = &ComponentHealth{State: Unavailable}
		r.components[name] = c
	}
	c.FailureCount++
}

// Check returns the component's availability and its fallback payload when
// one was stored.
func (r *Registry) Check(name string) (Availability, any) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[name]
	if !ok {
		return Unavailable, nil
	}
	return r.availability(c), c.Fallback
}

// Known reports whether the component has ever been reported. Consumers
// distinguish "no information yet" from a reported outage with this.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.components[name]
	return ok
}

// Snapshot returns availability for every known component, for the health
// endpoint.
func (r *Registry) Snapshot() map[string]Availability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Availability, len(r.components))
	for name, c := range r.components {
		out[name] = r.availability(c)
	}
	return out
}

// availability computes the state for an entry. Caller holds the lock.
func (r *Registry) availability(c *ComponentHealth) Availability {
	if c == nil || c.LastGood.IsZero() {
		return Unavailable
	}
	age := time.Since(c.LastGood)
	switch {
	case c.FailureCount == 0 && age < r.staleAfter:
		return Available
	case age < r.staleAfter:
		return Stale
	default:
		return Unavailable
	}
}
