package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorKind classifies a failure for retry and breaker decisions.
type ErrorKind string

const (
	// KindValidation is malformed input or an out-of-range value. Never retried.
	KindValidation ErrorKind = "validation"
	// KindTransient is a network error, timeout, or temporarily unavailable
	// collaborator. Retried with backoff; counts against the breaker.
	KindTransient ErrorKind = "transient"
	// KindAuth is an authentication or permission failure. Terminal for the
	// collaborator; trips the breaker.
	KindAuth ErrorKind = "auth"
	// KindExhausted is a full queue or exhausted pool.
	KindExhausted ErrorKind = "exhausted"
	// KindInvariant is a broken internal contract. Fatal for the affected task.
	KindInvariant ErrorKind = "invariant"
)

// ClassifiedError carries the error kind plus the component and context
// fields attached to every propagated failure.
type ClassifiedError struct {
	Kind      ErrorKind
	Component string
	Timestamp time.Time
	Fields    map[string]string
	Err       error
}

func (e *ClassifiedError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Component, e.Kind, e.Err)
	}
	return fmt.Sprintf("[%s]: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify wraps err with a kind and component.
func Classify(kind ErrorKind, component string, err error) *ClassifiedError {
	return &ClassifiedError{
		Kind:      kind,
		Component: component,
		Timestamp: time.Now().UTC(),
		Err:       err,
	}
}

// WithField attaches a context key/value pair.
func (e *ClassifiedError) WithField(key, value string) *ClassifiedError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[key] = value
	return e
}

// KindOf extracts the error kind. Plain network and deadline errors map to
// transient; anything else unclassified maps to validation so unknown errors
// are never retried blindly.
func KindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindValidation
}

// IsRetryable reports whether an error should be retried with backoff.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindTransient
}
