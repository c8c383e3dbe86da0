package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantpulse/quantpulse/internal/bus"
)

// Severity levels for operator alerts.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is the alerts channel message shape.
type Alert struct {
	ID        uuid.UUID         `json:"id"`
	Severity  Severity          `json:"severity"`
	Component string            `json:"component"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Publisher is the bus surface the manager needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, v any) error
}

// Manager raises operator alerts on the alerts channel, mirroring each one
// into the structured log.
type Manager struct {
	publisher Publisher
}

// NewManager creates an alert manager. A nil publisher degrades to
// log-only alerts.
func NewManager(publisher Publisher) *Manager {
	return &Manager{publisher: publisher}
}

// Info raises an informational alert.
func (m *Manager) Info(ctx context.Context, component, message string, fields map[string]string) {
	m.raise(ctx, SeverityInfo, component, message, fields)
}

// Warning raises a warning alert.
func (m *Manager) Warning(ctx context.Context, component, message string, fields map[string]string) {
	m.raise(ctx, SeverityWarning, component, message, fields)
}

// Critical raises a critical alert. Used for daily-loss halts and terminal
// broker failures.
func (m *Manager) Critical(ctx context.Context, component, message string, fields map[string]string) {
	m.raise(ctx, SeverityCritical, component, message, fields)
}

func (m *Manager) raise(ctx context.Context, severity Severity, component, message string, fields map[string]string) {
	alert := Alert{
		ID:        uuid.New(),
		Severity:  severity,
		Component: component,
		Message:   message,
		Fields:    fields,
		Timestamp: time.Now().UTC(),
	}

	event := log.WithLevel(logLevel(severity)).
		Str("alert_id", alert.ID.String()).
		Str("component", component).
		Str("severity", string(severity))
	for k, v := range fields {
		event = event.Str(k, v)
	}
	event.Msg(message)

	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, bus.ChannelAlerts, alert); err != nil {
		log.Warn().Err(err).Str("alert_id", alert.ID.String()).Msg("Alert publish failed")
	}
}

func logLevel(severity Severity) zerolog.Level {
	switch severity {
	case SeverityCritical:
		return zerolog.ErrorLevel
	case SeverityWarning:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
