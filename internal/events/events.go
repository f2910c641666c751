// Package events publishes change events for REST mutations to Kafka and to
// connected realtime clients.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/infrawatch/infrawatch/internal/metrics"
)

// Source is stamped on every event produced by this service.
const Source = "infrawatch-api"

// Event types.
const (
	ServiceCreated    = "service.created"
	ServiceUpdated    = "service.updated"
	ServiceDeleted    = "service.deleted"
	DeploymentCreated = "deployment.created"
	ResourceCreated   = "resource.created"
	ResourceDeleted   = "resource.deleted"
	TeamCreated       = "team.created"
)

// Event is one change notification.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Subject   string    `json:"subject"` // ID of the changed entity
	Payload   any       `json:"payload,omitempty"`
}

// NewEvent stamps a new event.
func NewEvent(eventType, subject string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    Source,
		Subject:   subject,
		Payload:   payload,
	}
}

// Publisher delivers events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Sink is a named Publisher inside a Fanout.
type Sink struct {
	Name      string
	Publisher Publisher
}

// Fanout publishes every event to all sinks. A failing sink does not stop
// the others.
type Fanout struct {
	sinks   []Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewFanout creates a Fanout. m may be nil.
func NewFanout(m *metrics.Metrics, logger *slog.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{sinks: sinks, metrics: m, logger: logger}
}

// Publish sends ev to every sink and joins their errors.
func (f *Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f.sinks {
		err := s.Publisher.Publish(ctx, ev)
		f.metrics.EventPublished(s.Name, err)
		if err != nil {
			f.logger.Warn("event publish failed",
				"sink", s.Name,
				"type", ev.Type,
				"subject", ev.Subject,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

// Publish does nothing.
func (Discard) Publish(context.Context, Event) error { return nil }
