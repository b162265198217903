package mediaregistry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// EventType names a registry notification.
type EventType string

// Event type constants (typed).
const (
	EventMediaAdded   EventType = "MediaAdded"
	EventMediaDeleted EventType = "MediaDeleted"
	EventPaused       EventType = "Paused"
	EventUnpaused     EventType = "Unpaused"
	EventAdminChanged EventType = "AdminChanged"
)

// Event is a notification emitted by a successful mutation. Only the fields
// relevant to Type are set.
type Event struct {
	Type         EventType    `json:"type"`
	PublicHandle PublicHandle `json:"public_handle,omitempty"`
	OwnerIndex   uint64       `json:"owner_index,omitempty"`
	Owner        Address      `json:"owner,omitempty"`
	Admin        Address      `json:"admin,omitempty"`
	Previous     Address      `json:"previous,omitempty"`
	Next         Address      `json:"next,omitempty"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// Receipt carries the events emitted by a mutation.
type Receipt struct {
	Events []Event `json:"events"`
}

// NoopEventSink is a no-operation implementation of EventSink
// Useful when notifications are consumed from receipts only
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// Publish does nothing and returns nil
func (n *NoopEventSink) Publish(ctx context.Context, event Event) error {
	return nil
}

// LoggingEventSink writes every event to a structured logger.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink backed by logger, or slog.Default
// when logger is nil.
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) Publish(ctx context.Context, event Event) error {
	attrs := []any{"type", string(event.Type)}
	switch event.Type {
	case EventMediaAdded:
		attrs = append(attrs, "public_handle", event.PublicHandle.String(), "owner_index", event.OwnerIndex, "owner", event.Owner.String())
	case EventMediaDeleted:
		attrs = append(attrs, "public_handle", event.PublicHandle.String(), "owner", event.Owner.String())
	case EventPaused, EventUnpaused:
		attrs = append(attrs, "admin", event.Admin.String())
	case EventAdminChanged:
		attrs = append(attrs, "previous", event.Previous.String(), "next", event.Next.String())
	}
	l.logger.InfoContext(ctx, "Registry event", attrs...)
	return nil
}

// MultiEventSink fans an event out to several sinks. Every sink is invoked;
// the returned error joins the individual failures.
type MultiEventSink []EventSink

// NewMultiEventSink combines sinks, skipping nil entries.
func NewMultiEventSink(sinks ...EventSink) EventSink {
	var out MultiEventSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m MultiEventSink) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
