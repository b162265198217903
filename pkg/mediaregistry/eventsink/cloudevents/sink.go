// Package cloudevents delivers registry notifications as CloudEvents over
// HTTP.
package cloudevents

import (
	"context"
	"errors"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/tendant/media-registry/pkg/mediaregistry"
)

// TypePrefix is prepended to the registry event type.
const TypePrefix = "io.mediaregistry."

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 5 * time.Second

// Config configures the sink
type Config struct {
	Target  string        // Receiver URL
	Source  string        // CloudEvents source attribute
	Timeout time.Duration // Per-event delivery timeout
}

// Sink implements mediaregistry.EventSink
type Sink struct {
	client  cloudevents.Client
	source  string
	timeout time.Duration
}

// New creates an HTTP CloudEvents sink posting to config.Target
func New(config Config) (*Sink, error) {
	if config.Target == "" {
		return nil, errors.New("target URL is required")
	}
	if config.Source == "" {
		config.Source = "media-registry"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	client, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(config.Target))
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents client: %w", err)
	}

	return &Sink{client: client, source: config.Source, timeout: config.Timeout}, nil
}

// Publish sends event and waits for the receiver to acknowledge it
func (s *Sink) Publish(ctx context.Context, event mediaregistry.Event) error {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(s.source)
	e.SetType(TypePrefix + string(event.Type))
	e.SetTime(event.OccurredAt)
	if event.PublicHandle != "" {
		e.SetSubject(event.PublicHandle.String())
	}
	if err := e.SetData(cloudevents.ApplicationJSON, event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if result := s.client.Send(ctx, e); !cloudevents.IsACK(result) {
		return fmt.Errorf("failed to deliver %s event: %w", event.Type, result)
	}
	return nil
}
