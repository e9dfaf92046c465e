package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher emits mutation events to JetStream. The commerce module is the
// normal publisher; this implementation exists for integration tooling and
// tests.
type Publisher struct {
	js     jetstream.JetStream
	stream string
}

// NewPublisher creates a Publisher and ensures the stream exists.
func NewPublisher(ctx context.Context, cfg Config, nc *nats.Conn) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	return &Publisher{js: js, stream: cfg.Stream}, nil
}

// Publish sends one event to its subject.
func (p *Publisher) Publish(ctx context.Context, evt Event) error {
	if err := evt.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(ctx, evt.Subject(), data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", evt.Subject(), err)
	}
	return nil
}
