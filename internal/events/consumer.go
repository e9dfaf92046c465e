package events

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Handler processes one validated mutation event. A nil return acknowledges
// the message; an error requests redelivery with backoff.
type Handler interface {
	ApplyEvent(ctx context.Context, evt Event) error
}

// Config holds the event transport configuration.
type Config struct {
	// URL is the NATS server address.
	URL string `yaml:"url"`

	// Stream is the JetStream stream carrying catalog mutation events.
	Stream string `yaml:"stream"`

	// Durable is the durable consumer name, so redeliveries survive
	// process restarts.
	Durable string `yaml:"durable"`

	// Workers sets the size of the processing pool.
	Workers int `yaml:"workers"`

	// MaxAttempts bounds redeliveries before a message is terminated.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialBackoff is the first redelivery delay; it doubles per attempt.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the redelivery delay.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// EventTimeout bounds the processing of one event.
	EventTimeout time.Duration `yaml:"event_timeout"`
}

// DefaultConfig returns the default event transport configuration.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		Stream:         "CATALOG",
		Durable:        "searchsync",
		Workers:        16,
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		EventTimeout:   10 * time.Second,
	}
}

// Consumer consumes mutation events from JetStream and dispatches them to
// the handler. Events are sharded to workers by entity id so notifications
// for the same document execute serially, while distinct documents proceed
// in parallel.
type Consumer struct {
	cfg     Config
	js      jetstream.JetStream
	handler Handler
	logger  *slog.Logger

	workerChans []chan jetstream.Msg
	wg          sync.WaitGroup

	// mu orders dispatch against shutdown: once draining is set the worker
	// channels are closed and no send may happen.
	mu       sync.Mutex
	draining bool
}

// NewConsumer creates a Consumer on an established NATS connection.
func NewConsumer(cfg Config, nc *nats.Conn, handler Handler, logger *slog.Logger) (*Consumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 16
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}

	return &Consumer{
		cfg:     cfg,
		js:      js,
		handler: handler,
		logger:  logger.With("component", "events"),
	}, nil
}

// Start begins consuming. It blocks until the context is cancelled, then
// drains the worker pool.
func (c *Consumer) Start(ctx context.Context) error {
	// Streams are normally managed by deployment tooling; ensuring here
	// keeps local development working.
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  []string{SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}

	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       c.cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: SubjectPrefix + ".>",
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	c.workerChans = make([]chan jetstream.Msg, c.cfg.Workers)
	for i := 0; i < c.cfg.Workers; i++ {
		c.workerChans[i] = make(chan jetstream.Msg, 100)
		c.wg.Add(1)
		go c.workerLoop(ctx, i)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		c.dispatch(msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	c.logger.Info("event consumer started",
		"stream", c.cfg.Stream,
		"durable", c.cfg.Durable,
		"workers", c.cfg.Workers)

	<-ctx.Done()

	// Stop does not wait for an in-flight callback, so closing the worker
	// channels is gated on the same lock dispatch sends under.
	cc.Stop()
	c.mu.Lock()
	c.draining = true
	for _, ch := range c.workerChans {
		close(ch)
	}
	c.mu.Unlock()
	c.wg.Wait()
	c.logger.Info("event consumer stopped")
	return nil
}

// dispatch routes a message to the worker owning its document.
func (c *Consumer) dispatch(msg jetstream.Msg) {
	evt, err := decode(msg)
	if err != nil {
		c.logger.Error("terminating undecodable event", "subject", msg.Subject(), "error", err)
		msg.Term()
		return
	}

	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		// Redelivered after restart; the durable consumer keeps it.
		msg.Nak()
		return
	}
	c.workerChans[shardFor(evt, c.cfg.Workers)] <- msg
	c.mu.Unlock()
}

// shardFor maps an event to a worker so notifications for the same document
// execute serially.
func shardFor(evt Event, workers int) int {
	h := fnv.New32a()
	h.Write([]byte(evt.Kind))
	h.Write([]byte(evt.ID))
	return int(h.Sum32() % uint32(workers))
}

func (c *Consumer) workerLoop(ctx context.Context, id int) {
	defer c.wg.Done()

	for msg := range c.workerChans[id] {
		if err := c.process(ctx, msg); err != nil {
			c.retry(msg, err)
		} else {
			if err := msg.Ack(); err != nil {
				c.logger.Warn("failed to ack event", "subject", msg.Subject(), "error", err)
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg jetstream.Msg) error {
	evt, err := decode(msg)
	if err != nil {
		// decode succeeded in dispatch, so this is unreachable in
		// practice, but a changed payload mid-flight must not loop.
		msg.Term()
		return nil
	}

	evtCtx := ctx
	if c.cfg.EventTimeout > 0 {
		var cancel context.CancelFunc
		evtCtx, cancel = context.WithTimeout(ctx, c.cfg.EventTimeout)
		defer cancel()
	}

	return c.handler.ApplyEvent(evtCtx, evt)
}

// retry applies capped exponential backoff, terminating after MaxAttempts.
func (c *Consumer) retry(msg jetstream.Msg, cause error) {
	md, err := msg.Metadata()
	if err != nil {
		c.logger.Error("failed to read event metadata", "error", err)
		msg.Nak()
		return
	}

	attempt := int(md.NumDelivered) // starts at 1
	if attempt >= c.cfg.MaxAttempts {
		c.logger.Error("event exhausted retries, terminating",
			"subject", msg.Subject(),
			"attempts", attempt,
			"error", cause)
		msg.Term()
		return
	}

	delay := Backoff(attempt, c.cfg.InitialBackoff, c.cfg.MaxBackoff)
	c.logger.Warn("event processing failed, scheduling retry",
		"subject", msg.Subject(),
		"attempt", attempt,
		"next_in", delay,
		"error", cause)
	msg.NakWithDelay(delay)
}

// Backoff computes the redelivery delay for the given 1-based attempt:
// initial * 2^(attempt-1), capped at max.
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// decode parses and validates a message against the closed event union.
func decode(msg jetstream.Msg) (Event, error) {
	var evt Event
	if err := json.Unmarshal(msg.Data(), &evt); err != nil {
		return Event{}, fmt.Errorf("invalid payload: %w", err)
	}

	// The subject is authoritative for kind and action; older publishers
	// omit them from the payload.
	kind, action, err := ParseSubject(msg.Subject())
	if err != nil {
		return Event{}, err
	}
	evt.Kind, evt.Action = kind, action

	if err := evt.Validate(); err != nil {
		return Event{}, err
	}
	return evt, nil
}
