package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMsg implements jetstream.Msg and records the terminal disposition the
// consumer chose for it.
type fakeMsg struct {
	subject string
	payload []byte
	meta    jetstream.MsgMetadata

	mu       sync.Mutex
	acked    bool
	naked    bool
	nakDelay time.Duration
	termed   bool
}

func newFakeMsg(subject string, payload []byte) *fakeMsg {
	return &fakeMsg{
		subject: subject,
		payload: payload,
		meta:    jetstream.MsgMetadata{NumDelivered: 1},
	}
}

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) { return &m.meta, nil }
func (m *fakeMsg) Data() []byte                              { return m.payload }
func (m *fakeMsg) Headers() nats.Header                      { return nil }
func (m *fakeMsg) Subject() string                           { return m.subject }
func (m *fakeMsg) Reply() string                             { return "" }
func (m *fakeMsg) InProgress() error                         { return nil }

func (m *fakeMsg) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = true
	return nil
}

func (m *fakeMsg) DoubleAck(context.Context) error { return m.Ack() }

func (m *fakeMsg) Nak() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.naked = true
	return nil
}

func (m *fakeMsg) NakWithDelay(delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.naked = true
	m.nakDelay = delay
	return nil
}

func (m *fakeMsg) Term() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.termed = true
	return nil
}

func (m *fakeMsg) TermWithReason(string) error { return m.Term() }

func (m *fakeMsg) disposition() (acked, naked, termed bool, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked, m.naked, m.termed, m.nakDelay
}

type handlerFunc func(ctx context.Context, evt Event) error

func (f handlerFunc) ApplyEvent(ctx context.Context, evt Event) error { return f(ctx, evt) }

func newTestConsumer(t *testing.T, workers int, handler Handler) *Consumer {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Workers = workers

	c := &Consumer{
		cfg:     cfg,
		handler: handler,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	c.workerChans = make([]chan jetstream.Msg, workers)
	for i := range c.workerChans {
		c.workerChans[i] = make(chan jetstream.Msg, 8)
	}
	return c
}

func eventPayload(t *testing.T, evt Event) []byte {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	return data
}

func TestDecodeSubjectIsAuthoritative(t *testing.T) {
	evt := Event{EventID: "evt_1", ID: "var_1", Kind: SourceProduct, Action: ActionCreated, Timestamp: 1}
	msg := newFakeMsg("catalog.variant.updated", eventPayload(t, evt))

	got, err := decode(msg)
	require.NoError(t, err)
	assert.Equal(t, SourceVariant, got.Kind, "subject overrides the payload kind")
	assert.Equal(t, ActionUpdated, got.Action)
	assert.Equal(t, "var_1", got.ID)
}

func TestDecodeRejectsInvalidPayload(t *testing.T) {
	msg := newFakeMsg("catalog.product.created", []byte("{not json"))

	_, err := decode(msg)
	assert.ErrorContains(t, err, "invalid payload")
}

func TestDecodeRejectsMalformedSubject(t *testing.T) {
	evt := Event{EventID: "evt_1", ID: "prod_1", Timestamp: 1}

	_, err := decode(newFakeMsg("catalog.orders.created", eventPayload(t, evt)))
	assert.Error(t, err, "unknown source kind must not pass")

	_, err = decode(newFakeMsg("catalog.product", eventPayload(t, evt)))
	assert.Error(t, err, "truncated subject must not pass")
}

func TestDecodeRejectsMissingEntityID(t *testing.T) {
	evt := Event{EventID: "evt_1", Timestamp: 1}
	msg := newFakeMsg("catalog.product.deleted", eventPayload(t, evt))

	_, err := decode(msg)
	assert.ErrorContains(t, err, "no entity id")
}

func TestShardForIsDeterministic(t *testing.T) {
	evt := Event{Kind: SourceProduct, ID: "prod_1"}

	shard := shardFor(evt, 16)
	assert.GreaterOrEqual(t, shard, 0)
	assert.Less(t, shard, 16)
	for i := 0; i < 10; i++ {
		assert.Equal(t, shard, shardFor(evt, 16))
	}
}

func TestDispatchRoutesSameDocumentToSameWorker(t *testing.T) {
	c := newTestConsumer(t, 4, nil)

	evt := Event{EventID: "evt_1", ID: "prod_1", Timestamp: 1}
	first := newFakeMsg("catalog.product.created", eventPayload(t, evt))
	second := newFakeMsg("catalog.product.updated", eventPayload(t, evt))
	c.dispatch(first)
	c.dispatch(second)

	shard := shardFor(Event{Kind: SourceProduct, ID: "prod_1"}, 4)
	require.Len(t, c.workerChans[shard], 2, "both events for one document land on its worker")
	assert.Same(t, first, <-c.workerChans[shard])
	assert.Same(t, second, <-c.workerChans[shard])
}

func TestDispatchTerminatesUndecodableMessage(t *testing.T) {
	c := newTestConsumer(t, 2, nil)

	msg := newFakeMsg("catalog.product.created", []byte("{not json"))
	c.dispatch(msg)

	_, _, termed, _ := msg.disposition()
	assert.True(t, termed, "an undecodable message must be terminated, not retried")
	assert.Empty(t, c.workerChans[0])
	assert.Empty(t, c.workerChans[1])
}

func TestDispatchNaksWhileDraining(t *testing.T) {
	c := newTestConsumer(t, 2, nil)

	// Mirror the shutdown sequence: draining set and channels closed under
	// the lock. A late delivery must be redelivered, never sent.
	c.mu.Lock()
	c.draining = true
	for _, ch := range c.workerChans {
		close(ch)
	}
	c.mu.Unlock()

	evt := Event{EventID: "evt_1", ID: "prod_1", Timestamp: 1}
	msg := newFakeMsg("catalog.product.created", eventPayload(t, evt))
	assert.NotPanics(t, func() { c.dispatch(msg) })

	_, naked, _, _ := msg.disposition()
	assert.True(t, naked)
}

func TestWorkerLoopAcksOnSuccess(t *testing.T) {
	var handled []string
	handler := handlerFunc(func(_ context.Context, evt Event) error {
		handled = append(handled, evt.ID)
		return nil
	})
	c := newTestConsumer(t, 1, handler)

	evt := Event{EventID: "evt_1", ID: "prod_1", Timestamp: 1}
	msg := newFakeMsg("catalog.product.updated", eventPayload(t, evt))
	c.workerChans[0] <- msg
	close(c.workerChans[0])

	c.wg.Add(1)
	c.workerLoop(context.Background(), 0)

	assert.Equal(t, []string{"prod_1"}, handled)
	acked, naked, termed, _ := msg.disposition()
	assert.True(t, acked)
	assert.False(t, naked)
	assert.False(t, termed)
}

func TestWorkerLoopSchedulesRetryOnHandlerError(t *testing.T) {
	handler := handlerFunc(func(context.Context, Event) error {
		return errors.New("source unavailable")
	})
	c := newTestConsumer(t, 1, handler)

	evt := Event{EventID: "evt_1", ID: "prod_1", Timestamp: 1}
	msg := newFakeMsg("catalog.product.updated", eventPayload(t, evt))
	msg.meta.NumDelivered = 2
	c.workerChans[0] <- msg
	close(c.workerChans[0])

	c.wg.Add(1)
	c.workerLoop(context.Background(), 0)

	acked, naked, termed, delay := msg.disposition()
	assert.False(t, acked)
	assert.False(t, termed)
	assert.True(t, naked)
	assert.Equal(t, Backoff(2, c.cfg.InitialBackoff, c.cfg.MaxBackoff), delay)
}

func TestRetryTerminatesAfterMaxAttempts(t *testing.T) {
	c := newTestConsumer(t, 1, nil)

	evt := Event{EventID: "evt_1", ID: "prod_1", Timestamp: 1}
	msg := newFakeMsg("catalog.product.updated", eventPayload(t, evt))
	msg.meta.NumDelivered = uint64(c.cfg.MaxAttempts)

	c.retry(msg, errors.New("source unavailable"))

	_, naked, termed, _ := msg.disposition()
	assert.True(t, termed, "exhausted retries must terminate the message")
	assert.False(t, naked)
}

func TestBackoff(t *testing.T) {
	initial := time.Second
	max := 30 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second}, // clamped to first attempt
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second}, // capped
		{20, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempt, initial, max), "attempt %d", tt.attempt)
	}
}

func TestBackoffWithoutCap(t *testing.T) {
	assert.Equal(t, 8*time.Second, Backoff(4, time.Second, 0))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "CATALOG", cfg.Stream)
	assert.Positive(t, cfg.Workers)
	assert.Positive(t, cfg.MaxAttempts)
	assert.Less(t, cfg.InitialBackoff, cfg.MaxBackoff)
}
