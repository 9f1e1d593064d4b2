package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ariefcatur/go-cart-orders/internal/events"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeWriter struct {
	mu       sync.Mutex
	msgs     []kafka.Message
	attempts int
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestProducer_FlushesOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &fakeWriter{}
	p := newProducer(w, 8)
	p.Start(context.Background())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Publish(ctx, kafka.Message{Topic: "t", Value: []byte{byte(i)}}))
	}
	p.Close()
	p.WaitClosed()

	assert.Len(t, w.msgs, 3)
	assert.True(t, w.closed)
	assert.False(t, w.msgs[0].Time.IsZero())
}

func TestProducer_PublishAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newProducer(&fakeWriter{}, 1)
	p.Start(context.Background())
	p.Close()
	p.Close() // idempotent
	p.WaitClosed()

	err := p.Publish(context.Background(), kafka.Message{Topic: "t"})
	assert.ErrorIs(t, err, ErrProducerClosed)
}

func TestProducer_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &fakeWriter{}
	p := newProducer(w, 1)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	p.WaitClosed()

	assert.True(t, w.closed)
}

func TestProducer_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &fakeWriter{err: errors.New("broker down")}
	p := newProducer(w, 16)
	p.Start(context.Background())

	for i := 0; i < 8; i++ {
		require.NoError(t, p.Publish(context.Background(), kafka.Message{Topic: "t"}))
	}
	p.Close()
	p.WaitClosed()

	// five failures trip the breaker, the rest are rejected without touching the writer
	assert.Equal(t, 5, w.attempts)
}

func TestEventPublisher_WrapsEnvelope(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &fakeWriter{}
	prod := newProducer(w, 4)
	prod.Start(context.Background())
	pub := &EventPublisher{Producer: prod, Service: "cart-api"}

	ctx := events.WithTraceID(context.Background(), "req-42")
	err := pub.Publish(ctx, events.Message{
		Topic:         events.TopicOrderCreated,
		Key:           events.OrderKey(7),
		EventType:     events.EventOrderCreated,
		CorrelationID: "7",
		Payload:       events.OrderCreatedPayload{OrderID: 7, UserID: 1},
	})
	require.NoError(t, err)
	prod.Close()
	prod.WaitClosed()

	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, events.TopicOrderCreated, m.Topic)
	assert.Equal(t, "order:7", string(m.Key))

	env, err := UnmarshalEnvelope(m.Value)
	require.NoError(t, err)
	assert.Equal(t, events.EventOrderCreated, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "cart-api", env.Producer)
	assert.Equal(t, "req-42", env.TraceID)
	assert.NotEmpty(t, env.EventID)

	p, err := UnwrapPayload[events.OrderCreatedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.OrderID)
}
