package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-cart-orders/internal/events"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventPublisher wraps domain events in the v1 envelope and hands them to a Producer.
type EventPublisher struct {
	Producer *Producer
	Service  string
}

var _ events.Publisher = (*EventPublisher)(nil)

func (p *EventPublisher) Publish(ctx context.Context, msgs ...events.Message) error {
	for _, m := range msgs {
		km, err := p.encode(ctx, m)
		if err != nil {
			return err
		}
		if err := p.Producer.Publish(ctx, km); err != nil {
			return fmt.Errorf("publish %s: %w", m.EventType, err)
		}
	}
	return nil
}

func (p *EventPublisher) encode(ctx context.Context, m events.Message) (kafka.Message, error) {
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     m.EventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Service,
		TraceID:       events.TraceID(ctx),
		CorrelationID: m.CorrelationID,
		Payload:       MustMarshal(m.Payload),
	}
	return kafka.Message{
		Topic: m.Topic,
		Key:   []byte(m.Key),
		Value: MustMarshal(ev),
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(m.EventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(ev.EventVersion))},
			{Key: "x-event-id", Value: []byte(ev.EventID)},
		},
	}, nil
}
