// Package ledger projects reservation events into per-product Redis hashes:
//
//	ledger:product:{id}  reserved  units currently held in carts
//	                     ordered   units that left a cart through checkout
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-cart-orders/internal/events"
	kafkax "github.com/ariefcatur/go-cart-orders/internal/kafka"
	"github.com/ariefcatur/go-cart-orders/internal/redisx"
)

const (
	FieldReserved = "reserved"
	FieldOrdered  = "ordered"
)

type Service struct {
	Redis *redis.Client
	Name  string // dedup namespace
}

type change struct {
	productID int64
	field     string
	delta     int64
}

// HandleEvent is the consumer handler. Every event is applied at most once,
// keyed by its event_id; unknown event types are acknowledged and skipped.
// Undecodable events are reported as permanent so the consumer moves past them;
// Redis failures are plain errors and get retried.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		return kafkax.Permanent(err)
	}

	changes, err := changesFor(env)
	if err != nil {
		return kafkax.Permanent(err)
	}
	if len(changes) == 0 {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.name(), env.EventID)
	applied, err := redisx.ApplyOnce(ctx, s.Redis, dkey, redisx.TTLDedup, func(p redis.Pipeliner) {
		for _, c := range changes {
			p.HIncrBy(ctx, fmt.Sprintf(redisx.KeyLedger, c.productID), c.field, c.delta)
		}
	})
	if err != nil {
		return fmt.Errorf("apply %s: %w", env.EventID, err)
	}
	if !applied {
		slog.Debug("duplicate event skipped", "event_id", env.EventID, "type", env.EventType)
	}
	return nil
}

func (s *Service) name() string {
	if s.Name == "" {
		return "ledger"
	}
	return s.Name
}

func changesFor(env events.Envelope) ([]change, error) {
	switch env.EventType {
	case events.EventCartItemReserved, events.EventCartItemReleased:
		p, err := kafkax.UnwrapPayload[events.CartItemChangedPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		delta := int64(p.Delta)
		if env.EventType == events.EventCartItemReleased {
			delta = -delta
		}
		return []change{{p.ProductID, FieldReserved, delta}}, nil

	case events.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[events.OrderCreatedPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		out := make([]change, 0, 2*len(p.Items))
		for _, it := range p.Items {
			out = append(out,
				change{it.ProductID, FieldReserved, -int64(it.Qty)},
				change{it.ProductID, FieldOrdered, int64(it.Qty)},
			)
		}
		return out, nil
	}
	return nil, nil
}
