package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventCartItemReserved   = "CartItemReserved"
	EventCartItemReleased   = "CartItemReleased"
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventCouponApplied      = "CouponApplied"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "cart-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // product or order id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payloads ----

// CartItemChangedPayload is shared by reserved and released events; Delta is
// always positive, the event type gives the direction.
type CartItemChangedPayload struct {
	UserID    int64 `json:"user_id"`
	CartID    int64 `json:"cart_id"`
	ProductID int64 `json:"product_id"`
	Delta     int   `json:"delta"`
	Quantity  int   `json:"quantity"` // quantity left in the cart
	Stock     int   `json:"stock"`    // unreserved stock after the change
}

type OrderItemPayload struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID   int64              `json:"order_id"`
	UserID    int64              `json:"user_id"`
	Items     []OrderItemPayload `json:"items"`
	TotalCost decimal.Decimal    `json:"total_cost"`
}

type OrderStatusChangedPayload struct {
	OrderID int64  `json:"order_id"`
	UserID  int64  `json:"user_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type CouponAppliedPayload struct {
	OrderID                int64           `json:"order_id"`
	UserID                 int64           `json:"user_id"`
	Discount               decimal.Decimal `json:"discount"`
	TotalCostAfterDiscount decimal.Decimal `json:"total_cost_after_discount"`
}

// Message is an event that has not been wrapped in an Envelope yet.
type Message struct {
	Topic         string
	Key           string
	EventType     string
	CorrelationID string
	Payload       any
}

// Publisher hands committed events to the bus. Implementations must not block
// on the network; delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

type discard struct{}

func (discard) Publish(context.Context, ...Message) error { return nil }

// Discard drops every event. Used when no broker is configured.
var Discard Publisher = discard{}
