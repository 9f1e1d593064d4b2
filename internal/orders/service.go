// Package orders turns carts into orders and manages them afterwards.
//
// Checkout only moves quantities from the cart into the order; stock was
// already taken when the items were reserved, so it is left untouched here.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-cart-orders/internal/domain"
	"github.com/ariefcatur/go-cart-orders/internal/events"
	"github.com/ariefcatur/go-cart-orders/internal/redisx"
	"github.com/ariefcatur/go-cart-orders/internal/store"
)

type Service struct {
	store  store.Store
	events events.Publisher
	cache  redisx.Cache
	ttl    time.Duration
	policy domain.TransitionPolicy
	log    *slog.Logger
}

type Option func(*Service)

// WithCache caches order views for ttl and remembers idempotency keys.
func WithCache(c redisx.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPolicy(p domain.TransitionPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func NewService(st store.Store, pub events.Publisher, opts ...Option) *Service {
	if pub == nil {
		pub = events.Discard
	}
	s := &Service{
		store:  st,
		events: pub,
		cache:  redisx.NopCache{},
		ttl:    redisx.TTLViewCache,
		policy: domain.OpenTransitions{},
		log:    slog.Default().With("component", "orders"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder converts the user's whole cart into an ORDERED order priced at
// current catalog prices and empties the cart.
func (s *Service) CreateOrder(ctx context.Context, in domain.CreateOrderInput) (domain.OrderView, error) {
	if err := in.Validate(); err != nil {
		return domain.OrderView{}, err
	}

	var (
		view domain.OrderView
		ev   events.Message
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		user, err := tx.GetUser(ctx, in.UserID)
		if err != nil {
			return store.AsNotFound(err, "user with ID %d not found", in.UserID)
		}
		cart, err := tx.LockCart(ctx, in.UserID)
		if err != nil {
			return store.AsNotFound(err, "cart for user %d not found", in.UserID)
		}
		items, err := tx.ListCartItems(ctx, cart.ID)
		if err != nil {
			return fmt.Errorf("list cart items: %w", err)
		}
		if len(items) == 0 {
			return fmt.Errorf("%w: cart for user %d is empty", domain.ErrNotFound, in.UserID)
		}

		ids := make([]int64, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ProductID)
		}
		products, err := tx.GetProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}

		order := domain.Order{
			UserID:    in.UserID,
			Status:    domain.StatusOrdered,
			TotalCost: decimal.Zero,
			Items:     make([]domain.OrderItem, 0, len(items)),
		}
		for _, it := range items {
			p, ok := products[it.ProductID]
			if !ok {
				return fmt.Errorf("%w: product with ID %d not found", domain.ErrNotFound, it.ProductID)
			}
			order.TotalCost = order.TotalCost.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
			order.Items = append(order.Items, domain.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
		}

		if err := tx.InsertOrder(ctx, &order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if _, err := tx.ClearCart(ctx, cart.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		ev = orderCreated(order)
		view = domain.NewOrderView(order, user, products)
		return nil
	})
	if err != nil {
		return domain.OrderView{}, err
	}

	s.publish(ctx, ev)
	s.invalidate(ctx, userOrdersKey(view.UserID))
	return view, nil
}

// CreateOrderOnce is CreateOrder guarded by a client supplied idempotency key.
// Keys are scoped to the user: a key repeated by the same user returns the
// order created the first time and replayed=true. An empty key disables the guard.
func (s *Service) CreateOrderOnce(ctx context.Context, key string, in domain.CreateOrderInput) (view domain.OrderView, replayed bool, err error) {
	if err := in.Validate(); err != nil {
		return domain.OrderView{}, false, err
	}
	if key == "" {
		view, err = s.CreateOrder(ctx, in)
		return view, false, err
	}

	idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, in.UserID, key)
	var orderID int64
	switch err := s.cache.Get(ctx, idemKey, &orderID); {
	case err == nil:
		view, err := s.GetOrderByID(ctx, orderID)
		switch {
		case err == nil && view.UserID == in.UserID:
			return view, true, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return domain.OrderView{}, false, err
		}
	case !errors.Is(err, redisx.ErrCacheMiss):
		s.log.Warn("idempotency lookup failed", "key", key, "error", err)
	}

	view, err = s.CreateOrder(ctx, in)
	if err != nil {
		return domain.OrderView{}, false, err
	}
	if err := s.cache.Set(ctx, idemKey, view.ID, redisx.TTLIdempotency); err != nil {
		s.log.Warn("idempotency store failed", "key", key, "order_id", view.ID, "error", err)
	}
	return view, false, nil
}

// GetOrderByID returns the order joined with current product attributes and
// the owner's name and address.
func (s *Service) GetOrderByID(ctx context.Context, orderID int64) (domain.OrderView, error) {
	if orderID <= 0 {
		return domain.OrderView{}, fmt.Errorf("%w: orderId must be positive", domain.ErrInvalidArgument)
	}

	key := orderViewKey(orderID)
	var view domain.OrderView
	switch err := s.cache.Get(ctx, key, &view); {
	case err == nil:
		return view, nil
	case !errors.Is(err, redisx.ErrCacheMiss):
		s.log.Warn("order cache read failed", "order_id", orderID, "error", err)
	}

	// read before loading so an invalidation racing the load wins
	version, verr := s.cache.Version(ctx, key)
	if verr != nil {
		s.log.Warn("order cache version read failed", "order_id", orderID, "error", verr)
	}

	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		view, err = loadView(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return domain.OrderView{}, err
	}

	if verr == nil {
		stored, err := s.cache.SetIfVersion(ctx, key, version, view, s.ttl)
		switch {
		case err != nil:
			s.log.Warn("order cache write failed", "order_id", orderID, "error", err)
		case !stored:
			s.log.Debug("order changed during load, not cached", "order_id", orderID)
		}
	}
	return view, nil
}

// UpdateOrderStatus moves the order to in.Status if the transition policy allows it.
// A missing order is reported before an unknown status.
func (s *Service) UpdateOrderStatus(ctx context.Context, in domain.UpdateStatusInput) (domain.OrderView, error) {
	if in.OrderID <= 0 {
		return domain.OrderView{}, fmt.Errorf("%w: orderId must be positive", domain.ErrInvalidArgument)
	}

	var (
		view domain.OrderView
		ev   events.Message
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			return store.AsNotFound(err, "order with ID %d not found", in.OrderID)
		}
		if err := in.Validate(); err != nil {
			return err
		}
		if err := s.policy.Check(order.Status, in.Status); err != nil {
			return err
		}

		from := order.Status
		order.Status = in.Status
		if err := tx.UpdateOrder(ctx, &order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		ev = events.Message{
			Topic:         events.TopicOrderStatusChanged,
			Key:           events.OrderKey(order.ID),
			EventType:     events.EventOrderStatusChanged,
			CorrelationID: strconv.FormatInt(order.ID, 10),
			Payload: events.OrderStatusChangedPayload{
				OrderID: order.ID,
				UserID:  order.UserID,
				From:    string(from),
				To:      string(order.Status),
			},
		}
		view, err = loadView(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return domain.OrderView{}, err
	}

	s.publish(ctx, ev)
	s.invalidate(ctx, orderViewKey(view.ID), userOrdersKey(view.UserID))
	return view, nil
}

// DiscountScale is the number of decimal places a discount rate is stored with.
const DiscountScale = 4

// ApplyCoupon sets the discount rate and recomputes the discounted total from
// the undiscounted one, so applying a second coupon replaces the first. The
// rate is rounded to DiscountScale places before anything is computed from it.
func (s *Service) ApplyCoupon(ctx context.Context, in domain.ApplyCouponInput) (domain.OrderView, error) {
	if err := in.Validate(); err != nil {
		return domain.OrderView{}, err
	}

	var (
		view domain.OrderView
		ev   events.Message
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			return store.AsNotFound(err, "order with ID %d not found", in.OrderID)
		}

		rate := in.Discount.Round(DiscountScale)
		discounted := Discounted(order.TotalCost, rate)
		order.Discount = decimal.NewNullDecimal(rate)
		order.TotalCostAfterDiscount = decimal.NewNullDecimal(discounted)
		if err := tx.UpdateOrder(ctx, &order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		ev = events.Message{
			Topic:         events.TopicCouponApplied,
			Key:           events.OrderKey(order.ID),
			EventType:     events.EventCouponApplied,
			CorrelationID: strconv.FormatInt(order.ID, 10),
			Payload: events.CouponAppliedPayload{
				OrderID:                order.ID,
				UserID:                 order.UserID,
				Discount:               rate,
				TotalCostAfterDiscount: discounted,
			},
		}
		view, err = loadView(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return domain.OrderView{}, err
	}

	s.publish(ctx, ev)
	s.invalidate(ctx, orderViewKey(view.ID), userOrdersKey(view.UserID))
	return view, nil
}

// Discounted returns total × (1 − rate) rounded to cents.
func Discounted(total, rate decimal.Decimal) decimal.Decimal {
	return total.Mul(decimal.NewFromInt(1).Sub(rate)).Round(2)
}

func loadView(ctx context.Context, tx store.Tx, orderID int64) (domain.OrderView, error) {
	order, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return domain.OrderView{}, store.AsNotFound(err, "order with ID %d not found", orderID)
	}
	user, err := tx.GetUser(ctx, order.UserID)
	if err != nil && !errors.Is(err, store.ErrNoRecord) {
		return domain.OrderView{}, err
	}
	ids := make([]int64, 0, len(order.Items))
	for _, it := range order.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := tx.GetProducts(ctx, ids)
	if err != nil {
		return domain.OrderView{}, err
	}
	return domain.NewOrderView(order, user, products), nil
}

func orderCreated(o domain.Order) events.Message {
	items := make([]events.OrderItemPayload, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, events.OrderItemPayload{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return events.Message{
		Topic:         events.TopicOrderCreated,
		Key:           events.OrderKey(o.ID),
		EventType:     events.EventOrderCreated,
		CorrelationID: strconv.FormatInt(o.ID, 10),
		Payload: events.OrderCreatedPayload{
			OrderID:   o.ID,
			UserID:    o.UserID,
			Items:     items,
			TotalCost: o.TotalCost,
		},
	}
}

func orderViewKey(id int64) string      { return fmt.Sprintf(redisx.KeyOrderView, id) }
func userOrdersKey(userID int64) string { return fmt.Sprintf(redisx.KeyUserOrders, userID) }

func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn("cache invalidation failed", "keys", keys, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, msgs ...events.Message) {
	if err := s.events.Publish(ctx, msgs...); err != nil {
		s.log.Warn("publish order event", "error", err)
	}
}
