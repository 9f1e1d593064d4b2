package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ariefcatur/go-cart-orders/internal/domain"
	"github.com/ariefcatur/go-cart-orders/internal/redisx"
	"github.com/ariefcatur/go-cart-orders/internal/store"
)

// HistoryReader lists a user's orders. It never writes to the store.
type HistoryReader struct {
	store store.Store
	cache redisx.Cache
	ttl   time.Duration
	sfg   singleflight.Group // one store load per user at a time
	log   *slog.Logger
}

func NewHistoryReader(st store.Store, cache redisx.Cache, ttl time.Duration) *HistoryReader {
	if cache == nil {
		cache = redisx.NopCache{}
	}
	if ttl <= 0 {
		ttl = redisx.TTLViewCache
	}
	return &HistoryReader{
		store: st,
		cache: cache,
		ttl:   ttl,
		log:   slog.Default().With("component", "users"),
	}
}

// GetOrdersByUserID returns every order of the user, oldest first, with items
// resolved against the current catalog. An unknown user has no orders.
func (h *HistoryReader) GetOrdersByUserID(ctx context.Context, userID int64) ([]domain.OrderView, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: userId must be positive", domain.ErrInvalidArgument)
	}

	key := fmt.Sprintf(redisx.KeyUserOrders, userID)
	ch := h.sfg.DoChan(strconv.FormatInt(userID, 10), func() (any, error) {
		// the load is shared by every waiter and outlives the caller that started it
		ctx := context.WithoutCancel(ctx)

		var cached []domain.OrderView
		err := h.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, redisx.ErrCacheMiss) {
			h.log.Warn("history cache read failed", "user_id", userID, "error", err)
		}

		version, verr := h.cache.Version(ctx, key)
		if verr != nil {
			h.log.Warn("history cache version read failed", "user_id", userID, "error", verr)
		}
		views, err := h.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		if verr == nil {
			if _, err := h.cache.SetIfVersion(ctx, key, version, views, h.ttl); err != nil {
				h.log.Warn("history cache write failed", "user_id", userID, "error", err)
			}
		}
		return views, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.OrderView), nil
	}
}

func (h *HistoryReader) load(ctx context.Context, userID int64) ([]domain.OrderView, error) {
	views := []domain.OrderView{}
	err := h.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		orders, err := tx.ListOrdersByUser(ctx, userID)
		if err != nil || len(orders) == 0 {
			return err
		}
		user, err := tx.GetUser(ctx, userID)
		if err != nil && !errors.Is(err, store.ErrNoRecord) {
			return err
		}

		var ids []int64
		for _, o := range orders {
			for _, it := range o.Items {
				ids = append(ids, it.ProductID)
			}
		}
		products, err := tx.GetProducts(ctx, ids)
		if err != nil {
			return err
		}
		for _, o := range orders {
			views = append(views, domain.NewOrderView(o, user, products))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load orders of user %d: %w", userID, err)
	}
	return views, nil
}
