package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ariefcatur/go-cart-orders/internal/cart"
	"github.com/ariefcatur/go-cart-orders/internal/domain"
	"github.com/ariefcatur/go-cart-orders/internal/events"
	"github.com/ariefcatur/go-cart-orders/internal/orders"
	"github.com/ariefcatur/go-cart-orders/internal/store"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pg, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shop"),
		tcpostgres.WithUsername("app"),
		tcpostgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pg.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, Migrate(dsn))
	require.NoError(t, Migrate(dsn), "second run is a no-op")

	db, err := Connect(ctx, dsn, PoolConfig{MaxConns: 4, AppName: "store-test"})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return NewStore(db)
}

func setStock(t *testing.T, s *Store, productID int64, stock int) {
	t.Helper()
	_, err := s.DB.Exec(context.Background(), `UPDATE products SET stock=$2 WHERE id=$1`, productID, stock)
	require.NoError(t, err)
}

func TestStore_SeededCatalog(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	err := s.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Alice Example", u.Name)

		p, err := tx.GetProduct(ctx, 1)
		require.NoError(t, err)
		assert.True(t, p.Price.Equal(decimal.RequireFromString("24.50")))
		assert.Equal(t, 40, p.Stock)

		_, err = tx.GetProduct(ctx, 999)
		assert.ErrorIs(t, err, store.ErrNoRecord)

		_, err = tx.GetCart(ctx, 1)
		assert.ErrorIs(t, err, store.ErrNoRecord)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_AdjustStockGuard(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	setStock(t, s, 2, 1)

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		stock, err := tx.AdjustStock(ctx, 2, -1)
		require.NoError(t, err)
		assert.Equal(t, 0, stock)

		_, err = tx.AdjustStock(ctx, 2, -1)
		assert.ErrorIs(t, err, store.ErrInsufficientStock)

		_, err = tx.AdjustStock(ctx, 999, 1)
		assert.ErrorIs(t, err, store.ErrNoRecord)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_RollbackOnError(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.AdjustStock(ctx, 3, -100); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetProduct(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, 120, p.Stock)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ConcurrentAddsNeverOversell(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	setStock(t, s, 2, 3)
	carts := cart.NewService(s, events.Discard)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := range 20 {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := carts.AddToCart(ctx, domain.AddToCartInput{UserID: user, ProductID: 2})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrOutOfStock)
		}(int64(i%2 + 1))
	}
	wg.Wait()
	assert.Equal(t, 3, ok)

	reserved := 0
	for _, u := range []int64{1, 2} {
		view, err := carts.FindCartByUserID(ctx, u)
		require.NoError(t, err)
		for _, l := range view.Items {
			reserved += l.Quantity
		}
	}
	assert.Equal(t, 3, reserved)

	err := s.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetProduct(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 0, p.Stock)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_CheckoutAndOrderLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	carts := cart.NewService(s, events.Discard)
	ords := orders.NewService(s, events.Discard, orders.WithPolicy(domain.StrictTransitions{}))

	for _, pid := range []int64{1, 1, 3} {
		_, err := carts.AddToCart(ctx, domain.AddToCartInput{UserID: 2, ProductID: pid})
		require.NoError(t, err)
	}
	_, err := carts.UpdateCartItem(ctx, domain.UpdateCartItemInput{UserID: 2, ProductID: 3, Quantity: 0})
	require.NoError(t, err)

	order, err := ords.CreateOrder(ctx, domain.CreateOrderInput{UserID: 2})
	require.NoError(t, err)
	assert.True(t, order.TotalCost.Equal(decimal.RequireFromString("49.00")), order.TotalCost.String())
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, "Bob Example", order.User.Name)

	view, err := carts.FindCartByUserID(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	order, err = ords.ApplyCoupon(ctx, domain.ApplyCouponInput{OrderID: order.ID, Discount: decimal.RequireFromString("0.1")})
	require.NoError(t, err)
	assert.True(t, order.TotalCostAfterDiscount.Decimal.Equal(decimal.RequireFromString("44.10")))

	order, err = ords.UpdateOrderStatus(ctx, domain.UpdateStatusInput{OrderID: order.ID, Status: domain.StatusAccepted})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, order.Status)

	_, err = ords.UpdateOrderStatus(ctx, domain.UpdateStatusInput{OrderID: order.ID, Status: domain.StatusOrdered})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = s.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		list, err := tx.ListOrdersByUser(ctx, 2)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].Discount.Decimal.Equal(decimal.RequireFromString("0.1")))
		assert.Equal(t, []domain.OrderItem{{OrderID: order.ID, ProductID: 1, Quantity: 2}}, list[0].Items)

		p, err := tx.GetProduct(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 38, p.Stock, "checkout keeps the reservation")
		return nil
	})
	require.NoError(t, err)
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db", migrateURL("postgres://u:p@h:5432/db"))
	assert.Equal(t, "pgx5://u:p@h/db", migrateURL("postgresql://u:p@h/db"))
	assert.Equal(t, "pgx5://h/db", migrateURL("pgx5://h/db"))
}
