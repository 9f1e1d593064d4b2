// Package store defines the record-store contract the cart and order managers
// run against. Implementations live in this package (in-memory) and in
// internal/postgres.
package store

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-cart-orders/internal/domain"
)

var (
	ErrNoRecord          = errors.New("record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrReadOnly          = errors.New("write in read-only transaction")
)

// TxFunc is one unit of work. Returning an error discards every write it made.
type TxFunc func(ctx context.Context, tx Tx) error

type Store interface {
	// InTx runs fn in a read-write transaction. Rows read through the Lock*
	// methods stay locked until fn returns.
	InTx(ctx context.Context, fn TxFunc) error
	// ReadOnly runs fn against a consistent snapshot; writes are rejected
	// (ErrReadOnly in memory).
	ReadOnly(ctx context.Context, fn TxFunc) error
}

// Tx is the record-level API shared by every store implementation.
// Lookups of absent rows return ErrNoRecord.
type Tx interface {
	GetUser(ctx context.Context, id int64) (domain.User, error)

	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	LockProduct(ctx context.Context, id int64) (domain.Product, error)
	// GetProducts silently skips unknown ids.
	GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	// AdjustStock adds delta to the product stock and returns the new value.
	// It fails with ErrInsufficientStock rather than letting stock go negative.
	AdjustStock(ctx context.Context, productID int64, delta int) (int, error)

	GetCart(ctx context.Context, userID int64) (domain.Cart, error)
	LockCart(ctx context.Context, userID int64) (domain.Cart, error)
	// EnsureCart returns the user's cart, creating it when absent, and locks it.
	EnsureCart(ctx context.Context, userID int64) (domain.Cart, error)
	// ListCartItems returns items ordered by product id.
	ListCartItems(ctx context.Context, cartID int64) ([]domain.CartItem, error)
	GetCartItem(ctx context.Context, cartID, productID int64) (domain.CartItem, error)
	// IncrementCartItem adds delta to an item, inserting it with quantity delta when absent.
	IncrementCartItem(ctx context.Context, cartID, productID int64, delta int) (domain.CartItem, error)
	SetCartItemQuantity(ctx context.Context, cartID, productID int64, quantity int) error
	DeleteCartItem(ctx context.Context, cartID, productID int64) error
	// ClearCart deletes every item of the cart and returns how many were removed.
	ClearCart(ctx context.Context, cartID int64) (int, error)

	// InsertOrder stores the order with its items and fills in ID and timestamps.
	InsertOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
	LockOrder(ctx context.Context, id int64) (domain.Order, error)
	// ListOrdersByUser returns orders ordered by id, items included.
	ListOrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	// UpdateOrder persists status, discount and discounted total.
	UpdateOrder(ctx context.Context, o *domain.Order) error
}
