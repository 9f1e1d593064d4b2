// Package cart owns the reservation side of the shop: every unit sitting in a
// cart has already been taken out of Product.Stock, so for each product
//
//	stock + Σ cart quantities = stock at catalog load
//
// holds after every operation. Each mutation reads, checks and writes inside
// one store transaction; the cart row is locked before the product row.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ariefcatur/go-cart-orders/internal/domain"
	"github.com/ariefcatur/go-cart-orders/internal/events"
	"github.com/ariefcatur/go-cart-orders/internal/store"
)

type Service struct {
	store  store.Store
	events events.Publisher
	log    *slog.Logger
}

func NewService(st store.Store, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Discard
	}
	return &Service{
		store:  st,
		events: pub,
		log:    slog.Default().With("component", "cart"),
	}
}

// AddToCart reserves one unit of the product for the user.
func (s *Service) AddToCart(ctx context.Context, in domain.AddToCartInput) (domain.CartView, error) {
	if err := in.Validate(); err != nil {
		return domain.CartView{}, err
	}

	var (
		view domain.CartView
		ev   events.Message
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetUser(ctx, in.UserID); err != nil {
			return store.AsNotFound(err, "user with ID %d not found", in.UserID)
		}
		cart, err := tx.EnsureCart(ctx, in.UserID)
		if err != nil {
			return fmt.Errorf("ensure cart: %w", err)
		}
		product, err := tx.LockProduct(ctx, in.ProductID)
		if err != nil {
			return store.AsNotFound(err, "product with ID %d not found", in.ProductID)
		}
		if product.Stock <= 0 {
			return fmt.Errorf("%w: product %s is out of stock", domain.ErrOutOfStock, product.Name)
		}

		item, err := tx.IncrementCartItem(ctx, cart.ID, product.ID, 1)
		if err != nil {
			return fmt.Errorf("increment cart item: %w", err)
		}
		stock, err := s.adjustStock(ctx, tx, product, -1)
		if err != nil {
			return err
		}

		ev = reserved(cart, product.ID, 1, item.Quantity, stock)
		view, err = loadView(ctx, tx, cart)
		return err
	})
	if err != nil {
		return domain.CartView{}, err
	}

	s.publish(ctx, ev)
	return view, nil
}

// FindCartByUserID returns the user's cart, empty when none was created yet.
func (s *Service) FindCartByUserID(ctx context.Context, userID int64) (domain.CartView, error) {
	var view domain.CartView
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return store.AsNotFound(err, "user with ID %d not found", userID)
		}
		cart, err := tx.GetCart(ctx, userID)
		if errors.Is(err, store.ErrNoRecord) {
			view = emptyView(userID)
			return nil
		}
		if err != nil {
			return err
		}
		view, err = loadView(ctx, tx, cart)
		return err
	})
	return view, err
}

// CanApplyQuantityChange reports whether the user's cart item for productID
// may be set to newQuantity: increases must fit in the unreserved stock,
// decreases always fit.
func (s *Service) CanApplyQuantityChange(ctx context.Context, userID, productID int64, newQuantity int) (bool, error) {
	var ok bool
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		ln, err := lookupLine(ctx, tx, userID, productID, false)
		if err != nil {
			return err
		}
		ok = fits(ln, newQuantity)
		return nil
	})
	return ok, err
}

// UpdateCartItem sets the reserved quantity and moves the difference between
// the cart and the product stock. Quantity 0 removes the item.
func (s *Service) UpdateCartItem(ctx context.Context, in domain.UpdateCartItemInput) (domain.CartView, error) {
	if err := in.Validate(); err != nil {
		return domain.CartView{}, err
	}

	var (
		view domain.CartView
		ev   *events.Message
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ev = nil
		if _, err := tx.GetUser(ctx, in.UserID); err != nil {
			return store.AsNotFound(err, "user with ID %d not found", in.UserID)
		}
		ln, err := lookupLine(ctx, tx, in.UserID, in.ProductID, true)
		if err != nil {
			return err
		}
		if !fits(ln, in.Quantity) {
			return fmt.Errorf("%w: cannot apply the requested change in quantity for product %d: %d more requested, %d available",
				domain.ErrOutOfStock, in.ProductID, in.Quantity-ln.item.Quantity, ln.product.Stock)
		}

		if in.Quantity == 0 {
			err = tx.DeleteCartItem(ctx, ln.cart.ID, in.ProductID)
		} else {
			err = tx.SetCartItemQuantity(ctx, ln.cart.ID, in.ProductID, in.Quantity)
		}
		if err != nil {
			return fmt.Errorf("write cart item: %w", err)
		}

		delta := in.Quantity - ln.item.Quantity
		if delta != 0 {
			stock, err := s.adjustStock(ctx, tx, ln.product, -delta)
			if err != nil {
				return err
			}
			var m events.Message
			if delta > 0 {
				m = reserved(ln.cart, in.ProductID, delta, in.Quantity, stock)
			} else {
				m = released(ln.cart, in.ProductID, -delta, in.Quantity, stock)
			}
			ev = &m
		}

		view, err = loadView(ctx, tx, ln.cart)
		return err
	})
	if err != nil {
		return domain.CartView{}, err
	}

	if ev != nil {
		s.publish(ctx, *ev)
	}
	return view, nil
}

// RemoveProductFromCart drops the item and gives its whole quantity back to stock.
func (s *Service) RemoveProductFromCart(ctx context.Context, in domain.RemoveFromCartInput) (domain.CartView, error) {
	if err := in.Validate(); err != nil {
		return domain.CartView{}, err
	}

	var (
		view domain.CartView
		ev   events.Message
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetUser(ctx, in.UserID); err != nil {
			return store.AsNotFound(err, "user with ID %d not found", in.UserID)
		}
		ln, err := lookupLine(ctx, tx, in.UserID, in.ProductID, true)
		if err != nil {
			return err
		}
		if err := tx.DeleteCartItem(ctx, ln.cart.ID, in.ProductID); err != nil {
			return store.AsNotFound(err, "product %d not found in cart for user %d", in.ProductID, in.UserID)
		}
		stock, err := s.adjustStock(ctx, tx, ln.product, ln.item.Quantity)
		if err != nil {
			return err
		}

		ev = released(ln.cart, in.ProductID, ln.item.Quantity, 0, stock)
		view, err = loadView(ctx, tx, ln.cart)
		return err
	})
	if err != nil {
		return domain.CartView{}, err
	}

	s.publish(ctx, ev)
	return view, nil
}

func (s *Service) adjustStock(ctx context.Context, tx store.Tx, p domain.Product, delta int) (int, error) {
	stock, err := tx.AdjustStock(ctx, p.ID, delta)
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return 0, fmt.Errorf("%w: product %s is out of stock", domain.ErrOutOfStock, p.Name)
	case err != nil:
		return 0, store.AsNotFound(err, "product with ID %d not found", p.ID)
	}
	return stock, nil
}

func (s *Service) publish(ctx context.Context, msgs ...events.Message) {
	if err := s.events.Publish(ctx, msgs...); err != nil {
		s.log.Warn("publish cart event", "error", err)
	}
}
