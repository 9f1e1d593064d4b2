package cart

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/ariefcatur/go-cart-orders/internal/domain"
	"github.com/ariefcatur/go-cart-orders/internal/events"
	"github.com/ariefcatur/go-cart-orders/internal/store"
)

// Any sequence of cart operations keeps stock + reserved quantity constant per product.
func TestStockConservation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		mem := store.NewMemoryStore()
		users := []int64{1, 2, 3}
		for _, u := range users {
			mem.PutUser(domain.User{ID: u, Name: fmt.Sprintf("user-%d", u)})
		}
		initial := map[int64]int{}
		for p := int64(1); p <= 3; p++ {
			initial[p] = rapid.IntRange(0, 6).Draw(rt, fmt.Sprintf("stock-%d", p))
			mem.PutProduct(domain.Product{ID: p, Name: fmt.Sprintf("product-%d", p), Price: decimal.NewFromInt(p), Stock: initial[p]})
		}
		svc := NewService(mem, events.Discard)

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for range steps {
			user := rapid.SampledFrom(users).Draw(rt, "user")
			product := rapid.Int64Range(1, 3).Draw(rt, "product")

			var err error
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				_, err = svc.AddToCart(ctx, domain.AddToCartInput{UserID: user, ProductID: product})
			case 1:
				qty := rapid.IntRange(0, 8).Draw(rt, "qty")
				_, err = svc.UpdateCartItem(ctx, domain.UpdateCartItemInput{UserID: user, ProductID: product, Quantity: qty})
			case 2:
				_, err = svc.RemoveProductFromCart(ctx, domain.RemoveFromCartInput{UserID: user, ProductID: product})
			}
			if err != nil && !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrOutOfStock) {
				rt.Fatalf("unexpected error: %v", err)
			}

			total := map[int64]int{}
			err = mem.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
				products, err := tx.GetProducts(ctx, []int64{1, 2, 3})
				if err != nil {
					return err
				}
				for id, p := range products {
					if p.Stock < 0 {
						rt.Fatalf("product %d stock went negative: %d", id, p.Stock)
					}
					total[id] += p.Stock
				}
				return nil
			})
			if err != nil {
				rt.Fatalf("read stock: %v", err)
			}
			for _, u := range users {
				view, err := svc.FindCartByUserID(ctx, u)
				if err != nil {
					rt.Fatalf("find cart: %v", err)
				}
				for _, l := range view.Items {
					if l.Quantity < 1 {
						rt.Fatalf("cart of user %d holds %d of product %d", u, l.Quantity, l.ProductID)
					}
					total[l.ProductID] += l.Quantity
				}
			}
			for id, want := range initial {
				if total[id] != want {
					rt.Fatalf("product %d: stock+reserved = %d, want %d", id, total[id], want)
				}
			}
		}
	})
}
