package cart

import (
	"context"
	"strconv"

	"github.com/ariefcatur/go-cart-orders/internal/domain"
	"github.com/ariefcatur/go-cart-orders/internal/events"
	"github.com/ariefcatur/go-cart-orders/internal/store"
)

// line is one cart item together with its cart and the product it reserves.
type line struct {
	cart    domain.Cart
	item    domain.CartItem
	product domain.Product
}

func lookupLine(ctx context.Context, tx store.Tx, userID, productID int64, lock bool) (line, error) {
	var (
		ln  line
		err error
	)
	if lock {
		ln.cart, err = tx.LockCart(ctx, userID)
	} else {
		ln.cart, err = tx.GetCart(ctx, userID)
	}
	if err != nil {
		return line{}, store.AsNotFound(err, "cart item for user %d with product %d not found", userID, productID)
	}

	ln.item, err = tx.GetCartItem(ctx, ln.cart.ID, productID)
	if err != nil {
		return line{}, store.AsNotFound(err, "product %d not found in cart for user %d", productID, userID)
	}

	if lock {
		ln.product, err = tx.LockProduct(ctx, productID)
	} else {
		ln.product, err = tx.GetProduct(ctx, productID)
	}
	if err != nil {
		return line{}, store.AsNotFound(err, "product %d not found", productID)
	}
	return ln, nil
}

// fits is false exactly when the increase exceeds the unreserved stock.
func fits(ln line, newQuantity int) bool {
	return newQuantity-ln.item.Quantity <= ln.product.Stock
}

func emptyView(userID int64) domain.CartView {
	return domain.CartView{UserID: userID, Items: []domain.CartLine{}}
}

func loadView(ctx context.Context, tx store.Tx, cart domain.Cart) (domain.CartView, error) {
	items, err := tx.ListCartItems(ctx, cart.ID)
	if err != nil {
		return domain.CartView{}, err
	}
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := tx.GetProducts(ctx, ids)
	if err != nil {
		return domain.CartView{}, err
	}

	view := emptyView(cart.UserID)
	for _, it := range items {
		view.Items = append(view.Items, domain.CartLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Product:   domain.Summarize(products[it.ProductID]),
		})
	}
	return view, nil
}

func reserved(cart domain.Cart, productID int64, delta, quantity, stock int) events.Message {
	return cartEvent(events.TopicCartItemReserved, events.EventCartItemReserved, cart, productID, delta, quantity, stock)
}

func released(cart domain.Cart, productID int64, delta, quantity, stock int) events.Message {
	return cartEvent(events.TopicCartItemReleased, events.EventCartItemReleased, cart, productID, delta, quantity, stock)
}

func cartEvent(topic, typ string, cart domain.Cart, productID int64, delta, quantity, stock int) events.Message {
	return events.Message{
		Topic:         topic,
		Key:           events.ProductKey(productID),
		EventType:     typ,
		CorrelationID: strconv.FormatInt(productID, 10),
		Payload: events.CartItemChangedPayload{
			UserID:    cart.UserID,
			CartID:    cart.ID,
			ProductID: productID,
			Delta:     delta,
			Quantity:  quantity,
			Stock:     stock,
		},
	}
}
