package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ariefcatur/go-cart-orders/internal/domain"
)

type cartKey struct{ cartID, productID int64 }

type memState struct {
	users     map[int64]domain.User
	products  map[int64]domain.Product
	carts     map[int64]domain.Cart // userID -> cart
	cartItems map[cartKey]int
	orders    map[int64]domain.Order

	nextCartID  int64
	nextOrderID int64
}

func (s *memState) clone() *memState {
	c := &memState{
		users:       maps.Clone(s.users),
		products:    maps.Clone(s.products),
		carts:       maps.Clone(s.carts),
		cartItems:   maps.Clone(s.cartItems),
		orders:      make(map[int64]domain.Order, len(s.orders)),
		nextCartID:  s.nextCartID,
		nextOrderID: s.nextOrderID,
	}
	for id, o := range s.orders {
		o.Items = slices.Clone(o.Items)
		c.orders[id] = o
	}
	return c
}

// MemoryStore implements Store in process memory. Writers are serialized and
// work on a private copy that replaces the committed state only when the unit
// of work succeeds.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			users:     make(map[int64]domain.User),
			products:  make(map[int64]domain.Product),
			carts:     make(map[int64]domain.Cart),
			cartItems: make(map[cartKey]int),
			orders:    make(map[int64]domain.Order),
		},
		now: time.Now,
	}
}

// PutUser inserts or replaces a user (used for seeding).
func (m *MemoryStore) PutUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[u.ID] = u
}

// PutProduct inserts or replaces a catalog product (used for seeding).
func (m *MemoryStore) PutProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[p.ID] = p
}

func (m *MemoryStore) InTx(ctx context.Context, fn TxFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{s: m.state.clone(), now: m.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.s
	return nil
}

func (m *MemoryStore) ReadOnly(ctx context.Context, fn TxFunc) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &memTx{s: m.state, readOnly: true, now: m.now})
}

type memTx struct {
	s        *memState
	readOnly bool
	now      func() time.Time
}

func (t *memTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *memTx) GetUser(_ context.Context, id int64) (domain.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %d: %w", id, ErrNoRecord)
	}
	return u, nil
}

func (t *memTx) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	p, ok := t.s.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %d: %w", id, ErrNoRecord)
	}
	return p, nil
}

func (t *memTx) LockProduct(ctx context.Context, id int64) (domain.Product, error) {
	return t.GetProduct(ctx, id)
}

func (t *memTx) GetProducts(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) AdjustStock(_ context.Context, productID int64, delta int) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	p, ok := t.s.products[productID]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", productID, ErrNoRecord)
	}
	if p.Stock+delta < 0 {
		return p.Stock, fmt.Errorf("product %d has %d, needs %d: %w", productID, p.Stock, -delta, ErrInsufficientStock)
	}
	p.Stock += delta
	t.s.products[productID] = p
	return p.Stock, nil
}

func (t *memTx) GetCart(_ context.Context, userID int64) (domain.Cart, error) {
	c, ok := t.s.carts[userID]
	if !ok {
		return domain.Cart{}, fmt.Errorf("cart of user %d: %w", userID, ErrNoRecord)
	}
	return c, nil
}

func (t *memTx) LockCart(ctx context.Context, userID int64) (domain.Cart, error) {
	return t.GetCart(ctx, userID)
}

func (t *memTx) EnsureCart(_ context.Context, userID int64) (domain.Cart, error) {
	if c, ok := t.s.carts[userID]; ok {
		return c, nil
	}
	if err := t.writable(); err != nil {
		return domain.Cart{}, err
	}
	t.s.nextCartID++
	c := domain.Cart{ID: t.s.nextCartID, UserID: userID}
	t.s.carts[userID] = c
	return c, nil
}

func (t *memTx) ListCartItems(_ context.Context, cartID int64) ([]domain.CartItem, error) {
	var items []domain.CartItem
	for k, q := range t.s.cartItems {
		if k.cartID == cartID {
			items = append(items, domain.CartItem{CartID: cartID, ProductID: k.productID, Quantity: q})
		}
	}
	slices.SortFunc(items, func(a, b domain.CartItem) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return items, nil
}

func (t *memTx) GetCartItem(_ context.Context, cartID, productID int64) (domain.CartItem, error) {
	q, ok := t.s.cartItems[cartKey{cartID, productID}]
	if !ok {
		return domain.CartItem{}, fmt.Errorf("item %d in cart %d: %w", productID, cartID, ErrNoRecord)
	}
	return domain.CartItem{CartID: cartID, ProductID: productID, Quantity: q}, nil
}

func (t *memTx) IncrementCartItem(_ context.Context, cartID, productID int64, delta int) (domain.CartItem, error) {
	if err := t.writable(); err != nil {
		return domain.CartItem{}, err
	}
	k := cartKey{cartID, productID}
	t.s.cartItems[k] += delta
	return domain.CartItem{CartID: cartID, ProductID: productID, Quantity: t.s.cartItems[k]}, nil
}

func (t *memTx) SetCartItemQuantity(_ context.Context, cartID, productID int64, quantity int) error {
	if err := t.writable(); err != nil {
		return err
	}
	k := cartKey{cartID, productID}
	if _, ok := t.s.cartItems[k]; !ok {
		return fmt.Errorf("item %d in cart %d: %w", productID, cartID, ErrNoRecord)
	}
	t.s.cartItems[k] = quantity
	return nil
}

func (t *memTx) DeleteCartItem(_ context.Context, cartID, productID int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	k := cartKey{cartID, productID}
	if _, ok := t.s.cartItems[k]; !ok {
		return fmt.Errorf("item %d in cart %d: %w", productID, cartID, ErrNoRecord)
	}
	delete(t.s.cartItems, k)
	return nil
}

func (t *memTx) ClearCart(_ context.Context, cartID int64) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for k := range t.s.cartItems {
		if k.cartID == cartID {
			delete(t.s.cartItems, k)
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *domain.Order) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.s.nextOrderID++
	now := t.now().UTC()
	o.ID = t.s.nextOrderID
	o.CreatedAt, o.UpdatedAt = now, now
	o.Items = slices.Clone(o.Items)
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	stored := *o
	stored.Items = slices.Clone(o.Items)
	t.s.orders[o.ID] = stored
	return nil
}

func (t *memTx) GetOrder(_ context.Context, id int64) (domain.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %d: %w", id, ErrNoRecord)
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (t *memTx) LockOrder(ctx context.Context, id int64) (domain.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *memTx) ListOrdersByUser(_ context.Context, userID int64) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range t.s.orders {
		if o.UserID == userID {
			o.Items = slices.Clone(o.Items)
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b domain.Order) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *domain.Order) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.s.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %d: %w", o.ID, ErrNoRecord)
	}
	cur.Status = o.Status
	cur.Discount = o.Discount
	cur.TotalCostAfterDiscount = o.TotalCostAfterDiscount
	cur.UpdatedAt = t.now().UTC()
	t.s.orders[o.ID] = cur
	o.UpdatedAt = cur.UpdatedAt
	return nil
}
