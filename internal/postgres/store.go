package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-cart-orders/internal/domain"
	"github.com/ariefcatur/go-cart-orders/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const maxTxAttempts = 3

// Store implements store.Store on Postgres. Mutations lock the touched rows
// with SELECT ... FOR UPDATE; serialization failures and deadlocks are retried.
type Store struct{ DB *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) InTx(ctx context.Context, fn store.TxFunc) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
		if !retryable(err) {
			return err
		}
	}
	return err
}

func (s *Store) ReadOnly(ctx context.Context, fn store.TxFunc) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, fn store.TxFunc) error {
	tx, err := s.DB.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

type pgTx struct{ tx pgx.Tx }

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, store.ErrNoRecord)...)
	}
	return err
}

func (t *pgTx) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	err := t.tx.QueryRow(ctx, `SELECT id, name, email, address FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Address)
	if err != nil {
		return domain.User{}, notFound(err, "user %d", id)
	}
	return u, nil
}

const productCols = `id, name, description, price::text, stock`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock); err != nil {
		return domain.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("decode price of product %d: %w", p.ID, err)
	}
	p.Price = d
	return p, nil
}

func (t *pgTx) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, err := scanProduct(t.tx.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if err != nil {
		return domain.Product{}, notFound(err, "product %d", id)
	}
	return p, nil
}

func (t *pgTx) LockProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, err := scanProduct(t.tx.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return domain.Product{}, notFound(err, "product %d", id)
	}
	return p, nil
}

func (t *pgTx) GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT `+productCols+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (t *pgTx) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	var stock int
	err := t.tx.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2
		WHERE id=$1 AND stock + $2 >= 0
		RETURNING stock`, productID, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	// either the product is gone or the guard rejected the update
	if err := t.tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock); err != nil {
		return 0, notFound(err, "product %d", productID)
	}
	return stock, fmt.Errorf("product %d has %d, needs %d: %w", productID, stock, -delta, store.ErrInsufficientStock)
}

func (t *pgTx) GetCart(ctx context.Context, userID int64) (domain.Cart, error) {
	var c domain.Cart
	err := t.tx.QueryRow(ctx, `SELECT id, user_id FROM carts WHERE user_id=$1`, userID).Scan(&c.ID, &c.UserID)
	if err != nil {
		return domain.Cart{}, notFound(err, "cart of user %d", userID)
	}
	return c, nil
}

func (t *pgTx) LockCart(ctx context.Context, userID int64) (domain.Cart, error) {
	var c domain.Cart
	err := t.tx.QueryRow(ctx, `SELECT id, user_id FROM carts WHERE user_id=$1 FOR UPDATE`, userID).Scan(&c.ID, &c.UserID)
	if err != nil {
		return domain.Cart{}, notFound(err, "cart of user %d", userID)
	}
	return c, nil
}

func (t *pgTx) EnsureCart(ctx context.Context, userID int64) (domain.Cart, error) {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO carts(user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return domain.Cart{}, err
	}
	return t.LockCart(ctx, userID)
}

func (t *pgTx) ListCartItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT cart_id, product_id, quantity FROM cart_products
		WHERE cart_id=$1 ORDER BY product_id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CartItem
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.CartID, &it.ProductID, &it.Quantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (t *pgTx) GetCartItem(ctx context.Context, cartID, productID int64) (domain.CartItem, error) {
	it := domain.CartItem{CartID: cartID, ProductID: productID}
	err := t.tx.QueryRow(ctx, `
		SELECT quantity FROM cart_products
		WHERE cart_id=$1 AND product_id=$2`, cartID, productID).Scan(&it.Quantity)
	if err != nil {
		return domain.CartItem{}, notFound(err, "item %d in cart %d", productID, cartID)
	}
	return it, nil
}

func (t *pgTx) IncrementCartItem(ctx context.Context, cartID, productID int64, delta int) (domain.CartItem, error) {
	it := domain.CartItem{CartID: cartID, ProductID: productID}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO cart_products(cart_id, product_id, quantity)
		VALUES ($1,$2,$3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_products.quantity + EXCLUDED.quantity
		RETURNING quantity`, cartID, productID, delta).Scan(&it.Quantity)
	if err != nil {
		return domain.CartItem{}, err
	}
	return it, nil
}

func (t *pgTx) SetCartItemQuantity(ctx context.Context, cartID, productID int64, quantity int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE cart_products SET quantity=$3
		WHERE cart_id=$1 AND product_id=$2`, cartID, productID, quantity)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("item %d in cart %d: %w", productID, cartID, store.ErrNoRecord)
	}
	return nil
}

func (t *pgTx) DeleteCartItem(ctx context.Context, cartID, productID int64) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM cart_products WHERE cart_id=$1 AND product_id=$2`, cartID, productID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("item %d in cart %d: %w", productID, cartID, store.ErrNoRecord)
	}
	return nil
}

func (t *pgTx) ClearCart(ctx context.Context, cartID int64) (int, error) {
	ct, err := t.tx.Exec(ctx, `DELETE FROM cart_products WHERE cart_id=$1`, cartID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders(user_id, status, total_cost, discount, total_cost_after_discount)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric)
		RETURNING id, created_at, updated_at`,
		o.UserID, string(o.Status), o.TotalCost.String(),
		nullDecimalArg(o.Discount), nullDecimalArg(o.TotalCostAfterDiscount),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	_, err = t.tx.CopyFrom(ctx,
		pgx.Identifier{"order_products"},
		[]string{"order_id", "product_id", "quantity"},
		pgx.CopyFromSlice(len(o.Items), func(i int) ([]any, error) {
			it := o.Items[i]
			return []any{it.OrderID, it.ProductID, it.Quantity}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

const orderCols = `id, user_id, status, total_cost::text, discount::text, total_cost_after_discount::text, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                   domain.Order
		status, total       string
		discount, afterDisc *string
	)
	if err := row.Scan(&o.ID, &o.UserID, &status, &total, &discount, &afterDisc, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.Status(status)

	var err error
	if o.TotalCost, err = decimal.NewFromString(total); err != nil {
		return domain.Order{}, fmt.Errorf("decode total of order %d: %w", o.ID, err)
	}
	if o.Discount, err = parseNullDecimal(discount); err != nil {
		return domain.Order{}, fmt.Errorf("decode discount of order %d: %w", o.ID, err)
	}
	if o.TotalCostAfterDiscount, err = parseNullDecimal(afterDisc); err != nil {
		return domain.Order{}, fmt.Errorf("decode discounted total of order %d: %w", o.ID, err)
	}
	return o, nil
}

func (t *pgTx) getOrder(ctx context.Context, query string, id int64) (domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Order{}, notFound(err, "order %d", id)
	}
	items, err := t.orderItems(ctx, []int64{o.ID})
	if err != nil {
		return domain.Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (t *pgTx) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	return t.getOrder(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id)
}

func (t *pgTx) LockOrder(ctx context.Context, id int64) (domain.Order, error) {
	return t.getOrder(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (t *pgTx) ListOrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+orderCols+` FROM orders WHERE user_id=$1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	var (
		out []domain.Order
		ids []int64
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := t.orderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (t *pgTx) orderItems(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	out := make(map[int64][]domain.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT order_id, product_id, quantity FROM order_products
		WHERE order_id = ANY($1) ORDER BY order_id, product_id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.Quantity); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE orders
		SET status=$2, discount=$3::numeric, total_cost_after_discount=$4::numeric, updated_at=now()
		WHERE id=$1
		RETURNING updated_at`,
		o.ID, string(o.Status), nullDecimalArg(o.Discount), nullDecimalArg(o.TotalCostAfterDiscount),
	).Scan(&o.UpdatedAt)
	if err != nil {
		return notFound(err, "order %d", o.ID)
	}
	return nil
}

func nullDecimalArg(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseNullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
