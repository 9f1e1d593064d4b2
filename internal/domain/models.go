package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID      int64
	Name    string
	Email   string
	Address string
}

// Product.Stock is unreserved inventory; units sitting in carts are already subtracted.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

type Cart struct {
	ID     int64
	UserID int64
}

type CartItem struct {
	CartID    int64
	ProductID int64
	Quantity  int
}

type Order struct {
	ID                     int64
	UserID                 int64
	Status                 Status // see status.go
	TotalCost              decimal.Decimal
	Discount               decimal.NullDecimal
	TotalCostAfterDiscount decimal.NullDecimal
	Items                  []OrderItem
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// OrderItem is written once at checkout and never re-synced with the catalog.
type OrderItem struct {
	OrderID   int64
	ProductID int64
	Quantity  int
}
