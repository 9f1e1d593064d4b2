package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type AddToCartInput struct {
	UserID    int64 `json:"userId"`
	ProductID int64 `json:"productId"`
}

func (in AddToCartInput) Validate() error {
	return validateIDs(in.UserID, in.ProductID)
}

type UpdateCartItemInput struct {
	UserID    int64 `json:"userId"`
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

func (in UpdateCartItemInput) Validate() error {
	if err := validateIDs(in.UserID, in.ProductID); err != nil {
		return err
	}
	if in.Quantity < 0 {
		return fmt.Errorf("%w: new quantity can't be negative", ErrInvalidArgument)
	}
	return nil
}

type RemoveFromCartInput struct {
	UserID    int64 `json:"userId"`
	ProductID int64 `json:"productId"`
}

func (in RemoveFromCartInput) Validate() error {
	return validateIDs(in.UserID, in.ProductID)
}

type CreateOrderInput struct {
	UserID int64 `json:"userId"`
}

func (in CreateOrderInput) Validate() error {
	if in.UserID <= 0 {
		return fmt.Errorf("%w: userId must be positive", ErrInvalidArgument)
	}
	return nil
}

type UpdateStatusInput struct {
	OrderID int64  `json:"orderId"`
	Status  Status `json:"status"`
}

func (in UpdateStatusInput) Validate() error {
	if in.OrderID <= 0 {
		return fmt.Errorf("%w: orderId must be positive", ErrInvalidArgument)
	}
	if !in.Status.Valid() {
		return fmt.Errorf("%w: unknown order status %q", ErrInvalidArgument, in.Status)
	}
	return nil
}

type ApplyCouponInput struct {
	OrderID  int64           `json:"orderId"`
	Discount decimal.Decimal `json:"discount"`
}

func (in ApplyCouponInput) Validate() error {
	if in.OrderID <= 0 {
		return fmt.Errorf("%w: orderId must be positive", ErrInvalidArgument)
	}
	if in.Discount.IsNegative() || in.Discount.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: discount must be between 0 and 1", ErrInvalidArgument)
	}
	return nil
}

func validateIDs(userID, productID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: userId must be positive", ErrInvalidArgument)
	}
	if productID <= 0 {
		return fmt.Errorf("%w: productId must be positive", ErrInvalidArgument)
	}
	return nil
}
