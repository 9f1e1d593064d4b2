package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestUpdateCartItemInput_Validate(t *testing.T) {
	assert.NoError(t, UpdateCartItemInput{UserID: 1, ProductID: 2, Quantity: 0}.Validate())
	assert.NoError(t, UpdateCartItemInput{UserID: 1, ProductID: 2, Quantity: 7}.Validate())
	assert.ErrorIs(t, UpdateCartItemInput{UserID: 1, ProductID: 2, Quantity: -1}.Validate(), ErrInvalidArgument)
	assert.ErrorIs(t, UpdateCartItemInput{UserID: 0, ProductID: 2}.Validate(), ErrInvalidArgument)
	assert.ErrorIs(t, UpdateCartItemInput{UserID: 1, ProductID: -3}.Validate(), ErrInvalidArgument)
}

func TestApplyCouponInput_Validate(t *testing.T) {
	ok := []string{"0", "0.2", "1", "0.999"}
	for _, d := range ok {
		in := ApplyCouponInput{OrderID: 1, Discount: decimal.RequireFromString(d)}
		assert.NoError(t, in.Validate(), d)
	}

	bad := []string{"-0.01", "1.5", "1.0001", "-1"}
	for _, d := range bad {
		in := ApplyCouponInput{OrderID: 1, Discount: decimal.RequireFromString(d)}
		assert.ErrorIs(t, in.Validate(), ErrInvalidArgument, d)
	}

	assert.ErrorIs(t, ApplyCouponInput{OrderID: 0}.Validate(), ErrInvalidArgument)
}

func TestUpdateStatusInput_Validate(t *testing.T) {
	assert.NoError(t, UpdateStatusInput{OrderID: 3, Status: StatusShipping}.Validate())
	assert.ErrorIs(t, UpdateStatusInput{OrderID: 3, Status: "RETURNED"}.Validate(), ErrInvalidArgument)
	assert.ErrorIs(t, UpdateStatusInput{OrderID: 0, Status: StatusShipping}.Validate(), ErrInvalidArgument)
}

func TestNewOrderView(t *testing.T) {
	o := Order{
		ID: 9, UserID: 1, Status: StatusOrdered,
		TotalCost: decimal.NewFromInt(30),
		Items: []OrderItem{
			{OrderID: 9, ProductID: 1, Quantity: 2},
			{OrderID: 9, ProductID: 2, Quantity: 1},
		},
	}
	u := User{ID: 1, Name: "Ada", Address: "12 Analytical St"}
	products := map[int64]Product{
		1: {ID: 1, Name: "Pen", Price: decimal.NewFromInt(10)},
	}

	v := NewOrderView(o, u, products)
	assert.Equal(t, int64(9), v.ID)
	assert.Equal(t, "Ada", v.User.Name)
	assert.Len(t, v.Items, 2)
	assert.Equal(t, "Pen", v.Items[0].Product.Name)
	assert.Equal(t, "", v.Items[1].Product.Name)
}
