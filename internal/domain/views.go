package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductSummary struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

func Summarize(p Product) ProductSummary {
	return ProductSummary{Name: p.Name, Description: p.Description, Price: p.Price}
}

type CartLine struct {
	ProductID int64          `json:"productId"`
	Quantity  int            `json:"quantity"`
	Product   ProductSummary `json:"product"`
}

type CartView struct {
	UserID int64      `json:"userId"`
	Items  []CartLine `json:"items"`
}

type OrderLine struct {
	ProductID int64          `json:"productId"`
	Quantity  int            `json:"quantity"`
	Product   ProductSummary `json:"product"`
}

type OrderOwner struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type OrderView struct {
	ID                     int64               `json:"orderId"`
	UserID                 int64               `json:"userId"`
	Status                 Status              `json:"status"`
	TotalCost              decimal.Decimal     `json:"totalCost"`
	Discount               decimal.NullDecimal `json:"discount"`
	TotalCostAfterDiscount decimal.NullDecimal `json:"totalCostAfterDiscount"`
	CreatedAt              time.Time           `json:"createdAt"`
	UpdatedAt              time.Time           `json:"updatedAt"`
	Items                  []OrderLine         `json:"items"`
	User                   OrderOwner          `json:"user"`
}

// NewOrderView joins an order with the current catalog and its owner.
// Items whose product disappeared keep an empty summary.
func NewOrderView(o Order, u User, products map[int64]Product) OrderView {
	v := OrderView{
		ID:                     o.ID,
		UserID:                 o.UserID,
		Status:                 o.Status,
		TotalCost:              o.TotalCost,
		Discount:               o.Discount,
		TotalCostAfterDiscount: o.TotalCostAfterDiscount,
		CreatedAt:              o.CreatedAt,
		UpdatedAt:              o.UpdatedAt,
		Items:                  make([]OrderLine, 0, len(o.Items)),
		User:                   OrderOwner{Name: u.Name, Address: u.Address},
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, OrderLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Product:   Summarize(products[it.ProductID]),
		})
	}
	return v
}
