package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownProductName is shown for line items whose product has since been removed.
const UnknownProductName = "Unknown Product"

type OrderView struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	OrderDate   time.Time       `json:"orderDate"`
	Status      Status          `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Items       []OrderItemView `json:"items"`
}

type OrderItemView struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// Project builds the read view of o. names maps product id to display name.
func Project(o Order, names map[string]string) OrderView {
	v := OrderView{
		ID:          o.ID,
		UserID:      o.UserID,
		OrderDate:   o.OrderDate,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		Items:       make([]OrderItemView, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		name, ok := names[it.ProductID]
		if !ok {
			name = UnknownProductName
		}
		v.Items = append(v.Items, OrderItemView{
			ProductID:   it.ProductID,
			ProductName: name,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    LineTotal(it.Quantity, it.UnitPrice),
		})
	}
	return v
}

// projectAll resolves current product names for all orders with one store lookup.
func projectAll(ctx context.Context, store Store, list []Order) ([]OrderView, error) {
	var ids []string
	for _, o := range list {
		for _, it := range o.Items {
			ids = append(ids, it.ProductID)
		}
	}
	names := map[string]string{}
	if ids = uniqueSorted(ids); len(ids) > 0 {
		products, err := store.FindProducts(ctx, ids)
		if err != nil {
			return nil, persistence("find products", err)
		}
		for id, p := range products {
			names[id] = p.Name
		}
	}
	out := make([]OrderView, 0, len(list))
	for _, o := range list {
		out = append(out, Project(o, names))
	}
	return out, nil
}
