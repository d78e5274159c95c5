package orders

import "github.com/shopspring/decimal"

// SnapshotItem builds a line item for p, copying the catalog price as it is right now.
func SnapshotItem(id, orderID string, p Product, qty int) OrderItem {
	return OrderItem{
		ID:        id,
		OrderID:   orderID,
		ProductID: p.ID,
		Quantity:  qty,
		UnitPrice: p.Price.Copy(),
	}
}

func LineTotal(qty int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(qty)))
}

func OrderTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(LineTotal(it.Quantity, it.UnitPrice))
	}
	return total
}
