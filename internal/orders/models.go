package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID       string
	Username string
	Email    string
}

type Product struct {
	ID            string
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
}

type Order struct {
	ID          string
	UserID      string
	OrderDate   time.Time
	Status      Status // lihat status.go
	TotalAmount decimal.Decimal
	Items       []OrderItem // urutan = urutan input
}

type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal // snapshot harga saat order dibuat
}

// ItemInput adalah satu baris permintaan order.
type ItemInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderCommand struct {
	UserID string      `json:"userId"`
	Items  []ItemInput `json:"items"`
}
