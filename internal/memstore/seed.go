package memstore

import (
	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/shopspring/decimal"
)

// Seed loads the same sample catalog as the postgres seed.sql.
func Seed(s *Store) {
	s.PutUser(orders.User{ID: "6f1c0a52-2d5e-4a8e-9a43-0d6a1b7c9e01", Username: "alice", Email: "alice@example.com"})
	s.PutUser(orders.User{ID: "6f1c0a52-2d5e-4a8e-9a43-0d6a1b7c9e02", Username: "bob", Email: "bob@example.com"})

	s.PutProduct(orders.Product{
		ID: "b7e3c1d0-5f2a-4c6b-8e91-3a4d5c6b7a01", Name: "Mechanical Keyboard",
		Description: "87-key, brown switches", Price: decimal.RequireFromString("100.00"), StockQuantity: 10,
	})
	s.PutProduct(orders.Product{
		ID: "b7e3c1d0-5f2a-4c6b-8e91-3a4d5c6b7a02", Name: "Wireless Mouse",
		Description: "2.4GHz, 1600 dpi", Price: decimal.RequireFromString("50.00"), StockQuantity: 25,
	})
	s.PutProduct(orders.Product{
		ID: "b7e3c1d0-5f2a-4c6b-8e91-3a4d5c6b7a03", Name: "27\" Monitor",
		Description: "2560x1440 IPS", Price: decimal.RequireFromString("1299.99"), StockQuantity: 3,
	})
}
