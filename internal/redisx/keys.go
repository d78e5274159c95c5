package redisx

import "time"

const (
	// Cache order: order:{order_id} -> JSON {"order": orders.Order} atau {"deleted": true}
	KeyOrder = "order:%s"

	// Idempotency create order: idem:order:create:{key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Hash product_id -> stock level, untuk produk yang stoknya menipis
	KeyLowStock = "stock:low"
)

var (
	TTLOrder          = 5 * time.Minute
	TTLOrderTombstone = 10 * time.Minute
	TTLIdempotency    = 24 * time.Hour
	TTLDedup          = 48 * time.Hour
)
