package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cacheEntry is the JSON stored under KeyOrder.
type cacheEntry struct {
	Deleted bool          `json:"deleted,omitempty"`
	Order   *orders.Order `json:"order,omitempty"`
}

// OrderCache is a read-through cache of stored orders. Failures are logged and
// treated as misses; the database stays the source of truth.
type OrderCache struct {
	rdb          *redis.Client
	ttl          time.Duration
	tombstoneTTL time.Duration
	log          *zap.Logger
}

func NewOrderCache(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *OrderCache {
	if ttl <= 0 {
		ttl = TTLOrder
	}
	return &OrderCache{rdb: rdb, ttl: ttl, tombstoneTTL: TTLOrderTombstone, log: log}
}

func (c *OrderCache) Get(ctx context.Context, id string) (orders.CacheEntry, bool) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrder, id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("order cache get", zap.String("order_id", id), zap.Error(err))
		}
		return orders.CacheEntry{}, false
	}
	var e cacheEntry
	if err := json.Unmarshal(b, &e); err != nil {
		c.log.Warn("order cache decode", zap.String("order_id", id), zap.Error(err))
		return orders.CacheEntry{}, false
	}
	if e.Deleted {
		return orders.CacheEntry{Deleted: true}, true
	}
	if e.Order == nil {
		return orders.CacheEntry{}, false
	}
	return orders.CacheEntry{Order: *e.Order}, true
}

// Fill uses SET NX: an existing entry, tombstones included, always wins.
func (c *OrderCache) Fill(ctx context.Context, o orders.Order) {
	b, err := json.Marshal(cacheEntry{Order: &o})
	if err != nil {
		c.log.Warn("order cache encode", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	if err := c.rdb.SetNX(ctx, fmt.Sprintf(KeyOrder, o.ID), b, c.ttl).Err(); err != nil {
		c.log.Warn("order cache fill", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (c *OrderCache) Tombstone(ctx context.Context, id string) {
	b, _ := json.Marshal(cacheEntry{Deleted: true})
	if err := c.rdb.Set(ctx, fmt.Sprintf(KeyOrder, id), b, c.tombstoneTTL).Err(); err != nil {
		c.log.Warn("order cache tombstone", zap.String("order_id", id), zap.Error(err))
	}
}
