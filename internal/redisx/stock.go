package redisx

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Dedup remembers processed event ids per consuming service.
type Dedup struct {
	rdb     *redis.Client
	service string
}

func NewDedup(rdb *redis.Client, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service}
}

// Seen marks eventID and reports whether it was already marked.
func (d *Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, d.service, eventID), "1", TTLDedup).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Forget unmarks eventID so the next attempt at the same message is applied.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, d.service, eventID)).Err()
}

// LowStock is the hash of products at or under the alert threshold.
type LowStock struct {
	rdb *redis.Client
}

func NewLowStock(rdb *redis.Client) *LowStock { return &LowStock{rdb: rdb} }

func (l *LowStock) Set(ctx context.Context, productID string, level int) error {
	return l.rdb.HSet(ctx, KeyLowStock, productID, level).Err()
}

func (l *LowStock) Clear(ctx context.Context, productID string) error {
	return l.rdb.HDel(ctx, KeyLowStock, productID).Err()
}

func (l *LowStock) All(ctx context.Context) (map[string]int, error) {
	m, err := l.rdb.HGetAll(ctx, KeyLowStock).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("stock level for %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}
