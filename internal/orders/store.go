package orders

import (
	"context"
)

// Store is the persistence collaborator. Reads outside a transaction see only
// committed data.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	// LoadOrder returns the order with its items in insertion order, or ErrNotFound.
	LoadOrder(ctx context.Context, id string) (Order, error)
	LoadOrdersByUser(ctx context.Context, userID string) ([]Order, error)
	// FindProducts returns the products that exist among ids, keyed by id.
	FindProducts(ctx context.Context, ids []string) (map[string]Product, error)
}

// Tx is a transactional scope. Rollback after Commit must be a no-op so callers
// can always `defer tx.Rollback(ctx)`.
type Tx interface {
	FindUser(ctx context.Context, id string) (User, error)
	// LockProducts locks the existing products among ids against concurrent writers
	// until the transaction ends and returns them keyed by id. Missing ids are omitted.
	LockProducts(ctx context.Context, ids []string) (map[string]Product, error)
	SaveProduct(ctx context.Context, p Product) error
	// SaveOrder writes the order and all its items as one unit.
	SaveOrder(ctx context.Context, o Order) error
	// LockOrder loads and locks the order with its items, or returns ErrNotFound.
	LockOrder(ctx context.Context, id string) (Order, error)
	// DeleteOrder deletes the items first, then the order.
	DeleteOrder(ctx context.Context, o Order) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// CacheEntry is what a Cache holds for an order id: the stored order, or a
// tombstone left by a delete.
type CacheEntry struct {
	Order   Order
	Deleted bool
}

// Cache keeps stored orders by id. Product names are not cached; they are
// resolved on every read. Implementations swallow their own errors.
type Cache interface {
	Get(ctx context.Context, id string) (CacheEntry, bool)
	// Fill stores o only when nothing is cached under its id, so a fill racing a
	// delete cannot overwrite the tombstone.
	Fill(ctx context.Context, o Order)
	// Tombstone marks id as deleted, replacing whatever is cached.
	Tombstone(ctx context.Context, id string)
}

// Publisher emits domain events after commit.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (CacheEntry, bool) { return CacheEntry{}, false }
func (nopCache) Fill(context.Context, Order)                    {}
func (nopCache) Tombstone(context.Context, string)              {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
