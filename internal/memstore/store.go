// Package memstore is an in-memory orders.Store. A transaction holds the store's
// write lock from Begin until Commit or Rollback, so transactions are serial.
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

var ErrTxDone = errors.New("memstore: transaction already committed or rolled back")

type Store struct {
	mu       sync.RWMutex
	users    map[string]orders.User
	products map[string]orders.Product
	orders   map[string]orders.Order
	byUser   map[string][]string // order ids, insertion order
}

func New() *Store {
	return &Store{
		users:    map[string]orders.User{},
		products: map[string]orders.Product{},
		orders:   map[string]orders.Order{},
		byUser:   map[string][]string{},
	}
}

func (s *Store) PutUser(u orders.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutProduct inserts or replaces a catalog entry.
func (s *Store) PutProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) RemoveProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

// Product returns the committed state of a product.
func (s *Store) Product(id string) (orders.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

func (s *Store) Begin(ctx context.Context) (orders.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &tx{
		s:        s,
		products: map[string]orders.Product{},
		saved:    map[string]orders.Order{},
		deleted:  map[string]struct{}{},
	}, nil
}

func (s *Store) LoadOrder(ctx context.Context, id string) (orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) LoadOrdersByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byUser[userID]
	out := make([]orders.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneOrder(s.orders[id]))
	}
	return out, nil
}

func (s *Store) FindProducts(ctx context.Context, ids []string) (map[string]orders.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]orders.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// tx buffers writes and applies them on Commit.
type tx struct {
	s        *Store
	done     bool
	products map[string]orders.Product
	saved    map[string]orders.Order
	savedSeq []string
	deleted  map[string]struct{}
}

func (t *tx) check(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	return ctx.Err()
}

func (t *tx) FindUser(ctx context.Context, id string) (orders.User, error) {
	if err := t.check(ctx); err != nil {
		return orders.User{}, err
	}
	u, ok := t.s.users[id]
	if !ok {
		return orders.User{}, orders.ErrNotFound
	}
	return u, nil
}

func (t *tx) product(id string) (orders.Product, bool) {
	if p, ok := t.products[id]; ok {
		return p, true
	}
	p, ok := t.s.products[id]
	return p, ok
}

func (t *tx) LockProducts(ctx context.Context, ids []string) (map[string]orders.Product, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]orders.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.product(id); ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *tx) SaveProduct(ctx context.Context, p orders.Product) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.product(p.ID); !ok {
		return orders.ErrNotFound
	}
	if p.StockQuantity < 0 {
		return errors.New("memstore: stock_quantity must not be negative")
	}
	t.products[p.ID] = p
	return nil
}

func (t *tx) SaveOrder(ctx context.Context, o orders.Order) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.s.users[o.UserID]; !ok {
		return errors.New("memstore: order references unknown user")
	}
	if _, dup := t.s.orders[o.ID]; dup {
		return errors.New("memstore: duplicate order id")
	}
	t.saved[o.ID] = cloneOrder(o)
	t.savedSeq = append(t.savedSeq, o.ID)
	return nil
}

func (t *tx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	if err := t.check(ctx); err != nil {
		return orders.Order{}, err
	}
	if _, gone := t.deleted[id]; gone {
		return orders.Order{}, orders.ErrNotFound
	}
	if o, ok := t.saved[id]; ok {
		return cloneOrder(o), nil
	}
	o, ok := t.s.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (t *tx) DeleteOrder(ctx context.Context, o orders.Order) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.saved[o.ID]; ok {
		delete(t.saved, o.ID)
		return nil
	}
	if _, ok := t.s.orders[o.ID]; !ok {
		return orders.ErrNotFound
	}
	t.deleted[o.ID] = struct{}{}
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	defer t.finish()
	if err := ctx.Err(); err != nil {
		return err
	}
	s := t.s
	for id, p := range t.products {
		s.products[id] = p
	}
	for id := range t.deleted {
		o := s.orders[id]
		delete(s.orders, id)
		s.byUser[o.UserID] = without(s.byUser[o.UserID], id)
	}
	for _, id := range t.savedSeq {
		o, ok := t.saved[id]
		if !ok {
			continue
		}
		s.orders[id] = o
		s.byUser[o.UserID] = append(s.byUser[o.UserID], id)
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.s.mu.Unlock()
}

func cloneOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	return o
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
