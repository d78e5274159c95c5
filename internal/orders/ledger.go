package orders

import (
	"context"
	"sort"
)

// Ledger is the inventory view of one transaction. Every product it touches is
// locked up front in ascending id order, so two transactions over overlapping
// products always acquire their locks in the same order.
type Ledger struct {
	tx       Tx
	products map[string]Product
}

func OpenLedger(ctx context.Context, tx Tx, productIDs []string) (*Ledger, error) {
	ids := uniqueSorted(productIDs)
	products := map[string]Product{}
	if len(ids) > 0 {
		var err error
		products, err = tx.LockProducts(ctx, ids)
		if err != nil {
			return nil, persistence("lock products", err)
		}
	}
	return &Ledger{tx: tx, products: products}, nil
}

// Product returns the product as currently seen by the transaction.
func (l *Ledger) Product(id string) (Product, bool) {
	p, ok := l.products[id]
	return p, ok
}

// Reserve takes qty units of a product. On success the returned product carries the
// decremented stock, already written through the transaction.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int) (Product, error) {
	p, ok := l.products[productID]
	if !ok {
		return Product{}, &ProductNotFoundError{ProductID: productID}
	}
	if p.StockQuantity < qty {
		return Product{}, &InsufficientStockError{
			ProductID: productID,
			Available: p.StockQuantity,
			Requested: qty,
		}
	}
	p.StockQuantity -= qty
	if err := l.tx.SaveProduct(ctx, p); err != nil {
		return Product{}, persistence("save product", err)
	}
	l.products[productID] = p
	return p, nil
}

// Restore gives qty units back. A product that no longer exists is skipped and
// reported with ok=false.
func (l *Ledger) Restore(ctx context.Context, productID string, qty int) (p Product, ok bool, err error) {
	p, ok = l.products[productID]
	if !ok {
		return Product{}, false, nil
	}
	p.StockQuantity += qty
	if err := l.tx.SaveProduct(ctx, p); err != nil {
		return Product{}, false, persistence("save product", err)
	}
	l.products[productID] = p
	return p, true, nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
