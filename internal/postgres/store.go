package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store implements orders.Store on Postgres. Contended rows are locked with
// SELECT ... FOR UPDATE inside READ COMMITTED transactions.
type Store struct{ DB *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) Begin(ctx context.Context) (orders.Tx, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, mapErr(err)
	}
	return &Tx{tx: tx}, nil
}

func (s *Store) LoadOrder(ctx context.Context, id string) (orders.Order, error) {
	var o orders.Order
	err := s.snapshot(ctx, func(tx pgx.Tx) error {
		var err error
		o, err = loadOrder(ctx, tx, id, false)
		return err
	})
	return o, err
}

func (s *Store) LoadOrdersByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	var out []orders.Order
	err := s.snapshot(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, user_id, order_date, status, total_amount::text
			FROM orders WHERE user_id=$1 ORDER BY seq`, userID)
		if err != nil {
			return mapErr(err)
		}
		if out, err = pgx.CollectRows(rows, scanOrder); err != nil {
			return mapErr(err)
		}
		if len(out) == 0 {
			return nil
		}

		ids := make([]string, 0, len(out))
		idx := make(map[string]int, len(out))
		for i, o := range out {
			ids = append(ids, o.ID)
			idx[o.ID] = i
		}
		items, err := loadItems(ctx, tx, ids)
		if err != nil {
			return err
		}
		for _, it := range items {
			i := idx[it.OrderID]
			out[i].Items = append(out[i].Items, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// snapshot runs fn in a read-only REPEATABLE READ transaction: an order row and
// its items come from the same snapshot even while a delete commits.
func (s *Store) snapshot(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return mapErr(tx.Commit(ctx))
}

func (s *Store) FindProducts(ctx context.Context, ids []string) (map[string]orders.Product, error) {
	return findProducts(ctx, s.DB, ids, false)
}

type Tx struct {
	tx pgx.Tx
}

func (t *Tx) FindUser(ctx context.Context, id string) (orders.User, error) {
	var u orders.User
	err := t.tx.QueryRow(ctx, `SELECT id, username, email FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Username, &u.Email)
	if err != nil {
		return orders.User{}, mapErr(err)
	}
	return u, nil
}

func (t *Tx) LockProducts(ctx context.Context, ids []string) (map[string]orders.Product, error) {
	return findProducts(ctx, t.tx, ids, true)
}

func (t *Tx) SaveProduct(ctx context.Context, p orders.Product) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock_quantity=$2 WHERE id=$1`, p.ID, p.StockQuantity)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() != 1 {
		return orders.ErrNotFound
	}
	return nil
}

func (t *Tx) SaveOrder(ctx context.Context, o orders.Order) error {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO orders(id, user_id, order_date, status, total_amount)
		VALUES ($1, $2, $3, $4, $5::numeric)`,
		o.ID, o.UserID, o.OrderDate, string(o.Status), o.TotalAmount.String())
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items(id, order_id, position, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6::numeric)`,
			it.ID, o.ID, i, it.ProductID, it.Quantity, it.UnitPrice.String())
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapErr(err)
	}
	return nil
}

func (t *Tx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return loadOrder(ctx, t.tx, id, true)
}

func (t *Tx) DeleteOrder(ctx context.Context, o orders.Order) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, o.ID); err != nil {
		return mapErr(err)
	}
	ct, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, o.ID)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() != 1 {
		return orders.ErrNotFound
	}
	return nil
}

func (t *Tx) Commit(ctx context.Context) error { return mapErr(t.tx.Commit(ctx)) }

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return mapErr(err)
}

func loadOrder(ctx context.Context, q querier, id string, lock bool) (orders.Order, error) {
	sql := `SELECT id, user_id, order_date, status, total_amount::text FROM orders WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return orders.Order{}, mapErr(err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		return orders.Order{}, mapErr(err)
	}
	o.Items, err = loadItems(ctx, q, []string{id})
	if err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []string) ([]orders.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price::text
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, position`, orderIDs)
	if err != nil {
		return nil, mapErr(err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.OrderItem, error) {
		var (
			it    orders.OrderItem
			price string
		)
		if err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &price); err != nil {
			return it, err
		}
		unit, perr := decimal.NewFromString(price)
		if perr != nil {
			return it, fmt.Errorf("order item %s price: %w", it.ID, perr)
		}
		it.UnitPrice = unit
		return it, nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return items, nil
}

func findProducts(ctx context.Context, q querier, ids []string, lock bool) (map[string]orders.Product, error) {
	// ORDER BY id: lock acquisition order must be stable across transactions.
	sql := `SELECT id, name, description, price::text, stock_quantity
		FROM products WHERE id = ANY($1) ORDER BY id`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := make(map[string]orders.Product, len(ids))
	for rows.Next() {
		var (
			p     orders.Product
			price string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &price, &p.StockQuantity); err != nil {
			return nil, mapErr(err)
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("product %s price: %w", p.ID, err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func scanOrder(row pgx.CollectableRow) (orders.Order, error) {
	var (
		o      orders.Order
		status string
		total  string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.OrderDate, &status, &total); err != nil {
		return o, err
	}
	o.Status = orders.Status(status)
	if !o.Status.Valid() {
		return o, fmt.Errorf("order %s: unknown status %q", o.ID, status)
	}
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return o, fmt.Errorf("order %s total: %w", o.ID, err)
	}
	o.TotalAmount = amount
	o.OrderDate = o.OrderDate.UTC()
	return o, nil
}

// mapErr translates driver errors into the orders package's sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %w", orders.ErrConflict, err)
		}
	}
	return err
}
