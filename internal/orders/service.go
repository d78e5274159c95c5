package orders

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/ariefcatur/go-order-ledger/internal/orders"

// Service is the order lifecycle engine. It holds no locks of its own; all
// isolation comes from the Store's transactions.
type Service struct {
	store      Store
	cache      Cache
	pub        Publisher
	log        *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
	newID      func() string
	maxRetries uint64
}

type Option func(*Service)

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

func WithPublisher(p Publisher) Option { return func(s *Service) { s.pub = p } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

// WithMaxRetries sets how many times a transaction aborted with ErrConflict is retried.
func WithMaxRetries(n uint64) Option { return func(s *Service) { s.maxRetries = n } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		cache:      nopCache{},
		pub:        nopPublisher{},
		log:        zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
		newID:      uuid.NewString,
		maxRetries: 3,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateOrder validates the request against live stock, reserves it, snapshots
// prices and persists the order with its items in one transaction.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(
		attribute.String("user.id", cmd.UserID),
		attribute.Int("order.item_count", len(cmd.Items)),
	))
	defer span.End()

	for _, it := range cmd.Items {
		if it.Quantity < 1 {
			return OrderView{}, s.fail(span, ErrInvalidQuantity)
		}
	}

	var (
		order Order
		names map[string]string
		items []EventItem
	)
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		order, names, items, err = s.createInTx(ctx, tx, cmd)
		return err
	})
	if err != nil {
		s.log.Info("create order rejected", zap.String("user_id", cmd.UserID), zap.Error(err))
		return OrderView{}, s.fail(span, err)
	}

	view := Project(order, names)
	s.cache.Fill(ctx, order)
	s.publish(ctx, Event{
		Type:        EventOrderCreated,
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       items,
		OccurredAt:  order.OrderDate,
	})

	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.total", order.TotalAmount.String()),
	)
	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("total", order.TotalAmount.String()),
		zap.Int("items", len(order.Items)),
	)
	return view, nil
}

func (s *Service) createInTx(ctx context.Context, tx Tx, cmd CreateOrderCommand) (Order, map[string]string, []EventItem, error) {
	if _, err := tx.FindUser(ctx, cmd.UserID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, nil, nil, ErrUserNotFound
		}
		return Order{}, nil, nil, persistence("find user", err)
	}

	ids := make([]string, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		ids = append(ids, it.ProductID)
	}
	ledger, err := OpenLedger(ctx, tx, ids)
	if err != nil {
		return Order{}, nil, nil, err
	}

	order := Order{
		ID:        s.newID(),
		UserID:    cmd.UserID,
		OrderDate: s.now().UTC(),
		Status:    StatusNew,
		Items:     make([]OrderItem, 0, len(cmd.Items)),
	}
	names := make(map[string]string, len(cmd.Items))
	events := make([]EventItem, 0, len(cmd.Items))

	// urutan item dipertahankan (jadi urutan tampilan)
	for _, in := range cmd.Items {
		p, err := ledger.Reserve(ctx, in.ProductID, in.Quantity)
		if err != nil {
			return Order{}, nil, nil, err
		}
		item := SnapshotItem(s.newID(), order.ID, p, in.Quantity)
		order.Items = append(order.Items, item)
		names[p.ID] = p.Name
		events = append(events, EventItem{
			ProductID:  p.ID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			StockAfter: p.StockQuantity,
		})
	}
	order.TotalAmount = OrderTotal(order.Items)

	if err := tx.SaveOrder(ctx, order); err != nil {
		return Order{}, nil, nil, persistence("save order", err)
	}
	return order, names, events, nil
}

// DeleteOrder restores the stock held by the order and removes the order with its
// items in one transaction. It reports false when the order does not exist.
func (s *Service) DeleteOrder(ctx context.Context, id string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "orders.DeleteOrder", trace.WithAttributes(
		attribute.String("order.id", id),
	))
	defer span.End()

	var (
		found bool
		order Order
		items []EventItem
	)
	err := s.inTx(ctx, func(tx Tx) error {
		found, items = false, nil
		o, err := tx.LockOrder(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return persistence("lock order", err)
		}

		ids := make([]string, 0, len(o.Items))
		for _, it := range o.Items {
			ids = append(ids, it.ProductID)
		}
		ledger, err := OpenLedger(ctx, tx, ids)
		if err != nil {
			return err
		}
		for _, it := range o.Items {
			p, ok, err := ledger.Restore(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				s.log.Warn("product gone, stock not restored",
					zap.String("order_id", o.ID), zap.String("product_id", it.ProductID))
			}
			items = append(items, EventItem{
				ProductID:  it.ProductID,
				Quantity:   it.Quantity,
				UnitPrice:  it.UnitPrice,
				StockAfter: p.StockQuantity,
				Restored:   ok,
			})
		}

		if err := tx.DeleteOrder(ctx, o); err != nil {
			return persistence("delete order", err)
		}
		found, order = true, o
		return nil
	})
	if err != nil {
		s.log.Error("delete order failed", zap.String("order_id", id), zap.Error(err))
		return false, s.fail(span, err)
	}
	span.SetAttributes(attribute.Bool("order.found", found))
	if !found {
		return false, nil
	}

	s.cache.Tombstone(ctx, id)
	s.publish(ctx, Event{
		Type:        EventOrderDeleted,
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       items,
		OccurredAt:  s.now().UTC(),
	})
	s.log.Info("order deleted", zap.String("order_id", id), zap.Int("items", len(order.Items)))
	return true, nil
}

// GetOrder returns the view of one order, or ErrOrderNotFound. The cache only
// short-cuts loading the order; product names are always resolved from the store.
func (s *Service) GetOrder(ctx context.Context, id string) (OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "orders.GetOrder", trace.WithAttributes(
		attribute.String("order.id", id),
	))
	defer span.End()

	o, err := s.loadOrder(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return OrderView{}, err
		}
		return OrderView{}, s.fail(span, err)
	}
	views, err := projectAll(ctx, s.store, []Order{o})
	if err != nil {
		return OrderView{}, s.fail(span, err)
	}
	return views[0], nil
}

func (s *Service) loadOrder(ctx context.Context, id string) (Order, error) {
	span := trace.SpanFromContext(ctx)
	if e, ok := s.cache.Get(ctx, id); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		if e.Deleted {
			return Order{}, ErrOrderNotFound
		}
		return e.Order, nil
	}

	o, err := s.store.LoadOrder(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, persistence("load order", err)
	}
	s.cache.Fill(ctx, o)
	return o, nil
}

// GetUserOrders lists every order of the user in the store's natural order.
// An unknown user simply has no orders.
func (s *Service) GetUserOrders(ctx context.Context, userID string) ([]OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "orders.GetUserOrders", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	list, err := s.store.LoadOrdersByUser(ctx, userID)
	if err != nil {
		return nil, s.fail(span, persistence("load orders by user", err))
	}
	views, err := projectAll(ctx, s.store, list)
	if err != nil {
		return nil, s.fail(span, err)
	}
	span.SetAttributes(attribute.Int("order.count", len(views)))
	return views, nil
}

// inTx runs fn inside a transaction, committing only when fn succeeds. Any other
// exit rolls back. Transactions aborted with ErrConflict are retried from scratch.
func (s *Service) inTx(ctx context.Context, fn func(tx Tx) error) error {
	attempt := func() error {
		tx, err := s.store.Begin(ctx)
		if err != nil {
			return retryable(persistence("begin", err))
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(tx); err != nil {
			return retryable(err)
		}
		if err := tx.Commit(ctx); err != nil {
			return retryable(persistence("commit", err))
		}
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 10 * time.Millisecond
	eb.MaxInterval = 200 * time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(eb, s.maxRetries), ctx)
	return backoff.RetryNotify(attempt, b, func(err error, d time.Duration) {
		s.log.Warn("transaction conflict, retrying", zap.Duration("backoff", d), zap.Error(err))
	})
}

func retryable(err error) error {
	if errors.Is(err, ErrConflict) {
		return err
	}
	return backoff.Permanent(err)
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event failed",
			zap.String("event_type", ev.Type), zap.String("order_id", ev.OrderID), zap.Error(err))
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
