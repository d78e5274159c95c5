// Package stockwatch keeps the low-stock list current from order events.
package stockwatch

import (
	"context"

	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Levels interface {
	Set(ctx context.Context, productID string, level int) error
	Clear(ctx context.Context, productID string) error
}

type Service struct {
	Dedup     Deduper
	Levels    Levels
	Threshold int
	Log       *zap.Logger
}

// HandleOrderEvent dipasang sebagai handler consumer. Pesan yang tidak bisa
// di-decode di-skip; error Redis di-retry oleh consumer.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		return kafkax.Permanent(err)
	}
	if env.EventType != orders.EventOrderCreated && env.EventType != orders.EventOrderDeleted {
		return nil // ignore
	}

	seen, err := s.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	if err := s.apply(ctx, env); err != nil {
		if ferr := s.Dedup.Forget(ctx, env.EventID); ferr != nil {
			s.Log.Warn("dedup forget", zap.String("event_id", env.EventID), zap.Error(ferr))
		}
		return err
	}
	return nil
}

func (s *Service) apply(ctx context.Context, env orders.Envelope) error {
	ev, err := kafkax.UnwrapPayload[orders.Event](env.Payload)
	if err != nil {
		return kafkax.Permanent(err)
	}
	for _, it := range ev.Items {
		if env.EventType == orders.EventOrderDeleted && !it.Restored {
			continue
		}
		if it.StockAfter <= s.Threshold {
			if err := s.Levels.Set(ctx, it.ProductID, it.StockAfter); err != nil {
				return err
			}
			s.Log.Warn("low stock",
				zap.String("product_id", it.ProductID),
				zap.Int("stock", it.StockAfter),
				zap.String("order_id", ev.OrderID),
				zap.String("event_type", env.EventType))
			continue
		}
		if err := s.Levels.Clear(ctx, it.ProductID); err != nil {
			return err
		}
	}
	return nil
}
