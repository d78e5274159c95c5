package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
// Error lain di-retry di tempat; bungkus dengan Permanent untuk skip pesan.
type Handler func(ctx context.Context, m kafka.Message) error

// Permanent marks a handler error as not worth retrying. The message is logged
// and committed.
func Permanent(err error) error { return backoff.Permanent(err) }

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       messageReader
	workers int
	log     *zap.Logger

	retryInitial time.Duration
	retryMax     time.Duration
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r messageReader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:            r,
		workers:      workers,
		log:          log,
		retryInitial: 200 * time.Millisecond,
		retryMax:     10 * time.Second,
	}
}

// Start dispatches messages to a pool of workers until ctx is done. A failing
// message is retried with backoff until h succeeds, h returns a Permanent error,
// or ctx ends. Only handled messages are committed.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, c.workers*4)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for m := range jobs {
				if !c.handle(ctx, id, h, m) {
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					c.log.Error("commit failed", zap.Int("worker", id), zap.Error(err))
				}
			}
		}(i)
	}
	defer wg.Wait()
	defer close(jobs)

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// handle reports whether m may be committed.
func (c *Consumer) handle(ctx context.Context, worker int, h Handler, m kafka.Message) bool {
	mctx := ExtractTraceHeaders(ctx, m.Headers)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryInitial
	eb.MaxInterval = c.retryMax
	eb.MaxElapsedTime = 0 // sampai sukses atau ctx selesai

	err := backoff.RetryNotify(func() error { return h(mctx, m) }, backoff.WithContext(eb, ctx),
		func(err error, d time.Duration) {
			c.log.Warn("handler failed, retrying",
				zap.Int("worker", worker), zap.String("topic", m.Topic),
				zap.Int64("offset", m.Offset), zap.Duration("backoff", d), zap.Error(err))
		})
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		return false // shutdown: tidak di-commit, dikirim ulang nanti
	}
	// retry tanpa batas, jadi sampai sini hanya lewat Permanent
	c.log.Error("message skipped",
		zap.Int("worker", worker), zap.String("topic", m.Topic),
		zap.Int64("offset", m.Offset), zap.Error(err))
	return true
}
