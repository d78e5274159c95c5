package kafka

import (
	"context"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu      sync.Mutex
	written []kafka.Message
	closed  bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestProducer_FlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 8, zap.NewNop())
	p.Start()

	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, p.Publish(ctx, kafka.Message{Topic: "order.created", Key: []byte(key)}))
	}
	p.Close()
	p.Close()
	p.WaitClosed()

	require.Len(t, w.written, 3)
	assert.Equal(t, "a", string(w.written[0].Key))
	assert.False(t, w.written[0].Time.IsZero())
	assert.True(t, w.closed)

	assert.ErrorIs(t, p.Publish(ctx, kafka.Message{Topic: "order.created"}), ErrProducerClosed)
}

func TestProducer_PublishHonoursContextWhenFull(t *testing.T) {
	p := newProducer(&fakeWriter{}, 1, zap.NewNop()) // not started: inbox never drains
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, p.Publish(ctx, kafka.Message{Topic: "t"}))
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, kafka.Message{Topic: "t"}), context.Canceled)
}
