package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"

	envelopeVersion = 1
)

type messageSink interface {
	Publish(ctx context.Context, m kafka.Message) error
}

// EventPublisher implements orders.Publisher on top of a Producer.
type EventPublisher struct {
	sink    messageSink
	service string
}

func NewEventPublisher(p *Producer, service string) *EventPublisher {
	return &EventPublisher{sink: p, service: service}
}

func (e *EventPublisher) Publish(ctx context.Context, ev orders.Event) error {
	topic := orders.TopicFor(ev.Type)
	if topic == "" {
		return fmt.Errorf("kafka: no topic for event type %q", ev.Type)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.Type,
		EventVersion:  envelopeVersion,
		OccurredAt:    ev.OccurredAt,
		Producer:      e.service,
		CorrelationID: ev.OrderID,
		Payload:       payload,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(ev.Type)},
		{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(envelopeVersion))},
	}
	return e.sink.Publish(ctx, kafka.Message{
		Topic:   topic,
		Key:     orders.PartitionKey(ev.OrderID),
		Value:   value,
		Headers: InjectTraceHeaders(ctx, headers),
	})
}
