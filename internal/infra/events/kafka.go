// Package events publishes domain events, either to Kafka or to the log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
)

const schemaVersion = "1.0"

// producer is the subset of *kgo.Client the publisher needs.
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

type envelope struct {
	EventID    string           `json:"event_id"`
	EventType  domain.EventType `json:"event_type"`
	Key        string           `json:"key"`
	OccurredAt time.Time        `json:"occurred_at"`
	Version    string           `json:"version"`
	Data       map[string]any   `json:"data,omitempty"`
	TraceID    string           `json:"trace_id,omitempty"`
}

// KafkaPublisher implements port.EventPublisher on a franz-go client.
// Produce is asynchronous; delivery failures are logged.
type KafkaPublisher struct {
	client producer
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher connects a franz-go client to brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
		kgo.RecordRetries(5),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	logger.Info("kafka publisher ready",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic),
	)
	return newKafkaPublisher(client, topic, logger), nil
}

func newKafkaPublisher(client producer, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic, logger: logger}
}

// Publish encodes event and hands it to the producer keyed by event.Key, so
// events of one account stay ordered on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.Event) {
	record, err := p.record(ctx, event)
	if err != nil {
		p.logger.Error("failed to encode event",
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
		return
	}

	// Delivery must not depend on the caller's request context.
	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("failed to publish event",
				zap.String("event_type", string(event.Type)),
				zap.String("key", event.Key),
				zap.Error(err),
			)
		}
	})
}

func (p *KafkaPublisher) record(ctx context.Context, event domain.Event) (*kgo.Record, error) {
	env := envelope{
		EventID:    event.ID,
		EventType:  event.Type,
		Key:        event.Key,
		OccurredAt: event.OccurredAt.UTC(),
		Version:    schemaVersion,
		Data:       event.Data,
	}
	if env.EventID == "" {
		env.EventID = uuid.NewString()
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		env.TraceID = sc.TraceID().String()
	}

	value, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal event envelope: %w", err)
	}

	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}

// Close flushes buffered records and closes the client.
func (p *KafkaPublisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("kafka flush on close failed", zap.Error(err))
	}
	p.client.Close()
}
