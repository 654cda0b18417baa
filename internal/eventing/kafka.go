package eventing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"metrics-cloud/internal/observability/metrics"
)

const defaultWriteTimeout = 10 * time.Second

// KafkaBus publishes envelopes to a Kafka topic. Messages are keyed by
// tenant id so per-tenant ordering is preserved across partitions.
type KafkaBus struct {
	writer *kafka.Writer
}

// ParseBrokers parses a comma-separated broker list and trims whitespace.
func ParseBrokers(brokers string) []string {
	if brokers == "" {
		return nil
	}
	list := strings.Split(brokers, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	return list
}

// NewKafkaBus constructs a bus writing to the given topic.
func NewKafkaBus(brokers []string, topic string) (*KafkaBus, error) {
	if len(brokers) == 0 {
		return nil, errors.New("eventing: no kafka brokers")
	}
	if topic == "" {
		return nil, errors.New("eventing: empty kafka topic")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: defaultWriteTimeout,
	}
	return &KafkaBus{writer: writer}, nil
}

// Publish writes one envelope synchronously. A failure surfaces to the
// caller; the bus performs no retries of its own.
func (b *KafkaBus) Publish(ctx context.Context, eventType, tenantID string, payload any) error {
	if b == nil || b.writer == nil {
		return errors.New("eventing: nil kafka bus")
	}
	env, err := BuildEnvelope(eventType, tenantID, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(tenantID),
		Value: data,
		Time:  env.OccurredAt,
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		metrics.IncEventPublishError()
		return err
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (b *KafkaBus) Close() error {
	if b == nil || b.writer == nil {
		return nil
	}
	return b.writer.Close()
}
