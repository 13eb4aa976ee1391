// Package kafka publishes audit entries to a Kafka topic so downstream
// compliance consumers get a copy of the registry's trail without touching
// its database.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"serialregistry/internal/audit"
)

// Sink publishes audit entries to a Kafka topic. Entries are keyed by base
// code so all events for one code family land in one partition, in order.
type Sink struct {
	client *kgo.Client
	topic  string
}

// New builds a sink around an existing franz-go client. The caller owns the
// client's lifecycle.
func New(client *kgo.Client, topic string) *Sink {
	return &Sink{client: client, topic: topic}
}

// Dial connects a new client to the given brokers and wraps it in a Sink.
func Dial(brokers []string, topic string) (*Sink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	return New(client, topic), nil
}

// Publish produces the entry synchronously. The publisher treats sink
// failures as non-fatal, so a broker outage never blocks registry writes.
func (s *Sink) Publish(ctx context.Context, entry audit.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(entry.RelatedBaseCode),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit entry: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying client.
func (s *Sink) Close() {
	s.client.Close()
}
