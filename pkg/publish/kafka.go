package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raterudder/energystats/pkg/types"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each snapshot as a JSON message keyed by site.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher writing to topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			// one message per tick, don't wait for a batch to fill
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
			MaxAttempts:  3,
		},
	}
}

// Publish implements Publisher.
func (k *KafkaPublisher) Publish(ctx context.Context, siteID string, snap types.Snapshot) error {
	b, err := json.Marshal(NewMessage(siteID, snap))
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(siteID),
		Value: b,
		Time:  snap.Timestamp,
	}); err != nil {
		return fmt.Errorf("failed to write snapshot to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
