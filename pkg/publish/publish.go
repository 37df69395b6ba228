// Package publish fans each tick's snapshot out to live consumers.
package publish

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/energystats/pkg/types"
)

// Publisher receives every successfully published snapshot.
type Publisher interface {
	Publish(ctx context.Context, siteID string, snap types.Snapshot) error
}

// Message is the wire form of a snapshot. It never carries the internal list
// of computed keys.
type Message struct {
	SiteID    string         `json:"siteID"`
	Timestamp time.Time      `json:"timestamp"`
	Values    map[string]any `json:"values"`
}

// NewMessage builds the wire form of snap.
func NewMessage(siteID string, snap types.Snapshot) Message {
	return Message{
		SiteID:    siteID,
		Timestamp: snap.Timestamp,
		Values:    snap.Values(),
	}
}

// Broadcaster publishes to the websocket hub and, when configured, to Kafka.
type Broadcaster struct {
	hub   *Hub
	kafka *KafkaPublisher
}

// NewBroadcaster creates a Broadcaster. kafka may be nil.
func NewBroadcaster(hub *Hub, kafka *KafkaPublisher) *Broadcaster {
	return &Broadcaster{hub: hub, kafka: kafka}
}

// Configured sets up the Broadcaster based on flags.
func Configured() *Broadcaster {
	brokers := lflag.String("kafka-brokers", "", "comma-delimited list of Kafka brokers to publish snapshots to (empty disables Kafka)")
	topic := lflag.String("kafka-topic", "energy-stats", "Kafka topic for published snapshots")

	b := &Broadcaster{hub: NewHub()}

	lflag.Do(func() {
		if *brokers == "" {
			return
		}
		var list []string
		for _, broker := range strings.Split(*brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				list = append(list, broker)
			}
		}
		if len(list) > 0 {
			b.kafka = NewKafkaPublisher(list, *topic)
		}
	})

	return b
}

// Hub returns the websocket hub.
func (b *Broadcaster) Hub() *Hub {
	return b.hub
}

// Publish implements Publisher.
func (b *Broadcaster) Publish(ctx context.Context, siteID string, snap types.Snapshot) error {
	var errs []error
	if b.hub != nil {
		if err := b.hub.Publish(ctx, siteID, snap); err != nil {
			errs = append(errs, err)
		}
	}
	if b.kafka != nil {
		if err := b.kafka.Publish(ctx, siteID, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the Kafka writer and disconnects websocket clients.
func (b *Broadcaster) Close() error {
	var errs []error
	if b.hub != nil {
		b.hub.Close()
	}
	if b.kafka != nil {
		if err := b.kafka.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
