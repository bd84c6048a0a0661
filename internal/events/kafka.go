package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/tabmarket/backend/internal/market"
	"github.com/tabmarket/backend/internal/models"
)

// DefaultTopic is the Kafka topic purchase events are written to.
const DefaultTopic = "purchase_completed"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes purchase events keyed by listing id, so all events
// for one listing land on the same partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event models.PurchaseEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal purchase event: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ListingID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ market.Publisher = (*KafkaPublisher)(nil)
