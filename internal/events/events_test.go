package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabmarket/backend/internal/models"
)

func purchaseEvent() models.PurchaseEvent {
	return models.NewPurchaseEvent(models.AuditRecord{
		Seq:       7,
		ListingID: "listing-1",
		AssetID:   "A1",
		SellerID:  "S",
		BuyerID:   "B",
		Price:     20,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
}

func TestRedisPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	event := purchaseEvent()
	data, err := json.Marshal(event)
	require.NoError(t, err)

	t.Run("pushes onto the default queue", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectRPush(DefaultQueue, data).SetVal(1)

		err := NewRedisPublisher(client, "").Publish(ctx, event)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("custom queue", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectRPush("settlement_queue", data).SetVal(3)

		err := NewRedisPublisher(client, "settlement_queue").Publish(ctx, event)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error is returned", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectRPush(DefaultQueue, data).SetErr(errors.New("READONLY You can't write against a read only replica"))

		err := NewRedisPublisher(client, "").Publish(ctx, event)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "READONLY")
	})
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	event := purchaseEvent()

	t.Run("keys messages by listing", func(t *testing.T) {
		w := &fakeWriter{}
		p := &KafkaPublisher{writer: w}

		require.NoError(t, p.Publish(ctx, event))
		require.Len(t, w.messages, 1)
		assert.Equal(t, []byte("listing-1"), w.messages[0].Key)

		var got models.PurchaseEvent
		require.NoError(t, json.Unmarshal(w.messages[0].Value, &got))
		assert.Equal(t, event, got)
		require.Len(t, w.messages[0].Headers, 1)
		assert.Equal(t, "purchase-listing-1", string(w.messages[0].Headers[0].Value))

		require.NoError(t, p.Close())
		assert.True(t, w.closed)
	})

	t.Run("write error is returned", func(t *testing.T) {
		p := &KafkaPublisher{writer: &fakeWriter{err: kafka.LeaderNotAvailable}}
		assert.ErrorIs(t, p.Publish(ctx, event), kafka.LeaderNotAvailable)
	})

	t.Run("constructor targets the default topic", func(t *testing.T) {
		p := NewKafkaPublisher([]string{"localhost:9092"}, "")
		w, ok := p.writer.(*kafka.Writer)
		require.True(t, ok)
		assert.Equal(t, DefaultTopic, w.Topic)
	})
}
