package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/tabmarket/backend/internal/market"
	"github.com/tabmarket/backend/internal/models"
)

// DefaultQueue is the Redis list purchase events are pushed onto.
const DefaultQueue = "market:purchases"

// RedisPublisher queues purchase events on a Redis list for downstream
// settlement and notification workers.
type RedisPublisher struct {
	redis *redis.Client
	queue string
}

func NewRedisPublisher(client *redis.Client, queue string) *RedisPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &RedisPublisher{redis: client, queue: queue}
}

func (p *RedisPublisher) Publish(ctx context.Context, event models.PurchaseEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal purchase event: %w", err)
	}
	return p.redis.RPush(ctx, p.queue, data).Err()
}

var _ market.Publisher = (*RedisPublisher)(nil)
