// Package trigger turns validated webhook deliveries into enrollments and
// scheduled step runs. The webhook handler only enqueues and returns; a
// supervised worker consumes the queue, so processing failures are never
// visible to the delivering platform.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list the intake handler and the worker share.
const DefaultQueueKey = "sequence:trigger:deliveries"

// Delivery is one inbound platform event, queued verbatim. The platform
// delivers at-least-once with no ordering guarantee, so everything
// downstream of the queue must be idempotent.
type Delivery struct {
	ID         string                 `json:"id"`
	Event      string                 `json:"event"`
	Payload    map[string]interface{} `json:"payload"`
	ReceivedAt time.Time              `json:"received_at"`
}

// NewDelivery wraps a raw event for queueing.
func NewDelivery(rawEvent string, payload map[string]interface{}, now time.Time) Delivery {
	return Delivery{
		ID:         uuid.New().String(),
		Event:      rawEvent,
		Payload:    payload,
		ReceivedAt: now,
	}
}

// Queue is a Redis-list-backed delivery queue (LPUSH in, BRPOP out).
type Queue struct {
	client *redis.Client
	key    string
}

func NewQueue(client *redis.Client, key string) *Queue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &Queue{client: client, key: key}
}

// Enqueue pushes a delivery onto the queue.
func (q *Queue) Enqueue(ctx context.Context, d Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next delivery. Returns (nil, nil)
// on timeout so poll loops can spin without treating it as a failure.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue delivery: %w", err)
	}
	// BRPOP returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("dequeue delivery: unexpected reply length %d", len(res))
	}
	var d Delivery
	if err := json.Unmarshal([]byte(res[1]), &d); err != nil {
		return nil, fmt.Errorf("decode delivery: %w", err)
	}
	return &d, nil
}

// Len reports the number of queued deliveries.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
