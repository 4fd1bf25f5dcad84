package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupQueue(t *testing.T) (*Queue, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewQueue(client, ""), func() {
		client.Close()
		mr.Close()
	}
}

func TestQueueRoundTrip(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()

	ctx := context.Background()
	sent := NewDelivery("membership.went.valid", map[string]interface{}{
		"companyId": "cmp_1",
		"memberId":  "mem_1",
	}, time.Now().UTC())

	if err := q.Enqueue(ctx, sent); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	n, err := q.Len(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Len() = %d, %v; want 1", n, err)
	}

	got, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if got == nil {
		t.Fatal("Dequeue() returned nil delivery")
	}
	if got.ID != sent.ID || got.Event != sent.Event {
		t.Errorf("got %+v, want %+v", got, sent)
	}
	if got.Payload["memberId"] != "mem_1" {
		t.Errorf("payload did not survive the round trip: %+v", got.Payload)
	}
}

func TestQueueOrdering(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()

	ctx := context.Background()
	first := NewDelivery("payment.succeeded", nil, time.Now())
	second := NewDelivery("payment.failed", nil, time.Now())

	q.Enqueue(ctx, first)
	q.Enqueue(ctx, second)

	got, _ := q.Dequeue(ctx, time.Second)
	if got == nil || got.ID != first.ID {
		t.Error("queue should be FIFO")
	}
}

func TestQueueDequeueTimeout(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()

	got, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("timeout should not be an error: %v", err)
	}
	if got != nil {
		t.Errorf("empty queue should return nil, got %+v", got)
	}
}
