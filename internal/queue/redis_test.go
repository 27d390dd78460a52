package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"coinalerts/internal/notify"
)

func newTestRedisQueue(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedis(rdb)
}

func TestRedisQueueRoundTrip(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := context.Background()

	batch := []notify.Notification{
		{AlertID: 1, UserID: 10, AssetID: "bitcoin"},
		{AlertID: 2, UserID: 11, AssetID: "ethereum"},
	}
	if err := q.Publish(ctx, TopicPush, batch); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, err := q.Next(ctx, TopicPush)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(got) != 2 || got[0].AlertID != 1 || got[1].AlertID != 2 {
		t.Fatalf("got = %+v", got)
	}
}

func TestRedisQueueBatchOrdering(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		if err := q.Publish(ctx, TopicSMS, []notify.Notification{{AlertID: i}}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	for i := int64(1); i <= 3; i++ {
		batch, err := q.Next(ctx, TopicSMS)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if len(batch) != 1 || batch[0].AlertID != i {
			t.Fatalf("batch %d = %+v", i, batch)
		}
	}
}

func TestRedisQueueNextHonoursCancellation(t *testing.T) {
	q := newTestRedisQueue(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Next(ctx, TopicEmail)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestMemoryQueueRoundTrip(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	if err := q.Publish(ctx, TopicPush, []notify.Notification{{AlertID: 7}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	batch, err := q.Next(ctx, TopicPush)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(batch) != 1 || batch[0].AlertID != 7 {
		t.Fatalf("batch = %+v", batch)
	}
}
