package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coinalerts/internal/notify"
)

// popTimeout bounds each blocking pop so consumers notice context cancellation
// promptly during shutdown.
const popTimeout = 2 * time.Second

// Redis implements the queue contract on Redis lists. LPUSH/BRPOP gives each
// batch to exactly one consumer, which is the consumer-group behaviour the
// router assumes.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wires a Redis client into a queue.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Publish enqueues one JSON-encoded batch.
func (r *Redis) Publish(ctx context.Context, topic string, batch []notify.Notification) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("serialize notification batch: %w", err)
	}
	if err := r.rdb.LPush(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Next blocks until a batch is available or ctx is cancelled.
func (r *Redis) Next(ctx context.Context, topic string) ([]notify.Notification, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		values, err := r.rdb.BRPop(ctx, popTimeout, topic).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("pop from %s: %w", topic, err)
		}

		// BRPop returns [key, value].
		var batch []notify.Notification
		if err := json.Unmarshal([]byte(values[1]), &batch); err != nil {
			return nil, fmt.Errorf("decode notification batch from %s: %w", topic, err)
		}
		return batch, nil
	}
}

var (
	_ Publisher = (*Redis)(nil)
	_ Consumer  = (*Redis)(nil)
)
