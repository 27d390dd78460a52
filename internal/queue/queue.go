// Package queue carries evaluated notification batches between the router and
// the channel delivery workers. One message is one evaluation cycle's batch for
// one channel, and each batch is handed to exactly one consumer.
package queue

import (
	"context"
	"sync"

	"coinalerts/internal/notify"
)

// Topics for the three channel queues.
const (
	TopicPush  = "alerts:queue:push"
	TopicSMS   = "alerts:queue:sms"
	TopicEmail = "alerts:queue:email"
)

// Publisher enqueues one cycle's batch onto a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, batch []notify.Notification) error
}

// Consumer blocks until the next batch for a topic is available or ctx is done.
type Consumer interface {
	Next(ctx context.Context, topic string) ([]notify.Notification, error)
}

// Memory is an in-process queue used by tests and single-process deployments.
type Memory struct {
	mu     sync.Mutex
	topics map[string]chan []notify.Notification
}

// NewMemory constructs an in-process queue.
func NewMemory() *Memory {
	return &Memory{topics: make(map[string]chan []notify.Notification)}
}

func (m *Memory) channel(topic string) chan []notify.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.topics[topic]
	if !ok {
		ch = make(chan []notify.Notification, 64)
		m.topics[topic] = ch
	}
	return ch
}

// Publish enqueues a batch, failing fast if the topic buffer is full rather
// than blocking the evaluation cycle.
func (m *Memory) Publish(ctx context.Context, topic string, batch []notify.Notification) error {
	select {
	case m.channel(topic) <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next published batch for a topic.
func (m *Memory) Next(ctx context.Context, topic string) ([]notify.Notification, error) {
	select {
	case batch := <-m.channel(topic):
		return batch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var (
	_ Publisher = (*Memory)(nil)
	_ Consumer  = (*Memory)(nil)
)
