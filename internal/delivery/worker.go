// Package delivery runs the channel workers that turn routed notification
// batches into push frames, SMS messages, and emails, recording every attempt
// in the delivery ledger.
package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"coinalerts/internal/notify"
	"coinalerts/internal/queue"
)

// drainTimeout bounds how long an in-flight batch may keep running after
// shutdown begins.
const drainTimeout = 30 * time.Second

// handler processes one evaluation cycle's batch for one channel.
type handler func(ctx context.Context, batch []notify.Notification)

// Worker is the shared consume loop: block on the topic, hand each batch to
// the channel handler, repeat until the context is cancelled. A batch already
// handed to the handler is drained to completion on shutdown.
type Worker struct {
	name     string
	topic    string
	consumer queue.Consumer
	handle   handler
	logger   zerolog.Logger
}

func newWorker(name, topic string, consumer queue.Consumer, handle handler, logger zerolog.Logger) *Worker {
	return &Worker{
		name:     name,
		topic:    topic,
		consumer: consumer,
		handle:   handle,
		logger:   logger.With().Str("component", name).Logger(),
	}
}

// Run consumes batches until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Str("topic", w.topic).Msg("worker started")
	for {
		batch, err := w.consumer.Next(ctx, w.topic)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.logger.Info().Msg("worker stopped")
				return
			}
			w.logger.Error().Err(err).Msg("failed to consume batch")
			continue
		}
		if len(batch) == 0 {
			continue
		}

		// Detach from the run context so a shutdown signal never abandons a
		// batch mid-flight.
		batchCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		w.handle(batchCtx, batch)
		cancel()
	}
}
