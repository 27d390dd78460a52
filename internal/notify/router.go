package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Topic names for the three channel queues. These mirror the queue package's
// TopicPush/TopicSMS/TopicEmail; they are declared here because queue depends
// on this package for the Notification type and Go forbids import cycles.
const (
	topicPush  = "alerts:queue:push"
	topicSMS   = "alerts:queue:sms"
	topicEmail = "alerts:queue:email"
)

// Publisher enqueues one cycle's batch onto a topic. It is satisfied by the
// queue package's implementations; it is declared here rather than imported
// for the same cycle reason as the topic constants.
type Publisher interface {
	Publish(ctx context.Context, topic string, batch []Notification) error
}

// Router fans one evaluation cycle's notifications out to the channel queues.
// The push queue always receives the full batch; SMS and email receive only
// their opted-in subsets, and only when those subsets are non-empty.
type Router struct {
	publisher Publisher
	logger    zerolog.Logger
}

// NewRouter constructs a channel router over a queue publisher.
func NewRouter(publisher Publisher, logger zerolog.Logger) *Router {
	return &Router{
		publisher: publisher,
		logger:    logger.With().Str("component", "router").Logger(),
	}
}

// Route publishes the batch to each channel queue. A failure on one queue is
// logged and does not block the others; the last error is returned.
func (r *Router) Route(ctx context.Context, batch []Notification) error {
	if len(batch) == 0 {
		return nil
	}

	var smsBatch, emailBatch []Notification
	for _, n := range batch {
		if n.SMSOn {
			smsBatch = append(smsBatch, n)
		}
		if n.EmailOn {
			emailBatch = append(emailBatch, n)
		}
	}

	var lastErr error
	publish := func(topic string, subset []Notification) {
		if len(subset) == 0 {
			return
		}
		if err := r.publisher.Publish(ctx, topic, subset); err != nil {
			r.logger.Error().Err(err).Str("topic", topic).Int("count", len(subset)).
				Msg("failed to publish notification batch")
			lastErr = err
		}
	}

	publish(topicPush, batch)
	publish(topicSMS, smsBatch)
	publish(topicEmail, emailBatch)

	r.logger.Info().Int("push", len(batch)).Int("sms", len(smsBatch)).Int("email", len(emailBatch)).
		Msg("routed notification batch")
	return lastErr
}
