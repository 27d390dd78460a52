package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"coinalerts/internal/ledger"
	"coinalerts/internal/notify"
	"coinalerts/internal/queue"
	"coinalerts/internal/storage"
	"coinalerts/internal/ws"
)

// broadcaster is the push delivery surface of the session registry.
type broadcaster interface {
	Broadcast(batch []notify.Notification) []ws.Result
}

// outcomeLedger is the slice of the delivery ledger the workers need.
type outcomeLedger interface {
	Record(ctx context.Context, outcomes []ledger.Outcome) error
	UpdateStatus(ctx context.Context, alertID int64, channel notify.Channel, status storage.DeliveryStatus) error
	MarkTriggered(ctx context.Context, alertIDs []int64) error
	EvictWatched(ctx context.Context, notifications []notify.Notification)
}

// PushWorker delivers batches over live websocket sessions. Push is the
// authoritative channel: once the batch is broadcast, the alerts are marked
// triggered and evicted from the watch index regardless of per-user delivery,
// so no alert fires twice.
type PushWorker struct {
	*Worker
	registry broadcaster
	ledger   outcomeLedger
	logger   zerolog.Logger
}

// NewPushWorker constructs the push channel worker.
func NewPushWorker(consumer queue.Consumer, registry broadcaster, ldg outcomeLedger, logger zerolog.Logger) *PushWorker {
	w := &PushWorker{
		registry: registry,
		ledger:   ldg,
		logger:   logger.With().Str("component", "push_worker").Logger(),
	}
	w.Worker = newWorker("push_worker", queue.TopicPush, consumer, w.process, logger)
	return w
}

func (w *PushWorker) process(ctx context.Context, batch []notify.Notification) {
	now := time.Now().UTC()
	results := w.registry.Broadcast(batch)

	outcomes := make([]ledger.Outcome, 0, len(results))
	delivered := 0
	for _, res := range results {
		status := storage.StatusFailed
		if res.Delivered {
			status = storage.StatusDelivered
			delivered++
		}
		outcomes = append(outcomes, ledger.Outcome{
			AlertID: res.AlertID,
			Channel: notify.ChannelPush,
			Status:  status,
			SendAt:  now,
		})
	}

	if err := w.ledger.Record(ctx, outcomes); err != nil {
		w.logger.Error().Err(err).Int("count", len(outcomes)).Msg("failed to record push outcomes")
	}
	if err := w.ledger.MarkTriggered(ctx, notify.AlertIDs(batch)); err != nil {
		w.logger.Error().Err(err).Msg("failed to mark alerts triggered")
	}
	w.ledger.EvictWatched(ctx, batch)

	w.logger.Info().Int("alerts", len(batch)).Int("delivered", delivered).Msg("push batch processed")
}
