package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"coinalerts/internal/notify"
	"coinalerts/internal/storage"
)

// alertResolver is the slice of the alert store the ledger needs: batch
// resolution and the one-time trigger transition.
type alertResolver interface {
	GetAlerts(ctx context.Context, alertIDs []int64) ([]storage.Alert, error)
	MarkTriggered(ctx context.Context, alertIDs []int64, at time.Time) (int64, error)
}

// indexEvicter drops satisfied alerts from the hot watch index.
type indexEvicter interface {
	RemoveAll(ctx context.Context, assetID string, alertIDs []int64) error
}

// Ledger records delivery attempts, transitions alerts to triggered and evicts
// them from the watch index once they have fired.
type Ledger struct {
	alerts     alertResolver
	deliveries storage.DeliveryStore
	index      indexEvicter
	logger     zerolog.Logger
}

// New constructs a delivery ledger over the durable stores and watch index.
func New(alerts alertResolver, deliveries storage.DeliveryStore, index indexEvicter, logger zerolog.Logger) *Ledger {
	return &Ledger{
		alerts:     alerts,
		deliveries: deliveries,
		index:      index,
		logger:     logger.With().Str("component", "ledger").Logger(),
	}
}

// Outcome is one delivery attempt result reported by a channel worker.
type Outcome struct {
	AlertID int64
	Channel notify.Channel
	Status  storage.DeliveryStatus
	SendAt  time.Time
}

// Record persists a batch of delivery outcomes. Alert ids are resolved against
// the durable store in one lookup; outcomes referencing alerts that no longer
// exist are logged and skipped rather than failing the batch.
func (l *Ledger) Record(ctx context.Context, outcomes []Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(outcomes))
	seen := make(map[int64]struct{}, len(outcomes))
	for _, o := range outcomes {
		if _, ok := seen[o.AlertID]; ok {
			continue
		}
		seen[o.AlertID] = struct{}{}
		ids = append(ids, o.AlertID)
	}

	known, err := l.alerts.GetAlerts(ctx, ids)
	if err != nil {
		return err
	}
	exists := make(map[int64]struct{}, len(known))
	for _, a := range known {
		exists[a.ID] = struct{}{}
	}

	rows := make([]storage.Delivery, 0, len(outcomes))
	for _, o := range outcomes {
		if _, ok := exists[o.AlertID]; !ok {
			l.logger.Warn().Int64("alert_id", o.AlertID).Str("channel", string(o.Channel)).
				Msg("skipping delivery record for unknown alert")
			continue
		}
		row := storage.Delivery{
			AlertID: o.AlertID,
			Channel: o.Channel,
			Status:  o.Status,
			SendAt:  o.SendAt,
		}
		if o.Status == storage.StatusDelivered {
			at := o.SendAt
			row.DeliveredAt = &at
		}
		rows = append(rows, row)
	}
	return l.deliveries.InsertDeliveries(ctx, rows)
}

// RecordOne persists a single delivery outcome.
func (l *Ledger) RecordOne(ctx context.Context, outcome Outcome) error {
	return l.Record(ctx, []Outcome{outcome})
}

// UpdateStatus applies a provider callback to a PENDING delivery row. An
// unmatched or already-settled (alert, channel) pair is logged and dropped.
func (l *Ledger) UpdateStatus(ctx context.Context, alertID int64, channel notify.Channel, status storage.DeliveryStatus) error {
	affected, err := l.deliveries.UpdateDeliveryStatus(ctx, alertID, channel, status)
	if err != nil {
		return err
	}
	if affected == 0 {
		l.logger.Warn().Int64("alert_id", alertID).Str("channel", string(channel)).
			Str("status", string(status)).Msg("delivery callback matched no pending row")
	}
	return nil
}

// MarkTriggered transitions the given alerts to triggered. Already-triggered
// ids are untouched, so replaying a batch cannot double-fire.
func (l *Ledger) MarkTriggered(ctx context.Context, alertIDs []int64) error {
	transitioned, err := l.alerts.MarkTriggered(ctx, alertIDs, time.Now().UTC())
	if err != nil {
		return err
	}
	if int(transitioned) < len(alertIDs) {
		l.logger.Debug().Int("requested", len(alertIDs)).Int64("transitioned", transitioned).
			Msg("some alerts were already triggered")
	}
	return nil
}

// EvictWatched removes fired alerts from the watch index so the next
// evaluation cycle no longer sees them. Per-asset failures are logged and the
// remaining assets still evicted.
func (l *Ledger) EvictWatched(ctx context.Context, notifications []notify.Notification) {
	for assetID, alertIDs := range notify.GroupByAsset(notifications) {
		if err := l.index.RemoveAll(ctx, assetID, alertIDs); err != nil {
			l.logger.Error().Err(err).Str("asset_id", assetID).Ints64("alert_ids", alertIDs).
				Msg("failed to evict watched alerts")
		}
	}
}
