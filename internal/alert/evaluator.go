package alert

import (
	"context"

	"github.com/rs/zerolog"

	"coinalerts/internal/market"
	"coinalerts/internal/notify"
	"coinalerts/internal/watch"
)

// BucketLookup is the read side of the watch index used on the hot path.
type BucketLookup interface {
	Lookup(ctx context.Context, assetIDs []string) (map[string][]watch.WatchedAlert, error)
}

// Evaluator intersects updated assets against the watch index and produces
// notifications for alerts whose condition now holds. It never mutates the
// index: eviction happens only after confirmed downstream handling.
type Evaluator struct {
	index  BucketLookup
	logger zerolog.Logger
}

// NewEvaluator constructs an evaluator over a watch index.
func NewEvaluator(index BucketLookup, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		index:  index,
		logger: logger.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate tests every watched alert on the updated assets, emitting one
// notification per satisfied alert (not per channel). All buckets for the cycle
// are fetched in a single batched round trip.
func (e *Evaluator) Evaluate(ctx context.Context, updated []market.AssetLite) ([]notify.Notification, error) {
	if len(updated) == 0 {
		return nil, nil
	}

	assetIDs := make([]string, len(updated))
	for i, asset := range updated {
		assetIDs[i] = asset.ID
	}

	buckets, err := e.index.Lookup(ctx, assetIDs)
	if err != nil {
		return nil, err
	}

	var notifications []notify.Notification
	for _, asset := range updated {
		for _, watched := range buckets[asset.ID] {
			if !watched.Condition.Met(asset.CurrentPrice, watched.Threshold) {
				continue
			}
			notifications = append(notifications, notify.FromWatched(watched, asset))
		}
	}

	if len(notifications) > 0 {
		e.logger.Info().Int("notifications", len(notifications)).Int("assets", len(updated)).Msg("alerts evaluated true")
	}
	return notifications, nil
}
