package watch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func assetKey(assetID string) string {
	return "alerts:coin:" + assetID
}

func alertField(alertID int64) string {
	return fmt.Sprintf("alert:%d", alertID)
}

// Index is the asset id → (alert id → WatchedAlert) multi-map backing alert
// evaluation. One Redis hash per asset keeps bucket lookups O(1) per asset and
// lets a whole evaluation cycle read every bucket in a single pipelined round
// trip.
type Index struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// NewIndex wires a Redis client into a watch index.
func NewIndex(rdb *redis.Client, logger zerolog.Logger) *Index {
	return &Index{
		rdb:    rdb,
		logger: logger.With().Str("component", "watch_index").Logger(),
	}
}

// Put inserts or overwrites the entry for (asset id, alert id).
func (i *Index) Put(ctx context.Context, alert WatchedAlert) error {
	if err := alert.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("serialize watched alert %d: %w", alert.AlertID, err)
	}

	return i.rdb.HSet(ctx, assetKey(alert.AssetID), alertField(alert.AlertID), payload).Err()
}

// Remove deletes a single entry.
func (i *Index) Remove(ctx context.Context, assetID string, alertID int64) error {
	return i.rdb.HDel(ctx, assetKey(assetID), alertField(alertID)).Err()
}

// RemoveAll batch-deletes entries from one asset bucket.
func (i *Index) RemoveAll(ctx context.Context, assetID string, alertIDs []int64) error {
	if len(alertIDs) == 0 {
		return nil
	}
	fields := make([]string, len(alertIDs))
	for n, id := range alertIDs {
		fields[n] = alertField(id)
	}
	return i.rdb.HDel(ctx, assetKey(assetID), fields...).Err()
}

// Lookup returns the current bucket for each requested asset id, possibly
// empty, in one pipelined round trip. Entries that fail to decode are logged
// and skipped, never fatal to the batch.
func (i *Index) Lookup(ctx context.Context, assetIDs []string) (map[string][]WatchedAlert, error) {
	buckets := make(map[string][]WatchedAlert, len(assetIDs))
	if len(assetIDs) == 0 {
		return buckets, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(assetIDs))
	_, err := i.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for n, assetID := range assetIDs {
			cmds[n] = pipe.HGetAll(ctx, assetKey(assetID))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pipelined bucket lookup: %w", err)
	}

	for n, cmd := range cmds {
		assetID := assetIDs[n]
		fields, cmdErr := cmd.Result()
		if cmdErr != nil {
			i.logger.Error().Err(cmdErr).Str("asset_id", assetID).Msg("bucket read failed")
			buckets[assetID] = nil
			continue
		}

		entries := make([]WatchedAlert, 0, len(fields))
		for field, payload := range fields {
			var alert WatchedAlert
			if err := json.Unmarshal([]byte(payload), &alert); err != nil {
				i.logger.Error().Err(err).Str("asset_id", assetID).Str("field", field).Msg("skipping undecodable watch entry")
				continue
			}
			if err := alert.Validate(); err != nil {
				i.logger.Error().Err(err).Str("asset_id", assetID).Str("field", field).Msg("skipping invalid watch entry")
				continue
			}
			entries = append(entries, alert)
		}
		buckets[assetID] = entries
	}

	return buckets, nil
}
