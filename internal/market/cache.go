package market

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"coinalerts/internal/errs"
)

// Redis keys for the cached projections. Full and lite are written together in
// one transaction so readers never observe a lite list derived from a different
// generation than the full hash.
const (
	keyAssetFullHash = "crypto:data:full"
	keyAssetLiteList = "crypto:data:lite"
	keyMarketStats   = "market:stats"
)

// Cache holds the latest asset snapshot in Redis, in two projections, plus the
// global market statistics under an independent key.
type Cache struct {
	rdb      *redis.Client
	provider Provider
	logger   zerolog.Logger
}

// NewCache wires the provider and Redis client into a market cache.
func NewCache(rdb *redis.Client, provider Provider, logger zerolog.Logger) *Cache {
	return &Cache{
		rdb:      rdb,
		provider: provider,
		logger:   logger.With().Str("component", "market_cache").Logger(),
	}
}

// RefreshPrices fetches the full asset list and replaces both projections
// atomically. The returned lite list feeds alert evaluation and broadcasts.
// The previous snapshot is never wiped on a fetch failure.
func (c *Cache) RefreshPrices(ctx context.Context) ([]AssetLite, error) {
	assets, err := c.provider.FetchAssets(ctx)
	if err != nil {
		return nil, err
	}

	fullFields := make(map[string]string, len(assets))
	liteList := make([]AssetLite, 0, len(assets))
	for _, asset := range assets {
		payload, err := json.Marshal(asset)
		if err != nil {
			c.logger.Error().Err(err).Str("asset_id", asset.ID).Msg("failed to serialize asset")
			continue
		}
		fullFields[asset.ID] = string(payload)
		liteList = append(liteList, asset.Lite())
	}

	litePayload, err := json.Marshal(liteList)
	if err != nil {
		return nil, err
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keyAssetFullHash)
		pipe.HSet(ctx, keyAssetFullHash, fullFields)
		pipe.Set(ctx, keyAssetLiteList, litePayload, 0)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().Int("assets", len(liteList)).Msg("refreshed price cache")
	return liteList, nil
}

// RefreshStats fetches and caches the global market statistics. The stats key
// is independent of the price keys; a failure here never touches prices.
func (c *Cache) RefreshStats(ctx context.Context) (Stats, error) {
	stats, err := c.provider.FetchStats(ctx)
	if err != nil {
		return Stats{}, err
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return Stats{}, err
	}
	if err := c.rdb.Set(ctx, keyMarketStats, payload, 0).Err(); err != nil {
		return Stats{}, err
	}

	c.logger.Info().Msg("refreshed market stats cache")
	return stats, nil
}

// Get returns the full snapshot for one asset. On an empty cache it performs a
// single synchronous refresh before giving up.
func (c *Cache) Get(ctx context.Context, assetID string) (Asset, error) {
	asset, err := c.getCached(ctx, assetID)
	if err == nil {
		return asset, nil
	}
	if !errors.Is(err, errs.ErrDataUnavailable) {
		return Asset{}, err
	}

	if _, err := c.RefreshPrices(ctx); err != nil {
		c.logger.Error().Err(err).Msg("on-demand refresh failed")
		return Asset{}, errs.ErrDataUnavailable
	}
	return c.getCached(ctx, assetID)
}

func (c *Cache) getCached(ctx context.Context, assetID string) (Asset, error) {
	payload, err := c.rdb.HGet(ctx, keyAssetFullHash, assetID).Result()
	if errors.Is(err, redis.Nil) {
		exists, existsErr := c.rdb.Exists(ctx, keyAssetFullHash).Result()
		if existsErr == nil && exists == 0 {
			return Asset{}, errs.ErrDataUnavailable
		}
		return Asset{}, errs.NotFound("asset %s", assetID)
	}
	if err != nil {
		return Asset{}, err
	}

	var asset Asset
	if err := json.Unmarshal([]byte(payload), &asset); err != nil {
		return Asset{}, err
	}
	return asset, nil
}

// GetMany returns full snapshots for a set of asset ids in one round trip.
// Missing ids are omitted from the result.
func (c *Cache) GetMany(ctx context.Context, assetIDs []string) (map[string]Asset, error) {
	if len(assetIDs) == 0 {
		return map[string]Asset{}, nil
	}

	values, err := c.rdb.HMGet(ctx, keyAssetFullHash, assetIDs...).Result()
	if err != nil {
		return nil, err
	}

	assets := make(map[string]Asset, len(assetIDs))
	for i, value := range values {
		payload, ok := value.(string)
		if !ok {
			continue
		}
		var asset Asset
		if err := json.Unmarshal([]byte(payload), &asset); err != nil {
			c.logger.Error().Err(err).Str("asset_id", assetIDs[i]).Msg("failed to decode cached asset")
			continue
		}
		assets[asset.ID] = asset
	}
	return assets, nil
}

// GetAll returns the lite projection of the whole catalog, refreshing once if
// the cache is empty.
func (c *Cache) GetAll(ctx context.Context) ([]AssetLite, error) {
	list, err := c.getCachedLite(ctx)
	if err == nil {
		return list, nil
	}
	if !errors.Is(err, errs.ErrDataUnavailable) {
		return nil, err
	}

	c.logger.Warn().Msg("lite list missing, refetching")
	if list, err = c.RefreshPrices(ctx); err != nil {
		c.logger.Error().Err(err).Msg("on-demand refresh failed")
		return nil, errs.ErrDataUnavailable
	}
	return list, nil
}

func (c *Cache) getCachedLite(ctx context.Context) ([]AssetLite, error) {
	payload, err := c.rdb.Get(ctx, keyAssetLiteList).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errs.ErrDataUnavailable
	}
	if err != nil {
		return nil, err
	}

	var list []AssetLite
	if err := json.Unmarshal([]byte(payload), &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errs.ErrDataUnavailable
	}
	return list, nil
}

// Stats returns the cached market statistics, refreshing once if absent.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	payload, err := c.rdb.Get(ctx, keyMarketStats).Result()
	if errors.Is(err, redis.Nil) {
		c.logger.Warn().Msg("market stats missing, refetching")
		return c.RefreshStats(ctx)
	}
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	if err := json.Unmarshal([]byte(payload), &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Search returns lite entries whose name or symbol contains the term,
// case-insensitively. An empty term matches nothing.
func (c *Cache) Search(ctx context.Context, term string) ([]AssetLite, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, nil
	}

	list, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]AssetLite, 0)
	for _, asset := range list {
		if strings.Contains(strings.ToLower(asset.Name), term) ||
			strings.Contains(strings.ToLower(asset.Symbol), term) {
			matches = append(matches, asset)
		}
	}
	return matches, nil
}

// Chart proxies historical chart data for one asset, mapping UI timeframes to
// provider day ranges.
func (c *Cache) Chart(ctx context.Context, assetID, timeframe string) (json.RawMessage, error) {
	return c.provider.FetchChart(ctx, assetID, timeframeDays(timeframe))
}

func timeframeDays(timeframe string) string {
	switch timeframe {
	case "7D":
		return "7"
	case "1M":
		return "30"
	case "6M":
		return "180"
	case "1Y":
		return "365"
	default:
		return "1"
	}
}
