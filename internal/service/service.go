// Package service orchestrates the refresh cadences: fetch market data, update
// the cache, broadcast to market subscribers, and hand each cycle's snapshot to
// alert evaluation.
package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"coinalerts/internal/config"
	"coinalerts/internal/market"
	"coinalerts/internal/notify"
	"coinalerts/internal/scheduler"
	"coinalerts/internal/ws"
)

// evaluator produces notifications for the cycle's updated assets.
type evaluator interface {
	Evaluate(ctx context.Context, updated []market.AssetLite) ([]notify.Notification, error)
}

// router fans an evaluated batch out to the channel queues.
type router interface {
	Route(ctx context.Context, batch []notify.Notification) error
}

// tablePayload is the frame broadcast to market table subscribers after each
// refresh.
type tablePayload struct {
	Type   string             `json:"type"`
	Assets []market.AssetLite `json:"assets,omitempty"`
	Stats  *market.Stats      `json:"stats,omitempty"`
}

// detailPayload is the frame broadcast to a single asset's detail subscribers.
type detailPayload struct {
	Type  string       `json:"type"`
	Asset market.Asset `json:"asset"`
}

// Service wires the two refresh schedulers to the cache, the market broadcast
// hubs, and the evaluation pipeline.
type Service struct {
	cache     *market.Cache
	evaluator evaluator
	router    router
	hubs      *ws.MarketHubs
	prices    *scheduler.Scheduler
	stats     *scheduler.Scheduler
	logger    zerolog.Logger

	// Refreshed snapshots queue here for evaluation so a slow evaluation
	// cycle never delays the next refresh tick.
	pending chan []market.AssetLite
}

// New constructs the orchestrating service.
func New(cfg config.SchedulerConfig, cache *market.Cache, eval evaluator, rtr router, hubs *ws.MarketHubs, logger zerolog.Logger) *Service {
	return &Service{
		cache:     cache,
		evaluator: eval,
		router:    rtr,
		hubs:      hubs,
		prices: scheduler.New(scheduler.Options{
			Name:         "prices_refresh",
			Interval:     cfg.PricesInterval,
			StartupDelay: cfg.StartupDelay,
		}, logger),
		stats: scheduler.New(scheduler.Options{
			Name:         "stats_refresh",
			Interval:     cfg.StatsInterval,
			StartupDelay: cfg.StartupDelay,
		}, logger),
		logger:  logger.With().Str("component", "service").Logger(),
		pending: make(chan []market.AssetLite, 1),
	}
}

// Run blocks until ctx is cancelled, driving both refresh cadences and the
// evaluation worker.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		s.evaluateLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.prices.Run(ctx, s.refreshPrices)
	}()
	go func() {
		defer wg.Done()
		s.stats.Run(ctx, s.refreshStats)
	}()

	wg.Wait()
	return ctx.Err()
}

// refreshPrices is the prices cadence tick: refresh the cache, broadcast the
// new snapshot, queue it for evaluation.
func (s *Service) refreshPrices(ctx context.Context) error {
	liteList, err := s.cache.RefreshPrices(ctx)
	if err != nil {
		return err
	}

	s.broadcastTable(ctx, liteList)
	s.broadcastDetails(ctx)

	select {
	case s.pending <- liteList:
	default:
		// Previous cycle still evaluating; the queued snapshot is newer than
		// whatever we would add, so drop this one.
		s.logger.Warn().Msg("evaluation backlog, dropping snapshot")
	}
	return nil
}

// refreshStats is the stats cadence tick.
func (s *Service) refreshStats(ctx context.Context) error {
	stats, err := s.cache.RefreshStats(ctx)
	if err != nil {
		return err
	}
	if s.hubs != nil {
		s.hubs.Table.Broadcast(tablePayload{Type: "STATS_UPDATE", Stats: &stats})
	}
	return nil
}

// evaluateLoop drains refreshed snapshots into evaluate→route, one cycle at a
// time.
func (s *Service) evaluateLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case liteList := <-s.pending:
			notifications, err := s.evaluator.Evaluate(ctx, liteList)
			if err != nil {
				s.logger.Error().Err(err).Msg("alert evaluation failed")
				continue
			}
			if len(notifications) == 0 {
				continue
			}
			if err := s.router.Route(ctx, notifications); err != nil {
				s.logger.Error().Err(err).Msg("notification routing incomplete")
			}
		}
	}
}

func (s *Service) broadcastTable(ctx context.Context, liteList []market.AssetLite) {
	if s.hubs == nil || s.hubs.Table.SubscriberCount() == 0 {
		return
	}

	payload := tablePayload{Type: "MARKET_UPDATE", Assets: liteList}
	if stats, err := s.cache.Stats(ctx); err == nil {
		payload.Stats = &stats
	}
	s.hubs.Table.Broadcast(payload)
}

// broadcastDetails pushes each subscribed asset's full snapshot to its detail
// feed.
func (s *Service) broadcastDetails(ctx context.Context) {
	if s.hubs == nil {
		return
	}
	assetIDs := s.hubs.DetailAssetIDs()
	if len(assetIDs) == 0 {
		return
	}

	assets, err := s.cache.GetMany(ctx, assetIDs)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load assets for detail broadcast")
		return
	}
	for _, assetID := range assetIDs {
		asset, ok := assets[assetID]
		if !ok {
			continue
		}
		s.hubs.Detail(assetID).Broadcast(detailPayload{Type: "ASSET_UPDATE", Asset: asset})
	}
}
