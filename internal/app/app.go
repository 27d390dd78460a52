package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"coinalerts/internal/alert"
	"coinalerts/internal/config"
	"coinalerts/internal/delivery"
	"coinalerts/internal/ledger"
	"coinalerts/internal/market"
	"coinalerts/internal/notify"
	"coinalerts/internal/queue"
	"coinalerts/internal/server"
	"coinalerts/internal/service"
	"coinalerts/internal/storage"
	"coinalerts/internal/templates"
	"coinalerts/internal/watch"
	"coinalerts/internal/ws"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	store := storage.NewStore(pool)
	return store, store.Close, nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// Run starts the full pipeline and blocks until a termination signal.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb := a.newRedis()
	defer rdb.Close()

	// Market data path.
	provider := market.NewCoingecko(market.CoingeckoOptions{
		BaseURL:       a.Config.Coingecko.BaseURL,
		APIKey:        a.Config.Coingecko.APIKey,
		PerPage:       a.Config.Coingecko.PerPage,
		Timeout:       a.Config.Coingecko.RequestTimeout,
		RetryAttempts: a.Config.Coingecko.RetryAttempts,
		RetryBackoff:  a.Config.Coingecko.RetryBackoff,
	}, a.Logger)
	cache := market.NewCache(rdb, provider, a.Logger)

	// Evaluation path.
	index := watch.NewIndex(rdb, a.Logger)
	evaluator := alert.NewEvaluator(index, a.Logger)
	queueTransport := queue.NewRedis(rdb)
	router := notify.NewRouter(queueTransport, a.Logger)

	// Delivery path.
	registry := ws.NewRegistry(a.Config.Server.JWTSecret, a.Config.Server.AllowedOrigins, a.Logger)
	hubs := ws.NewMarketHubs(a.Config.Server.AllowedOrigins, a.Logger)
	ldg := ledger.New(store, store, index, a.Logger)
	templateService := templates.NewService(rdb, store, a.Logger)

	workers := []interface{ Run(context.Context) }{
		delivery.NewPushWorker(queueTransport, registry, ldg, a.Logger),
	}
	if a.Config.SMS.Enabled {
		workers = append(workers, delivery.NewSMSWorker(delivery.SMSWorkerOptions{
			Consumer:  queueTransport,
			API:       delivery.NewTwilioAPI(a.Config.SMS),
			Contacts:  store,
			Templates: templateService,
			Logs:      store,
			Ledger:    ldg,
			Config:    a.Config.SMS,
			Logger:    a.Logger,
		}))
	} else {
		a.Logger.Warn().Msg("sms delivery disabled")
	}
	if a.Config.Email.Enabled {
		smtpClient, err := delivery.NewSMTPClient(a.Config.Email)
		if err != nil {
			return err
		}
		workers = append(workers, delivery.NewEmailWorker(delivery.EmailWorkerOptions{
			Consumer:  queueTransport,
			Sender:    smtpClient,
			Contacts:  store,
			Templates: templateService,
			Logs:      store,
			Ledger:    ldg,
			Config:    a.Config.Email,
			Logger:    a.Logger,
		}))
	} else {
		a.Logger.Warn().Msg("email delivery disabled")
	}

	// HTTP surface.
	callback := delivery.NewCallbackHandler(ldg, a.Config.SMS.AuthToken, a.Logger)
	srv := server.New(a.Config.Server, server.Handlers{
		Alerts:      registry,
		MarketTable: hubs.Table,
		AssetDetail: func(assetID string) http.Handler { return hubs.Detail(assetID) },
		SMSCallback: callback,
	}, a.Logger)

	svc := service.New(a.Config.Scheduler, cache, evaluator, router, hubs, a.Logger)

	// Workers run on their own context so in-flight batches drain after the
	// schedulers stop.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var workerWG sync.WaitGroup
	for _, w := range workers {
		workerWG.Add(1)
		go func(w interface{ Run(context.Context) }) {
			defer workerWG.Done()
			w.Run(workerCtx)
		}(w)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- svc.Run(ctx) }()
	go func() { errCh <- srv.Run() }()

	a.Logger.Info().Msg("alert pipeline started")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("component terminated with error")
		}
		cancel()
	}

	// Shutdown order: schedulers stop with ctx, then workers drain, then the
	// listener and sockets close, then stores close via defers.
	stopWorkers()
	workerWG.Wait()

	if err := srv.Shutdown(context.Background()); err != nil {
		a.Logger.Error().Err(err).Msg("http server shutdown failed")
	}
	registry.Shutdown(context.Background())
	hubs.Shutdown()

	a.Logger.Info().Msg("alert pipeline stopped")
	return nil
}
