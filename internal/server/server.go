// Package server exposes the websocket endpoints, the Twilio status webhook,
// and the health probe over one HTTP listener.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"coinalerts/internal/config"
)

// Handlers collects the endpoint implementations the server mounts.
type Handlers struct {
	Alerts      http.Handler // /ws/alerts
	MarketTable http.Handler // /ws/market
	AssetDetail func(assetID string) http.Handler
	SMSCallback http.Handler // POST /webhooks/sms
}

// Server is the HTTP/WebSocket listener.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          zerolog.Logger
}

// New builds the router and listener.
func New(cfg config.ServerConfig, handlers Handlers, logger zerolog.Logger) *Server {
	router := mux.NewRouter()

	router.Handle("/ws/alerts", handlers.Alerts)
	router.Handle("/ws/market", handlers.MarketTable)
	router.HandleFunc("/ws/assets/{id}", func(w http.ResponseWriter, r *http.Request) {
		assetID := mux.Vars(r)["id"]
		if assetID == "" {
			http.Error(w, "missing asset id", http.StatusBadRequest)
			return
		}
		handlers.AssetDetail(assetID).ServeHTTP(w, r)
	})
	router.Handle("/webhooks/sms", handlers.SMSCallback).Methods(http.MethodPost)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		httpServer: &http.Server{
			Addr:        cfg.Addr,
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger.With().Str("component", "server").Logger(),
	}
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
