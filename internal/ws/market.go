package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub is a one-way broadcast group: every subscriber receives every payload.
// Used for the market table feed and per-asset detail feeds, which need no
// authentication.
type Hub struct {
	name   string
	logger zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Session

	upgrader websocket.Upgrader
}

// NewHub constructs a broadcast hub.
func NewHub(name string, allowedOrigins []string, logger zerolog.Logger) *Hub {
	return &Hub{
		name:    name,
		logger:  logger.With().Str("component", "ws_hub").Str("hub", name).Logger(),
		clients: make(map[string]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// ServeHTTP upgrades the request and keeps the subscriber until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := newSession(uuid.NewString(), conn)

	h.mu.Lock()
	h.clients[session.id] = session
	h.mu.Unlock()

	go session.writePump()

	// Subscribers never send meaningful frames; the read loop only services
	// pongs and detects disconnects.
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	session.state.Store(stateClosed)
	h.mu.Lock()
	delete(h.clients, session.id)
	h.mu.Unlock()
	conn.Close()
}

// Broadcast marshals the payload once and fans it out to every subscriber.
// Slow subscribers drop frames rather than blocking the refresh cycle.
func (h *Hub) Broadcast(payload interface{}) {
	h.mu.RLock()
	if len(h.clients) == 0 {
		h.mu.RUnlock()
		return
	}
	clients := make([]*Session, 0, len(h.clients))
	for _, s := range h.clients {
		clients = append(clients, s)
	}
	h.mu.RUnlock()

	frame, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to serialize broadcast payload")
		return
	}
	for _, s := range clients {
		if !s.enqueue(frame) {
			h.logger.Debug().Str("session_id", s.id).Msg("dropped frame for slow subscriber")
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every subscriber connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Session, 0, len(h.clients))
	for _, s := range h.clients {
		clients = append(clients, s)
	}
	h.clients = make(map[string]*Session)
	h.mu.Unlock()

	for _, s := range clients {
		s.state.Store(stateClosed)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		s.conn.Close()
	}
}

// MarketHubs groups the market table feed with lazily created per-asset detail
// feeds.
type MarketHubs struct {
	Table *Hub

	allowedOrigins []string
	logger         zerolog.Logger

	mu     sync.Mutex
	detail map[string]*Hub
}

// NewMarketHubs constructs the market feed group.
func NewMarketHubs(allowedOrigins []string, logger zerolog.Logger) *MarketHubs {
	return &MarketHubs{
		Table:          NewHub("market_table", allowedOrigins, logger),
		allowedOrigins: allowedOrigins,
		logger:         logger,
		detail:         make(map[string]*Hub),
	}
}

// Detail returns the detail hub for one asset, creating it on first use.
func (m *MarketHubs) Detail(assetID string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	hub, ok := m.detail[assetID]
	if !ok {
		hub = NewHub("asset:"+assetID, m.allowedOrigins, m.logger)
		m.detail[assetID] = hub
	}
	return hub
}

// DetailAssetIDs lists assets with at least one detail subscriber.
func (m *MarketHubs) DetailAssetIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.detail))
	for id, hub := range m.detail {
		if hub.SubscriberCount() > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Shutdown closes the table feed and every detail feed.
func (m *MarketHubs) Shutdown() {
	m.Table.Shutdown()
	m.mu.Lock()
	hubs := make([]*Hub, 0, len(m.detail))
	for _, hub := range m.detail {
		hubs = append(hubs, hub)
	}
	m.mu.Unlock()
	for _, hub := range hubs {
		hub.Shutdown()
	}
}
