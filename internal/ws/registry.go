package ws

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"coinalerts/internal/notify"
)

// Result is the per-alert outcome of one push broadcast.
type Result struct {
	AlertID   int64
	UserID    int64
	Delivered bool
}

// Registry tracks alert subscriber sessions. Sessions are addressed two ways:
// by session id for lifecycle, and by user id for delivery. When a user
// authenticates on a second connection the user mapping moves to the newer
// session; the older one keeps its connection but no longer receives alerts.
type Registry struct {
	secret         []byte
	allowedOrigins []string
	logger         zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[int64]*Session

	upgrader websocket.Upgrader
}

// NewRegistry constructs the alert subscriber registry.
func NewRegistry(jwtSecret string, allowedOrigins []string, logger zerolog.Logger) *Registry {
	r := &Registry{
		secret:         []byte(jwtSecret),
		allowedOrigins: allowedOrigins,
		logger:         logger.With().Str("component", "ws_registry").Logger(),
		sessions:       make(map[string]*Session),
		byUser:         make(map[int64]*Session),
	}
	r.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return r
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP upgrades the request and runs the session until the connection
// drops.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := newSession(uuid.NewString(), conn)

	r.mu.Lock()
	r.sessions[session.id] = session
	r.mu.Unlock()

	r.logger.Debug().Str("session_id", session.id).Msg("session connected")

	go session.writePump()
	r.readPump(session)
}

// readPump consumes client frames. The only meaningful client message is
// AUTH_REQUEST; anything malformed gets an ERROR frame and the connection is
// closed.
func (r *Registry) readPump(session *Session) {
	defer r.drop(session)

	session.conn.SetReadLimit(maxMessageSize)
	session.conn.SetReadDeadline(time.Now().Add(authWait))
	session.conn.SetPongHandler(func(string) error {
		wait := authWait
		if session.authenticated() {
			wait = pongWait
		}
		session.conn.SetReadDeadline(time.Now().Add(wait))
		return nil
	})

	for {
		var msg clientMessage
		if err := session.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Debug().Err(err).Str("session_id", session.id).Msg("session read failed")
			}
			if !session.closed() && !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.reject(session, "malformed message")
			}
			return
		}

		if msg.Type != typeAuthRequest {
			r.reject(session, fmt.Sprintf("unexpected message type %q", msg.Type))
			return
		}

		userID, err := r.verifyToken(msg.Token)
		if err != nil {
			r.logger.Warn().Err(err).Str("session_id", session.id).Msg("authentication rejected")
			r.reject(session, "invalid token")
			return
		}

		r.authenticate(session, userID)
		session.conn.SetReadDeadline(time.Now().Add(pongWait))
		session.sendMessage(serverMessage{Type: typeAuthSuccess})
	}
}

func (r *Registry) verifyToken(raw string) (int64, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return 0, fmt.Errorf("token missing subject")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("token subject is not a user id: %w", err)
	}
	return userID, nil
}

func (r *Registry) authenticate(session *Session, userID int64) {
	session.userID.Store(userID)
	session.state.Store(stateAuthenticated)

	r.mu.Lock()
	r.byUser[userID] = session
	r.mu.Unlock()

	r.logger.Info().Str("session_id", session.id).Int64("user_id", userID).Msg("session authenticated")
}

// reject sends an ERROR frame and force-closes the connection.
func (r *Registry) reject(session *Session, reason string) {
	session.sendMessage(serverMessage{Type: typeError, Message: reason})
	// Give the write pump a moment to flush the error frame.
	time.Sleep(50 * time.Millisecond)
	session.conn.Close()
}

// drop unregisters a session. The user mapping is removed only if it still
// points at this session, so a newer connection for the same user survives.
func (r *Registry) drop(session *Session) {
	session.state.Store(stateClosed)

	r.mu.Lock()
	delete(r.sessions, session.id)
	if userID := session.UserID(); userID != 0 {
		if current, ok := r.byUser[userID]; ok && current == session {
			delete(r.byUser, userID)
		}
	}
	r.mu.Unlock()

	session.conn.Close()
	r.logger.Debug().Str("session_id", session.id).Msg("session dropped")
}

// Broadcast delivers each user's notifications to their live session in one
// ALERTS frame, and reports a per-alert outcome. Users without a live
// authenticated session count as not delivered.
func (r *Registry) Broadcast(batch []notify.Notification) []Result {
	results := make([]Result, 0, len(batch))

	for userID, notifications := range notify.GroupByUser(batch) {
		r.mu.RLock()
		session, ok := r.byUser[userID]
		r.mu.RUnlock()

		delivered := false
		if ok && session.authenticated() {
			delivered = session.sendMessage(serverMessage{Type: typeAlerts, AlertData: notifications})
		}
		for _, n := range notifications {
			results = append(results, Result{AlertID: n.AlertID, UserID: userID, Delivered: delivered})
		}
	}
	return results
}

// SessionCount reports the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown sends close frames to every session and drops them.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		r.drop(s)
	}
	r.logger.Info().Int("sessions", len(sessions)).Msg("registry shut down")
}
