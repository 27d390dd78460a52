package ws

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"coinalerts/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// How long an unauthenticated connection may sit before it is closed.
	authWait = 30 * time.Second

	maxMessageSize = 4096

	sendBuffer = 16
)

// Session states. A session is born connected, becomes authenticated after a
// valid AUTH_REQUEST, and closed is terminal.
const (
	stateConnected int32 = iota
	stateAuthenticated
	stateClosed
)

// Message types exchanged with alert subscribers.
const (
	typeAuthRequest = "AUTH_REQUEST"
	typeAuthSuccess = "AUTH_SUCCESS"
	typeError       = "ERROR"
	typeAlerts      = "ALERTS"
)

type clientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type serverMessage struct {
	Type      string                `json:"type"`
	Message   string                `json:"message,omitempty"`
	AlertData []notify.Notification `json:"alertData,omitempty"`
}

// Session is one alert subscriber connection.
type Session struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	state  atomic.Int32
	userID atomic.Int64
}

func newSession(id string, conn *websocket.Conn) *Session {
	s := &Session{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	s.state.Store(stateConnected)
	return s
}

// UserID returns the authenticated user, zero before authentication.
func (s *Session) UserID() int64 {
	return s.userID.Load()
}

func (s *Session) authenticated() bool {
	return s.state.Load() == stateAuthenticated
}

func (s *Session) closed() bool {
	return s.state.Load() == stateClosed
}

// enqueue hands a frame to the write pump without blocking; a full buffer
// means the client is not keeping up and the frame is dropped.
func (s *Session) enqueue(frame []byte) bool {
	if s.closed() {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) sendMessage(msg serverMessage) bool {
	frame, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	return s.enqueue(frame)
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with pings. One per session.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
