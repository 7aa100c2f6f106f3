package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// Event types pushed to merchant screens.
const (
	TypeCart    = "cart_update"
	TypeCatalog = "catalog_update"
	TypeOrder   = "order_update"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Client struct {
	SessionID string
	Conn      Conn
}

type Event struct {
	Type      string    `json:"type"`
	Action    string    `json:"action"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
	At        time.Time `json:"at"`
}

type envelope struct {
	sessionID string
	payload   []byte
}

// Hub fans events out to the connections of one session. An empty session id reaches everyone.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	clients   map[string]map[Conn]bool
	broadcast chan envelope
	mutex     sync.Mutex
	logger    *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[string]map[Conn]bool),
		broadcast:  make(chan envelope, 64),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for _, conns := range h.clients {
				for conn := range conns {
					conn.Close()
				}
			}
			h.clients = make(map[string]map[Conn]bool)
			h.mutex.Unlock()
			return

		case c := <-h.Register:
			h.mutex.Lock()
			if h.clients[c.SessionID] == nil {
				h.clients[c.SessionID] = make(map[Conn]bool)
			}
			h.clients[c.SessionID][c.Conn] = true
			h.mutex.Unlock()
			h.logger.Debug("ws client connected", zap.String("session_id", c.SessionID))

		case c := <-h.Unregister:
			h.mutex.Lock()
			if conns, ok := h.clients[c.SessionID]; ok && conns[c.Conn] {
				delete(conns, c.Conn)
				c.Conn.Close()
				if len(conns) == 0 {
					delete(h.clients, c.SessionID)
				}
			}
			h.mutex.Unlock()

		case msg := <-h.broadcast:
			h.mutex.Lock()
			for sid, conns := range h.clients {
				if msg.sessionID != "" && sid != msg.sessionID {
					continue
				}
				for conn := range conns {
					if err := conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
						conn.Close()
						delete(conns, conn)
					}
				}
				if len(conns) == 0 {
					delete(h.clients, sid)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Publish queues ev for the session's connections. It drops the event when the queue is full.
func (h *Hub) Publish(sessionID string, ev Event) {
	ev.SessionID = sessionID
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode ws event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- envelope{sessionID: sessionID, payload: msg}:
	default:
		h.logger.Warn("ws queue full, event dropped", zap.String("type", ev.Type), zap.String("session_id", sessionID))
	}
}

// Count returns the live connections of a session.
func (h *Hub) Count(sessionID string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients[sessionID])
}
