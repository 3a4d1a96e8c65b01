// Package hub implements the Real-Time Hub (C10): per-connection
// gorilla/websocket sessions indexed by user and by subscribed
// ticker, broadcasting price updates and notifications. Grounded on
// original_source/.../app/routers/websocket.py and
// websocket_service.py's connection lifecycle (connect, subscribe,
// unsubscribe, disconnect) and message shapes, translated into the
// teacher's goroutine-per-connection / channel-fed-writer concurrency
// idiom — the teacher declares gorilla/websocket in go.mod but never
// exercises it; this package is that wiring.
package hub

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stockassistant/orchestrator/internal/logging"
	"github.com/stockassistant/orchestrator/internal/models"
)

const (
	sendBuffer = 32
	writeWait  = 10 * time.Second
)

// Connection is one authenticated websocket session. The writer side
// is owned entirely by the hub: callers (internal/httpapi's read pump)
// only read incoming client frames off the raw *websocket.Conn and
// hand parsed actions to the Hub; outgoing frames always go through
// enqueue so a single goroutine owns every write to the socket.
type Connection struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	ws        *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// Conn returns the underlying websocket connection for the caller's
// read pump. Only one goroutine (the caller's) may call ws.ReadMessage.
func (c *Connection) Conn() *websocket.Conn { return c.ws }

func (c *Connection) writePump(log *logging.Logger) {
	defer c.ws.Close()
	for msg := range c.send {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.WithError(err).WithField("connection_id", c.ID).Warn("websocket write failed, dropping connection")
			return
		}
	}
}

// enqueue queues payload for delivery and reports whether it was
// accepted. A full send buffer means a slow consumer; the frame is
// dropped rather than blocking the hub or growing unbounded memory
// behind one stuck connection.
func (c *Connection) enqueue(payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

type connectedMessage struct {
	Type         string    `json:"type"`
	ConnectionID string    `json:"connection_id"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

type priceUpdateMessage struct {
	Type          string    `json:"type"`
	Ticker        string    `json:"ticker"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Volume        int64     `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
}

type notificationMessage struct {
	Type         string               `json:"type"`
	Notification *models.Notification `json:"notification"`
	Timestamp    time.Time            `json:"timestamp"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceUpdate is the payload internal/ticker broadcasts per tick.
type PriceUpdate struct {
	Price         float64
	Change        float64
	ChangePercent float64
	Volume        int64
}

// Stats summarizes current hub occupancy, mirroring the teacher's
// get_connection_stats endpoint.
type Stats struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
	Tickers     int `json:"tickers"`
}

// Hub owns every live connection and the user/ticker indexes used to
// route broadcasts, all behind one RWMutex.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	byUser   map[string]map[string]struct{}
	byTicker map[string]map[string]struct{}
	log      *logging.Logger
}

// New builds an empty Hub.
func New(log *logging.Logger) *Hub {
	if log == nil {
		log = logging.NewDefault("hub")
	}
	return &Hub{
		conns:    make(map[string]*Connection),
		byUser:   make(map[string]map[string]struct{}),
		byTicker: make(map[string]map[string]struct{}),
		log:      log,
	}
}

// Connect registers a new authenticated connection, starts its writer
// goroutine, and sends the welcome frame.
func (h *Hub) Connect(userID string, ws *websocket.Conn) *Connection {
	conn := &Connection{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		ws:          ws,
		send:        make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.conns[conn.ID] = conn
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[string]struct{})
	}
	h.byUser[userID][conn.ID] = struct{}{}
	h.mu.Unlock()

	go conn.writePump(h.log)
	conn.enqueue(connectedMessage{
		Type:         "connected",
		ConnectionID: conn.ID,
		Message:      "WebSocket connection established",
		Timestamp:    conn.ConnectedAt,
	})
	return conn
}

// Disconnect removes a connection from every index and closes its
// send channel, ending its writer goroutine.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, connID)
	if set := h.byUser[conn.UserID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(h.byUser, conn.UserID)
		}
	}
	for ticker, set := range h.byTicker {
		delete(set, connID)
		if len(set) == 0 {
			delete(h.byTicker, ticker)
		}
	}
	h.mu.Unlock()

	conn.closeOnce.Do(func() { close(conn.send) })
}

// Subscribe adds tickers to a connection's broadcast set.
func (h *Hub) Subscribe(connID string, tickers []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[connID]; !ok {
		return
	}
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if h.byTicker[t] == nil {
			h.byTicker[t] = make(map[string]struct{})
		}
		h.byTicker[t][connID] = struct{}{}
	}
}

// Unsubscribe removes tickers from a connection's broadcast set.
func (h *Hub) Unsubscribe(connID string, tickers []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if set := h.byTicker[t]; set != nil {
			delete(set, connID)
			if len(set) == 0 {
				delete(h.byTicker, t)
			}
		}
	}
}

// SendError delivers an error frame to a single connection, matching
// the teacher's "unknown action" / malformed-message responses.
func (h *Hub) SendError(connID, message string) {
	h.mu.RLock()
	conn, ok := h.conns[connID]
	h.mu.RUnlock()
	if ok {
		conn.enqueue(errorMessage{Type: "error", Message: message})
	}
}

// SendPong answers a client heartbeat.
func (h *Hub) SendPong(connID string) {
	h.mu.RLock()
	conn, ok := h.conns[connID]
	h.mu.RUnlock()
	if ok {
		conn.enqueue(pongMessage{Type: "pong", Timestamp: time.Now().UTC()})
	}
}

// BroadcastPriceUpdate fans a price tick out to every connection
// currently subscribed to ticker. Called by internal/ticker. Returns
// the number of connections the frame was actually queued for;
// recipients dropped because their send buffer is full are not counted.
func (h *Hub) BroadcastPriceUpdate(ticker string, update PriceUpdate) int {
	ticker = strings.ToUpper(ticker)
	h.mu.RLock()
	ids := h.byTicker[ticker]
	targets := make([]*Connection, 0, len(ids))
	for id := range ids {
		if c, ok := h.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	msg := priceUpdateMessage{
		Type:          "price_update",
		Ticker:        ticker,
		Price:         update.Price,
		Change:        update.Change,
		ChangePercent: update.ChangePercent,
		Volume:        update.Volume,
		Timestamp:     time.Now().UTC(),
	}
	delivered := 0
	for _, c := range targets {
		if c.enqueue(msg) {
			delivered++
		}
	}
	return delivered
}

// BroadcastNotification delivers a notification to every connection
// owned by userID. Satisfies internal/alerts.Broadcaster.
func (h *Hub) BroadcastNotification(userID string, n *models.Notification) {
	h.mu.RLock()
	ids := h.byUser[userID]
	targets := make([]*Connection, 0, len(ids))
	for id := range ids {
		if c, ok := h.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	msg := notificationMessage{Type: "notification", Notification: n, Timestamp: time.Now().UTC()}
	for _, c := range targets {
		c.enqueue(msg)
	}
}

// SubscribedTickers returns every ticker with at least one subscribed
// connection. Called by internal/ticker once per tick to decide what
// to fetch — an idle hub with no subscriptions costs the loop nothing.
func (h *Hub) SubscribedTickers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byTicker))
	for t := range h.byTicker {
		out = append(out, t)
	}
	return out
}

// Stats reports current occupancy for a diagnostics endpoint.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Connections: len(h.conns),
		Users:       len(h.byUser),
		Tickers:     len(h.byTicker),
	}
}
