// Package progress streams optimization progress to websocket clients.
package progress

import (
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"strategy-lab/internal/observability"
	"strategy-lab/internal/optimize"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer is the number of pending messages per client before the
	// client is considered too slow and dropped.
	sendBuffer = 64
)

// Message is the JSON form of optimize.Progress sent to clients.
// BestObjective is null until a trial completes.
type Message struct {
	StudyID       string   `json:"study_id"`
	Trial         int      `json:"trial"`
	Total         int      `json:"total"`
	BestObjective *float64 `json:"best_objective"`
	Failed        bool     `json:"failed"`
}

// NewMessage converts p, mapping a non-finite best objective to null.
func NewMessage(p optimize.Progress) Message {
	m := Message{
		StudyID: p.StudyID,
		Trial:   p.Trial,
		Total:   p.Total,
		Failed:  p.Failed,
	}
	if !math.IsInf(p.BestObjective, 0) && !math.IsNaN(p.BestObjective) {
		best := p.BestObjective
		m.BestObjective = &best
	}
	return m
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans progress messages out to connected websocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewHub creates a hub. metrics may be nil.
func NewHub(metrics *observability.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		metrics: metrics,
		logger:  logger,
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish sends p to every connected client. It never blocks: clients whose
// send buffer is full are disconnected.
func (h *Hub) Publish(p optimize.Progress) {
	data, err := json.Marshal(NewMessage(p))
	if err != nil {
		h.logger.Error("marshal progress", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow progress client")
			h.removeLocked(c)
		}
	}
}

// ServeHTTP upgrades the request to a websocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetProgressClients(n)

	go h.writePump(c)
	go h.readPump(c)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.SetProgressClients(len(h.clients))
}

// readPump discards inbound messages and unregisters the client when the
// connection closes.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
