package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/anstrom/portsweep/internal/api/middleware"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/jobs"
	"github.com/anstrom/portsweep/internal/logging"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriodRatio = 0.9
	pingPeriod      = time.Duration(float64(pongWait) * pingPeriodRatio) // must be < pongWait
	maxMessageSize  = 512
	broadcastBuffer = 256
	clientBuffer    = 64
)

// Message is the envelope sent to websocket clients.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	// jobID restricts delivery to one job; uuid.Nil receives everything.
	jobID uuid.UUID
}

// Hub fans job events out to websocket clients. It implements jobs.Publisher.
type Hub struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	register   chan *client
	unregister chan *client
	broadcast  chan jobs.Event
	done       chan struct{}
	closeOnce  sync.Once

	clients map[*client]bool
	count   atomic.Int64
}

// NewHub creates a hub and starts its dispatch loop.
func NewHub(logger *logging.Logger) *Hub {
	h := &Hub{
		logger: logger.WithComponent("websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool { return true },
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan jobs.Event, broadcastBuffer),
		done:       make(chan struct{}),
		clients:    make(map[*client]bool),
	}
	go h.run()
	return h
}

// Publish queues an event for delivery. Events are dropped when the queue is full.
func (h *Hub) Publish(event jobs.Event) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	default:
		h.logger.Warn("Broadcast queue full, dropping event", "job_id", event.JobID.String())
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Close disconnects every client and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeWS handles GET /ws. The optional job_id query parameter limits the
// stream to a single job.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r)

	var jobID uuid.UUID
	if raw := r.URL.Query().Get("job_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, errors.NewScanError(errors.CodeValidation, "invalid job_id"))
			return
		}
		jobID = id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", "request_id", requestID, "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer), jobID: jobID}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	h.logger.Debug("WebSocket client connected", "request_id", requestID, "remote_addr", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.count.Store(int64(len(h.clients)))
		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
			}
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(event jobs.Event) {
	data, err := json.Marshal(Message{Type: "job_update", Timestamp: time.Now().UTC(), Data: event})
	if err != nil {
		h.logger.Error("Failed to marshal job event", "error", err)
		return
	}
	for c := range h.clients {
		if c.jobID != uuid.Nil && c.jobID != event.JobID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("WebSocket client too slow, disconnecting")
			h.drop(c)
		}
	}
}

// drop must only be called from run.
func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("WebSocket unexpected close", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
