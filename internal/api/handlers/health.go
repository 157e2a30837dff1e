package handlers

import (
	"net/http"
	"time"

	"github.com/anstrom/portsweep/internal/jobs"
)

const healthCheckTimeout = 3 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status           string         `json:"status"`
	Version          string         `json:"version"`
	Timestamp        time.Time      `json:"timestamp"`
	UptimeSeconds    float64        `json:"uptime_seconds"`
	Database         string         `json:"database"`
	Jobs             jobs.SlotStats `json:"jobs"`
	WebSocketClients int            `json:"websocket_clients"`
}

// HealthHandler reports service health.
type HealthHandler struct {
	db      Pinger
	jobs    JobController
	hub     *Hub
	version string
	started time.Time
}

// NewHealthHandler creates a health handler. database and hub may be nil.
func NewHealthHandler(database Pinger, controller JobController, hub *Hub, version string) *HealthHandler {
	return &HealthHandler{
		db:      database,
		jobs:    controller,
		hub:     hub,
		version: version,
		started: time.Now(),
	}
}

// Health handles GET /health. It answers 503 when the database is unreachable.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: time.Since(h.started).Seconds(),
		Database:      "disabled",
	}
	if h.jobs != nil {
		resp.Jobs = h.jobs.Stats()
	}
	if h.hub != nil {
		resp.WebSocketClients = h.hub.Clients()
	}

	status := http.StatusOK
	if h.db != nil {
		ctx, cancel := requestContext(r, healthCheckTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	writeJSON(w, r, status, resp)
}
