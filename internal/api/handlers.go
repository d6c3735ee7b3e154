package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/worldlyfantasy/priospace-sub000/internal/relay"
)

const version = "0.1.0"

// Handler serves the relay's plain HTTP endpoints.
type Handler struct {
	relay   *relay.Server
	started time.Time
}

// NewHandler creates a handler over the running relay.
func NewHandler(srv *relay.Server) *Handler {
	return &Handler{relay: srv, started: time.Now()}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Peers     int    `json:"peers"`
	Rooms     int    `json:"rooms"`
	Timestamp string `json:"timestamp"`
}

// Health handles the health check endpoint. The relay has no external
// dependencies to probe; it is healthy while it can answer at all.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	peers, rooms := h.relay.Registry().Counts()
	h.JSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Peers:     peers,
		Rooms:     rooms,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// StatsResponse represents the stats endpoint response.
type StatsResponse struct {
	ConnectedPeers int    `json:"connected_peers"`
	ActiveRooms    int    `json:"active_rooms"`
	Uptime         string `json:"uptime"`
}

// Stats returns current relay occupancy.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	peers, rooms := h.relay.Registry().Counts()
	h.JSON(w, http.StatusOK, StatsResponse{
		ConnectedPeers: peers,
		ActiveRooms:    rooms,
		Uptime:         time.Since(h.started).Round(time.Second).String(),
	})
}
