package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/m-maciver/split-the-g/go/internal/match/coordinator"
	"github.com/m-maciver/split-the-g/go/internal/match/events"
)

// StateProvider exposes coordinator state to HTTP
type StateProvider interface {
	Stats(ctx context.Context) (coordinator.Stats, error)
	ICEServers() []events.ICEServer
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Status string `json:"status"`
	coordinator.Stats
	Gateway ConnectionStats `json:"gateway"`
}

// StateHandler serves read-only state endpoints
type StateHandler struct {
	stateProvider     StateProvider
	connectionManager *ConnectionManager
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider, cm *ConnectionManager) *StateHandler {
	return &StateHandler{
		stateProvider:     provider,
		connectionManager: cm,
	}
}

// HandleStatus handles GET /status
func (h *StateHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.stateProvider.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get coordinator stats")
		http.Error(w, "Coordinator unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, StatusResponse{
		Status:  "ok",
		Stats:   stats,
		Gateway: h.connectionManager.GetConnectionStats(),
	})
}

// HandleNegotiationConfig handles GET /api/negotiation-config
func (h *StateHandler) HandleNegotiationConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, events.NegotiationConfigPayload{ICEServers: h.stateProvider.ICEServers()})
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/status", h.HandleStatus)
	mux.HandleFunc("/api/negotiation-config", h.HandleNegotiationConfig)
}
