package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizwar/internal/room"
)

// Handler serves spectator WebSocket upgrades.
type Handler struct {
	manager *ConnectionManager
}

// NewHandler creates a handler on top of a connection manager.
func NewHandler(manager *ConnectionManager) *Handler {
	return &Handler{manager: manager}
}

// HandleRoomConnection upgrades a spectator connection for one room.
func (h *Handler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(r.URL.Query().Get("code"))
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}
	if !room.ValidCode(code) {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}

	if err := h.manager.UpgradeConnection(context.Background(), w, r, code); err != nil {
		log.Error().
			Err(err).
			Str("room", code).
			Msg("failed to upgrade spectator connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
}

// HandleHealth is a liveness probe that also reports connection counts.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	total, rooms := h.manager.Stats()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"connections":%d,"rooms":%d}`, total, rooms)
}

// RegisterRoutes registers the gateway routes on a mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/room", h.HandleRoomConnection)
	mux.HandleFunc("/healthz", h.HandleHealth)
}
