package handlers

import (
	"net/http"

	"github.com/kozaktomas/fingerprint-id/internal/engine"
)

// StatsHandler handles engine statistics and maintenance endpoints
type StatsHandler struct {
	engine *engine.Engine
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(eng *engine.Engine) *StatsHandler {
	return &StatsHandler{engine: eng}
}

// Get handles GET /stats.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Stats())
}

// Rebuild handles POST /rebuild: retrain the classifier and recommit.
func (h *StatsHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Rebuild(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
