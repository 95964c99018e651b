package handler

import (
	"net/http"

	"github.com/sakif/magma-calc/internal/apperror"
	"github.com/sakif/magma-calc/internal/model"
)

// HandleHealth is the liveness probe. It never touches the executor.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatsProvider is the slice of service.UsageService the stats handler needs.
type StatsProvider interface {
	Stats() model.UsageStats
}

// StatsHandler handles GET /stats.
type StatsHandler struct {
	usage StatsProvider
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(usage StatsProvider) *StatsHandler {
	return &StatsHandler{usage: usage}
}

// HandleStats returns the all-time and last-24h usage summaries.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.usage.Stats())
}

// HandleNotFound answers unknown routes in the standard error shape.
func HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, apperror.NotFound(r.URL.Path))
}

// Unauthorized writes a 401 for a request whose credentials were refused.
// It matches the callback shape auth.RequireBearer expects.
func Unauthorized(w http.ResponseWriter, _ *http.Request, _ error) {
	writeError(w, apperror.Unauthorized("A valid bearer token is required"))
}
