package handlers

import (
	"net/http"

	"github.com/repset/warmup/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// HealthHandler serves cache health snapshots to the operational dashboard.
type HealthHandler struct {
	health interfaces.HealthService
	logger arbor.ILogger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(health interfaces.HealthService, logger arbor.ILogger) *HealthHandler {
	return &HealthHandler{
		health: health,
		logger: logger,
	}
}

// SnapshotHandler handles GET /api/cache/health
func (h *HealthHandler) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, h.health.Snapshot())
}

// PlanHandler handles GET /api/cache/health/plan. Returns the corrective
// warming plan the current snapshot would trigger, without enqueuing it.
func (h *HealthHandler) PlanHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	snapshot := h.health.Snapshot()
	plan := h.health.DetermineWarmingStrategy(snapshot)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"health": snapshot,
		"plan":   plan,
	})
}
