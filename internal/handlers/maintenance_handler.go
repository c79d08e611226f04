package handlers

import (
	"errors"
	"net/http"

	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
)

// MaintenanceHandler exposes the maintenance scheduler's mutation surface
// (force run, config updates) and its reports.
type MaintenanceHandler struct {
	scheduler interfaces.MaintenanceService
	reports   interfaces.ReportStorage
	logger    arbor.ILogger
}

// NewMaintenanceHandler creates a new MaintenanceHandler
func NewMaintenanceHandler(scheduler interfaces.MaintenanceService, reports interfaces.ReportStorage, logger arbor.ILogger) *MaintenanceHandler {
	return &MaintenanceHandler{
		scheduler: scheduler,
		reports:   reports,
		logger:    logger,
	}
}

// StatusHandler handles GET /api/maintenance/status
func (h *MaintenanceHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, h.scheduler.GetStatus())
}

// RunHandler handles POST /api/maintenance/run. Bypasses quiet hours and
// the high-load gate; an overlapping run is still refused.
func (h *MaintenanceHandler) RunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	report, err := h.scheduler.ForceRun(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Forced maintenance run failed")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

// ReportsHandler handles GET /api/maintenance/reports
func (h *MaintenanceHandler) ReportsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := QueryInt(r, "limit", 20)
	reports, err := h.reports.List(limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list reports: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(reports),
		"reports": reports,
	})
}

// LatestReportHandler handles GET /api/maintenance/reports/latest
func (h *MaintenanceHandler) LatestReportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	report, err := h.reports.Latest()
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "No maintenance reports yet")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to load report: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

// UpdateConfigHandler handles PUT /api/maintenance/config
func (h *MaintenanceHandler) UpdateConfigHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	var update models.MaintenanceConfigUpdate
	if !DecodeJSONBody(w, r, &update) {
		return
	}

	if err := h.scheduler.UpdateConfig(update); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, h.scheduler.GetStatus())
}
