package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/models"
	"github.com/repset/warmup/internal/services/changes"
	"github.com/ternarybob/arbor"
)

// RecordHandler serves cached record reads, workout saves and change
// detection to the save-orchestration layer.
type RecordHandler struct {
	records  interfaces.WorkoutService
	detector *changes.Detector
	logger   arbor.ILogger
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(records interfaces.WorkoutService, detector *changes.Detector, logger arbor.ILogger) *RecordHandler {
	return &RecordHandler{
		records:  records,
		detector: detector,
		logger:   logger,
	}
}

// GetRecordHandler handles GET /api/records/{table}/{id}. Reads through the
// cache, falling back to the remote service on a miss.
func (h *RecordHandler) GetRecordHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	table, id, ok := recordPath(r.URL.Path)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Expected /api/records/{table}/{id}")
		return
	}
	if !models.KnownTable(table) {
		WriteError(w, http.StatusBadRequest, "Unknown table: "+table)
		return
	}

	record, err := h.records.GetRecord(r.Context(), table, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Record not found")
			return
		}
		WriteError(w, http.StatusBadGateway, "Record read failed: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

type saveWorkoutRequest struct {
	Previous *models.RecordSnapshot `json:"previous"`
	Current  *models.RecordSnapshot `json:"current"`
}

// SaveWorkoutHandler handles POST /api/workouts/{id}/save
func (h *RecordHandler) SaveWorkoutHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	workoutID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/workouts/"), "/save")
	if workoutID == "" || strings.Contains(workoutID, "/") {
		WriteError(w, http.StatusBadRequest, "Expected /api/workouts/{id}/save")
		return
	}

	var req saveWorkoutRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if req.Current == nil {
		WriteError(w, http.StatusBadRequest, "current snapshot is required")
		return
	}

	outcome, err := h.records.SaveWorkout(r.Context(), workoutID, req.Previous, req.Current)
	if err != nil {
		WriteError(w, http.StatusBadGateway, "Save failed: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, outcome)
}

type detectChangesRequest struct {
	Previous *models.RecordSnapshot `json:"previous"`
	Current  *models.RecordSnapshot `json:"current"`
}

type detectChangesResponse struct {
	Analysis              models.ChangeAnalysis `json:"analysis"`
	RequiresImmediateSave bool                  `json:"requiresImmediateSave"`
	CanUseDebouncedSave   bool                  `json:"canUseDebouncedSave"`
}

// DetectChangesHandler handles POST /api/changes/detect. Pure classification;
// nothing is saved.
func (h *RecordHandler) DetectChangesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req detectChangesRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if req.Current == nil {
		WriteError(w, http.StatusBadRequest, "current snapshot is required")
		return
	}

	analysis := h.detector.DetectChanges(req.Previous, req.Current)
	WriteJSON(w, http.StatusOK, detectChangesResponse{
		Analysis:              analysis,
		RequiresImmediateSave: changes.RequiresImmediateSave(analysis),
		CanUseDebouncedSave:   changes.CanUseDebouncedSave(analysis),
	})
}

// ConflictsHandler handles GET /api/records/conflicts
func (h *RecordHandler) ConflictsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"outcomes": h.records.ConflictCounts(),
	})
}

// BackfillHandler handles POST /api/records/backfill
func (h *RecordHandler) BackfillHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	batchSize := QueryInt(r, "batch", 50)
	updated, err := h.records.BackfillCompletedDates(r.Context(), batchSize)
	if err != nil {
		WriteError(w, http.StatusBadGateway, "Backfill failed: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"updated": updated,
	})
}

// recordPath splits /api/records/{table}/{id} into its segments.
func recordPath(path string) (table, id string, ok bool) {
	rest := strings.TrimPrefix(path, "/api/records/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
