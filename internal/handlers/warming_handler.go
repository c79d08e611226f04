package handlers

import (
	"net/http"
	"time"

	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
)

// WarmingHandler handles HTTP requests for the warming queue and its
// statistics. Enqueues arrive from UI/lifecycle hooks (navigation, login);
// the status and stats endpoints feed the operational dashboard.
type WarmingHandler struct {
	warming interfaces.WarmingService
	logger  arbor.ILogger
}

// NewWarmingHandler creates a new WarmingHandler
func NewWarmingHandler(warming interfaces.WarmingService, logger arbor.ILogger) *WarmingHandler {
	return &WarmingHandler{
		warming: warming,
		logger:  logger,
	}
}

type enqueueRequest struct {
	SubjectID string            `json:"subject_id"`
	Priority  string            `json:"priority"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EnqueueHandler handles POST /api/warming/enqueue
func (h *WarmingHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req enqueueRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if req.SubjectID == "" {
		WriteError(w, http.StatusBadRequest, "subject_id is required")
		return
	}

	priority := models.PriorityNormal
	if req.Priority != "" {
		parsed, err := models.ParseWarmingPriority(req.Priority)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		priority = parsed
	}

	result := h.warming.EnqueueWarming(req.SubjectID, priority, req.Metadata)

	status := http.StatusAccepted
	if !result.Accepted {
		// Duplicate suppression is not an error; a full queue is.
		if result.Reason == models.EnqueueReasonQueueFull {
			status = http.StatusTooManyRequests
		} else {
			status = http.StatusOK
		}
	}
	WriteJSON(w, status, result)
}

// QueueStatusHandler handles GET /api/warming/queue
func (h *WarmingHandler) QueueStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, h.warming.QueueStatus())
}

// StatsHandler handles GET /api/warming/stats
//
// Query parameters: category, since (RFC3339), savings, patterns.
func (h *WarmingHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	opts := models.StatsOptions{
		IncludeSavings:  QueryBool(r, "savings"),
		IncludePatterns: QueryBool(r, "patterns"),
		Category:        r.URL.Query().Get("category"),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid since timestamp: "+err.Error())
			return
		}
		opts.Since = t
	}

	WriteJSON(w, http.StatusOK, h.warming.Stats(opts))
}

// TopSubjectsHandler handles GET /api/warming/subjects
func (h *WarmingHandler) TopSubjectsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	n := QueryInt(r, "n", 10)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subjects": h.warming.TopSubjects(n),
	})
}

type clearQueueRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ClearQueueHandler handles POST /api/warming/clear
func (h *WarmingHandler) ClearQueueHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req clearQueueRequest
	if r.ContentLength > 0 && !DecodeJSONBody(w, r, &req) {
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "api_request"
	}

	removed := h.warming.ClearQueue(reason)
	h.logger.Info().
		Int("removed", removed).
		Str("reason", reason).
		Msg("Warming queue cleared via API")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
		"reason":  reason,
	})
}
