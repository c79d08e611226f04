package handlers

import (
	"net/http"

	"github.com/repset/warmup/internal/logs"
	"github.com/ternarybob/arbor"
)

// LogHandler serves the in-memory log tail to the dashboard.
type LogHandler struct {
	buffer *logs.Buffer
	logger arbor.ILogger
}

// NewLogHandler creates a new LogHandler
func NewLogHandler(buffer *logs.Buffer, logger arbor.ILogger) *LogHandler {
	return &LogHandler{
		buffer: buffer,
		logger: logger,
	}
}

// RecentHandler handles GET /api/logs
func (h *LogHandler) RecentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	lines := h.buffer.Recent(QueryInt(r, "n", 100))
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(lines),
		"logs":  lines,
	})
}
