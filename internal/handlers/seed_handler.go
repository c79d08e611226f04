package handlers

import (
	"errors"
	"net/http"

	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/services/ops"
	"github.com/ternarybob/arbor"
)

// SeedHandler triggers scenario seeding against the remote environment.
type SeedHandler struct {
	seeder      interfaces.SeedService
	defaultPath string
	logger      arbor.ILogger
}

// NewSeedHandler creates a new SeedHandler
func NewSeedHandler(seeder interfaces.SeedService, defaultPath string, logger arbor.ILogger) *SeedHandler {
	return &SeedHandler{
		seeder:      seeder,
		defaultPath: defaultPath,
		logger:      logger,
	}
}

type seedRequest struct {
	Path string `json:"path,omitempty"`
}

// Handle handles POST /api/seed
func (h *SeedHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req seedRequest
	if r.ContentLength > 0 && !DecodeJSONBody(w, r, &req) {
		return
	}
	path := req.Path
	if path == "" {
		path = h.defaultPath
	}
	if path == "" {
		WriteError(w, http.StatusBadRequest, "No scenario path configured or provided")
		return
	}

	result, err := h.seeder.Seed(r.Context(), path)
	if err != nil {
		h.logger.Warn().Err(err).Str("path", path).Msg("Seeding failed")

		// Rollback failures need an operator; everything else rolled back
		// cleanly and can simply be retried.
		var recoveryErr *ops.RecoveryFailure
		if errors.As(err, &recoveryErr) {
			WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"status":              "unrecoverable",
				"error":               err.Error(),
				"manual_intervention": true,
			})
			return
		}
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, result)
}
