package interfaces

import (
	"context"

	"github.com/repset/warmup/internal/models"
)

// MaintenanceService runs the periodic maintenance pipeline
type MaintenanceService interface {
	// Start begins interval scheduling; idempotent
	Start() error

	// Stop halts scheduling; a run already in flight finishes
	Stop()

	// Restart stops and starts the scheduler with the current config
	Restart() error

	// ForceRun executes the pipeline immediately, bypassing quiet hours and
	// the high-load check
	ForceRun(ctx context.Context) (*models.MaintenanceReport, error)

	// UpdateConfig merges a partial config change and restarts the interval
	// if it changed
	UpdateConfig(update models.MaintenanceConfigUpdate) error

	// GetStatus reports scheduler state and run counters
	GetStatus() models.SchedulerStatus
}
