package interfaces

import (
	"context"

	"github.com/repset/warmup/internal/models"
)

// WorkoutService - save orchestration for workout records
type WorkoutService interface {
	// SaveWorkout diffs prev against curr and persists per the selected
	// strategy: immediately when metadata changed, debounced when only
	// exercise values changed
	SaveWorkout(ctx context.Context, workoutID string, prev, curr *models.RecordSnapshot) (*models.SaveOutcome, error)

	// GetRecord returns the cached copy of a record, falling back to the
	// remote service on a miss and caching the result
	GetRecord(ctx context.Context, table, id string) (*models.CachedRecord, error)

	// ApplyRemoteUpdate reconciles a push update with the cached copy
	ApplyRemoteUpdate(ctx context.Context, update *models.RemoteRecordUpdate) (*models.Resolution, error)

	// ConflictCounts returns how many resolutions ended in each outcome
	ConflictCounts() map[string]int64

	// BackfillCompletedDates sets completedDate from date on workout logs
	// missing it, in pages of batchSize. Idempotent: a re-run updates 0.
	// Returns the number of records updated.
	BackfillCompletedDates(ctx context.Context, batchSize int) (int, error)

	// Flush runs every pending debounced save now
	Flush(ctx context.Context) error

	// Close flushes pending saves and stops the debounce timers
	Close() error
}
