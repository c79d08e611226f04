package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/repset/warmup/internal/models"
)

// ErrNoRequest is returned by ProcessNext when nothing is eligible to warm:
// the queue is empty or every concurrency slot is busy.
var ErrNoRequest = errors.New("no warming request eligible")

// WarmingService drives the warming queue and owns its statistics.
// Used by the HTTP handlers, the health monitor and the maintenance
// scheduler.
type WarmingService interface {
	// EnqueueWarming admits a subject into the warming queue
	EnqueueWarming(subjectID string, priority models.WarmingPriority, metadata map[string]string) models.EnqueueResult

	// ProcessNext claims the next eligible request and warms it, blocking
	// until the attempt finishes. Returns ErrNoRequest when nothing is
	// eligible.
	ProcessNext(ctx context.Context) error

	// Run is the dispatcher loop; blocks until ctx is cancelled
	Run(ctx context.Context)

	// QueueStatus reports queue occupancy
	QueueStatus() models.QueueStatus

	// ClearQueue drops all queued requests, returning the count removed.
	// In-flight requests finish normally.
	ClearQueue(reason string) int

	// Stats derives statistics from the bounded event history
	Stats(opts models.StatsOptions) models.WarmingStats

	// TopSubjects returns the most frequently warmed subjects, busiest first
	TopSubjects(n int) []models.SubjectCount

	// DropStale removes queued requests older than maxAge, returning the count
	DropStale(maxAge time.Duration) int

	// PruneHistory drops events older than the retention window, returning
	// the count removed
	PruneHistory(olderThan time.Duration) int
}
