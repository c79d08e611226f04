// Package warming owns the cache warming pipeline: the bounded priority
// queue, the event history the stats derive from, and the executor that
// drains the queue against the remote record service.
package warming

import (
	"sync"
	"time"

	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
)

// QueueManager holds pending warming requests keyed by subject. One entry per
// subject exists across the queue and the in-flight set; admission control is
// atomic under a single mutex so no two dequeues can claim the same slot.
type QueueManager struct {
	mu            sync.Mutex
	maxQueueSize  int
	maxConcurrent int
	queued        []*models.WarmingRequest
	inFlight      map[string]*models.WarmingRequest
	logger        arbor.ILogger
}

// NewQueueManager creates a queue bounded to maxQueueSize pending requests
// and maxConcurrent in-flight warmings.
func NewQueueManager(maxQueueSize, maxConcurrent int, logger arbor.ILogger) *QueueManager {
	if maxQueueSize <= 0 {
		maxQueueSize = 50
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &QueueManager{
		maxQueueSize:  maxQueueSize,
		maxConcurrent: maxConcurrent,
		inFlight:      make(map[string]*models.WarmingRequest),
		logger:        logger,
	}
}

// Enqueue admits a warming request. Duplicates of a queued or in-flight
// subject are accepted as no-ops. When the queue is full the request is
// rejected unless it outranks the lowest queued tier, in which case the
// youngest request of that tier is evicted. Low-priority starvation under
// sustained pressure is the accepted trade-off.
func (q *QueueManager) Enqueue(subjectID string, priority models.WarmingPriority, metadata map[string]string) models.EnqueueResult {
	if subjectID == "" {
		return models.EnqueueResult{Reason: models.EnqueueReasonInvalidSubject}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inFlight[subjectID]; ok {
		return models.EnqueueResult{Accepted: true, Reason: models.EnqueueReasonAlreadyWarming}
	}
	if q.queuedIndex(subjectID) >= 0 {
		return models.EnqueueResult{Accepted: true, Reason: models.EnqueueReasonAlreadyQueued}
	}

	request := &models.WarmingRequest{
		SubjectID:  subjectID,
		Priority:   priority,
		EnqueuedAt: time.Now(),
		Metadata:   metadata,
	}

	if len(q.queued) >= q.maxQueueSize {
		victim := q.evictionCandidate()
		if victim < 0 || q.queued[victim].Priority >= priority {
			q.logger.Debug().
				Str("subject_id", subjectID).
				Str("priority", priority.String()).
				Msg("Warming queue full, request rejected")
			return models.EnqueueResult{Reason: models.EnqueueReasonQueueFull}
		}

		evicted := q.queued[victim]
		q.queued = append(q.queued[:victim], q.queued[victim+1:]...)
		q.queued = append(q.queued, request)
		q.logger.Debug().
			Str("subject_id", subjectID).
			Str("evicted", evicted.SubjectID).
			Msg("Evicted lower priority warming request")
		return models.EnqueueResult{
			Accepted: true,
			Reason:   models.EnqueueReasonEvictedLower,
			Evicted:  evicted.SubjectID,
		}
	}

	q.queued = append(q.queued, request)
	return models.EnqueueResult{Accepted: true, Reason: models.EnqueueReasonQueued}
}

// DequeueNext claims the next request: highest priority tier first, oldest
// within the tier. Returns nil when the queue is empty or every concurrency
// slot is taken. The returned request is in-flight until MarkComplete or
// Requeue.
func (q *QueueManager) DequeueNext() *models.WarmingRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.inFlight) >= q.maxConcurrent || len(q.queued) == 0 {
		return nil
	}

	best := 0
	for i := 1; i < len(q.queued); i++ {
		candidate, current := q.queued[i], q.queued[best]
		if candidate.Priority > current.Priority ||
			(candidate.Priority == current.Priority && candidate.EnqueuedAt.Before(current.EnqueuedAt)) {
			best = i
		}
	}

	request := q.queued[best]
	q.queued = append(q.queued[:best], q.queued[best+1:]...)
	q.inFlight[request.SubjectID] = request
	return request
}

// MarkComplete releases the subject's concurrency slot.
func (q *QueueManager) MarkComplete(subjectID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, subjectID)
}

// Requeue returns a failed in-flight request to the queue with its attempt
// count preserved. Returns false when the queue has filled up in the
// meantime; the request is dropped.
func (q *QueueManager) Requeue(request *models.WarmingRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inFlight, request.SubjectID)

	if len(q.queued) >= q.maxQueueSize {
		q.logger.Warn().
			Str("subject_id", request.SubjectID).
			Int("attempts", request.Attempts).
			Msg("Queue full, dropping failed warming request")
		return false
	}

	q.queued = append(q.queued, request)
	return true
}

// IsQueued reports whether the subject has a pending request.
func (q *QueueManager) IsQueued(subjectID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queuedIndex(subjectID) >= 0
}

// IsInFlight reports whether the subject is being warmed right now.
func (q *QueueManager) IsInFlight(subjectID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inFlight[subjectID]
	return ok
}

// Clear drains all pending requests and returns how many were dropped.
// In-flight warmings are left to finish.
func (q *QueueManager) Clear(reason string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := len(q.queued)
	q.queued = nil

	if dropped > 0 {
		q.logger.Info().
			Int("dropped", dropped).
			Str("reason", reason).
			Msg("Warming queue cleared")
	}
	return dropped
}

// DropOlderThan removes pending requests enqueued before the cutoff.
func (q *QueueManager) DropOlderThan(cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.queued[:0]
	dropped := 0
	for _, request := range q.queued {
		if request.EnqueuedAt.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, request)
	}
	q.queued = kept
	return dropped
}

// Status snapshots the queue for health checks and the HTTP surface.
func (q *QueueManager) Status() models.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	byPriority := make(map[string]int, 3)
	for _, request := range q.queued {
		byPriority[request.Priority.String()]++
	}

	return models.QueueStatus{
		QueueSize:     len(q.queued),
		MaxQueueSize:  q.maxQueueSize,
		InFlight:      len(q.inFlight),
		MaxConcurrent: q.maxConcurrent,
		Utilization:   float64(len(q.queued)) / float64(q.maxQueueSize),
		ByPriority:    byPriority,
	}
}

// queuedIndex returns the position of the subject's pending request, -1 when
// absent. Caller holds the mutex.
func (q *QueueManager) queuedIndex(subjectID string) int {
	for i, request := range q.queued {
		if request.SubjectID == subjectID {
			return i
		}
	}
	return -1
}

// evictionCandidate picks the youngest request of the lowest priority tier,
// -1 when the queue is empty. Caller holds the mutex.
func (q *QueueManager) evictionCandidate() int {
	victim := -1
	for i, request := range q.queued {
		if victim < 0 {
			victim = i
			continue
		}
		current := q.queued[victim]
		if request.Priority < current.Priority ||
			(request.Priority == current.Priority && !request.EnqueuedAt.Before(current.EnqueuedAt)) {
			victim = i
		}
	}
	return victim
}
