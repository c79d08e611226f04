package warming

import (
	"context"
	"fmt"
	"time"

	"github.com/repset/warmup/internal/common"
	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// Request metadata keys the executor interprets.
const (
	// TriggerMetadataKey marks what enqueued the request.
	TriggerMetadataKey = "trigger"

	// TriggerCorrective is set by maintenance-driven corrective warming.
	TriggerCorrective = "corrective"
)

// warmRetryBase is the unit of the exponential retry backoff: the wait after
// attempt n is warmRetryBase << n.
const warmRetryBase = 500 * time.Millisecond

// Service executes warming requests against the remote record service and
// populates the local cache. Implements interfaces.WarmingService.
type Service struct {
	config  common.WarmingConfig
	queue   *QueueManager
	stats   *StatsTracker
	records interfaces.RecordService
	cache   interfaces.CacheStorage
	events  interfaces.EventService
	limiter *rate.Limiter
	logger  arbor.ILogger
}

var _ interfaces.WarmingService = (*Service)(nil)

// NewService wires the warming executor. Queue and stats are injected so the
// health monitor can observe the same instances.
func NewService(
	config common.WarmingConfig,
	queue *QueueManager,
	stats *StatsTracker,
	records interfaces.RecordService,
	cache interfaces.CacheStorage,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Service {
	perSecond := config.RateLimit
	if perSecond <= 0 {
		perSecond = 5
	}
	return &Service{
		config:  config,
		queue:   queue,
		stats:   stats,
		records: records,
		cache:   cache,
		events:  events,
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		logger:  logger,
	}
}

// EnqueueWarming admits a subject into the warming queue.
func (s *Service) EnqueueWarming(subjectID string, priority models.WarmingPriority, metadata map[string]string) models.EnqueueResult {
	result := s.queue.Enqueue(subjectID, priority, metadata)
	s.logger.Debug().
		Str("subject_id", subjectID).
		Str("priority", priority.String()).
		Bool("accepted", result.Accepted).
		Str("reason", result.Reason).
		Msg("Warming enqueue")
	return result
}

// Run polls the queue and dispatches one goroutine per claimed request until
// ctx is cancelled. Concurrency is bounded by the queue's in-flight cap.
func (s *Service) Run(ctx context.Context) {
	interval := s.config.PollInterval.Std()
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("poll_interval", interval).
		Int("max_concurrent", s.queue.maxConcurrent).
		Msg("Warming dispatcher started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Warming dispatcher stopped")
			return
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

// dispatch claims every currently eligible request and warms each on its own
// goroutine.
func (s *Service) dispatch(ctx context.Context) {
	for {
		request := s.queue.DequeueNext()
		if request == nil {
			return
		}
		common.SafeGo(s.logger, "warm-"+request.SubjectID, func() {
			_ = s.warm(ctx, request)
		})
	}
}

// ProcessNext claims and warms a single request synchronously. Returns
// interfaces.ErrNoRequest when the queue is empty or all slots are busy.
func (s *Service) ProcessNext(ctx context.Context) error {
	request := s.queue.DequeueNext()
	if request == nil {
		return interfaces.ErrNoRequest
	}
	return s.warm(ctx, request)
}

// QueueStatus reports queue occupancy.
func (s *Service) QueueStatus() models.QueueStatus {
	return s.queue.Status()
}

// ClearQueue drops all queued requests and records the cleanup.
func (s *Service) ClearQueue(reason string) int {
	dropped := s.queue.Clear(reason)
	if dropped > 0 {
		s.stats.RecordEvent(models.CategoryQueueCleanup, 0, true, nil, map[string]string{"reason": reason})
		_ = s.events.Publish(context.Background(), interfaces.Event{
			Type:    interfaces.EventQueueCleared,
			Payload: map[string]interface{}{"reason": reason, "dropped": dropped},
		})
	}
	return dropped
}

// Stats derives statistics from the bounded event history.
func (s *Service) Stats(opts models.StatsOptions) models.WarmingStats {
	return s.stats.Stats(opts)
}

// TopSubjects returns the most frequently warmed subjects.
func (s *Service) TopSubjects(n int) []models.SubjectCount {
	return s.stats.TopSubjects(n)
}

// DropStale removes queued requests older than maxAge.
func (s *Service) DropStale(maxAge time.Duration) int {
	dropped := s.queue.DropOlderThan(time.Now().Add(-maxAge))
	if dropped > 0 {
		s.logger.Info().
			Int("dropped", dropped).
			Dur("max_age", maxAge).
			Msg("Dropped stale warming requests")
		s.stats.RecordEvent(models.CategoryQueueCleanup, 0, true, nil, map[string]string{"reason": "stale"})
	}
	return dropped
}

// PruneHistory drops warming events older than the retention window.
func (s *Service) PruneHistory(olderThan time.Duration) int {
	return s.stats.PruneBefore(time.Now().Add(-olderThan))
}

// warm runs the attempt loop for one claimed request. On success or
// exhausted retries the slot is released; a shutdown mid-warm requeues the
// request with its attempt count intact so a restart resumes it.
func (s *Service) warm(ctx context.Context, request *models.WarmingRequest) error {
	category := models.CategorySubjectWarm
	if request.Metadata[TriggerMetadataKey] == TriggerCorrective {
		category = models.CategoryCorrectiveWarm
	}

	maxRetries := s.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	started := time.Now()
	var lastErr error

	for request.Attempts < maxRetries {
		request.Attempts++

		if err := s.limiter.Wait(ctx); err != nil {
			s.queue.Requeue(request)
			s.logger.Debug().
				Str("subject_id", request.SubjectID).
				Int("attempts", request.Attempts).
				Msg("Warming interrupted, request requeued")
			return fmt.Errorf("warming %s interrupted: %w", request.SubjectID, err)
		}

		lastErr = s.warmSubject(ctx, request.SubjectID)
		if lastErr == nil {
			s.queue.MarkComplete(request.SubjectID)
			duration := time.Since(started)
			s.finish(ctx, request, category, duration, nil)
			s.logger.Info().
				Str("subject_id", request.SubjectID).
				Int("attempts", request.Attempts).
				Dur("duration", duration).
				Msg("Subject warmed")
			return nil
		}

		if ctx.Err() != nil {
			s.queue.Requeue(request)
			return fmt.Errorf("warming %s interrupted: %w", request.SubjectID, ctx.Err())
		}
		if request.Attempts >= maxRetries {
			break
		}

		delay := warmRetryBase << uint(request.Attempts)
		s.logger.Debug().
			Str("subject_id", request.SubjectID).
			Int("attempt", request.Attempts).
			Dur("delay", delay).
			Err(lastErr).
			Msg("Warming attempt failed, backing off")

		select {
		case <-ctx.Done():
			s.queue.Requeue(request)
			return fmt.Errorf("warming %s interrupted: %w", request.SubjectID, ctx.Err())
		case <-time.After(delay):
		}
	}

	s.queue.MarkComplete(request.SubjectID)
	duration := time.Since(started)
	s.finish(ctx, request, category, duration, lastErr)
	s.logger.Warn().
		Str("subject_id", request.SubjectID).
		Int("attempts", request.Attempts).
		Err(lastErr).
		Msg("Warming failed, retries exhausted")
	return fmt.Errorf("warming %s failed after %d attempts: %w", request.SubjectID, request.Attempts, lastErr)
}

// warmSubject populates the cache for one subject: profile, recent workout
// logs and the exercise catalog, each with its own TTL.
func (s *Service) warmSubject(parent context.Context, subjectID string) error {
	timeout := s.config.WarmingTimeout.Std()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	now := time.Now()

	profile, err := s.records.GetRecord(ctx, models.TableUsers, subjectID)
	if err != nil {
		return fmt.Errorf("failed to fetch profile: %w", err)
	}
	if err := s.cacheRecord(ctx, models.TableUsers, subjectID, profile, s.config.ProfileTTL.Std(), now); err != nil {
		return err
	}

	logs, err := s.records.ListRecords(ctx, models.TableWorkoutLogs, map[string]string{"userId": subjectID}, s.config.RecentLogCount)
	if err != nil {
		return fmt.Errorf("failed to fetch recent workout logs: %w", err)
	}
	for _, record := range logs {
		id, _ := record["id"].(string)
		if id == "" {
			continue
		}
		if err := s.cacheRecord(ctx, models.TableWorkoutLogs, id, record, s.config.LogTTL.Std(), now); err != nil {
			return err
		}
	}

	exercises, err := s.records.ListRecords(ctx, models.TableExercises, nil, 0)
	if err != nil {
		return fmt.Errorf("failed to fetch exercise catalog: %w", err)
	}
	for _, record := range exercises {
		id, _ := record["id"].(string)
		if id == "" {
			continue
		}
		if err := s.cacheRecord(ctx, models.TableExercises, id, record, s.config.ExerciseTTL.Std(), now); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) cacheRecord(ctx context.Context, table, id string, data map[string]interface{}, ttl time.Duration, now time.Time) error {
	record := &models.CachedRecord{
		Table:     table,
		ID:        id,
		Data:      data,
		LastSaved: now,
		Metadata: models.CacheEntryMeta{
			Source:   models.CacheSourceWarming,
			CachedAt: now,
		},
	}
	if err := s.cache.Put(ctx, record, ttl); err != nil {
		return fmt.Errorf("failed to cache %s/%s: %w", table, id, err)
	}
	return nil
}

// finish records the terminal outcome in the stats history and announces it.
func (s *Service) finish(ctx context.Context, request *models.WarmingRequest, category string, duration time.Duration, err error) {
	metadata := map[string]string{
		MetadataSubjectKey: request.SubjectID,
		"priority":         request.Priority.String(),
	}
	if trigger := request.Metadata[TriggerMetadataKey]; trigger != "" {
		metadata[TriggerMetadataKey] = trigger
	}
	s.stats.RecordEvent(category, duration, err == nil, err, metadata)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	payload := map[string]interface{}{
		"subject_id":  request.SubjectID,
		"outcome":     outcome,
		"category":    category,
		"attempts":    request.Attempts,
		"duration_ms": duration.Milliseconds(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	_ = s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventWarmingCompleted, Payload: payload})
}
