// Package records orchestrates workout saves against the remote service and
// reconciles realtime push updates with the locally cached working copy.
//
// Saves follow the change analysis: metadata changes write immediately,
// exercise-only changes ride a per-workout debounce window, structural or
// mixed changes force a full write. Every write is stamped with this
// client's actor id so its own push echoes can be dropped on the way back.
package records

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/repset/warmup/internal/common"
	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/models"
	"github.com/repset/warmup/internal/services/changes"
	"github.com/repset/warmup/internal/services/conflict"
	"github.com/repset/warmup/internal/services/warming"
	"github.com/ternarybob/arbor"
)

const (
	// DefaultDebounceDelay holds exercise-only saves back this long
	DefaultDebounceDelay = 2 * time.Second

	// DefaultReadCacheTTL bounds entries filled by a read miss
	DefaultReadCacheTTL = 15 * time.Minute

	// DefaultBackfillBatchSize pages the completed-date backfill
	DefaultBackfillBatchSize = 400

	// flushTimeout bounds a timer-driven flush, which has no caller context
	flushTimeout = 30 * time.Second
)

// pendingSave is one armed debounce window for a workout
type pendingSave struct {
	timer     *time.Timer
	snapshot  *models.RecordSnapshot
	lastInput time.Time
}

// Service implements the WorkoutService save orchestration
type Service struct {
	debounceDelay time.Duration
	readTTL       time.Duration
	actorID       string

	remote   interfaces.RecordService
	cache    interfaces.CacheStorage
	resolver *conflict.Resolver
	detector *changes.Detector
	stats    *warming.StatsTracker
	events   interfaces.EventService
	logger   arbor.ILogger

	mu        sync.Mutex
	pending   map[string]*pendingSave
	conflicts map[models.ConflictOutcome]int64
	closed    bool
}

var _ interfaces.WorkoutService = (*Service)(nil)

// NewService creates the save orchestration service. An empty configured
// actor id gets a generated one, scoped to this process.
func NewService(config common.RecordsConfig, remote interfaces.RecordService, cache interfaces.CacheStorage, resolver *conflict.Resolver, stats *warming.StatsTracker, events interfaces.EventService, logger arbor.ILogger) *Service {
	debounce := config.DebounceDelay.Std()
	if debounce <= 0 {
		debounce = DefaultDebounceDelay
	}
	readTTL := config.ReadCacheTTL.Std()
	if readTTL <= 0 {
		readTTL = DefaultReadCacheTTL
	}
	actorID := config.ActorID
	if actorID == "" {
		actorID = uuid.New().String()
	}

	logger.Info().
		Str("actor_id", actorID).
		Str("debounce_delay", debounce.String()).
		Msg("Records service initialized")

	return &Service{
		debounceDelay: debounce,
		readTTL:       readTTL,
		actorID:       actorID,
		remote:        remote,
		cache:         cache,
		resolver:      resolver,
		detector:      changes.NewDetector(logger),
		stats:         stats,
		events:        events,
		logger:        logger,
		pending:       make(map[string]*pendingSave),
		conflicts:     make(map[models.ConflictOutcome]int64),
	}
}

// ActorID returns the identity stamped on this client's writes
func (s *Service) ActorID() string {
	return s.actorID
}

// SaveWorkout diffs prev against curr and persists per the selected strategy
func (s *Service) SaveWorkout(ctx context.Context, workoutID string, prev, curr *models.RecordSnapshot) (*models.SaveOutcome, error) {
	if workoutID == "" {
		return nil, fmt.Errorf("workout id is required")
	}
	if curr == nil {
		return nil, fmt.Errorf("current snapshot is required")
	}

	analysis := s.detector.DetectChanges(prev, curr)

	if changes.CanUseDebouncedSave(analysis) {
		if err := s.scheduleDebounced(ctx, workoutID, curr); err != nil {
			return nil, err
		}
		return &models.SaveOutcome{Analysis: analysis, Debounced: true}, nil
	}

	strategy := analysis.SaveStrategy
	if s.cancelPending(workoutID) {
		// A debounce window was still open; fold its exercise edits,
		// already present in curr, into this write.
		strategy = models.SaveStrategyFullSave
	}

	if err := s.writeWorkout(ctx, workoutID, strategy, curr, time.Now()); err != nil {
		return nil, err
	}

	return &models.SaveOutcome{Analysis: analysis, Saved: true}, nil
}

// GetRecord returns the cached copy of a record, falling back to the remote
// service on a miss and caching the result
func (s *Service) GetRecord(ctx context.Context, table, id string) (*models.CachedRecord, error) {
	if !models.KnownTable(table) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownTable, table)
	}
	if id == "" {
		return nil, fmt.Errorf("record id is required")
	}

	record, err := s.cache.Get(ctx, table, id)
	if err == nil {
		s.stats.RecordCacheHit()
		return record, nil
	}
	if !errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, err
	}

	s.stats.RecordCacheMiss()

	data, err := s.remote.GetRecord(ctx, table, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s/%s after cache miss: %w", table, id, err)
	}

	now := time.Now()
	record = &models.CachedRecord{
		Table:     table,
		ID:        id,
		Data:      data,
		LastSaved: now,
		Metadata: models.CacheEntryMeta{
			Source:   models.CacheSourceWriteThrough,
			CachedAt: now,
		},
	}
	if err := s.cache.Put(ctx, record, s.readTTL); err != nil {
		s.logger.Warn().Err(err).Str("table", table).Str("id", id).Msg("Fetched record but failed to cache it")
	}

	return record, nil
}

// ApplyRemoteUpdate reconciles a push update with the cached copy. Echoes of
// this client's own writes are dropped without touching the cache.
func (s *Service) ApplyRemoteUpdate(ctx context.Context, update *models.RemoteRecordUpdate) (*models.Resolution, error) {
	if update == nil {
		return nil, fmt.Errorf("update is required")
	}

	if update.Actor != "" && update.Actor == s.actorID {
		s.logger.Debug().
			Str("table", update.Table).
			Str("id", update.RecordID).
			Msg("Dropping echo of own update")
		return &models.Resolution{Outcome: models.OutcomeLocalPreferred, Reason: "own update echo"}, nil
	}

	cached, err := s.cache.Peek(ctx, update.Table, update.RecordID)
	if err != nil && !errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, fmt.Errorf("failed to load cached copy of %s/%s: %w", update.Table, update.RecordID, err)
	}

	resolution := s.resolver.Resolve(cached, update, time.Now())

	if resolution.Merged != nil {
		if err := s.cache.Put(ctx, resolution.Merged, 0); err != nil {
			return nil, fmt.Errorf("failed to apply %s resolution for %s/%s: %w", resolution.Outcome, update.Table, update.RecordID, err)
		}
	} else if resolution.Invalidate {
		if err := s.cache.Invalidate(ctx, update.Table, update.RecordID); err != nil {
			return nil, fmt.Errorf("failed to invalidate %s/%s: %w", update.Table, update.RecordID, err)
		}
	}

	s.countOutcome(resolution.Outcome)

	_ = s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventRecordUpdated,
		Payload: map[string]interface{}{
			"table":      update.Table,
			"id":         update.RecordID,
			"event_type": string(update.EventType),
			"outcome":    string(resolution.Outcome),
			"invalidate": resolution.Invalidate,
		},
	})

	if resolution.Outcome == models.OutcomeLocalPreferred || resolution.Outcome == models.OutcomeMergeRequired {
		s.logger.Info().
			Str("table", update.Table).
			Str("id", update.RecordID).
			Str("outcome", string(resolution.Outcome)).
			Str("reason", resolution.Reason).
			Msg("Resolved record conflict")
		_ = s.events.Publish(ctx, interfaces.Event{
			Type: interfaces.EventRecordConflict,
			Payload: map[string]interface{}{
				"table":   update.Table,
				"id":      update.RecordID,
				"outcome": string(resolution.Outcome),
				"reason":  resolution.Reason,
			},
		})
	}

	return &resolution, nil
}

// ConflictCounts returns how many resolutions ended in each outcome
func (s *Service) ConflictCounts() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64, len(s.conflicts))
	for outcome, n := range s.conflicts {
		counts[string(outcome)] = n
	}
	return counts
}

// BackfillCompletedDates sets completedDate from date on workout logs
// missing it, paging through the remote service. Null and absent both count
// as missing. Safe to re-run: patched records no longer match.
func (s *Service) BackfillCompletedDates(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatchSize
	}

	updated := 0
	for offset := 0; ; offset += batchSize {
		filter := map[string]string{"offset": strconv.Itoa(offset)}
		page, err := s.remote.ListRecords(ctx, models.TableWorkoutLogs, filter, batchSize)
		if err != nil {
			return updated, fmt.Errorf("failed to page workout logs at offset %d: %w", offset, err)
		}

		for _, data := range page {
			if err := ctx.Err(); err != nil {
				return updated, err
			}

			id, _ := data["id"].(string)
			if id == "" {
				continue
			}
			if existing, ok := data["completedDate"]; ok && existing != nil {
				continue
			}
			date, ok := data["date"]
			if !ok || date == nil {
				continue
			}

			patch := map[string]interface{}{
				"completedDate": date,
				"updatedBy":     s.actorID,
			}
			if err := s.remote.UpdateRecord(ctx, models.TableWorkoutLogs, id, patch); err != nil {
				return updated, fmt.Errorf("failed to backfill workout %s: %w", id, err)
			}
			updated++
		}

		if len(page) < batchSize {
			break
		}
	}

	s.logger.Info().Int("updated", updated).Msg("Completed-date backfill finished")
	return updated, nil
}

// Flush runs every pending debounced save now
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	drained := make(map[string]*pendingSave, len(s.pending))
	for id, p := range s.pending {
		p.timer.Stop()
		drained[id] = p
		delete(s.pending, id)
	}
	s.mu.Unlock()

	var errs []error
	for id, p := range drained {
		if err := s.writeWorkout(ctx, id, models.SaveStrategyExerciseOnly, p.snapshot, p.lastInput); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending saves and stops accepting new ones
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	return s.Flush(ctx)
}

// scheduleDebounced caches the edit optimistically and arms or resets the
// workout's debounce timer
func (s *Service) scheduleDebounced(ctx context.Context, workoutID string, snapshot *models.RecordSnapshot) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("records service is closed")
	}

	now := time.Now()
	if err := s.cacheLocalEdit(ctx, workoutID, snapshot, now); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("records service is closed")
	}

	if p, ok := s.pending[workoutID]; ok {
		p.snapshot = snapshot
		p.lastInput = now
		p.timer.Reset(s.debounceDelay)
		return nil
	}

	p := &pendingSave{snapshot: snapshot, lastInput: now}
	p.timer = time.AfterFunc(s.debounceDelay, func() {
		common.SafeGo(s.logger, "flush-"+workoutID, func() {
			s.flushPending(workoutID)
		})
	})
	s.pending[workoutID] = p
	return nil
}

// cacheLocalEdit writes the working copy to the cache before the remote
// write lands, so conflict windows see the true input time
func (s *Service) cacheLocalEdit(ctx context.Context, workoutID string, snapshot *models.RecordSnapshot, now time.Time) error {
	record := &models.CachedRecord{
		Table:         models.TableWorkoutLogs,
		ID:            workoutID,
		Data:          snapshot.ToData(),
		LastUserInput: now,
		Metadata: models.CacheEntryMeta{
			Source:   models.CacheSourceLocalEdit,
			CachedAt: now,
		},
	}
	if existing, err := s.cache.Peek(ctx, models.TableWorkoutLogs, workoutID); err == nil {
		record.LastSaved = existing.LastSaved
		record.Metadata.RemoteUpdatedAt = existing.Metadata.RemoteUpdatedAt
	}

	if err := s.cache.Put(ctx, record, 0); err != nil {
		return fmt.Errorf("failed to cache local edit for %s: %w", workoutID, err)
	}
	return nil
}

// cancelPending stops a workout's debounce timer if one is armed
func (s *Service) cancelPending(workoutID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[workoutID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, workoutID)
	return true
}

// flushPending writes one debounced save when its timer fires
func (s *Service) flushPending(workoutID string) {
	s.mu.Lock()
	p, ok := s.pending[workoutID]
	if ok {
		delete(s.pending, workoutID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := s.writeWorkout(ctx, workoutID, models.SaveStrategyExerciseOnly, p.snapshot, p.lastInput); err != nil {
		s.logger.Warn().Err(err).Str("workout_id", workoutID).Msg("Debounced save failed; local edit stays cached")
	}
}

// writeWorkout pushes the payload for the strategy to the remote service and
// refreshes the cached working copy on success
func (s *Service) writeWorkout(ctx context.Context, workoutID string, strategy models.SaveStrategy, snapshot *models.RecordSnapshot, lastInput time.Time) error {
	payload := s.payloadFor(strategy, snapshot)
	if err := s.remote.UpdateRecord(ctx, models.TableWorkoutLogs, workoutID, payload); err != nil {
		return fmt.Errorf("failed to save workout %s: %w", workoutID, err)
	}

	now := time.Now()
	record := &models.CachedRecord{
		Table:         models.TableWorkoutLogs,
		ID:            workoutID,
		Data:          snapshot.ToData(),
		LastSaved:     now,
		LastUserInput: lastInput,
		Metadata: models.CacheEntryMeta{
			Source:   models.CacheSourceWriteThrough,
			CachedAt: now,
		},
	}
	if err := s.cache.Put(ctx, record, 0); err != nil {
		s.logger.Warn().Err(err).Str("workout_id", workoutID).Msg("Saved workout but failed to refresh cache")
	}

	s.logger.Debug().
		Str("workout_id", workoutID).
		Str("strategy", string(strategy)).
		Msg("Workout saved")
	return nil
}

// payloadFor selects the fields the strategy actually needs to send
func (s *Service) payloadFor(strategy models.SaveStrategy, snapshot *models.RecordSnapshot) map[string]interface{} {
	payload := make(map[string]interface{}, len(snapshot.Metadata)+2)
	if strategy != models.SaveStrategyExerciseOnly {
		for key, value := range snapshot.Metadata {
			payload[key] = value
		}
	}
	if strategy != models.SaveStrategyMetadataOnly {
		payload["exercises"] = snapshot.Exercises
	}
	payload["updatedBy"] = s.actorID
	return payload
}

func (s *Service) countOutcome(outcome models.ConflictOutcome) {
	s.mu.Lock()
	s.conflicts[outcome]++
	s.mu.Unlock()
}
