// Package conflict reconciles remote record updates against the locally
// cached working copy. Resolution is a pure function of the cached record's
// timestamps and the incoming payload; no I/O happens here.
package conflict

import (
	"fmt"
	"time"

	"github.com/repset/warmup/internal/models"
	"github.com/repset/warmup/internal/services/changes"
	"github.com/ternarybob/arbor"
)

const (
	// DefaultProtectionWindow is how long after a user edit remote updates
	// may not overwrite input fields.
	DefaultProtectionWindow = 30 * time.Second

	// DefaultConcurrentWindow is the span within which a remote exercise
	// change and a local one count as a concurrent edit.
	DefaultConcurrentWindow = 5 * time.Second
)

// nonInputFields are safe to merge from remote while the protection window is
// open: identity, server bookkeeping and the server-authoritative completion
// transition. Everything else is treated as user input and kept local.
var nonInputFields = []string{
	"id",
	"userId",
	"createdAt",
	"updatedAt",
	"updatedBy",
	"completed",
	"completedDate",
}

// Resolver decides how an incoming remote update is applied to the cache.
type Resolver struct {
	protectionWindow time.Duration
	concurrentWindow time.Duration
	detector         *changes.Detector
	logger           arbor.ILogger
}

// NewResolver creates a resolver with the given windows. Non-positive windows
// fall back to the defaults.
func NewResolver(protectionWindow, concurrentWindow time.Duration, logger arbor.ILogger) *Resolver {
	if protectionWindow <= 0 {
		protectionWindow = DefaultProtectionWindow
	}
	if concurrentWindow <= 0 {
		concurrentWindow = DefaultConcurrentWindow
	}
	return &Resolver{
		protectionWindow: protectionWindow,
		concurrentWindow: concurrentWindow,
		detector:         changes.NewDetector(logger),
		logger:           logger,
	}
}

// Resolve merges update against cached as of now. It never mutates either
// input; the returned Resolution carries a fresh merged record (nil for
// deletes) and whether the caller should invalidate the cache entry.
func (r *Resolver) Resolve(cached *models.CachedRecord, update *models.RemoteRecordUpdate, now time.Time) models.Resolution {
	if update.EventType == models.PushEventDelete {
		return models.Resolution{
			Outcome:    models.OutcomeRemoteWins,
			Invalidate: true,
			Reason:     "remote delete",
		}
	}

	if cached == nil {
		return models.Resolution{
			Outcome:    models.OutcomeRemoteWins,
			Merged:     r.remoteRecord(update, now),
			Invalidate: true,
			Reason:     "no cached copy",
		}
	}

	sinceInput := now.Sub(cached.LastUserInput)

	if sinceInput < r.concurrentWindow {
		if touched := r.touchedExercises(cached, update); len(touched) > 0 {
			r.logger.Debug().
				Str("table", update.Table).
				Str("record_id", update.RecordID).
				Int("exercises", len(touched)).
				Msg("Concurrent edit detected, field-level merge required")

			merged := r.mergedRecord(cached, update, now)
			merged.Data = r.MergeFields(cached, update)
			merged.Metadata.ConflictResolution = string(models.OutcomeMergeRequired)
			return models.Resolution{
				Outcome: models.OutcomeMergeRequired,
				Merged:  merged,
				Reason:  fmt.Sprintf("remote and local edits to the same exercise within %s", r.concurrentWindow),
			}
		}
	}

	if sinceInput < r.protectionWindow {
		r.logger.Debug().
			Str("table", update.Table).
			Str("record_id", update.RecordID).
			Dur("since_input", sinceInput).
			Msg("Protection window open, keeping local input fields")

		merged := r.mergedRecord(cached, update, now)
		merged.Data = mergeNonInputFields(cached.Data, update.Data)
		merged.Metadata.ConflictResolution = string(models.OutcomeLocalPreferred)
		return models.Resolution{
			Outcome: models.OutcomeLocalPreferred,
			Merged:  merged,
			Reason:  fmt.Sprintf("user input %s ago, inside %s protection window", sinceInput.Round(time.Second), r.protectionWindow),
		}
	}

	merged := r.remoteRecord(update, now)
	merged.LastUserInput = cached.LastUserInput
	return models.Resolution{
		Outcome:    models.OutcomeRemoteWins,
		Merged:     merged,
		Invalidate: true,
		Reason:     fmt.Sprintf("last user input %s ago, outside protection window", sinceInput.Round(time.Second)),
	}
}

// MergeFields performs the field-level merge for a concurrent edit: remote
// metadata and exercise structure win, local per-set values (reps, weights,
// set completion, bodyweight flag) are kept for every exercise both sides
// hold a copy of.
func (r *Resolver) MergeFields(cached *models.CachedRecord, update *models.RemoteRecordUpdate) map[string]interface{} {
	merged := cloneData(update.Data)

	localSnap := models.SnapshotFromData(cached.Data)
	remoteSnap := models.SnapshotFromData(update.Data)
	if localSnap == nil || remoteSnap == nil || len(remoteSnap.Exercises) == 0 {
		return merged
	}

	localByID := make(map[string]models.ExerciseEntry, len(localSnap.Exercises))
	for _, entry := range localSnap.Exercises {
		localByID[entry.ExerciseID] = entry
	}

	entries := make([]models.ExerciseEntry, 0, len(remoteSnap.Exercises))
	for _, entry := range remoteSnap.Exercises {
		if local, ok := localByID[entry.ExerciseID]; ok {
			entry.Reps = local.Reps
			entry.Weights = local.Weights
			entry.Completed = local.Completed
			entry.Bodyweight = local.Bodyweight
		}
		entries = append(entries, entry)
	}
	merged["exercises"] = entries

	return merged
}

// touchedExercises returns the IDs of exercises present on both sides whose
// per-set values differ. With only the two timestamps to go on, any such
// divergence inside the concurrent window is treated as a concurrent edit.
func (r *Resolver) touchedExercises(cached *models.CachedRecord, update *models.RemoteRecordUpdate) []string {
	analysis := r.detector.DetectChanges(models.SnapshotFromData(cached.Data), models.SnapshotFromData(update.Data))

	var ids []string
	for _, change := range analysis.ExerciseChanges {
		if change.Has(models.TagExerciseAdded) || change.Has(models.TagExerciseRemoved) || change.Has(models.TagExerciseIDChanged) {
			continue
		}
		for _, tag := range change.Tags {
			if !tag.IsStructural() {
				ids = append(ids, change.ExerciseID)
				break
			}
		}
	}
	return ids
}

// remoteRecord builds a cache entry holding the remote payload verbatim.
func (r *Resolver) remoteRecord(update *models.RemoteRecordUpdate, now time.Time) *models.CachedRecord {
	return &models.CachedRecord{
		Table:     update.Table,
		ID:        update.RecordID,
		Data:      cloneData(update.Data),
		LastSaved: now,
		Metadata: models.CacheEntryMeta{
			Source:             models.CacheSourceRealtimeUpdate,
			ConflictResolution: string(models.OutcomeRemoteWins),
			RemoteUpdatedAt:    update.Timestamp,
			CachedAt:           now,
		},
	}
}

// mergedRecord builds the shell for an outcome that keeps unsaved local
// state: timestamps and source carry over from the cached entry.
func (r *Resolver) mergedRecord(cached *models.CachedRecord, update *models.RemoteRecordUpdate, now time.Time) *models.CachedRecord {
	meta := cached.Metadata
	meta.RemoteUpdatedAt = update.Timestamp
	meta.CachedAt = now
	return &models.CachedRecord{
		Table:         cached.Table,
		ID:            cached.ID,
		LastSaved:     cached.LastSaved,
		LastUserInput: cached.LastUserInput,
		Metadata:      meta,
	}
}

// mergeNonInputFields copies only the remote fields a protected record may
// accept. Completion flags ride this path, which keeps the completion
// transition server-authoritative inside the protection window.
func mergeNonInputFields(local, remote map[string]interface{}) map[string]interface{} {
	merged := cloneData(local)
	for _, field := range nonInputFields {
		if value, ok := remote[field]; ok {
			merged[field] = value
		}
	}
	return merged
}

// cloneData shallow-copies the top-level record map so resolutions never
// alias their inputs.
func cloneData(data map[string]interface{}) map[string]interface{} {
	cloned := make(map[string]interface{}, len(data))
	for key, value := range data {
		cloned[key] = value
	}
	return cloned
}
