package models

import "time"

// Tables in the remote record service mirrored by the local cache.
const (
	TableUsers       = "users"
	TableWorkoutLogs = "workoutLogs"
	TableExercises   = "exercises"
	TablePrograms    = "programs"
)

// KnownTable reports whether the table name is one this engine mirrors.
func KnownTable(table string) bool {
	switch table {
	case TableUsers, TableWorkoutLogs, TableExercises, TablePrograms:
		return true
	}
	return false
}

// Cache entry sources.
const (
	CacheSourceWarming        = "warming"
	CacheSourceRealtimeUpdate = "realtime_update"
	CacheSourceLocalEdit      = "local_edit"
	CacheSourceWriteThrough   = "write_through"
)

// CacheEntryMeta carries provenance for a cached record.
type CacheEntryMeta struct {
	Source             string    `json:"source,omitempty"`
	ConflictResolution string    `json:"conflictResolution,omitempty"`
	RemoteUpdatedAt    time.Time `json:"remoteUpdatedAt,omitempty"`
	CachedAt           time.Time `json:"cachedAt"`
}

// CachedRecord is the locally held working copy of a remote record. The
// remote service owns the durable system of record; LastUserInput is the
// coordination signal that protects unsaved local edits from stale pushes.
type CachedRecord struct {
	Table         string                 `json:"table"`
	ID            string                 `json:"id"`
	Data          map[string]interface{} `json:"data"`
	LastSaved     time.Time              `json:"lastSaved"`
	LastUserInput time.Time              `json:"lastUserInput"`
	Metadata      CacheEntryMeta         `json:"metadata"`
}

// CacheStats summarizes cache effectiveness counters.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"` // 0-100; 100 when no reads observed yet
	Entries int     `json:"entries"`
}

// ConflictOutcome is how a remote update was reconciled with the cache.
type ConflictOutcome string

const (
	// OutcomeLocalPreferred kept locally edited input fields; only non-input
	// remote fields were merged in.
	OutcomeLocalPreferred ConflictOutcome = "local_preferred"

	// OutcomeRemoteWins replaced the cached data with the remote payload.
	OutcomeRemoteWins ConflictOutcome = "remote_wins"

	// OutcomeMergeRequired flags a concurrent edit to the same exercise; the
	// caller must apply a field-level merge rather than accept either side
	// wholesale.
	OutcomeMergeRequired ConflictOutcome = "merge_required"
)

// Resolution is the decision produced by the conflict resolver.
type Resolution struct {
	Outcome    ConflictOutcome `json:"outcome"`
	Merged     *CachedRecord   `json:"merged,omitempty"`
	Invalidate bool            `json:"invalidate"`
	Reason     string          `json:"reason,omitempty"`
}
