package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// WarmingPriority orders queued warming requests. Higher values are served first.
type WarmingPriority int

const (
	PriorityLow WarmingPriority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the wire name of the priority.
func (p WarmingPriority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParseWarmingPriority converts a wire name into a priority.
func ParseWarmingPriority(s string) (WarmingPriority, error) {
	switch s {
	case "high":
		return PriorityHigh, nil
	case "normal", "":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown warming priority %q", s)
	}
}

// MarshalJSON renders the priority by name.
func (p WarmingPriority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts the priority by name.
func (p *WarmingPriority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseWarmingPriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// WarmingRequest is a queued or in-flight cache warming request.
// At most one request per subject exists across the queue and the
// in-flight set.
type WarmingRequest struct {
	SubjectID  string            `json:"subject_id"`
	Priority   WarmingPriority   `json:"priority"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	Attempts   int               `json:"attempts"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Enqueue result reasons.
const (
	EnqueueReasonQueued         = "queued"
	EnqueueReasonAlreadyQueued  = "already_queued"
	EnqueueReasonAlreadyWarming = "already_warming"
	EnqueueReasonQueueFull      = "queue_full"
	EnqueueReasonEvictedLower   = "evicted_lower_priority"
	EnqueueReasonInvalidSubject = "invalid_subject"
)

// EnqueueResult reports the outcome of an enqueue attempt.
type EnqueueResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	Evicted  string `json:"evicted,omitempty"` // subject displaced by a higher-priority request
}

// QueueStatus is a point-in-time snapshot of the warming queue.
type QueueStatus struct {
	QueueSize     int            `json:"queue_size"`
	MaxQueueSize  int            `json:"max_queue_size"`
	InFlight      int            `json:"in_flight"`
	MaxConcurrent int            `json:"max_concurrent"`
	Utilization   float64        `json:"utilization"` // queued / max, 0-1
	ByPriority    map[string]int `json:"by_priority"`
}

// Warming event categories.
const (
	CategorySubjectWarm    = "subject_warm"
	CategoryCorrectiveWarm = "corrective_warm"
	CategoryQueueCleanup   = "queue_cleanup"
	CategoryMaintenance    = "maintenance"
)

// WarmingEvent is an immutable record of one warming attempt or maintenance
// action, appended to the bounded stats history.
type WarmingEvent struct {
	Category  string            `json:"category"`
	Duration  time.Duration     `json:"duration"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// StatsOptions controls which derived statistics are computed.
type StatsOptions struct {
	IncludeSavings  bool      `json:"include_savings"`
	IncludePatterns bool      `json:"include_patterns"`
	Category        string    `json:"category,omitempty"` // restrict to one category
	Since           time.Time `json:"since,omitempty"`    // ignore events before this time
}

// CategoryStats is the per-category breakdown inside WarmingStats.
type CategoryStats struct {
	Count       int           `json:"count"`
	Successes   int           `json:"successes"`
	SuccessRate float64       `json:"success_rate"` // 0-100
	AvgDuration time.Duration `json:"avg_duration"`
}

// CostSavings estimates the remote read cost avoided by cache hits.
type CostSavings struct {
	CachedReads int64   `json:"cached_reads"`
	PerReadCost float64 `json:"per_read_cost"`
	Estimated   float64 `json:"estimated"`
}

// SubjectCount pairs a subject with its event frequency.
type SubjectCount struct {
	SubjectID string `json:"subject_id"`
	Count     int    `json:"count"`
}

// WarmingPattern is the most frequent metadata combination observed in the
// event history, with the subjects that drive it.
type WarmingPattern struct {
	Fingerprint string            `json:"fingerprint"`
	Count       int               `json:"count"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	TopSubjects []SubjectCount    `json:"top_subjects,omitempty"`
}

// WarmingStats is derived on demand from the event history; nothing here is
// stored incrementally.
type WarmingStats struct {
	TotalEvents   int                      `json:"total_events"`
	Successes     int                      `json:"successes"`
	Failures      int                      `json:"failures"`
	SuccessRate   float64                  `json:"success_rate"` // 0-100
	MinDuration   time.Duration            `json:"min_duration"`
	AvgDuration   time.Duration            `json:"avg_duration"`
	MaxDuration   time.Duration            `json:"max_duration"`
	PerMinute     float64                  `json:"per_minute"` // throughput over the observed span
	ByCategory    map[string]CategoryStats `json:"by_category,omitempty"`
	CacheHits     int64                    `json:"cache_hits"`
	CacheMisses   int64                    `json:"cache_misses"`
	HitRate       float64                  `json:"hit_rate"` // 0-100
	CostSavings   *CostSavings             `json:"cost_savings,omitempty"`
	Pattern       *WarmingPattern          `json:"pattern,omitempty"`
	OldestEvent   time.Time                `json:"oldest_event,omitempty"`
	NewestEvent   time.Time                `json:"newest_event,omitempty"`
	HistoryBound  int                      `json:"history_bound"`
}

// WarmingStrategy selects how corrective warming is performed.
type WarmingStrategy string

const (
	// WarmingStrategyNone leaves the cache alone.
	WarmingStrategyNone WarmingStrategy = "none"

	// WarmingStrategySmart performs a single context-aware warm of the most
	// active subjects.
	WarmingStrategySmart WarmingStrategy = "smart"

	// WarmingStrategyProgressive warms in phases, low priority first, so a
	// critical cache rebuilds without starving interactive traffic.
	WarmingStrategyProgressive WarmingStrategy = "progressive"
)

// WarmingPhase is one batch of subjects enqueued together.
type WarmingPhase struct {
	Priority WarmingPriority `json:"priority"`
	Subjects []string        `json:"subjects"`
}

// WarmingPlan is the corrective warming decision derived from a health check.
type WarmingPlan struct {
	Triggered bool            `json:"triggered"`
	Strategy  WarmingStrategy `json:"strategy"`
	Reason    string          `json:"reason,omitempty"`
	Phases    []WarmingPhase  `json:"phases,omitempty"`
}
