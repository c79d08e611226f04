package models

import "time"

// HealthStatus classifies the overall cache health score.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusWarning  HealthStatus = "warning"
	HealthStatusCritical HealthStatus = "critical"
)

// HealthSnapshot is derived fresh on every check from current queue and
// stats state; it is never stored incrementally.
type HealthSnapshot struct {
	Status           HealthStatus `json:"status"`
	Score            float64      `json:"score"` // 0-100
	HitRate          float64      `json:"hit_rate"`
	WarmingSuccess   float64      `json:"warming_success"`
	QueueUtilization float64      `json:"queue_utilization"` // 0-1
	Issues           []string     `json:"issues"`
	Recommendations  []string     `json:"recommendations"`
	CheckedAt        time.Time    `json:"checked_at"`
}

// Task statuses inside a maintenance report.
const (
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
	TaskStatusSkipped   = "skipped"
)

// TaskResult records one step of a maintenance run.
type TaskResult struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// ConfigSuggestion is a tuning delta proposed by the performance
// optimization pass.
type ConfigSuggestion struct {
	Setting   string `json:"setting"`
	Current   string `json:"current"`
	Suggested string `json:"suggested"`
	Reason    string `json:"reason"`
}

// MaintenanceReport is the persisted outcome of one maintenance run.
type MaintenanceReport struct {
	RunID       string             `json:"run_id" badgerhold:"key"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Duration    time.Duration      `json:"duration"`
	Forced      bool               `json:"forced"`
	Health      HealthSnapshot     `json:"health"`
	Warming     WarmingPlan        `json:"warming"`
	Tasks       []TaskResult       `json:"tasks"`
	Suggestions []ConfigSuggestion `json:"suggestions,omitempty"`
	Queue       QueueStatus        `json:"queue"`
}

// MaintenanceConfigUpdate is a partial scheduler config change; nil fields
// keep their current values. Durations and quiet hours arrive as strings so
// the dashboard can PUT them directly.
type MaintenanceConfigUpdate struct {
	Interval          *string  `json:"interval,omitempty"`
	QuietHoursStart   *string  `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd     *string  `json:"quiet_hours_end,omitempty"`
	HighLoadThreshold *float64 `json:"high_load_threshold,omitempty"`
	StaleAfter        *string  `json:"stale_after,omitempty"`
}

// SchedulerStatus is the maintenance scheduler's externally visible state.
type SchedulerStatus struct {
	Running        bool      `json:"running"`
	Interval       string    `json:"interval"`
	QuietHours     string    `json:"quiet_hours"`
	HighLoadLimit  float64   `json:"high_load_limit"`
	LastRun        time.Time `json:"last_run,omitempty"`
	LastRunID      string    `json:"last_run_id,omitempty"`
	RunsCompleted  int64     `json:"runs_completed"`
	RunsFailed     int64     `json:"runs_failed"`
	SkippedQuiet   int64     `json:"skipped_quiet"`
	SkippedLoad    int64     `json:"skipped_load"`
	SkippedOverlap int64     `json:"skipped_overlap"`
	LastError      string    `json:"last_error,omitempty"`
}
