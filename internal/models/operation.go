package models

import "time"

// OperationStatus is the lifecycle state of a tracked operation.
type OperationStatus string

const (
	OperationInProgress OperationStatus = "in_progress"
	OperationCompleted  OperationStatus = "completed"
	OperationFailed     OperationStatus = "failed"
)

// TrackedOperation records the lifecycle of one named multi-step operation.
// Completed and failed operations are retained in insertion order; rollback
// walks them newest-first.
type TrackedOperation struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Context   string          `json:"context,omitempty"`
	Status    OperationStatus `json:"status"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time,omitempty"`
	Result    interface{}     `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Attempts  int             `json:"attempts"`
}

// OperationSummary describes tracker state for recovery decisions and
// reporting.
type OperationSummary struct {
	Total      int      `json:"total"`
	Completed  []string `json:"completed"` // names in completion order
	Failed     string   `json:"failed,omitempty"`
	InProgress string   `json:"in_progress,omitempty"`
}

// RecoveryResult reports what partial-failure recovery accomplished.
type RecoveryResult struct {
	Recovered        bool     `json:"recovered"`
	CleanupPerformed bool     `json:"cleanup_performed"`
	RolledBack       []string `json:"rolled_back,omitempty"` // operation names, newest first
	Declined         string   `json:"declined,omitempty"`    // why cleanup did not run
}
