package ops

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/repset/warmup/internal/common"
	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
)

// ErrOperationInProgress is returned by Start while another operation is
// still running.
var ErrOperationInProgress = errors.New("another operation is in progress")

// Tracker serializes the named operations of one workflow instance and
// records their lifecycle. It is not a general lock; each multi-step
// workflow owns its own Tracker.
type Tracker struct {
	mu         sync.Mutex
	current    *models.TrackedOperation
	operations []*models.TrackedOperation // finished operations, insertion order
	logger     arbor.ILogger
}

// NewTracker creates an empty tracker.
func NewTracker(logger arbor.ILogger) *Tracker {
	return &Tracker{logger: logger}
}

// Start begins a named operation. Fails with ErrOperationInProgress when one
// is already running.
func (t *Tracker) Start(name, opContext string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		return fmt.Errorf("%w: %s", ErrOperationInProgress, t.current.Name)
	}

	t.current = &models.TrackedOperation{
		ID:        common.NewOperationID(),
		Name:      name,
		Context:   opContext,
		Status:    models.OperationInProgress,
		StartTime: time.Now(),
	}

	t.logger.Debug().
		Str("operation", name).
		Str("operation_id", t.current.ID).
		Msg("Operation started")

	return nil
}

// RecordAttempt bumps the attempt counter of the running operation.
func (t *Tracker) RecordAttempt() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		t.current.Attempts++
	}
}

// Complete finishes the running operation successfully.
func (t *Tracker) Complete(result interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		t.logger.Warn().Msg("Complete called with no operation in progress")
		return
	}

	t.current.Status = models.OperationCompleted
	t.current.EndTime = time.Now()
	t.current.Result = result
	t.operations = append(t.operations, t.current)

	t.logger.Debug().
		Str("operation", t.current.Name).
		Int("attempts", t.current.Attempts).
		Msg("Operation completed")

	t.current = nil
}

// Fail finishes the running operation with an error.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		t.logger.Warn().Err(err).Msg("Fail called with no operation in progress")
		return
	}

	t.current.Status = models.OperationFailed
	t.current.EndTime = time.Now()
	if err != nil {
		t.current.Error = err.Error()
	}
	t.operations = append(t.operations, t.current)

	t.logger.Warn().
		Str("operation", t.current.Name).
		Int("attempts", t.current.Attempts).
		Err(err).
		Msg("Operation failed")

	t.current = nil
}

// InProgress returns the name of the running operation, "" when idle.
func (t *Tracker) InProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return ""
	}
	return t.current.Name
}

// Completed returns the names of successfully completed operations in
// completion order.
func (t *Tracker) Completed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var names []string
	for _, op := range t.operations {
		if op.Status == models.OperationCompleted {
			names = append(names, op.Name)
		}
	}
	return names
}

// RollbackOrder returns the completed operation names newest-first, the
// order recovery cleanup must undo them in.
func (t *Tracker) RollbackOrder() []string {
	completed := t.Completed()

	for i, j := 0, len(completed)-1; i < j; i, j = i+1, j-1 {
		completed[i], completed[j] = completed[j], completed[i]
	}
	return completed
}

// Operations returns a copy of every finished operation.
func (t *Tracker) Operations() []models.TrackedOperation {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.TrackedOperation, 0, len(t.operations))
	for _, op := range t.operations {
		out = append(out, *op)
	}
	return out
}

// Summary describes tracker state for recovery decisions and reporting.
func (t *Tracker) Summary() models.OperationSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary := models.OperationSummary{
		Total: len(t.operations),
	}

	for _, op := range t.operations {
		switch op.Status {
		case models.OperationCompleted:
			summary.Completed = append(summary.Completed, op.Name)
		case models.OperationFailed:
			summary.Failed = op.Name
		}
	}

	if t.current != nil {
		summary.Total++
		summary.InProgress = t.current.Name
	}

	return summary
}

// Reset drops all state, including a stuck in-progress operation.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = nil
	t.operations = nil
}
