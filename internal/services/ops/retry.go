package ops

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
)

// OperationFunc is one retryable unit of work.
type OperationFunc func(ctx context.Context) (interface{}, error)

// RollbackFunc undoes one completed operation.
type RollbackFunc func(ctx context.Context) error

// RetryOptions bounds the retry loop. MaxRetries is the total attempt
// budget; attempt n waits n times RetryDelay before the next try.
type RetryOptions struct {
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultRetryOptions matches the configured engine defaults.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// RecoveryOptions controls partial-failure cleanup. Without ForceCleanup or
// SkipConfirmation the Confirm callback decides; a nil callback declines.
type RecoveryOptions struct {
	ForceCleanup     bool
	SkipConfirmation bool
	Confirm          func(summary models.OperationSummary) bool
}

// Executor runs named operations with tracking, error classification and
// linear backoff. Rollback handlers registered per operation name make a
// failed workflow recoverable.
type Executor struct {
	tracker   *Tracker
	mu        sync.Mutex
	rollbacks map[string]RollbackFunc
	logger    arbor.ILogger
}

// NewExecutor creates an executor over the given tracker.
func NewExecutor(tracker *Tracker, logger arbor.ILogger) *Executor {
	return &Executor{
		tracker:   tracker,
		rollbacks: make(map[string]RollbackFunc),
		logger:    logger,
	}
}

// Tracker exposes the underlying tracker for status reporting.
func (e *Executor) Tracker() *Tracker {
	return e.tracker
}

// RegisterRollback associates an undo handler with an operation name.
// Operations without a handler are skipped during recovery.
func (e *Executor) RegisterRollback(name string, fn RollbackFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollbacks[name] = fn
}

// ExecuteWithRetry runs fn under the tracker. Network-class failures retry
// with linear backoff; validation-class failures surface immediately. On
// exhaustion the last error is wrapped in an OperationFailure and the
// tracked operation is marked failed.
func (e *Executor) ExecuteWithRetry(ctx context.Context, name string, fn OperationFunc, opContext string, opts RetryOptions) (interface{}, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultRetryOptions().MaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryOptions().RetryDelay
	}

	if err := e.tracker.Start(name, opContext); err != nil {
		return nil, err
	}

	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		attempts = attempt
		e.tracker.RecordAttempt()

		result, err := fn(ctx)
		if err == nil {
			e.tracker.Complete(result)
			return result, nil
		}

		lastErr = err
		class := Classify(err)

		if !class.Retryable() {
			e.logger.Debug().
				Str("operation", name).
				Int("attempt", attempt).
				Str("class", string(class)).
				Err(err).
				Msg("Non-retryable error, failing immediately")
			break
		}

		if attempt < opts.MaxRetries {
			delay := time.Duration(attempt) * opts.RetryDelay

			e.logger.Debug().
				Str("operation", name).
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(err).
				Msg("Retrying after delay")

			select {
			case <-ctx.Done():
				failure := &OperationFailure{Operation: name, Context: opContext, Attempts: attempts, Err: ctx.Err()}
				e.tracker.Fail(failure)
				return nil, failure
			case <-time.After(delay):
			}
		}
	}

	failure := &OperationFailure{
		Operation: name,
		Context:   opContext,
		Attempts:  attempts,
		Err:       lastErr,
	}
	e.tracker.Fail(failure)

	e.logger.Warn().
		Str("operation", name).
		Int("attempts", attempts).
		Err(lastErr).
		Msg("Operation failed after retries")

	return nil, failure
}

// HandlePartialFailure rolls back completed operations in reverse completion
// order. Rollback errors aggregate into a RecoveryFailure that preserves the
// original cause; partial rollback progress is reported either way.
func (e *Executor) HandlePartialFailure(ctx context.Context, cause error, opts RecoveryOptions) (*models.RecoveryResult, error) {
	summary := e.tracker.Summary()
	result := &models.RecoveryResult{}

	if len(summary.Completed) == 0 {
		result.Recovered = true
		return result, nil
	}

	if !opts.ForceCleanup && !opts.SkipConfirmation {
		if opts.Confirm == nil || !opts.Confirm(summary) {
			result.Declined = "cleanup not confirmed"
			e.logger.Warn().
				Int("completed_operations", len(summary.Completed)).
				Err(cause).
				Msg("Recovery cleanup declined")
			return result, nil
		}
	}

	result.CleanupPerformed = true
	rolledBack, errs := e.performRecoveryCleanup(ctx)
	result.RolledBack = rolledBack

	if len(errs) > 0 {
		failure := &RecoveryFailure{Original: cause, RollbackErrors: errs}
		e.logger.Error().
			Int("rollback_errors", len(errs)).
			Err(failure).
			Msg("Recovery cleanup failed, manual intervention required")
		return result, failure
	}

	result.Recovered = true
	e.logger.Info().
		Int("rolled_back", len(rolledBack)).
		Msg("Recovery cleanup completed")

	return result, nil
}

// performRecoveryCleanup invokes rollback handlers newest-first. A failing
// handler does not stop the remaining rollbacks; its error is aggregated.
func (e *Executor) performRecoveryCleanup(ctx context.Context) ([]string, []error) {
	names := e.tracker.RollbackOrder()

	var rolledBack []string
	var errs []error

	for _, name := range names {
		e.mu.Lock()
		fn := e.rollbacks[name]
		e.mu.Unlock()

		if fn == nil {
			e.logger.Warn().
				Str("operation", name).
				Msg("No rollback handler registered, skipping")
			continue
		}

		if err := fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rollback %s: %w", name, err))
			continue
		}

		rolledBack = append(rolledBack, name)

		e.logger.Debug().
			Str("operation", name).
			Msg("Operation rolled back")
	}

	return rolledBack, errs
}
