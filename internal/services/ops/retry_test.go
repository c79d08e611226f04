package ops

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
)

func newTestExecutor() *Executor {
	logger := arbor.NewLogger()
	return NewExecutor(NewTracker(logger), logger)
}

func fastRetry(attempts int) RetryOptions {
	return RetryOptions{MaxRetries: attempts, RetryDelay: time.Millisecond}
}

func TestExecuteWithRetrySucceedsOnThirdAttempt(t *testing.T) {
	executor := newTestExecutor()

	var calls int32
	fn := func(ctx context.Context) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("connection refused")
		}
		return "warmed", nil
	}

	result, err := executor.ExecuteWithRetry(context.Background(), "warm_subject", fn, "warming", fastRetry(3))
	if err != nil {
		t.Fatalf("Expected success, got: %v", err)
	}
	if result != "warmed" {
		t.Errorf("Expected result warmed, got %v", result)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected exactly 3 calls, got %d", got)
	}
}

func TestExecuteWithRetryValidationFailsImmediately(t *testing.T) {
	executor := newTestExecutor()

	var calls int32
	fn := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, NewValidationError("subjectId", "must not be empty")
	}

	_, err := executor.ExecuteWithRetry(context.Background(), "warm_subject", fn, "warming", fastRetry(3))
	if err == nil {
		t.Fatal("Expected an error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected exactly 1 call for a validation error, got %d", got)
	}

	var failure *OperationFailure
	if !errors.As(err, &failure) {
		t.Fatalf("Expected *OperationFailure, got %T", err)
	}
	if failure.Attempts != 1 {
		t.Errorf("Expected 1 recorded attempt, got %d", failure.Attempts)
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Error("Expected the validation error to be preserved in the chain")
	}
}

func TestExecuteWithRetryExhaustionWrapsLastError(t *testing.T) {
	executor := newTestExecutor()

	var calls int32
	fn := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection refused")
	}

	_, err := executor.ExecuteWithRetry(context.Background(), "warm_subject", fn, "warming", fastRetry(3))
	if err == nil {
		t.Fatal("Expected an error after exhaustion")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 calls, got %d", got)
	}

	var failure *OperationFailure
	if !errors.As(err, &failure) {
		t.Fatalf("Expected *OperationFailure, got %T", err)
	}
	if failure.Operation != "warm_subject" || failure.Context != "warming" {
		t.Errorf("Failure lost identity: %+v", failure)
	}
	if failure.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", failure.Attempts)
	}
}

func TestExecuteWithRetryHonorsContextCancel(t *testing.T) {
	executor := newTestExecutor()

	ctx, cancel := context.WithCancel(context.Background())

	fn := func(ctx context.Context) (interface{}, error) {
		cancel()
		return nil, errors.New("connection refused")
	}

	_, err := executor.ExecuteWithRetry(ctx, "warm_subject", fn, "warming", RetryOptions{MaxRetries: 3, RetryDelay: time.Minute})
	if err == nil {
		t.Fatal("Expected an error")
	}

	var failure *OperationFailure
	if !errors.As(err, &failure) {
		t.Fatalf("Expected *OperationFailure, got %T", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in the chain, got: %v", err)
	}
}

func TestExecuteWithRetryRejectedWhileInProgress(t *testing.T) {
	executor := newTestExecutor()

	if err := executor.Tracker().Start("blocking_op", "test"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	fn := func(ctx context.Context) (interface{}, error) { return nil, nil }
	_, err := executor.ExecuteWithRetry(context.Background(), "warm_subject", fn, "warming", fastRetry(1))
	if !errors.Is(err, ErrOperationInProgress) {
		t.Errorf("Expected ErrOperationInProgress, got: %v", err)
	}
}

func runSeedOperations(t *testing.T, executor *Executor, failLast bool) error {
	t.Helper()

	succeed := func(ctx context.Context) (interface{}, error) { return nil, nil }

	if _, err := executor.ExecuteWithRetry(context.Background(), "seed_users", succeed, "seeding", fastRetry(1)); err != nil {
		t.Fatalf("seed_users failed: %v", err)
	}
	if _, err := executor.ExecuteWithRetry(context.Background(), "seed_exercises", succeed, "seeding", fastRetry(1)); err != nil {
		t.Fatalf("seed_exercises failed: %v", err)
	}

	if !failLast {
		return nil
	}

	fail := func(ctx context.Context) (interface{}, error) { return nil, errors.New("connection refused") }
	_, err := executor.ExecuteWithRetry(context.Background(), "seed_programs", fail, "seeding", fastRetry(1))
	if err == nil {
		t.Fatal("Expected seed_programs to fail")
	}
	return err
}

func TestHandlePartialFailureRollsBackInReverseOrder(t *testing.T) {
	executor := newTestExecutor()

	var order []string
	executor.RegisterRollback("seed_users", func(ctx context.Context) error {
		order = append(order, "seed_users")
		return nil
	})
	executor.RegisterRollback("seed_exercises", func(ctx context.Context) error {
		order = append(order, "seed_exercises")
		return nil
	})

	cause := runSeedOperations(t, executor, true)

	result, err := executor.HandlePartialFailure(context.Background(), cause, RecoveryOptions{ForceCleanup: true})
	if err != nil {
		t.Fatalf("HandlePartialFailure failed: %v", err)
	}

	if !result.Recovered || !result.CleanupPerformed {
		t.Errorf("Expected recovered cleanup, got %+v", result)
	}

	want := []string{"seed_exercises", "seed_users"}
	if len(order) != len(want) {
		t.Fatalf("Expected %d rollbacks, got %v", len(want), order)
	}
	for i, name := range want {
		if order[i] != name {
			t.Errorf("Rollback[%d] = %s, want %s", i, order[i], name)
		}
	}
}

func TestHandlePartialFailureDeclinesWithoutConfirmation(t *testing.T) {
	executor := newTestExecutor()

	var rollbacks int32
	executor.RegisterRollback("seed_users", func(ctx context.Context) error {
		atomic.AddInt32(&rollbacks, 1)
		return nil
	})
	executor.RegisterRollback("seed_exercises", func(ctx context.Context) error {
		atomic.AddInt32(&rollbacks, 1)
		return nil
	})

	cause := runSeedOperations(t, executor, true)

	result, err := executor.HandlePartialFailure(context.Background(), cause, RecoveryOptions{})
	if err != nil {
		t.Fatalf("HandlePartialFailure failed: %v", err)
	}

	if result.Recovered || result.CleanupPerformed {
		t.Errorf("Expected declined cleanup, got %+v", result)
	}
	if result.Declined == "" {
		t.Error("Expected a declined reason")
	}
	if got := atomic.LoadInt32(&rollbacks); got != 0 {
		t.Errorf("Expected no rollbacks, got %d", got)
	}
}

func TestHandlePartialFailureConfirmCallback(t *testing.T) {
	executor := newTestExecutor()

	executor.RegisterRollback("seed_users", func(ctx context.Context) error { return nil })
	executor.RegisterRollback("seed_exercises", func(ctx context.Context) error { return nil })

	cause := runSeedOperations(t, executor, true)

	var seen models.OperationSummary
	confirm := func(summary models.OperationSummary) bool {
		seen = summary
		return true
	}

	result, err := executor.HandlePartialFailure(context.Background(), cause, RecoveryOptions{Confirm: confirm})
	if err != nil {
		t.Fatalf("HandlePartialFailure failed: %v", err)
	}
	if !result.Recovered {
		t.Errorf("Expected recovery, got %+v", result)
	}
	if len(seen.Completed) != 2 {
		t.Errorf("Confirm callback saw wrong summary: %+v", seen)
	}
}

func TestHandlePartialFailureAggregatesRollbackErrors(t *testing.T) {
	executor := newTestExecutor()

	executor.RegisterRollback("seed_users", func(ctx context.Context) error { return nil })
	executor.RegisterRollback("seed_exercises", func(ctx context.Context) error {
		return errors.New("delete exercises: 503 unavailable")
	})

	cause := runSeedOperations(t, executor, true)

	result, err := executor.HandlePartialFailure(context.Background(), cause, RecoveryOptions{SkipConfirmation: true})
	if err == nil {
		t.Fatal("Expected a RecoveryFailure")
	}

	var recovery *RecoveryFailure
	if !errors.As(err, &recovery) {
		t.Fatalf("Expected *RecoveryFailure, got %T", err)
	}
	if !errors.Is(recovery, cause) {
		t.Error("RecoveryFailure must preserve the original cause")
	}
	if len(recovery.RollbackErrors) != 1 {
		t.Errorf("Expected 1 rollback error, got %d", len(recovery.RollbackErrors))
	}

	// seed_users still rolled back despite the seed_exercises failure
	if len(result.RolledBack) != 1 || result.RolledBack[0] != "seed_users" {
		t.Errorf("Expected partial rollback progress, got %v", result.RolledBack)
	}
	if result.Recovered {
		t.Error("Recovery must not be reported when rollback errors occurred")
	}
}

func TestHandlePartialFailureNothingToRollBack(t *testing.T) {
	executor := newTestExecutor()

	result, err := executor.HandlePartialFailure(context.Background(), errors.New("early failure"), RecoveryOptions{ForceCleanup: true})
	if err != nil {
		t.Fatalf("HandlePartialFailure failed: %v", err)
	}
	if !result.Recovered || result.CleanupPerformed {
		t.Errorf("Expected trivial recovery, got %+v", result)
	}
}
