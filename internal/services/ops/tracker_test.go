package ops

import (
	"errors"
	"testing"

	"github.com/ternarybob/arbor"
)

func TestTrackerSerializesOperations(t *testing.T) {
	tracker := NewTracker(arbor.NewLogger())

	if err := tracker.Start("seed_users", "seeding"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := tracker.Start("seed_exercises", "seeding")
	if err == nil {
		t.Fatal("Expected second Start to fail while one is in progress")
	}
	if !errors.Is(err, ErrOperationInProgress) {
		t.Errorf("Expected ErrOperationInProgress, got: %v", err)
	}

	tracker.Complete(nil)

	if err := tracker.Start("seed_exercises", "seeding"); err != nil {
		t.Errorf("Start after Complete failed: %v", err)
	}
}

func TestTrackerRollbackOrderIsReversed(t *testing.T) {
	tracker := NewTracker(arbor.NewLogger())

	for _, name := range []string{"seed_users", "seed_exercises", "seed_programs"} {
		if err := tracker.Start(name, "seeding"); err != nil {
			t.Fatalf("Start(%s) failed: %v", name, err)
		}
		tracker.Complete(nil)
	}

	completed := tracker.Completed()
	want := []string{"seed_users", "seed_exercises", "seed_programs"}
	for i, name := range want {
		if completed[i] != name {
			t.Errorf("Completed[%d] = %s, want %s", i, completed[i], name)
		}
	}

	rollback := tracker.RollbackOrder()
	wantReverse := []string{"seed_programs", "seed_exercises", "seed_users"}
	for i, name := range wantReverse {
		if rollback[i] != name {
			t.Errorf("RollbackOrder[%d] = %s, want %s", i, rollback[i], name)
		}
	}
}

func TestTrackerFailedOperationsExcludedFromRollback(t *testing.T) {
	tracker := NewTracker(arbor.NewLogger())

	if err := tracker.Start("seed_users", "seeding"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tracker.Complete(nil)

	if err := tracker.Start("seed_exercises", "seeding"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tracker.Fail(errors.New("connection refused"))

	rollback := tracker.RollbackOrder()
	if len(rollback) != 1 || rollback[0] != "seed_users" {
		t.Errorf("Expected rollback order [seed_users], got %v", rollback)
	}
}

func TestTrackerSummary(t *testing.T) {
	tracker := NewTracker(arbor.NewLogger())

	if err := tracker.Start("seed_users", "seeding"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tracker.Complete(map[string]int{"created": 2})

	if err := tracker.Start("seed_exercises", "seeding"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tracker.Fail(errors.New("boom"))

	if err := tracker.Start("seed_programs", "seeding"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	summary := tracker.Summary()
	if summary.Total != 3 {
		t.Errorf("Expected total 3, got %d", summary.Total)
	}
	if len(summary.Completed) != 1 || summary.Completed[0] != "seed_users" {
		t.Errorf("Unexpected completed list: %v", summary.Completed)
	}
	if summary.Failed != "seed_exercises" {
		t.Errorf("Expected failed seed_exercises, got %s", summary.Failed)
	}
	if summary.InProgress != "seed_programs" {
		t.Errorf("Expected in progress seed_programs, got %s", summary.InProgress)
	}
}

func TestTrackerCompleteWithoutStartIsNoop(t *testing.T) {
	tracker := NewTracker(arbor.NewLogger())

	tracker.Complete(nil)
	tracker.Fail(errors.New("boom"))

	if got := len(tracker.Operations()); got != 0 {
		t.Errorf("Expected no recorded operations, got %d", got)
	}
}

func TestTrackerReset(t *testing.T) {
	tracker := NewTracker(arbor.NewLogger())

	if err := tracker.Start("seed_users", "seeding"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tracker.Reset()

	if err := tracker.Start("seed_users", "seeding"); err != nil {
		t.Errorf("Start after Reset failed: %v", err)
	}
	if summary := tracker.Summary(); summary.Total != 1 {
		t.Errorf("Expected only the restarted operation, got total %d", summary.Total)
	}
}
