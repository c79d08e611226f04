package warming

import (
	"testing"
	"time"

	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
)

func newTestQueue(maxSize, maxConcurrent int) *QueueManager {
	return NewQueueManager(maxSize, maxConcurrent, arbor.NewLogger())
}

func TestEnqueueDuplicateSuppression(t *testing.T) {
	q := newTestQueue(10, 2)

	first := q.Enqueue("user-1", models.PriorityNormal, nil)
	if !first.Accepted || first.Reason != models.EnqueueReasonQueued {
		t.Fatalf("Unexpected first enqueue: %+v", first)
	}

	second := q.Enqueue("user-1", models.PriorityHigh, nil)
	if !second.Accepted || second.Reason != models.EnqueueReasonAlreadyQueued {
		t.Errorf("Duplicate should be an accepted no-op, got %+v", second)
	}
	if status := q.Status(); status.QueueSize != 1 {
		t.Errorf("Expected 1 queued entry, got %d", status.QueueSize)
	}
}

func TestEnqueueWhileInFlight(t *testing.T) {
	q := newTestQueue(10, 2)

	q.Enqueue("user-1", models.PriorityNormal, nil)
	if req := q.DequeueNext(); req == nil || req.SubjectID != "user-1" {
		t.Fatalf("Expected to claim user-1, got %+v", req)
	}

	result := q.Enqueue("user-1", models.PriorityNormal, nil)
	if !result.Accepted || result.Reason != models.EnqueueReasonAlreadyWarming {
		t.Errorf("In-flight duplicate should be a no-op, got %+v", result)
	}
	if req := q.DequeueNext(); req != nil {
		t.Errorf("No second entry should exist, got %+v", req)
	}
}

func TestDequeuePriorityThenFIFO(t *testing.T) {
	q := newTestQueue(10, 10)

	q.Enqueue("low-1", models.PriorityLow, nil)
	q.Enqueue("normal-1", models.PriorityNormal, nil)
	q.Enqueue("normal-2", models.PriorityNormal, nil)
	q.Enqueue("high-1", models.PriorityHigh, nil)

	want := []string{"high-1", "normal-1", "normal-2", "low-1"}
	for _, expected := range want {
		req := q.DequeueNext()
		if req == nil || req.SubjectID != expected {
			t.Fatalf("Expected %s next, got %+v", expected, req)
		}
	}
}

func TestDequeueRespectsConcurrencyCap(t *testing.T) {
	q := newTestQueue(10, 2)

	q.Enqueue("user-1", models.PriorityNormal, nil)
	q.Enqueue("user-2", models.PriorityNormal, nil)
	q.Enqueue("user-3", models.PriorityNormal, nil)

	if q.DequeueNext() == nil || q.DequeueNext() == nil {
		t.Fatal("First two dequeues should claim slots")
	}
	if req := q.DequeueNext(); req != nil {
		t.Fatalf("Cap of 2 exceeded: claimed %s", req.SubjectID)
	}

	q.MarkComplete("user-1")
	if req := q.DequeueNext(); req == nil || req.SubjectID != "user-3" {
		t.Errorf("Released slot should admit user-3, got %+v", req)
	}
}

func TestFullQueueRejectsEqualPriority(t *testing.T) {
	q := newTestQueue(2, 1)

	q.Enqueue("user-1", models.PriorityNormal, nil)
	q.Enqueue("user-2", models.PriorityNormal, nil)

	result := q.Enqueue("user-3", models.PriorityNormal, nil)
	if result.Accepted || result.Reason != models.EnqueueReasonQueueFull {
		t.Errorf("Equal priority must not evict, got %+v", result)
	}
}

func TestFullQueueEvictsYoungestOfLowestTier(t *testing.T) {
	q := newTestQueue(3, 1)

	q.Enqueue("low-old", models.PriorityLow, nil)
	time.Sleep(2 * time.Millisecond)
	q.Enqueue("low-young", models.PriorityLow, nil)
	q.Enqueue("normal-1", models.PriorityNormal, nil)

	result := q.Enqueue("high-1", models.PriorityHigh, nil)
	if !result.Accepted || result.Reason != models.EnqueueReasonEvictedLower {
		t.Fatalf("Higher priority should evict, got %+v", result)
	}
	if result.Evicted != "low-young" {
		t.Errorf("Youngest of the lowest tier should go, evicted %s", result.Evicted)
	}
	if q.IsQueued("low-young") {
		t.Error("Evicted subject still queued")
	}
	if !q.IsQueued("low-old") || !q.IsQueued("high-1") {
		t.Error("Survivors missing from queue")
	}
}

func TestRequeuePreservesAttempts(t *testing.T) {
	q := newTestQueue(10, 1)

	q.Enqueue("user-1", models.PriorityNormal, nil)
	req := q.DequeueNext()
	if req == nil {
		t.Fatal("Expected to claim user-1")
	}
	req.Attempts = 2

	if !q.Requeue(req) {
		t.Fatal("Requeue should accept")
	}
	if q.IsInFlight("user-1") {
		t.Error("Requeued request still holds a slot")
	}

	again := q.DequeueNext()
	if again == nil || again.Attempts != 2 {
		t.Errorf("Attempts lost on requeue: %+v", again)
	}
}

func TestClearDrainsQueueOnly(t *testing.T) {
	q := newTestQueue(10, 2)

	q.Enqueue("user-1", models.PriorityNormal, nil)
	q.Enqueue("user-2", models.PriorityNormal, nil)
	q.DequeueNext()

	if dropped := q.Clear("test"); dropped != 1 {
		t.Errorf("Expected 1 dropped, got %d", dropped)
	}
	if status := q.Status(); status.QueueSize != 0 || status.InFlight != 1 {
		t.Errorf("Clear should leave in-flight alone: %+v", status)
	}
}

func TestDropOlderThan(t *testing.T) {
	q := newTestQueue(10, 1)

	stale := &models.WarmingRequest{
		SubjectID:  "stale",
		Priority:   models.PriorityNormal,
		EnqueuedAt: time.Now().Add(-time.Hour),
	}
	q.Requeue(stale)
	q.Enqueue("fresh", models.PriorityNormal, nil)

	if dropped := q.DropOlderThan(time.Now().Add(-30 * time.Minute)); dropped != 1 {
		t.Errorf("Expected 1 stale drop, got %d", dropped)
	}
	if q.IsQueued("stale") || !q.IsQueued("fresh") {
		t.Error("Wrong request dropped")
	}
}

func TestStatusSnapshot(t *testing.T) {
	q := newTestQueue(4, 2)

	q.Enqueue("user-1", models.PriorityHigh, nil)
	q.Enqueue("user-2", models.PriorityLow, nil)
	q.Enqueue("user-3", models.PriorityLow, nil)

	status := q.Status()
	if status.QueueSize != 3 || status.MaxQueueSize != 4 {
		t.Errorf("Unexpected sizes: %+v", status)
	}
	if status.Utilization != 0.75 {
		t.Errorf("Expected 0.75 utilization, got %v", status.Utilization)
	}
	if status.ByPriority["high"] != 1 || status.ByPriority["low"] != 2 {
		t.Errorf("Unexpected priority breakdown: %+v", status.ByPriority)
	}
}

func TestEnqueueRejectsEmptySubject(t *testing.T) {
	q := newTestQueue(10, 1)
	if result := q.Enqueue("", models.PriorityHigh, nil); result.Accepted || result.Reason != models.EnqueueReasonInvalidSubject {
		t.Errorf("Empty subject should be rejected, got %+v", result)
	}
}
