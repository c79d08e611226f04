package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
)

// mockWarmingService implements interfaces.WarmingService for testing
type mockWarmingService struct {
	enqueueFunc func(subjectID string, priority models.WarmingPriority, metadata map[string]string) models.EnqueueResult
	statusFunc  func() models.QueueStatus
	statsFunc   func(opts models.StatsOptions) models.WarmingStats
	clearFunc   func(reason string) int
}

func (m *mockWarmingService) EnqueueWarming(subjectID string, priority models.WarmingPriority, metadata map[string]string) models.EnqueueResult {
	if m.enqueueFunc != nil {
		return m.enqueueFunc(subjectID, priority, metadata)
	}
	return models.EnqueueResult{Accepted: true, Reason: models.EnqueueReasonQueued}
}

func (m *mockWarmingService) ProcessNext(ctx context.Context) error { return nil }

func (m *mockWarmingService) Run(ctx context.Context) {}

func (m *mockWarmingService) QueueStatus() models.QueueStatus {
	if m.statusFunc != nil {
		return m.statusFunc()
	}
	return models.QueueStatus{}
}

func (m *mockWarmingService) ClearQueue(reason string) int {
	if m.clearFunc != nil {
		return m.clearFunc(reason)
	}
	return 0
}

func (m *mockWarmingService) Stats(opts models.StatsOptions) models.WarmingStats {
	if m.statsFunc != nil {
		return m.statsFunc(opts)
	}
	return models.WarmingStats{}
}

func (m *mockWarmingService) TopSubjects(n int) []models.SubjectCount { return nil }

func (m *mockWarmingService) DropStale(maxAge time.Duration) int { return 0 }

func (m *mockWarmingService) PruneHistory(olderThan time.Duration) int { return 0 }

func newWarmingHandler(mock *mockWarmingService) *WarmingHandler {
	return NewWarmingHandler(mock, arbor.NewLogger())
}

func TestEnqueueHandler_Accepted(t *testing.T) {
	var gotSubject string
	var gotPriority models.WarmingPriority
	handler := newWarmingHandler(&mockWarmingService{
		enqueueFunc: func(subjectID string, priority models.WarmingPriority, metadata map[string]string) models.EnqueueResult {
			gotSubject = subjectID
			gotPriority = priority
			return models.EnqueueResult{Accepted: true, Reason: models.EnqueueReasonQueued}
		},
	})

	body := `{"subject_id":"user-1","priority":"high","metadata":{"trigger":"login"}}`
	req := httptest.NewRequest("POST", "/api/warming/enqueue", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.EnqueueHandler(rec, req)

	if rec.Code != 202 {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotSubject != "user-1" || gotPriority != models.PriorityHigh {
		t.Errorf("Service called with subject=%q priority=%v", gotSubject, gotPriority)
	}

	var result models.EnqueueResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if !result.Accepted {
		t.Errorf("Expected accepted result, got %+v", result)
	}
}

func TestEnqueueHandler_MissingSubject(t *testing.T) {
	handler := newWarmingHandler(&mockWarmingService{})

	req := httptest.NewRequest("POST", "/api/warming/enqueue", strings.NewReader(`{"priority":"low"}`))
	rec := httptest.NewRecorder()
	handler.EnqueueHandler(rec, req)

	if rec.Code != 400 {
		t.Errorf("Expected 400 for missing subject_id, got %d", rec.Code)
	}
}

func TestEnqueueHandler_InvalidPriority(t *testing.T) {
	handler := newWarmingHandler(&mockWarmingService{})

	body := `{"subject_id":"user-1","priority":"urgent"}`
	req := httptest.NewRequest("POST", "/api/warming/enqueue", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.EnqueueHandler(rec, req)

	if rec.Code != 400 {
		t.Errorf("Expected 400 for unknown priority, got %d", rec.Code)
	}
}

func TestEnqueueHandler_QueueFull(t *testing.T) {
	handler := newWarmingHandler(&mockWarmingService{
		enqueueFunc: func(string, models.WarmingPriority, map[string]string) models.EnqueueResult {
			return models.EnqueueResult{Accepted: false, Reason: models.EnqueueReasonQueueFull}
		},
	})

	req := httptest.NewRequest("POST", "/api/warming/enqueue", strings.NewReader(`{"subject_id":"user-1"}`))
	rec := httptest.NewRecorder()
	handler.EnqueueHandler(rec, req)

	if rec.Code != 429 {
		t.Errorf("Expected 429 for full queue, got %d", rec.Code)
	}
}

func TestEnqueueHandler_DuplicateIsOK(t *testing.T) {
	handler := newWarmingHandler(&mockWarmingService{
		enqueueFunc: func(string, models.WarmingPriority, map[string]string) models.EnqueueResult {
			return models.EnqueueResult{Accepted: false, Reason: models.EnqueueReasonAlreadyQueued}
		},
	})

	req := httptest.NewRequest("POST", "/api/warming/enqueue", strings.NewReader(`{"subject_id":"user-1"}`))
	rec := httptest.NewRecorder()
	handler.EnqueueHandler(rec, req)

	if rec.Code != 200 {
		t.Errorf("Duplicate suppression should not be an error, got %d", rec.Code)
	}
}

func TestQueueStatusHandler(t *testing.T) {
	handler := newWarmingHandler(&mockWarmingService{
		statusFunc: func() models.QueueStatus {
			return models.QueueStatus{QueueSize: 3, MaxQueueSize: 50, InFlight: 1, MaxConcurrent: 3}
		},
	})

	req := httptest.NewRequest("GET", "/api/warming/queue", nil)
	rec := httptest.NewRecorder()
	handler.QueueStatusHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var status models.QueueStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if status.QueueSize != 3 || status.InFlight != 1 {
		t.Errorf("Unexpected status %+v", status)
	}
}

func TestStatsHandler_Options(t *testing.T) {
	var gotOpts models.StatsOptions
	handler := newWarmingHandler(&mockWarmingService{
		statsFunc: func(opts models.StatsOptions) models.WarmingStats {
			gotOpts = opts
			return models.WarmingStats{TotalEvents: 5}
		},
	})

	req := httptest.NewRequest("GET", "/api/warming/stats?savings=true&patterns=true&category=subject_warm", nil)
	rec := httptest.NewRecorder()
	handler.StatsHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !gotOpts.IncludeSavings || !gotOpts.IncludePatterns || gotOpts.Category != "subject_warm" {
		t.Errorf("Options not passed through: %+v", gotOpts)
	}
}

func TestStatsHandler_BadSince(t *testing.T) {
	handler := newWarmingHandler(&mockWarmingService{})

	req := httptest.NewRequest("GET", "/api/warming/stats?since=yesterday", nil)
	rec := httptest.NewRecorder()
	handler.StatsHandler(rec, req)

	if rec.Code != 400 {
		t.Errorf("Expected 400 for bad since, got %d", rec.Code)
	}
}

func TestClearQueueHandler(t *testing.T) {
	var gotReason string
	handler := newWarmingHandler(&mockWarmingService{
		clearFunc: func(reason string) int {
			gotReason = reason
			return 4
		},
	})

	req := httptest.NewRequest("POST", "/api/warming/clear", strings.NewReader(`{"reason":"redeploy"}`))
	rec := httptest.NewRecorder()
	handler.ClearQueueHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if gotReason != "redeploy" {
		t.Errorf("Expected reason to pass through, got %q", gotReason)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if resp["removed"].(float64) != 4 {
		t.Errorf("Expected removed=4, got %v", resp["removed"])
	}
}

func TestClearQueueHandler_WrongMethod(t *testing.T) {
	handler := newWarmingHandler(&mockWarmingService{})

	req := httptest.NewRequest("GET", "/api/warming/clear", nil)
	rec := httptest.NewRecorder()
	handler.ClearQueueHandler(rec, req)

	if rec.Code != 405 {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}
