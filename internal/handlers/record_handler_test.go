package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/models"
	"github.com/repset/warmup/internal/services/changes"
	"github.com/ternarybob/arbor"
)

// mockWorkoutService implements interfaces.WorkoutService for testing
type mockWorkoutService struct {
	saveFunc     func(ctx context.Context, workoutID string, prev, curr *models.RecordSnapshot) (*models.SaveOutcome, error)
	getFunc      func(ctx context.Context, table, id string) (*models.CachedRecord, error)
	backfillFunc func(ctx context.Context, batchSize int) (int, error)
	conflicts    map[string]int64
}

func (m *mockWorkoutService) SaveWorkout(ctx context.Context, workoutID string, prev, curr *models.RecordSnapshot) (*models.SaveOutcome, error) {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, workoutID, prev, curr)
	}
	return &models.SaveOutcome{Saved: true}, nil
}

func (m *mockWorkoutService) GetRecord(ctx context.Context, table, id string) (*models.CachedRecord, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, table, id)
	}
	return &models.CachedRecord{Table: table, ID: id}, nil
}

func (m *mockWorkoutService) ApplyRemoteUpdate(ctx context.Context, update *models.RemoteRecordUpdate) (*models.Resolution, error) {
	return nil, nil
}

func (m *mockWorkoutService) ConflictCounts() map[string]int64 { return m.conflicts }

func (m *mockWorkoutService) BackfillCompletedDates(ctx context.Context, batchSize int) (int, error) {
	if m.backfillFunc != nil {
		return m.backfillFunc(ctx, batchSize)
	}
	return 0, nil
}

func (m *mockWorkoutService) Flush(ctx context.Context) error { return nil }

func (m *mockWorkoutService) Close() error { return nil }

func newRecordHandler(mock *mockWorkoutService) *RecordHandler {
	logger := arbor.NewLogger()
	return NewRecordHandler(mock, changes.NewDetector(logger), logger)
}

func TestGetRecordHandler(t *testing.T) {
	handler := newRecordHandler(&mockWorkoutService{
		getFunc: func(ctx context.Context, table, id string) (*models.CachedRecord, error) {
			return &models.CachedRecord{
				Table: table,
				ID:    id,
				Data:  map[string]interface{}{"name": "Push Day"},
			}, nil
		},
	})

	req := httptest.NewRequest("GET", "/api/records/workoutLogs/w1", nil)
	rec := httptest.NewRecorder()
	handler.GetRecordHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var record models.CachedRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if record.Table != "workoutLogs" || record.ID != "w1" {
		t.Errorf("Wrong record returned: %+v", record)
	}
}

func TestGetRecordHandler_NotFound(t *testing.T) {
	handler := newRecordHandler(&mockWorkoutService{
		getFunc: func(ctx context.Context, table, id string) (*models.CachedRecord, error) {
			return nil, interfaces.ErrKeyNotFound
		},
	})

	req := httptest.NewRequest("GET", "/api/records/workoutLogs/missing", nil)
	rec := httptest.NewRecorder()
	handler.GetRecordHandler(rec, req)

	if rec.Code != 404 {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestGetRecordHandler_UnknownTable(t *testing.T) {
	handler := newRecordHandler(&mockWorkoutService{})

	req := httptest.NewRequest("GET", "/api/records/invoices/w1", nil)
	rec := httptest.NewRecorder()
	handler.GetRecordHandler(rec, req)

	if rec.Code != 400 {
		t.Errorf("Expected 400 for unknown table, got %d", rec.Code)
	}
}

func TestGetRecordHandler_BadPath(t *testing.T) {
	handler := newRecordHandler(&mockWorkoutService{})

	req := httptest.NewRequest("GET", "/api/records/workoutLogs", nil)
	rec := httptest.NewRecorder()
	handler.GetRecordHandler(rec, req)

	if rec.Code != 400 {
		t.Errorf("Expected 400 for missing id segment, got %d", rec.Code)
	}
}

func TestSaveWorkoutHandler(t *testing.T) {
	var gotID string
	handler := newRecordHandler(&mockWorkoutService{
		saveFunc: func(ctx context.Context, workoutID string, prev, curr *models.RecordSnapshot) (*models.SaveOutcome, error) {
			gotID = workoutID
			return &models.SaveOutcome{Saved: true}, nil
		},
	})

	body := `{"previous":{"metadata":{"name":"Push Day"}},"current":{"metadata":{"name":"Heavy Push Day"}}}`
	req := httptest.NewRequest("POST", "/api/workouts/w1/save", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.SaveWorkoutHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotID != "w1" {
		t.Errorf("Expected workout id w1, got %q", gotID)
	}
	var outcome models.SaveOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if !outcome.Saved {
		t.Errorf("Expected saved outcome, got %+v", outcome)
	}
}

func TestSaveWorkoutHandler_MissingCurrent(t *testing.T) {
	handler := newRecordHandler(&mockWorkoutService{})

	req := httptest.NewRequest("POST", "/api/workouts/w1/save", strings.NewReader(`{"previous":null}`))
	rec := httptest.NewRecorder()
	handler.SaveWorkoutHandler(rec, req)

	if rec.Code != 400 {
		t.Errorf("Expected 400 for missing current snapshot, got %d", rec.Code)
	}
}

func TestDetectChangesHandler_MetadataOnly(t *testing.T) {
	handler := newRecordHandler(&mockWorkoutService{})

	body := `{
		"previous": {"metadata": {"name": "Push Day"}, "exercises": [{"exerciseId": "ex1", "order": 0, "reps": [5,5,5]}]},
		"current":  {"metadata": {"name": "Heavy Push Day"}, "exercises": [{"exerciseId": "ex1", "order": 0, "reps": [5,5,5]}]}
	}`
	req := httptest.NewRequest("POST", "/api/changes/detect", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.DetectChangesHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp detectChangesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if resp.Analysis.SaveStrategy != models.SaveStrategyMetadataOnly {
		t.Errorf("Expected metadata-only strategy, got %s", resp.Analysis.SaveStrategy)
	}
	if !resp.RequiresImmediateSave {
		t.Error("Metadata changes should require an immediate save")
	}
	if resp.CanUseDebouncedSave {
		t.Error("Metadata changes must not ride the debounce window")
	}
}

func TestDetectChangesHandler_ExerciseValuesDebounced(t *testing.T) {
	handler := newRecordHandler(&mockWorkoutService{})

	body := `{
		"previous": {"metadata": {"name": "Push Day"}, "exercises": [{"exerciseId": "ex1", "order": 0, "reps": [5,5,5]}]},
		"current":  {"metadata": {"name": "Push Day"}, "exercises": [{"exerciseId": "ex1", "order": 0, "reps": [5,5,8]}]}
	}`
	req := httptest.NewRequest("POST", "/api/changes/detect", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.DetectChangesHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp detectChangesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if resp.Analysis.SaveStrategy != models.SaveStrategyExerciseOnly {
		t.Errorf("Expected exercise-only strategy, got %s", resp.Analysis.SaveStrategy)
	}
	if resp.RequiresImmediateSave {
		t.Error("Exercise value changes should not force an immediate save")
	}
	if !resp.CanUseDebouncedSave {
		t.Error("Exercise value changes should allow a debounced save")
	}
}

func TestDetectChangesHandler_StructuralForcesFullSave(t *testing.T) {
	handler := newRecordHandler(&mockWorkoutService{})

	body := `{
		"previous": {"metadata": {"name": "Push Day"}, "exercises": [{"exerciseId": "ex1", "order": 0}]},
		"current":  {"metadata": {"name": "Push Day"}, "exercises": [{"exerciseId": "ex1", "order": 0}, {"exerciseId": "ex2", "order": 1}]}
	}`
	req := httptest.NewRequest("POST", "/api/changes/detect", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.DetectChangesHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp detectChangesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if resp.Analysis.SaveStrategy != models.SaveStrategyFullSave {
		t.Errorf("Expected full-save strategy for structural change, got %s", resp.Analysis.SaveStrategy)
	}
	if !resp.Analysis.Summary.HasStructuralChanges {
		t.Error("Added exercise should be flagged as structural")
	}
	if resp.CanUseDebouncedSave {
		t.Error("Structural changes must not ride the debounce window")
	}
}

func TestConflictsHandler(t *testing.T) {
	handler := newRecordHandler(&mockWorkoutService{
		conflicts: map[string]int64{"local_wins": 2, "remote_wins": 1},
	})

	req := httptest.NewRequest("GET", "/api/records/conflicts", nil)
	rec := httptest.NewRecorder()
	handler.ConflictsHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp struct {
		Outcomes map[string]int64 `json:"outcomes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if resp.Outcomes["local_wins"] != 2 {
		t.Errorf("Conflict counts not passed through: %+v", resp.Outcomes)
	}
}

func TestBackfillHandler(t *testing.T) {
	var gotBatch int
	handler := newRecordHandler(&mockWorkoutService{
		backfillFunc: func(ctx context.Context, batchSize int) (int, error) {
			gotBatch = batchSize
			return 7, nil
		},
	})

	req := httptest.NewRequest("POST", "/api/records/backfill?batch=25", nil)
	rec := httptest.NewRecorder()
	handler.BackfillHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if gotBatch != 25 {
		t.Errorf("Expected batch size 25, got %d", gotBatch)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	if resp["updated"].(float64) != 7 {
		t.Errorf("Expected updated=7, got %v", resp["updated"])
	}
}
