package changes

import "testing"

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name  string
		a     interface{}
		b     interface{}
		equal bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs value", nil, "x", false},
		{"equal strings", "push", "push", true},
		{"different strings", "push", "pull", false},
		{"equal bools", true, true, true},
		{"different bools", true, false, false},
		{"int vs float same value", 5, float64(5.0), true},
		{"int vs float different value", 5, float64(5.5), false},
		{"int64 vs int", int64(42), 42, true},
		{"string number vs number", "5", float64(5), false},
		{"equal slices", []interface{}{1, 2}, []interface{}{1, 2}, true},
		{"slice length differs", []interface{}{1, 2}, []interface{}{1, 2, 3}, false},
		{"slice element differs", []interface{}{1, 2}, []interface{}{1, 3}, false},
		{"slice numeric cross-type", []interface{}{1, 2}, []interface{}{float64(1), float64(2)}, true},
		{"equal maps", map[string]interface{}{"a": 1}, map[string]interface{}{"a": float64(1)}, true},
		{"map keyset differs", map[string]interface{}{"a": 1}, map[string]interface{}{"b": 1}, false},
		{"map value differs", map[string]interface{}{"a": 1}, map[string]interface{}{"a": 2}, false},
		{"map nil value vs missing key", map[string]interface{}{"a": nil}, map[string]interface{}{}, false},
		{"nested maps", map[string]interface{}{"a": map[string]interface{}{"b": 1}}, map[string]interface{}{"a": map[string]interface{}{"b": float64(1)}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValueEqual(tt.a, tt.b); got != tt.equal {
				t.Errorf("ValueEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.equal)
			}
		})
	}
}

func TestIsMetadataField(t *testing.T) {
	for _, field := range []string{"name", "completed", "duration", "notes", "date", "completedDate"} {
		if !IsMetadataField(field) {
			t.Errorf("%s should be a metadata field", field)
		}
	}
	for _, field := range []string{"exercises", "id", "userId", ""} {
		if IsMetadataField(field) {
			t.Errorf("%s should not be a metadata field", field)
		}
	}
}
