package models

import "encoding/json"

// Record field names follow the remote schema (camelCase), so snapshots and
// push payloads round-trip without translation.

// SaveStrategy selects how a dirty workout record is persisted.
type SaveStrategy string

const (
	// SaveStrategyMetadataOnly writes only the scalar workout fields.
	SaveStrategyMetadataOnly SaveStrategy = "metadata-only"

	// SaveStrategyExerciseOnly writes only the exercise entries.
	SaveStrategyExerciseOnly SaveStrategy = "exercise-only"

	// SaveStrategyFullSave writes the whole record. Also the conservative
	// default when nothing changed or the input could not be analyzed.
	SaveStrategyFullSave SaveStrategy = "full-save"
)

// ExerciseEntry is one exercise in a workout snapshot, keyed by ExerciseID.
// Reps, Weights and Completed are per-set and compared element-wise.
type ExerciseEntry struct {
	ExerciseID string    `json:"exerciseId"`
	Name       string    `json:"name,omitempty"`
	Order      int       `json:"order"`
	Reps       []int     `json:"reps,omitempty"`
	Weights    []float64 `json:"weights,omitempty"`
	Completed  []bool    `json:"completed,omitempty"`
	Bodyweight bool      `json:"bodyweight,omitempty"`
}

// RecordSnapshot is a point-in-time view of a workout record handed to change
// detection. A nil metadata value is distinct from an absent key; both occur
// in payloads from the remote service.
type RecordSnapshot struct {
	Metadata  map[string]interface{} `json:"metadata"`
	Exercises []ExerciseEntry        `json:"exercises"`
}

// ToData flattens the snapshot back into the wire shape used by the
// remote service and the cache.
func (s *RecordSnapshot) ToData() map[string]interface{} {
	if s == nil {
		return nil
	}
	data := make(map[string]interface{}, len(s.Metadata)+1)
	for key, value := range s.Metadata {
		data[key] = value
	}
	if s.Exercises != nil {
		data["exercises"] = s.Exercises
	}
	return data
}

// SnapshotFromData lifts a raw record map (cached data or a push payload) into
// a snapshot. Everything except the exercises array is carried as metadata;
// exercise entries that fail to decode are dropped rather than failing the
// whole record.
func SnapshotFromData(data map[string]interface{}) *RecordSnapshot {
	if data == nil {
		return nil
	}

	snapshot := &RecordSnapshot{Metadata: make(map[string]interface{}, len(data))}
	for key, value := range data {
		if key == "exercises" {
			continue
		}
		snapshot.Metadata[key] = value
	}

	raw, ok := data["exercises"]
	if !ok || raw == nil {
		return snapshot
	}

	// Round-trip through JSON so both []interface{} payloads and already
	// typed entries decode the same way.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return snapshot
	}
	var entries []ExerciseEntry
	if err := json.Unmarshal(encoded, &entries); err != nil {
		return snapshot
	}
	snapshot.Exercises = entries
	return snapshot
}

// ChangeKind classifies a single metadata field change.
type ChangeKind string

const (
	ChangeKindAdded    ChangeKind = "added"
	ChangeKindRemoved  ChangeKind = "removed"
	ChangeKindModified ChangeKind = "modified"
)

// FieldChange describes one metadata field delta.
type FieldChange struct {
	Field string      `json:"field"`
	Kind  ChangeKind  `json:"kind"`
	From  interface{} `json:"from,omitempty"`
	To    interface{} `json:"to,omitempty"`
}

// ExerciseChangeTag labels what changed within or around one exercise entry.
type ExerciseChangeTag string

const (
	TagRepsChanged       ExerciseChangeTag = "reps_changed"
	TagWeightsChanged    ExerciseChangeTag = "weights_changed"
	TagCompletedChanged  ExerciseChangeTag = "completed_changed"
	TagBodyweightChanged ExerciseChangeTag = "bodyweight_changed"
	TagExerciseAdded     ExerciseChangeTag = "exercise_added"
	TagExerciseRemoved   ExerciseChangeTag = "exercise_removed"
	TagExerciseIDChanged ExerciseChangeTag = "exerciseId_changed"
	TagOrderChanged      ExerciseChangeTag = "order_changed"
)

// structuralTags are the tags that force a full save regardless of anything
// else in the analysis.
var structuralTags = map[ExerciseChangeTag]bool{
	TagExerciseAdded:     true,
	TagExerciseRemoved:   true,
	TagExerciseIDChanged: true,
	TagOrderChanged:      true,
}

// IsStructural reports whether the tag changes the set, identity or ordering
// of exercises rather than their values.
func (t ExerciseChangeTag) IsStructural() bool {
	return structuralTags[t]
}

// ExerciseChange collects the tags raised for one exercise identity.
type ExerciseChange struct {
	ExerciseID string              `json:"exerciseId"`
	Tags       []ExerciseChangeTag `json:"tags"`
}

// Has reports whether the change carries the given tag.
func (c ExerciseChange) Has(tag ExerciseChangeTag) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ChangeSummary carries the analysis-level flags.
type ChangeSummary struct {
	IsNewWorkout         bool `json:"isNewWorkout"`
	HasStructuralChanges bool `json:"hasStructuralChanges"`
	ExerciseCount        int  `json:"exerciseCount"`
	FallbackUsed         bool `json:"fallbackUsed,omitempty"`
}

// ChangeAnalysis is the result of diffing two record snapshots. SaveStrategy
// is always usable; callers never need to handle an absent strategy.
type ChangeAnalysis struct {
	HasMetadataChanges bool             `json:"hasMetadataChanges"`
	HasExerciseChanges bool             `json:"hasExerciseChanges"`
	MetadataChanges    []FieldChange    `json:"metadataChanges,omitempty"`
	ExerciseChanges    []ExerciseChange `json:"exerciseChanges,omitempty"`
	SaveStrategy       SaveStrategy     `json:"saveStrategy"`
	Summary            ChangeSummary    `json:"summary"`
}

// SaveOutcome reports how a workout save request was handled.
type SaveOutcome struct {
	Analysis  ChangeAnalysis `json:"analysis"`
	Saved     bool           `json:"saved"`               // a remote write happened now
	Debounced bool           `json:"debounced,omitempty"` // write deferred to the debounce window
}
