// Package changes classifies record deltas into save strategies.
package changes

import (
	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
)

// MetadataFields are the scalar workout fields compared for metadata
// changes. Names follow the remote schema.
var MetadataFields = []string{"name", "completed", "duration", "notes", "date", "completedDate"}

// IsMetadataField reports whether the field participates in metadata change
// detection.
func IsMetadataField(field string) bool {
	for _, f := range MetadataFields {
		if f == field {
			return true
		}
	}
	return false
}

// Detector diffs record snapshots. It is pure: no I/O, inputs never mutated,
// and malformed input degrades to the full-save fallback instead of an error.
type Detector struct {
	logger arbor.ILogger
}

// NewDetector creates a change detector.
func NewDetector(logger arbor.ILogger) *Detector {
	return &Detector{logger: logger}
}

// DetectChanges classifies the delta between two snapshots of a record.
// A nil prev means a new record. The returned analysis always carries a
// usable SaveStrategy.
func (d *Detector) DetectChanges(prev, curr *models.RecordSnapshot) models.ChangeAnalysis {
	if curr == nil {
		d.logger.Warn().Msg("Change detection fallback: current snapshot is nil")
		return fallbackAnalysis()
	}

	if prev == nil {
		return d.analyzeNewRecord(curr)
	}

	metadataChanges := diffMetadata(prev.Metadata, curr.Metadata)
	exerciseChanges, structural := diffExercises(prev.Exercises, curr.Exercises)

	analysis := models.ChangeAnalysis{
		HasMetadataChanges: len(metadataChanges) > 0,
		HasExerciseChanges: len(exerciseChanges) > 0,
		MetadataChanges:    metadataChanges,
		ExerciseChanges:    exerciseChanges,
		Summary: models.ChangeSummary{
			HasStructuralChanges: structural,
			ExerciseCount:        len(curr.Exercises),
		},
	}

	switch {
	case structural:
		analysis.SaveStrategy = models.SaveStrategyFullSave
	case analysis.HasMetadataChanges && analysis.HasExerciseChanges:
		analysis.SaveStrategy = models.SaveStrategyFullSave
	case analysis.HasMetadataChanges:
		analysis.SaveStrategy = models.SaveStrategyMetadataOnly
	case analysis.HasExerciseChanges:
		analysis.SaveStrategy = models.SaveStrategyExerciseOnly
	default:
		// No detected diff still saves: external state may have moved
		// independently of these two snapshots.
		analysis.SaveStrategy = models.SaveStrategyFullSave
	}

	return analysis
}

// analyzeNewRecord classifies a record with no previous snapshot. Strategy
// follows which sides are populated; structural tags do not force full-save
// here because everything in a new record is an addition.
func (d *Detector) analyzeNewRecord(curr *models.RecordSnapshot) models.ChangeAnalysis {
	var metadataChanges []models.FieldChange
	for _, field := range MetadataFields {
		if val, ok := lookup(curr.Metadata, field); ok {
			metadataChanges = append(metadataChanges, models.FieldChange{
				Field: field,
				Kind:  models.ChangeKindAdded,
				To:    val,
			})
		}
	}

	var exerciseChanges []models.ExerciseChange
	for _, ex := range curr.Exercises {
		exerciseChanges = append(exerciseChanges, models.ExerciseChange{
			ExerciseID: ex.ExerciseID,
			Tags:       []models.ExerciseChangeTag{models.TagExerciseAdded},
		})
	}

	analysis := models.ChangeAnalysis{
		HasMetadataChanges: len(metadataChanges) > 0,
		HasExerciseChanges: len(exerciseChanges) > 0,
		MetadataChanges:    metadataChanges,
		ExerciseChanges:    exerciseChanges,
		Summary: models.ChangeSummary{
			IsNewWorkout:  true,
			ExerciseCount: len(curr.Exercises),
		},
	}

	switch {
	case analysis.HasMetadataChanges && analysis.HasExerciseChanges:
		analysis.SaveStrategy = models.SaveStrategyFullSave
	case analysis.HasExerciseChanges:
		analysis.SaveStrategy = models.SaveStrategyExerciseOnly
	case analysis.HasMetadataChanges:
		analysis.SaveStrategy = models.SaveStrategyMetadataOnly
	default:
		d.logger.Warn().Msg("Change detection fallback: snapshot has no metadata or exercises")
		analysis.SaveStrategy = models.SaveStrategyFullSave
		analysis.Summary.FallbackUsed = true
	}

	return analysis
}

// RequiresImmediateSave reports whether the analysis demands a synchronous
// save: true exactly when metadata changed.
func RequiresImmediateSave(a models.ChangeAnalysis) bool {
	return a.HasMetadataChanges
}

// CanUseDebouncedSave reports whether the save may ride the debounce window:
// only exercise values changed and nothing structural.
func CanUseDebouncedSave(a models.ChangeAnalysis) bool {
	return a.HasExerciseChanges && !a.HasMetadataChanges && !a.Summary.HasStructuralChanges
}

func fallbackAnalysis() models.ChangeAnalysis {
	return models.ChangeAnalysis{
		SaveStrategy: models.SaveStrategyFullSave,
		Summary:      models.ChangeSummary{FallbackUsed: true},
	}
}

// lookup resolves key presence so a nil value stays distinct from an absent
// key.
func lookup(m map[string]interface{}, field string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	val, ok := m[field]
	return val, ok
}

func diffMetadata(prev, curr map[string]interface{}) []models.FieldChange {
	var fieldChanges []models.FieldChange

	for _, field := range MetadataFields {
		prevVal, prevOK := lookup(prev, field)
		currVal, currOK := lookup(curr, field)

		switch {
		case !prevOK && !currOK:
		case !prevOK:
			fieldChanges = append(fieldChanges, models.FieldChange{
				Field: field,
				Kind:  models.ChangeKindAdded,
				To:    currVal,
			})
		case !currOK:
			fieldChanges = append(fieldChanges, models.FieldChange{
				Field: field,
				Kind:  models.ChangeKindRemoved,
				From:  prevVal,
			})
		case !ValueEqual(prevVal, currVal):
			fieldChanges = append(fieldChanges, models.FieldChange{
				Field: field,
				Kind:  models.ChangeKindModified,
				From:  prevVal,
				To:    currVal,
			})
		}
	}

	return fieldChanges
}

// diffExercises matches entries by identity key. Unmatched entries that
// share an order position are an in-place identity change; the rest are adds
// and removes. Returns the changes and whether any of them are structural.
func diffExercises(prev, curr []models.ExerciseEntry) ([]models.ExerciseChange, bool) {
	prevByID := indexByID(prev)
	currByID := indexByID(curr)

	structural := false
	var exerciseChanges []models.ExerciseChange

	for _, c := range curr {
		p, ok := prevByID[c.ExerciseID]
		if !ok {
			continue
		}

		var tags []models.ExerciseChangeTag
		if !intsEqual(p.Reps, c.Reps) {
			tags = append(tags, models.TagRepsChanged)
		}
		if !floatsEqual(p.Weights, c.Weights) {
			tags = append(tags, models.TagWeightsChanged)
		}
		if !boolsEqual(p.Completed, c.Completed) {
			tags = append(tags, models.TagCompletedChanged)
		}
		if p.Bodyweight != c.Bodyweight {
			tags = append(tags, models.TagBodyweightChanged)
		}
		if p.Order != c.Order {
			tags = append(tags, models.TagOrderChanged)
			structural = true
		}

		if len(tags) > 0 {
			exerciseChanges = append(exerciseChanges, models.ExerciseChange{
				ExerciseID: c.ExerciseID,
				Tags:       tags,
			})
		}
	}

	// Unmatched previous entries by order position, for identity-swap
	// detection.
	unmatchedPrevByOrder := make(map[int]string)
	for _, p := range prev {
		if _, ok := currByID[p.ExerciseID]; !ok {
			unmatchedPrevByOrder[p.Order] = p.ExerciseID
		}
	}

	swallowed := make(map[string]bool)
	for _, c := range curr {
		if _, ok := prevByID[c.ExerciseID]; ok {
			continue
		}

		if replacedID, ok := unmatchedPrevByOrder[c.Order]; ok && !swallowed[replacedID] {
			swallowed[replacedID] = true
			exerciseChanges = append(exerciseChanges, models.ExerciseChange{
				ExerciseID: c.ExerciseID,
				Tags:       []models.ExerciseChangeTag{models.TagExerciseIDChanged},
			})
		} else {
			exerciseChanges = append(exerciseChanges, models.ExerciseChange{
				ExerciseID: c.ExerciseID,
				Tags:       []models.ExerciseChangeTag{models.TagExerciseAdded},
			})
		}
		structural = true
	}

	for _, p := range prev {
		if _, ok := currByID[p.ExerciseID]; ok {
			continue
		}
		if swallowed[p.ExerciseID] {
			continue
		}
		exerciseChanges = append(exerciseChanges, models.ExerciseChange{
			ExerciseID: p.ExerciseID,
			Tags:       []models.ExerciseChangeTag{models.TagExerciseRemoved},
		})
		structural = true
	}

	return exerciseChanges, structural
}

// indexByID keys entries by identity; on duplicate ids the last entry wins,
// matching the degrade-not-raise policy for malformed input.
func indexByID(entries []models.ExerciseEntry) map[string]models.ExerciseEntry {
	index := make(map[string]models.ExerciseEntry, len(entries))
	for _, e := range entries {
		index[e.ExerciseID] = e
	}
	return index
}
