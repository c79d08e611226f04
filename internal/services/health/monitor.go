// Package health scores cache effectiveness and plans corrective warming.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/models"
	"github.com/repset/warmup/internal/services/warming"
	"github.com/ternarybob/arbor"
)

// Score weights. Hit rate dominates: a cold cache is the failure mode this
// engine exists to prevent.
const (
	weightHitRate        = 0.5
	weightWarmingSuccess = 0.3
	weightQueueHeadroom  = 0.2
)

// Status thresholds on the weighted score.
const (
	healthyThreshold = 80.0
	warningThreshold = 50.0
)

// Hit-rate floors override the weighted score: below warning the cache is
// underperforming no matter how smooth the queue looks, and at or below
// critical the weighted score may still read fine while users wait on
// remote reads.
const (
	hitRateWarningFloor  = 50.0
	hitRateCriticalFloor = 45.0
)

// Subjects covered by corrective plans.
const (
	progressiveSubjects = 9
	smartSubjects       = 5
)

// Monitor derives health snapshots from the live queue and stats instances.
// Implements interfaces.HealthService.
type Monitor struct {
	queue  *warming.QueueManager
	stats  *warming.StatsTracker
	events interfaces.EventService
	logger arbor.ILogger

	mu         sync.Mutex
	lastStatus models.HealthStatus
}

var _ interfaces.HealthService = (*Monitor)(nil)

// NewMonitor creates a health monitor observing the given queue and stats.
func NewMonitor(queue *warming.QueueManager, stats *warming.StatsTracker, events interfaces.EventService, logger arbor.ILogger) *Monitor {
	return &Monitor{
		queue:  queue,
		stats:  stats,
		events: events,
		logger: logger,
	}
}

// Snapshot computes a fresh health check. A status transition is logged and
// published as a health.changed event.
func (m *Monitor) Snapshot() models.HealthSnapshot {
	stats := m.stats.Stats(models.StatsOptions{})
	queue := m.queue.Status()

	headroom := (1 - queue.Utilization) * 100
	score := stats.HitRate*weightHitRate +
		stats.SuccessRate*weightWarmingSuccess +
		headroom*weightQueueHeadroom

	snapshot := models.HealthSnapshot{
		Score:            score,
		HitRate:          stats.HitRate,
		WarmingSuccess:   stats.SuccessRate,
		QueueUtilization: queue.Utilization,
		Issues:           []string{},
		Recommendations:  []string{},
		CheckedAt:        time.Now(),
	}

	switch {
	case score >= healthyThreshold:
		snapshot.Status = models.HealthStatusHealthy
	case score >= warningThreshold:
		snapshot.Status = models.HealthStatusWarning
	default:
		snapshot.Status = models.HealthStatusCritical
	}

	// Hit-rate floors override the weighted score.
	if stats.HitRate <= hitRateCriticalFloor {
		snapshot.Status = models.HealthStatusCritical
		snapshot.Issues = append(snapshot.Issues,
			fmt.Sprintf("cache hit rate %.1f%% at or below critical floor %.0f%%", stats.HitRate, hitRateCriticalFloor))
		snapshot.Recommendations = append(snapshot.Recommendations,
			"run progressive warming to rebuild the cache")
	} else if stats.HitRate < hitRateWarningFloor {
		if snapshot.Status == models.HealthStatusHealthy {
			snapshot.Status = models.HealthStatusWarning
		}
		snapshot.Issues = append(snapshot.Issues,
			fmt.Sprintf("cache hit rate %.1f%% below %.0f%%", stats.HitRate, hitRateWarningFloor))
		snapshot.Recommendations = append(snapshot.Recommendations,
			"warm the most active subjects")
	}

	if stats.SuccessRate < 75 {
		snapshot.Issues = append(snapshot.Issues,
			fmt.Sprintf("warming success rate %.1f%%", stats.SuccessRate))
		snapshot.Recommendations = append(snapshot.Recommendations,
			"check remote service availability and raise warming retries")
	}
	if queue.Utilization >= 0.8 {
		snapshot.Issues = append(snapshot.Issues,
			fmt.Sprintf("warming queue %.0f%% full", queue.Utilization*100))
		snapshot.Recommendations = append(snapshot.Recommendations,
			"raise max_concurrent or max_queue_size")
	}

	m.announceTransition(snapshot)
	return snapshot
}

// DetermineWarmingStrategy maps a snapshot to a corrective plan. Subjects
// come from observed warming frequency; with no history there is nothing
// sensible to warm.
func (m *Monitor) DetermineWarmingStrategy(snap models.HealthSnapshot) models.WarmingPlan {
	switch snap.Status {
	case models.HealthStatusCritical:
		subjects := m.stats.TopSubjects(progressiveSubjects)
		if len(subjects) == 0 {
			return models.WarmingPlan{
				Strategy: models.WarmingStrategyNone,
				Reason:   "critical health but no subjects observed yet",
			}
		}
		return models.WarmingPlan{
			Triggered: true,
			Strategy:  models.WarmingStrategyProgressive,
			Reason:    fmt.Sprintf("health critical (score %.1f)", snap.Score),
			Phases:    progressivePhases(subjects),
		}

	case models.HealthStatusWarning:
		subjects := m.stats.TopSubjects(smartSubjects)
		if len(subjects) == 0 {
			return models.WarmingPlan{
				Strategy: models.WarmingStrategyNone,
				Reason:   "warning health but no subjects observed yet",
			}
		}
		return models.WarmingPlan{
			Triggered: true,
			Strategy:  models.WarmingStrategySmart,
			Reason:    fmt.Sprintf("health warning (score %.1f)", snap.Score),
			Phases: []models.WarmingPhase{{
				Priority: models.PriorityNormal,
				Subjects: subjectIDs(subjects),
			}},
		}
	}

	return models.WarmingPlan{Strategy: models.WarmingStrategyNone, Reason: "healthy"}
}

// progressivePhases splits ranked subjects into three batches: the most
// frequent third at high priority, the middle at normal, the tail at low.
// Phases are listed low-first so the rebuild back-fills the queue gently;
// priority dequeue still serves the busiest subjects first.
func progressivePhases(ranked []models.SubjectCount) []models.WarmingPhase {
	ids := subjectIDs(ranked)
	third := (len(ids) + 2) / 3

	high := ids[:min(third, len(ids))]
	normal := ids[len(high):min(2*third, len(ids))]
	low := ids[len(high)+len(normal):]

	phases := make([]models.WarmingPhase, 0, 3)
	if len(low) > 0 {
		phases = append(phases, models.WarmingPhase{Priority: models.PriorityLow, Subjects: low})
	}
	if len(normal) > 0 {
		phases = append(phases, models.WarmingPhase{Priority: models.PriorityNormal, Subjects: normal})
	}
	phases = append(phases, models.WarmingPhase{Priority: models.PriorityHigh, Subjects: high})
	return phases
}

func subjectIDs(ranked []models.SubjectCount) []string {
	ids := make([]string, 0, len(ranked))
	for _, s := range ranked {
		ids = append(ids, s.SubjectID)
	}
	return ids
}

// announceTransition publishes health.changed when the status moves.
func (m *Monitor) announceTransition(snapshot models.HealthSnapshot) {
	m.mu.Lock()
	previous := m.lastStatus
	m.lastStatus = snapshot.Status
	m.mu.Unlock()

	if previous == "" || previous == snapshot.Status {
		return
	}

	m.logger.Info().
		Str("from", string(previous)).
		Str("to", string(snapshot.Status)).
		Float64("score", snapshot.Score).
		Msg("Cache health changed")

	_ = m.events.Publish(context.Background(), interfaces.Event{
		Type: interfaces.EventHealthChanged,
		Payload: map[string]interface{}{
			"from":  string(previous),
			"to":    string(snapshot.Status),
			"score": snapshot.Score,
		},
	})
}
