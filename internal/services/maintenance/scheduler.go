// Package maintenance runs the periodic upkeep pipeline: a health check
// with corrective warming, queue and history cleanup, cache value-log GC
// and a tuning-suggestion pass. Every run is persisted as a report.
package maintenance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/repset/warmup/internal/common"
	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/models"
	"github.com/repset/warmup/internal/services/health"
	"github.com/repset/warmup/internal/services/ops"
	"github.com/repset/warmup/internal/services/warming"
)

// Pipeline task names as they appear in reports.
const (
	taskHealthCheck       = "health_check"
	taskCorrectiveWarming = "corrective_warming"
	taskQueueMaintenance  = "queue_maintenance"
	taskMemoryCleanup     = "memory_cleanup"
	taskOptimization      = "optimization"
)

// Thresholds for the optimization pass.
const (
	minTuningEvents      = 5
	lowSuccessRate       = 70.0
	lowHitRate           = 60.0
	busyQueueUtilization = 0.75
)

// Scheduler drives maintenance runs on a cron interval. Ticks never overlap;
// a tick that lands while the previous run is still working is skipped and
// counted. Implements interfaces.MaintenanceService.
type Scheduler struct {
	warmingCfg common.WarmingConfig
	warmer     *warming.Service
	monitor    *health.Monitor
	cache      interfaces.CacheStorage
	reports    interfaces.ReportStorage
	events     interfaces.EventService
	logger     arbor.ILogger

	mu           sync.Mutex
	config       common.MaintenanceConfig
	quiet        common.QuietWindow
	cron         *cron.Cron
	running      bool
	isProcessing bool

	lastRun        time.Time
	lastRunID      string
	lastError      string
	runsCompleted  int64
	runsFailed     int64
	skippedQuiet   int64
	skippedLoad    int64
	skippedOverlap int64
}

var _ interfaces.MaintenanceService = (*Scheduler)(nil)

// NewScheduler creates a maintenance scheduler. The quiet-hours window is
// parsed up front so a bad configuration fails at startup, not at 22:00.
func NewScheduler(config common.MaintenanceConfig, warmingCfg common.WarmingConfig, warmer *warming.Service, monitor *health.Monitor, cache interfaces.CacheStorage, reports interfaces.ReportStorage, events interfaces.EventService, logger arbor.ILogger) (*Scheduler, error) {
	quiet, err := common.ParseQuietWindow(config.QuietHoursStart, config.QuietHoursEnd)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		warmingCfg: warmingCfg,
		warmer:     warmer,
		monitor:    monitor,
		cache:      cache,
		reports:    reports,
		events:     events,
		logger:     logger,
		config:     config,
		quiet:      quiet,
	}, nil
}

// Start begins interval scheduling. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.config.Interval), s.tick); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	c.Start()

	s.cron = c
	s.running = true

	s.logger.Info().
		Str("interval", s.config.Interval.String()).
		Str("quiet_hours", s.quiet.String()).
		Msg("Maintenance scheduler started")

	return nil
}

// Stop halts scheduling. A run already in flight finishes on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}

	s.cron.Stop()
	s.cron = nil
	s.running = false

	s.logger.Info().Msg("Maintenance scheduler stopped")
}

// Restart stops and starts the scheduler with the current configuration.
func (s *Scheduler) Restart() error {
	s.Stop()
	return s.Start()
}

// ForceRun executes the pipeline immediately, bypassing quiet hours and the
// high-load gate. Fails when a run is already in flight.
func (s *Scheduler) ForceRun(ctx context.Context) (*models.MaintenanceReport, error) {
	return s.run(ctx, true)
}

// UpdateConfig applies a partial configuration change; nil fields keep their
// current values. An interval change restarts the running schedule.
func (s *Scheduler) UpdateConfig(update models.MaintenanceConfigUpdate) error {
	s.mu.Lock()

	cfg := s.config
	quiet := s.quiet
	intervalChanged := false

	if update.Interval != nil {
		d, err := time.ParseDuration(*update.Interval)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("invalid interval %q: %w", *update.Interval, err)
		}
		if d < time.Second {
			s.mu.Unlock()
			return fmt.Errorf("interval must be at least 1s, got %s", d)
		}
		intervalChanged = d != cfg.Interval.Std()
		cfg.Interval = common.Duration(d)
	}

	if update.QuietHoursStart != nil || update.QuietHoursEnd != nil {
		start, end := cfg.QuietHoursStart, cfg.QuietHoursEnd
		if update.QuietHoursStart != nil {
			start = *update.QuietHoursStart
		}
		if update.QuietHoursEnd != nil {
			end = *update.QuietHoursEnd
		}
		w, err := common.ParseQuietWindow(start, end)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		cfg.QuietHoursStart, cfg.QuietHoursEnd = start, end
		quiet = w
	}

	if update.HighLoadThreshold != nil {
		v := *update.HighLoadThreshold
		if v <= 0 || v > 1 {
			s.mu.Unlock()
			return fmt.Errorf("high_load_threshold must be in (0,1], got %v", v)
		}
		cfg.HighLoadThreshold = v
	}

	if update.StaleAfter != nil {
		d, err := time.ParseDuration(*update.StaleAfter)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("invalid stale_after %q: %w", *update.StaleAfter, err)
		}
		if d <= 0 {
			s.mu.Unlock()
			return fmt.Errorf("stale_after must be positive, got %s", d)
		}
		cfg.StaleAfter = common.Duration(d)
	}

	s.config = cfg
	s.quiet = quiet
	restart := intervalChanged && s.running
	s.mu.Unlock()

	s.logger.Info().
		Str("interval", cfg.Interval.String()).
		Str("quiet_hours", quiet.String()).
		Float64("high_load_threshold", cfg.HighLoadThreshold).
		Msg("Maintenance configuration updated")

	if restart {
		return s.Restart()
	}
	return nil
}

// GetStatus reports scheduler state and run counters.
func (s *Scheduler) GetStatus() models.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.SchedulerStatus{
		Running:        s.running,
		Interval:       s.config.Interval.String(),
		QuietHours:     s.quiet.String(),
		HighLoadLimit:  s.config.HighLoadThreshold,
		LastRun:        s.lastRun,
		LastRunID:      s.lastRunID,
		RunsCompleted:  s.runsCompleted,
		RunsFailed:     s.runsFailed,
		SkippedQuiet:   s.skippedQuiet,
		SkippedLoad:    s.skippedLoad,
		SkippedOverlap: s.skippedOverlap,
		LastError:      s.lastError,
	}
}

func (s *Scheduler) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered from panic in maintenance run")
		}
	}()

	if _, err := s.run(context.Background(), false); err != nil {
		s.logger.Warn().Err(err).Msg("Maintenance run failed")
	}
}

// run applies the skip gates, then executes the pipeline. Skipped timer
// ticks return (nil, nil); a forced run that cannot start returns an error
// so the caller gets feedback.
func (s *Scheduler) run(ctx context.Context, forced bool) (*models.MaintenanceReport, error) {
	s.mu.Lock()

	if s.isProcessing {
		s.skippedOverlap++
		s.mu.Unlock()
		if forced {
			return nil, fmt.Errorf("maintenance run already in progress")
		}
		s.logger.Debug().Msg("Previous maintenance run still in flight, skipping tick")
		return nil, nil
	}

	if !forced {
		if s.quiet.Contains(time.Now()) {
			s.skippedQuiet++
			s.mu.Unlock()
			s.logger.Debug().
				Str("quiet_hours", s.quiet.String()).
				Msg("Inside quiet hours, skipping maintenance")
			return nil, nil
		}
		if status := s.warmer.QueueStatus(); status.Utilization >= s.config.HighLoadThreshold {
			s.skippedLoad++
			s.mu.Unlock()
			s.logger.Debug().
				Float64("utilization", status.Utilization).
				Float64("threshold", s.config.HighLoadThreshold).
				Msg("System under high load, skipping maintenance")
			return nil, nil
		}
	}

	s.isProcessing = true
	cfg := s.config
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isProcessing = false
		s.mu.Unlock()
	}()

	return s.pipeline(ctx, cfg, forced)
}

func (s *Scheduler) pipeline(ctx context.Context, cfg common.MaintenanceConfig, forced bool) (*models.MaintenanceReport, error) {
	runID := uuid.New().String()
	runLogger := s.logger.WithCorrelationId(runID)
	started := time.Now()

	report := &models.MaintenanceReport{
		RunID:     runID,
		StartedAt: started,
		Forced:    forced,
	}

	runLogger.Info().Bool("forced", forced).Msg("Maintenance run started")

	var snapshot models.HealthSnapshot
	s.task(report, taskHealthCheck, func() (string, error) {
		snapshot = s.monitor.Snapshot()
		report.Health = snapshot
		return fmt.Sprintf("score %.1f (%s)", snapshot.Score, snapshot.Status), nil
	})

	plan := s.monitor.DetermineWarmingStrategy(snapshot)
	report.Warming = plan
	if plan.Triggered {
		s.task(report, taskCorrectiveWarming, func() (string, error) {
			accepted, err := s.enqueuePlan(ctx, runLogger, runID, plan)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d subjects enqueued (%s)", accepted, plan.Strategy), nil
		})
	} else {
		s.skipTask(report, taskCorrectiveWarming, plan.Reason)
	}

	s.task(report, taskQueueMaintenance, func() (string, error) {
		dropped := s.warmer.DropStale(cfg.StaleAfter.Std())
		return fmt.Sprintf("%d stale requests dropped", dropped), nil
	})

	s.task(report, taskMemoryCleanup, func() (string, error) {
		pruned := s.warmer.PruneHistory(cfg.HistoryRetention.Std())
		ran, err := s.cache.RunGC()
		if err != nil {
			return "", fmt.Errorf("value-log gc: %w", err)
		}
		if ran {
			return fmt.Sprintf("%d events pruned, value-log gc reclaimed space", pruned), nil
		}
		return fmt.Sprintf("%d events pruned, value-log gc had nothing to do", pruned), nil
	})

	s.task(report, taskOptimization, func() (string, error) {
		report.Suggestions = s.configSuggestions(snapshot)
		return fmt.Sprintf("%d suggestions", len(report.Suggestions)), nil
	})

	report.Queue = s.warmer.QueueStatus()
	report.CompletedAt = time.Now()
	report.Duration = report.CompletedAt.Sub(started)

	if err := s.persist(report, cfg.ReportRetention); err != nil {
		s.mu.Lock()
		s.runsFailed++
		s.lastError = err.Error()
		s.mu.Unlock()
		runLogger.Error().Err(err).Msg("Failed to persist maintenance report")
		return report, err
	}

	taskErr := firstTaskError(report.Tasks)
	s.mu.Lock()
	s.runsCompleted++
	s.lastRun = report.CompletedAt
	s.lastRunID = runID
	s.lastError = taskErr
	s.mu.Unlock()

	_ = s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventMaintenanceCompleted,
		Payload: map[string]interface{}{
			"run_id":   runID,
			"status":   string(snapshot.Status),
			"score":    snapshot.Score,
			"duration": report.Duration.String(),
			"forced":   forced,
		},
	})

	runLogger.Info().
		Dur("duration", report.Duration).
		Str("status", string(snapshot.Status)).
		Int("tasks", len(report.Tasks)).
		Int("suggestions", len(report.Suggestions)).
		Msg("Maintenance run completed")

	return report, nil
}

// enqueuePlan pushes the corrective plan through a tracked operation so the
// run log carries attempt history. Duplicate-suppressed subjects are already
// covered by the queue and do not count as failures.
func (s *Scheduler) enqueuePlan(ctx context.Context, runLogger arbor.ILogger, runID string, plan models.WarmingPlan) (int, error) {
	executor := ops.NewExecutor(ops.NewTracker(runLogger), runLogger)

	result, err := executor.ExecuteWithRetry(ctx, taskCorrectiveWarming, func(ctx context.Context) (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		accepted := 0
		for _, phase := range plan.Phases {
			for _, subject := range phase.Subjects {
				res := s.warmer.EnqueueWarming(subject, phase.Priority, map[string]string{
					warming.TriggerMetadataKey: warming.TriggerCorrective,
					"run_id":                   runID,
					"strategy":                 string(plan.Strategy),
				})
				if res.Accepted {
					accepted++
				}
			}
		}
		return accepted, nil
	}, runID, ops.DefaultRetryOptions())
	if err != nil {
		return 0, err
	}

	count, _ := result.(int)
	return count, nil
}

// configSuggestions derives tuning deltas from the current snapshot. Nothing
// is applied automatically; the deltas ride the report for the operator.
func (s *Scheduler) configSuggestions(snapshot models.HealthSnapshot) []models.ConfigSuggestion {
	var suggestions []models.ConfigSuggestion

	recent := s.warmer.Stats(models.StatsOptions{
		Category: models.CategorySubjectWarm,
		Since:    time.Now().Add(-time.Hour),
	})
	if recent.TotalEvents >= minTuningEvents && recent.SuccessRate < lowSuccessRate {
		suggestions = append(suggestions, models.ConfigSuggestion{
			Setting:   "warming.max_retries",
			Current:   strconv.Itoa(s.warmingCfg.MaxRetries),
			Suggested: strconv.Itoa(s.warmingCfg.MaxRetries + 1),
			Reason:    fmt.Sprintf("subject warming success rate %.0f%% over the last hour", recent.SuccessRate),
		})
	}

	if snapshot.HitRate < lowHitRate {
		suggestions = append(suggestions, models.ConfigSuggestion{
			Setting:   "warming.log_ttl",
			Current:   s.warmingCfg.LogTTL.String(),
			Suggested: (2 * s.warmingCfg.LogTTL).String(),
			Reason:    fmt.Sprintf("hit rate %.0f%%, warmed records expire before they are read", snapshot.HitRate),
		})
	}

	if snapshot.QueueUtilization >= busyQueueUtilization {
		suggestions = append(suggestions, models.ConfigSuggestion{
			Setting:   "warming.max_queue_size",
			Current:   strconv.Itoa(s.warmingCfg.MaxQueueSize),
			Suggested: strconv.Itoa(2 * s.warmingCfg.MaxQueueSize),
			Reason:    fmt.Sprintf("queue %.0f%% full at maintenance time", 100*snapshot.QueueUtilization),
		})
	}

	return suggestions
}

// persist stores the report and trims storage to the retention count. A
// failed prune is not fatal; the report itself made it to disk.
func (s *Scheduler) persist(report *models.MaintenanceReport, retention int) error {
	if err := s.reports.Save(report); err != nil {
		return fmt.Errorf("failed to save maintenance report: %w", err)
	}
	if retention > 0 {
		if _, err := s.reports.Prune(retention); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to prune old maintenance reports")
		}
	}
	return nil
}

func (s *Scheduler) task(report *models.MaintenanceReport, name string, fn func() (string, error)) {
	started := time.Now()
	detail, err := fn()

	result := models.TaskResult{
		Name:     name,
		Status:   models.TaskStatusCompleted,
		Duration: time.Since(started),
		Detail:   detail,
	}
	if err != nil {
		result.Status = models.TaskStatusFailed
		result.Error = err.Error()
	}
	report.Tasks = append(report.Tasks, result)
}

func (s *Scheduler) skipTask(report *models.MaintenanceReport, name, detail string) {
	report.Tasks = append(report.Tasks, models.TaskResult{
		Name:   name,
		Status: models.TaskStatusSkipped,
		Detail: detail,
	})
}

func firstTaskError(tasks []models.TaskResult) string {
	for _, t := range tasks {
		if t.Status == models.TaskStatusFailed {
			return fmt.Sprintf("%s: %s", t.Name, t.Error)
		}
	}
	return ""
}
