package app

import (
	"context"
	"fmt"

	"github.com/repset/warmup/internal/common"
	"github.com/repset/warmup/internal/handlers"
	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/logs"
	"github.com/repset/warmup/internal/services/changes"
	"github.com/repset/warmup/internal/services/conflict"
	"github.com/repset/warmup/internal/services/events"
	"github.com/repset/warmup/internal/services/health"
	"github.com/repset/warmup/internal/services/maintenance"
	"github.com/repset/warmup/internal/services/realtime"
	"github.com/repset/warmup/internal/services/records"
	"github.com/repset/warmup/internal/services/remote"
	"github.com/repset/warmup/internal/services/seeding"
	"github.com/repset/warmup/internal/services/warming"
	"github.com/repset/warmup/internal/storage"
	"github.com/ternarybob/arbor"
)

// App is the composition root. It owns construction, startup and shutdown
// of every engine component; nothing in this codebase starts background
// work as a side effect of being imported.
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Event bus
	EventService interfaces.EventService

	// Remote record API client
	RecordService interfaces.RecordService

	// Warming pipeline. Queue and stats are held concretely so the health
	// monitor observes the same instances the executor mutates.
	WarmingQueue   *warming.QueueManager
	WarmingStats   *warming.StatsTracker
	WarmingService interfaces.WarmingService

	// Change detection and conflict resolution
	Detector *changes.Detector
	Resolver *conflict.Resolver

	// Save orchestration and realtime reconciliation
	WorkoutService interfaces.WorkoutService
	Subscriber     *realtime.Subscriber

	// Health and maintenance
	HealthService      interfaces.HealthService
	MaintenanceService interfaces.MaintenanceService

	// Seeding
	SeedService interfaces.SeedService

	// Dashboard log tail
	LogBuffer *logs.Buffer

	// HTTP handlers
	APIHandler         *handlers.APIHandler
	WarmingHandler     *handlers.WarmingHandler
	HealthHandler      *handlers.HealthHandler
	MaintenanceHandler *handlers.MaintenanceHandler
	RecordHandler      *handlers.RecordHandler
	SeedHandler        *handlers.SeedHandler
	LogHandler         *handlers.LogHandler
}

// New initializes the application with all dependencies. Background loops
// are not started here; call Start once construction succeeds.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info().
		Str("remote", cfg.Remote.BaseURL).
		Str("push_channel", cfg.Remote.WSURL).
		Bool("maintenance_auto_start", cfg.Maintenance.AutoStart).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all engine services in dependency order:
// events -> remote client -> warming (queue, stats, executor) ->
// detection/resolution -> records -> health -> maintenance -> realtime.
func (a *App) initServices() error {
	a.LogBuffer = logs.NewBuffer(500, a.Config.Logging.Level, a.Logger)
	a.Logger.SetChannel("context", a.LogBuffer.GetChannel())
	a.LogBuffer.Start()

	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}
	a.Logger.Debug().Msg("Event service initialized")

	a.RecordService = remote.NewClient(
		a.Config.Remote.APIKey,
		remote.WithBaseURL(a.Config.Remote.BaseURL),
		remote.WithTimeout(a.Config.Remote.Timeout.Std()),
		remote.WithRateLimit(a.Config.Remote.RateLimit),
		remote.WithLogger(a.Logger),
	)
	a.Logger.Debug().Str("base_url", a.Config.Remote.BaseURL).Msg("Record service client initialized")

	cache := a.StorageManager.CacheStorage()

	a.WarmingQueue = warming.NewQueueManager(
		a.Config.Warming.MaxQueueSize,
		a.Config.Warming.MaxConcurrent,
		a.Logger,
	)
	a.WarmingStats = warming.NewStatsTracker(
		a.Config.Warming.MaxHistorySize,
		a.Config.Warming.PerReadCost,
		a.Logger,
	)
	warmer := warming.NewService(
		a.Config.Warming,
		a.WarmingQueue,
		a.WarmingStats,
		a.RecordService,
		cache,
		a.EventService,
		a.Logger,
	)
	a.WarmingService = warmer
	a.Logger.Debug().
		Int("max_queue_size", a.Config.Warming.MaxQueueSize).
		Int("max_concurrent", a.Config.Warming.MaxConcurrent).
		Msg("Warming service initialized")

	a.Detector = changes.NewDetector(a.Logger)
	a.Resolver = conflict.NewResolver(
		a.Config.Conflict.ProtectionWindow.Std(),
		a.Config.Conflict.ConcurrentWindow.Std(),
		a.Logger,
	)

	a.WorkoutService = records.NewService(
		a.Config.Records,
		a.RecordService,
		cache,
		a.Resolver,
		a.WarmingStats,
		a.EventService,
		a.Logger,
	)
	a.Logger.Debug().Msg("Records service initialized")

	monitor := health.NewMonitor(a.WarmingQueue, a.WarmingStats, a.EventService, a.Logger)
	a.HealthService = monitor

	scheduler, err := maintenance.NewScheduler(
		a.Config.Maintenance,
		a.Config.Warming,
		warmer,
		monitor,
		cache,
		a.StorageManager.ReportStorage(),
		a.EventService,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize maintenance scheduler: %w", err)
	}
	a.MaintenanceService = scheduler
	a.Logger.Debug().
		Dur("interval", a.Config.Maintenance.Interval.Std()).
		Msg("Maintenance scheduler initialized")

	a.Subscriber = realtime.NewSubscriber(
		a.Config.Remote,
		a.WorkoutService,
		cache,
		a.EventService,
		a.Logger,
	)

	a.SeedService = seeding.NewService(a.RecordService, a.Logger)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.WarmingHandler = handlers.NewWarmingHandler(a.WarmingService, a.Logger)
	a.HealthHandler = handlers.NewHealthHandler(a.HealthService, a.Logger)
	a.MaintenanceHandler = handlers.NewMaintenanceHandler(
		a.MaintenanceService,
		a.StorageManager.ReportStorage(),
		a.Logger,
	)
	a.RecordHandler = handlers.NewRecordHandler(a.WorkoutService, a.Detector, a.Logger)
	a.SeedHandler = handlers.NewSeedHandler(a.SeedService, a.Config.Seeding.ScenarioPath, a.Logger)
	a.LogHandler = handlers.NewLogHandler(a.LogBuffer, a.Logger)

	a.Logger.Debug().Msg("HTTP handlers initialized")
	return nil
}

// Start launches the background loops: the warming dispatcher, the push
// update subscriber and (when configured) the maintenance scheduler.
func (a *App) Start() error {
	a.ctx, a.cancelCtx = context.WithCancel(context.Background())

	common.SafeGoWithContext(a.ctx, a.Logger, "warming-dispatcher", func() {
		a.WarmingService.Run(a.ctx)
	})

	common.SafeGoWithContext(a.ctx, a.Logger, "realtime-subscriber", func() {
		if err := a.Subscriber.Run(a.ctx); err != nil && a.ctx.Err() == nil {
			a.Logger.Error().Err(err).Msg("Realtime subscriber stopped with error")
		}
	})

	if a.Config.Maintenance.AutoStart {
		if err := a.MaintenanceService.Start(); err != nil {
			return fmt.Errorf("failed to start maintenance scheduler: %w", err)
		}
		a.Logger.Debug().Msg("Maintenance scheduler started")
	}

	return nil
}

// Close stops background work and releases resources in reverse dependency
// order. Pending debounced saves are flushed before the remote client and
// cache go away.
func (a *App) Close() error {
	if a.MaintenanceService != nil {
		a.MaintenanceService.Stop()
	}

	if a.cancelCtx != nil {
		a.Logger.Info().Msg("Cancelling background goroutines")
		a.cancelCtx()
	}

	if a.WorkoutService != nil {
		if err := a.WorkoutService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close records service")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.WarmingStats != nil {
		a.WarmingStats.Cleanup()
	}

	if a.LogBuffer != nil {
		a.LogBuffer.Stop()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
