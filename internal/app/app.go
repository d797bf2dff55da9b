package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/collectors"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/dispatch"
	"github.com/ternarybob/sonar/internal/engine"
	"github.com/ternarybob/sonar/internal/handlers"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/services/events"
	"github.com/ternarybob/sonar/internal/services/scheduler"
	"github.com/ternarybob/sonar/internal/services/scoring"
	"github.com/ternarybob/sonar/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Core services
	EventService     interfaces.EventService
	Registry         *collectors.Registry
	ExecutionEngine  *engine.Executor
	Sweep            *engine.Sweep
	ScoringService   interfaces.ScoringService
	Dispatcher       interfaces.JobDispatcher
	SchedulerService interfaces.SchedulerService

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	WSHandler        *handlers.WebSocketHandler
	JobHandler       *handlers.JobHandler
	RunHandler       *handlers.RunHandler
	QueryHandler     *handlers.QueryHandler
	CollectorHandler *handlers.CollectorHandler
	StatusHandler    *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	// Runs left queued or running by a previous process can never make
	// progress; fail them before the scheduler starts materializing new ones
	failed, err := app.SchedulerService.CleanupOrphanedRuns(context.Background())
	if err != nil {
		logger.Warn().Err(err).Msg("Orphaned run cleanup failed")
	} else if failed > 0 {
		logger.Info().Int("runs", failed).Msg("Failed orphaned runs from previous process")
	}

	logger.Info().
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Bool("sweep_enabled", cfg.Sweep.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the Badger storage layer and loads seed data
func (a *App) initStorage() error {
	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Seed collector configs and brand queries from files. Failures are
	// non-fatal: an operator can create everything via the API instead.
	if manager, ok := storageManager.(*badger.Manager); ok {
		ctx := context.Background()
		if err := manager.LoadCollectorConfigsFromFiles(ctx, a.Config.Engines.SeedDir); err != nil {
			a.Logger.Warn().Err(err).Str("dir", a.Config.Engines.SeedDir).Msg("Failed to load collector configs from files")
		}
		if err := manager.LoadQueriesFromFiles(ctx, a.Config.Queries.SeedDir); err != nil {
			a.Logger.Warn().Err(err).Str("dir", a.Config.Queries.SeedDir).Msg("Failed to load queries from files")
		}
	}

	return nil
}

// initServices wires the event bus, provider registry, execution engine,
// dispatcher, and scheduler
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)

	a.Registry = collectors.NewRegistry(a.Config, a.Logger)
	a.ExecutionEngine = engine.NewExecutor(a.StorageManager, a.Registry, a.EventService, a.Config, a.Logger)
	a.Sweep = engine.NewSweep(a.StorageManager, a.Registry, a.EventService, a.Config, a.Logger)

	// Scoring is an external collaborator; without a base URL scoring-type
	// runs fail at the scoring stage rather than at startup
	if a.Config.Scoring.BaseURL != "" {
		client, err := scoring.NewClient(a.Config.Scoring, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create scoring client: %w", err)
		}
		a.ScoringService = client
	} else {
		a.Logger.Warn().Msg("Scoring base URL not configured, scoring runs will fail")
	}

	a.Dispatcher = dispatch.NewDispatcher(a.StorageManager, a.ExecutionEngine, a.ScoringService, a.EventService, a.Logger)
	a.SchedulerService = scheduler.NewService(a.StorageManager, a.Dispatcher, a.EventService, a.Config, a.Logger)

	return nil
}

// initHandlers constructs the HTTP handler layer
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.StorageManager.ScheduledJobStorage(), a.StorageManager.JobRunStorage(), a.SchedulerService, a.Logger)
	a.RunHandler = handlers.NewRunHandler(a.StorageManager.JobRunStorage(), a.StorageManager.ResultStorage(), a.Logger)
	a.QueryHandler = handlers.NewQueryHandler(a.StorageManager.QueryStorage(), a.Logger)
	a.CollectorHandler = handlers.NewCollectorHandler(a.StorageManager.CollectorStorage(), a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.StorageManager, a.SchedulerService, a.Logger)
}

// Start launches the background loops: the cron scheduler and the async
// result sweep. Both are optional per config.
func (a *App) Start() error {
	if a.Config.Scheduler.Enabled {
		if err := a.SchedulerService.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		a.Logger.Info().Msg("Scheduler disabled by config")
	}

	if a.Config.Sweep.Enabled {
		if err := a.Sweep.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start sweep: %w", err)
		}
	} else {
		a.Logger.Info().Msg("Async result sweep disabled by config")
	}

	return nil
}

// Close shuts down background loops and releases resources. Safe to call
// after a partial startup.
func (a *App) Close() {
	if a.SchedulerService != nil && a.SchedulerService.IsRunning() {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}

	if a.Sweep != nil {
		a.Sweep.Stop()
	}

	if a.EventService != nil {
		if closer, ok := a.EventService.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("Event service close failed")
			}
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}

	a.Logger.Info().Msg("Application stopped")
}
