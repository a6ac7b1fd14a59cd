// -----------------------------------------------------------------------
// Last Modified: Wednesday, 5th November 2025 8:17:54 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/queue"
	"github.com/ternarybob/sentinel/internal/services/alerts"
	"github.com/ternarybob/sentinel/internal/services/alerts/channels"
	"github.com/ternarybob/sentinel/internal/services/analyzer"
	"github.com/ternarybob/sentinel/internal/services/cache"
	"github.com/ternarybob/sentinel/internal/services/events"
	"github.com/ternarybob/sentinel/internal/services/llm"
	"github.com/ternarybob/sentinel/internal/services/scheduler"
	"github.com/ternarybob/sentinel/internal/services/status"
	"github.com/ternarybob/sentinel/internal/storage"
	storagebadger "github.com/ternarybob/sentinel/internal/storage/badger"
	"github.com/ternarybob/sentinel/internal/workers"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *storagebadger.Manager

	// Pipeline services
	Queue           interfaces.AnalysisQueue
	CacheService    interfaces.AnalysisCache
	LLMService      interfaces.LLMService
	AnalyzerService interfaces.AnalyzerService
	Dispatcher      interfaces.AlertDispatcher
	EventService    interfaces.EventService
	WorkerPool      *workers.AnalysisWorkerPool

	// Supporting services
	StatusService    *status.Service
	SchedulerService *scheduler.Service
}

// New initializes the application with all dependencies. Nothing consumes
// from the queue until Start is called.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// 1. Storage layer (Badger)
	storageManager, err := storage.NewStorageManager(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager
	logger.Debug().
		Str("storage", "badger").
		Str("path", cfg.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// 2. Event service with log subscriber for pipeline observability
	app.EventService = events.NewService(logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, logger); err != nil {
		return nil, fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	// 3. Analysis cache shares the storage manager's Badger instance
	app.CacheService = cache.NewService(storageManager.DB().DB(), logger, cfg.Analyzer.GetCacheTTL())

	// 4. AI provider. Initialization or health failure degrades the pipeline
	// to the keyword fallback classifier instead of refusing to start.
	llmService, err := llm.NewLLMService(cfg, logger)
	if err != nil {
		app.LLMService = nil
		logger.Warn().Err(err).Msg("Failed to initialize AI provider - classification will use the fallback classifier")
		logger.Info().Msg("To enable AI classification, set ANTHROPIC_API_KEY or GEMINI_API_KEY")
	} else {
		app.LLMService = llmService
		if hcErr := llmService.HealthCheck(context.Background()); hcErr != nil {
			logger.Warn().Err(hcErr).Msg("AI provider health check failed - provider kept, analyzer will retry per message")
		} else {
			logger.Debug().Str("provider", string(cfg.LLM.DefaultProvider)).Msg("AI provider initialized and health check passed")
		}
	}

	// 5. Analyzer (cache -> provider with retries -> fallback)
	app.AnalyzerService = analyzer.NewService(&cfg.Analyzer, app.LLMService, app.CacheService, logger)

	// 6. Channel adapters and dispatcher
	adapters := buildChannelAdapters(cfg, logger)
	app.Dispatcher = alerts.NewDispatcher(&cfg.Alerts, adapters, logger)

	enabled := 0
	for _, adapter := range adapters {
		if adapter.Enabled() {
			enabled++
		}
	}
	if enabled == 0 {
		logger.Warn().Msg("No alert channels enabled - abnormal results will be persisted but not dispatched")
	} else {
		logger.Debug().Int("enabled_channels", enabled).Msg("Alert dispatcher initialized")
	}

	// 7. Durable analysis queue on the shared Badger instance
	analysisQueue, err := queue.NewBadgerQueue(storageManager.DB().DB(), logger, &cfg.Queue)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analysis queue: %w", err)
	}
	analysisQueue.SetEventService(app.EventService)
	app.Queue = analysisQueue
	logger.Debug().Str("queue_name", cfg.Queue.QueueName).Msg("Analysis queue initialized")

	// 8. Worker pool consuming the queue
	app.WorkerPool = workers.NewAnalysisWorkerPool(
		cfg,
		app.Queue,
		app.AnalyzerService,
		storageManager.MessageStorage(),
		app.Dispatcher,
		app.EventService,
		logger,
	)

	// 9. Status service for operational snapshots
	app.StatusService = status.NewService(
		app.Queue,
		app.Dispatcher,
		app.AnalyzerService,
		storageManager.MessageStorage(),
		logger,
	)

	// 10. Scheduler for cache sweeps and health probes
	app.SchedulerService = scheduler.NewService(
		&cfg.Scheduler,
		app.CacheService,
		app.StatusService,
		app.EventService,
		logger,
	)

	logger.Info().
		Int("workers", cfg.Queue.Concurrency).
		Msg("Application initialization complete")

	return app, nil
}

// buildChannelAdapters constructs every configured adapter. Disabled
// adapters are still constructed; the dispatcher skips them per alert so a
// config reload can flip them on without rewiring.
func buildChannelAdapters(cfg *common.Config, logger arbor.ILogger) []interfaces.ChannelAdapter {
	return []interfaces.ChannelAdapter{
		channels.NewSlackChannel(&cfg.Channels.Slack, &cfg.Alerts, logger),
		channels.NewEmailChannel(&cfg.Channels.Email, &cfg.Alerts, logger),
		channels.NewConsoleChannel(&cfg.Channels.Console, &cfg.Alerts, logger),
	}
}

// Start launches the consumers and the scheduler.
func (a *App) Start() error {
	a.WorkerPool.Start()

	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	a.Logger.Info().Msg("Pipeline started")
	return nil
}

// Close stops consumers first so nothing touches storage during teardown.
func (a *App) Close() error {
	if a.WorkerPool != nil {
		a.WorkerPool.Stop()
		a.Logger.Info().Msg("Worker pool stopped")
	}

	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}

	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close analysis queue")
		}
	}

	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close AI provider")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
