package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/services/status"
)

// StatusSource provides the combined pipeline snapshot the health probe
// reports on.
type StatusSource interface {
	Snapshot(ctx context.Context) *status.Snapshot
}

// Service runs periodic maintenance jobs: the analysis-cache sweep and the
// capability/channel health probes. Schedules use six-field cron expressions
// (with seconds).
type Service struct {
	config *common.SchedulerConfig
	cache  interfaces.AnalysisCache
	status StatusSource
	events interfaces.EventService
	cron   *cron.Cron
	logger arbor.ILogger

	mu      sync.Mutex
	running bool
}

// NewService creates the scheduler. Nothing runs until Start.
func NewService(
	cfg *common.SchedulerConfig,
	cache interfaces.AnalysisCache,
	statusSource StatusSource,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config: cfg,
		cache:  cache,
		status: statusSource,
		events: events,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
}

// Start registers the maintenance jobs and starts the cron loop.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled by configuration")
		return nil
	}

	sweepSchedule := s.config.CacheSweepSchedule
	if sweepSchedule == "" {
		sweepSchedule = "0 */5 * * * *"
	}
	if _, err := s.cron.AddFunc(sweepSchedule, s.runCacheSweep); err != nil {
		return fmt.Errorf("failed to register cache sweep job: %w", err)
	}

	probeSchedule := s.config.HealthProbeSchedule
	if probeSchedule == "" {
		probeSchedule = "30 */1 * * * *"
	}
	if _, err := s.cron.AddFunc(probeSchedule, s.runHealthProbe); err != nil {
		return fmt.Errorf("failed to register health probe job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("cache_sweep", sweepSchedule).
		Str("health_probe", probeSchedule).
		Msg("Scheduler started")

	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// runCacheSweep removes expired cache entries. Lazy expiry on read already
// guarantees correctness; this just reclaims space early.
func (s *Service) runCacheSweep() {
	removed, err := s.cache.Sweep(context.Background())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cache sweep failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Cache sweep completed")
	}
}

// runHealthProbe reads the combined pipeline snapshot and publishes a
// degradation event when the analyzer or the dispatcher is unhealthy.
func (s *Service) runHealthProbe() {
	ctx := context.Background()

	snap := s.status.Snapshot(ctx)

	s.logger.Debug().
		Bool("analyzer_healthy", snap.AnalyzerHealthy).
		Bool("dispatcher_healthy", snap.Dispatcher.OverallHealthy).
		Int("queue_pending", snap.Queue.PendingCount).
		Msg("Health probe completed")

	if snap.AnalyzerHealthy && snap.Dispatcher.OverallHealthy {
		return
	}

	unhealthyChannels := make([]string, 0)
	for _, ch := range snap.Dispatcher.Channels {
		if ch.Enabled && !ch.Healthy {
			unhealthyChannels = append(unhealthyChannels, ch.Name)
		}
	}

	if err := s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventHealthDegraded,
		Payload: map[string]interface{}{
			"analyzer_healthy":   snap.AnalyzerHealthy,
			"dispatcher_healthy": snap.Dispatcher.OverallHealthy,
			"unhealthy_channels": unhealthyChannels,
		},
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish health degradation event")
	}
}
