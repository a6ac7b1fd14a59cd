package status

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/models"
)

// Snapshot is the combined observability view of the pipeline.
type Snapshot struct {
	Timestamp       time.Time               `json:"timestamp"`
	Queue           models.QueueStatus      `json:"queue"`
	Dispatcher      models.DispatcherHealth `json:"dispatcher"`
	AnalyzerHealthy bool                    `json:"analyzer_healthy"`
	AnalyzedCount   int                     `json:"analyzed_count"`
	FailedCount     int                     `json:"failed_count"`
}

// Service aggregates health and progress signals from the queue, the
// dispatcher, the analyzer and persisted message records.
type Service struct {
	queue      interfaces.AnalysisQueue
	dispatcher interfaces.AlertDispatcher
	analyzer   interfaces.AnalyzerService
	storage    interfaces.MessageStorage
	logger     arbor.ILogger
}

// NewService creates the status service.
func NewService(
	queue interfaces.AnalysisQueue,
	dispatcher interfaces.AlertDispatcher,
	analyzer interfaces.AnalyzerService,
	storage interfaces.MessageStorage,
	logger arbor.ILogger,
) *Service {
	return &Service{
		queue:      queue,
		dispatcher: dispatcher,
		analyzer:   analyzer,
		storage:    storage,
		logger:     logger,
	}
}

// Snapshot collects the current pipeline state. Collection errors degrade
// the affected section rather than failing the whole call; operators need a
// partial view more than they need an error.
func (s *Service) Snapshot(ctx context.Context) *Snapshot {
	snapshot := &Snapshot{Timestamp: time.Now().UTC()}

	if queueStatus, err := s.queue.Status(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read queue status")
	} else {
		snapshot.Queue = *queueStatus
	}

	if health := s.dispatcher.Health(); health != nil {
		snapshot.Dispatcher = *health
	}

	snapshot.AnalyzerHealthy = s.analyzer.CheckHealth(ctx)

	if analyzed, err := s.storage.CountByStatus(ctx, models.StatusAnalyzed); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count analyzed records")
	} else {
		snapshot.AnalyzedCount = analyzed
	}

	if failed, err := s.storage.CountByStatus(ctx, models.StatusFailed); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count failed records")
	} else {
		snapshot.FailedCount = failed
	}

	return snapshot
}
