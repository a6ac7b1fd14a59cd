// -----------------------------------------------------------------------
// Analysis Worker Pool - Consumes the queue and runs the per-job pipeline
// -----------------------------------------------------------------------

package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/models"
)

// Backoff configuration for idle polling
const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// AnalysisWorkerPool consumes analysis jobs with a fixed number of consumer
// goroutines. Each consumer claims a batch, runs the per-job pipeline
// (analyze -> persist -> dispatch-if-abnormal) concurrently within the
// batch, and acknowledges jobs that completed. Failed jobs stay unacked so
// the queue's redelivery/dead-letter policy applies; the pool keeps no retry
// counter of its own.
type AnalysisWorkerPool struct {
	queue      interfaces.AnalysisQueue
	analyzer   interfaces.AnalyzerService
	storage    interfaces.MessageStorage
	dispatcher interfaces.AlertDispatcher
	events     interfaces.EventService
	logger     arbor.ILogger

	concurrency   int
	batchSize     int
	blockTimeout  time.Duration
	minConfidence float64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewAnalysisWorkerPool creates the pool. Nothing runs until Start.
func NewAnalysisWorkerPool(
	cfg *common.Config,
	queue interfaces.AnalysisQueue,
	analyzer interfaces.AnalyzerService,
	storage interfaces.MessageStorage,
	dispatcher interfaces.AlertDispatcher,
	events interfaces.EventService,
	logger arbor.ILogger,
) *AnalysisWorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	concurrency := cfg.Queue.Concurrency
	if concurrency < 1 {
		concurrency = 4
	}
	batchSize := cfg.Queue.BatchSize
	if batchSize < 1 {
		batchSize = 10
	}

	return &AnalysisWorkerPool{
		queue:         queue,
		analyzer:      analyzer,
		storage:       storage,
		dispatcher:    dispatcher,
		events:        events,
		logger:        logger,
		concurrency:   concurrency,
		batchSize:     batchSize,
		blockTimeout:  cfg.Queue.GetBlockTimeout(),
		minConfidence: cfg.Alerts.MinAlertConfidence,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start launches the consumer goroutines.
// Call AFTER all collaborating services are initialized.
func (p *AnalysisWorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn().Msg("Worker pool already running")
		return
	}
	p.running = true

	p.logger.Info().
		Int("concurrency", p.concurrency).
		Int("batch_size", p.batchSize).
		Msg("Starting analysis worker pool")

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.consumeLoop(i)
	}
}

// Stop stops the pool gracefully, waiting for in-flight batches.
func (p *AnalysisWorkerPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info().Msg("Stopping analysis worker pool...")
	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Analysis worker pool stopped")
}

// consumeLoop is one consumer goroutine's claim/process loop.
func (p *AnalysisWorkerPool) consumeLoop(workerID int) {
	defer p.wg.Done()

	// Panic recovery: a crash in one consumer must not take down the pool
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", common.GetStackTrace()).
				Int("worker_id", workerID).
				Msg("Worker goroutine panicked")
		}
	}()

	p.logger.Debug().Int("worker_id", workerID).Msg("Worker started")

	currentBackoff := minBackoff

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug().Int("worker_id", workerID).Msg("Worker stopping")
			return
		default:
			processed := p.processBatch(workerID)

			if processed {
				currentBackoff = minBackoff
			} else {
				select {
				case <-p.ctx.Done():
					return
				case <-time.After(currentBackoff):
				}

				currentBackoff = currentBackoff * 2
				if currentBackoff > maxBackoff {
					currentBackoff = maxBackoff
				}
			}
		}
	}
}

// processBatch claims one batch and runs the per-job pipelines concurrently.
// Returns true if at least one job was claimed.
func (p *AnalysisWorkerPool) processBatch(workerID int) bool {
	batch, err := p.queue.ReceiveBatch(p.ctx, p.batchSize, p.blockTimeout)
	if err != nil {
		if p.ctx.Err() == nil {
			p.logger.Error().Err(err).Int("worker_id", workerID).Msg("Failed to receive batch")
		}
		return false
	}
	if len(batch) == 0 {
		return false
	}

	var batchWg sync.WaitGroup
	for _, rj := range batch {
		batchWg.Add(1)
		job := rj
		go func() {
			defer batchWg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error().
						Str("panic", fmt.Sprintf("%v", r)).
						Str("job_id", job.Job.JobID).
						Msg("Job pipeline panicked, leaving job unacked")
				}
			}()
			p.processJob(job)
		}()
	}
	batchWg.Wait()

	return true
}

// processJob runs one job's pipeline. Re-processing a redelivered job is
// safe: analysis is cache-backed and persistence is an upsert keyed by job
// id. The job is acked only after a successful persist; dispatch failures
// never fail the job.
func (p *AnalysisWorkerPool) processJob(rj *interfaces.ReceivedJob) {
	job := rj.Job
	startTime := time.Now()

	result, err := p.analyzer.Analyze(p.ctx, job.Content, job.ChatRoomLabel)
	if err != nil {
		p.failJob(rj, fmt.Errorf("analysis failed: %w", err))
		return
	}

	meta := &models.MessageMeta{
		JobID:         job.JobID,
		ChatRoomLabel: job.ChatRoomLabel,
		DeviceID:      job.DeviceID,
		Priority:      job.Priority,
		Content:       job.Content,
		EnqueuedAt:    job.EnqueuedAt,
	}

	if err := p.storage.UpdateAnalysisResult(p.ctx, job.JobID, result, meta, time.Now().UTC()); err != nil {
		p.failJob(rj, fmt.Errorf("persistence failed: %w", err))
		return
	}

	if err := p.events.Publish(p.ctx, interfaces.Event{
		Type: interfaces.EventMessageAnalyzed,
		Payload: map[string]interface{}{
			"job_id":        job.JobID,
			"detected_type": string(result.DetectedType),
			"confidence":    result.Confidence,
			"used_fallback": result.UsedFallback,
		},
	}); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to publish analyzed event")
	}

	if result.DetectedType.IsAbnormal() && result.Confidence >= p.minConfidence {
		p.dispatchAlert(result, meta)
	}

	if err := rj.Ack(); err != nil {
		// The job will be redelivered; reprocessing is idempotent
		p.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to ack job")
		return
	}

	p.logger.Info().
		Str("job_id", job.JobID).
		Str("detected_type", string(result.DetectedType)).
		Bool("used_fallback", result.UsedFallback).
		Int("receive_count", rj.ReceiveCount).
		Dur("duration", time.Since(startTime)).
		Msg("Job processed")
}

// dispatchAlert is fire-and-continue: a failed dispatch is logged and
// published but never fails the job.
func (p *AnalysisWorkerPool) dispatchAlert(result *models.AnalysisResult, meta *models.MessageMeta) {
	var outcome *models.DispatchOutcome
	if meta.Priority == models.PriorityHigh {
		outcome = p.dispatcher.DispatchHighPriority(p.ctx, result, meta)
	} else {
		outcome = p.dispatcher.Dispatch(p.ctx, result, meta)
	}

	if err := p.events.Publish(p.ctx, interfaces.Event{
		Type: interfaces.EventAlertDispatched,
		Payload: map[string]interface{}{
			"job_id":          meta.JobID,
			"detected_type":   string(result.DetectedType),
			"overall_success": outcome.OverallSuccess,
		},
	}); err != nil {
		p.logger.Warn().Err(err).Str("job_id", meta.JobID).Msg("Failed to publish dispatch event")
	}

	if !outcome.OverallSuccess {
		p.logger.Error().
			Str("job_id", meta.JobID).
			Int("channels", len(outcome.ChannelOutcomes)).
			Msg("Alert dispatch failed on every channel")
	}
}

// failJob marks the job failed and leaves it unacked so the queue's
// redelivery/dead-letter policy applies.
func (p *AnalysisWorkerPool) failJob(rj *interfaces.ReceivedJob, cause error) {
	jobID := rj.Job.JobID

	p.logger.Error().
		Err(cause).
		Str("job_id", jobID).
		Int("receive_count", rj.ReceiveCount).
		Msg("Job pipeline failed, leaving unacked for redelivery")

	if err := p.storage.UpdateStatus(p.ctx, jobID, models.StatusFailed); err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to persist failure status")
	}

	if err := p.events.Publish(p.ctx, interfaces.Event{
		Type: interfaces.EventJobFailed,
		Payload: map[string]interface{}{
			"job_id": jobID,
			"reason": cause.Error(),
		},
	}); err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to publish failure event")
	}
}
