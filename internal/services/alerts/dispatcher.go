package alerts

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/models"
)

// Dispatcher fans one formatted alert out to every eligible adapter in
// parallel, bounded by a wall-clock budget. A dispatch succeeds when at
// least one channel succeeds; partial failure is the expected steady state
// and is never escalated.
type Dispatcher struct {
	adapters           []interfaces.ChannelAdapter
	logger             arbor.ILogger
	dispatchBudget     time.Duration
	highPriorityBudget time.Duration
}

// NewDispatcher creates a dispatcher over the given adapters. Adapter order
// only affects outcome ordering in reports, not delivery.
func NewDispatcher(cfg *common.AlertsConfig, adapters []interfaces.ChannelAdapter, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		adapters:           adapters,
		logger:             logger,
		dispatchBudget:     cfg.GetDispatchBudget(),
		highPriorityBudget: cfg.GetHighPriorityBudget(),
	}
}

// Dispatch fans out with the normal budget.
func (d *Dispatcher) Dispatch(ctx context.Context, result *models.AnalysisResult, meta *models.MessageMeta) *models.DispatchOutcome {
	return d.dispatch(ctx, result, meta, false, d.dispatchBudget)
}

// DispatchHighPriority fans out with the tighter budget over adapters that
// support the high-priority path.
func (d *Dispatcher) DispatchHighPriority(ctx context.Context, result *models.AnalysisResult, meta *models.MessageMeta) *models.DispatchOutcome {
	return d.dispatch(ctx, result, meta, true, d.highPriorityBudget)
}

// Health reports the dispatcher's observability view. The dispatcher is
// healthy while at least one enabled channel is healthy.
func (d *Dispatcher) Health() *models.DispatcherHealth {
	health := &models.DispatcherHealth{
		Channels: make([]models.ChannelHealthStatus, 0, len(d.adapters)),
	}

	for _, adapter := range d.adapters {
		status := adapter.HealthStatus()
		health.Channels = append(health.Channels, status)
		if status.Enabled && status.Healthy {
			health.OverallHealthy = true
		}
	}

	return health
}

func (d *Dispatcher) dispatch(ctx context.Context, result *models.AnalysisResult, meta *models.MessageMeta, highPriority bool, budget time.Duration) *models.DispatchOutcome {
	startTime := time.Now()
	alert := BuildAlert(result, meta)

	selected := d.selectAdapters(alert.AlertType, highPriority)
	if len(selected) == 0 {
		d.logger.Warn().
			Str("alert_id", alert.AlertID).
			Str("alert_type", string(alert.AlertType)).
			Bool("high_priority", highPriority).
			Msg("No eligible channels for alert")
		return &models.DispatchOutcome{
			OverallSuccess:  false,
			ChannelOutcomes: []models.ChannelOutcome{},
			TotalTimeMs:     time.Since(startTime).Milliseconds(),
		}
	}

	// The fan-out context carries the budget so transports with cancellation
	// hooks stop early; transports without them are merely abandoned.
	sendCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	results := make(chan models.ChannelOutcome, len(selected))
	for _, adapter := range selected {
		a := adapter
		common.SafeGo(d.logger, "alert-send-"+a.Name(), func() {
			results <- d.sendToChannel(sendCtx, a, alert, highPriority)
		})
	}

	deadline := time.NewTimer(budget)
	defer deadline.Stop()

	outcomes := make([]models.ChannelOutcome, 0, len(selected))
	pending := make(map[string]bool, len(selected))
	for _, a := range selected {
		pending[a.Name()] = true
	}

collect:
	for len(outcomes) < len(selected) {
		select {
		case outcome := <-results:
			delete(pending, outcome.ChannelName)
			outcomes = append(outcomes, outcome)
		case <-deadline.C:
			break collect
		}
	}

	// Channels that missed the budget are recorded as failed and abandoned;
	// their goroutines still record their own health outcome when they
	// eventually return.
	for name := range pending {
		outcomes = append(outcomes, models.ChannelOutcome{
			ChannelName:      name,
			Success:          false,
			ErrorMessage:     "dispatch budget exceeded",
			ProcessingTimeMs: budget.Milliseconds(),
		})
	}

	outcome := &models.DispatchOutcome{
		ChannelOutcomes: outcomes,
		TotalTimeMs:     time.Since(startTime).Milliseconds(),
	}
	for _, ch := range outcomes {
		if ch.Success {
			outcome.OverallSuccess = true
			break
		}
	}

	d.logger.Info().
		Str("alert_id", alert.AlertID).
		Str("alert_type", string(alert.AlertType)).
		Bool("overall_success", outcome.OverallSuccess).
		Int("channels", len(outcomes)).
		Int64("total_time_ms", outcome.TotalTimeMs).
		Msg("Alert dispatch completed")

	return outcome
}

// selectAdapters picks adapters by capability. Health is deliberately not
// consulted; it is a monitoring signal, not a router.
func (d *Dispatcher) selectAdapters(t models.DetectionType, highPriority bool) []interfaces.ChannelAdapter {
	selected := make([]interfaces.ChannelAdapter, 0, len(d.adapters))
	for _, adapter := range d.adapters {
		if !adapter.Enabled() || !adapter.SupportsAlertType(t) {
			continue
		}
		if highPriority && !adapter.SupportsHighPriority() {
			continue
		}
		selected = append(selected, adapter)
	}
	return selected
}

// sendToChannel runs one adapter's primary-send/fallback-send pair and folds
// the outcome into the adapter's health state.
func (d *Dispatcher) sendToChannel(ctx context.Context, adapter interfaces.ChannelAdapter, alert *models.FormattedAlert, highPriority bool) models.ChannelOutcome {
	startTime := time.Now()
	outcome := models.ChannelOutcome{ChannelName: adapter.Name()}

	var err error
	if highPriority {
		err = adapter.SendHighPriorityAlert(ctx, alert)
	} else {
		err = adapter.SendAlert(ctx, alert)
	}

	if err != nil && adapter.SupportsFallback() {
		d.logger.Debug().
			Err(err).
			Str("channel", adapter.Name()).
			Str("alert_id", alert.AlertID).
			Msg("Primary send failed, attempting fallback")

		if fbErr := adapter.SendFallbackAlert(ctx, alert); fbErr == nil {
			outcome.Success = true
			outcome.FallbackUsed = true
			err = nil
		} else {
			err = fbErr
		}
	} else if err == nil {
		outcome.Success = true
	}

	if err != nil {
		outcome.ErrorMessage = err.Error()
		d.logger.Warn().
			Err(err).
			Str("channel", adapter.Name()).
			Str("alert_id", alert.AlertID).
			Msg("Channel send failed")
	}

	outcome.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	adapter.RecordOutcome(outcome.Success)
	return outcome
}

var _ interfaces.AlertDispatcher = (*Dispatcher)(nil)
