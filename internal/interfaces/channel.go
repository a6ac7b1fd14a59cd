package interfaces

import (
	"context"

	"github.com/ternarybob/sentinel/internal/models"
)

// ChannelAdapter is a pluggable alert sender. Capability is queried before
// acting: the dispatcher never calls SendHighPriorityAlert or
// SendFallbackAlert on an adapter whose capability flag is false.
// All sends must be safe to repeat for the same alert.
type ChannelAdapter interface {
	// Name identifies the channel in outcomes and health reports.
	Name() string

	// Enabled reports whether this adapter participates in dispatches.
	Enabled() bool

	// Healthy reports the coarse liveness signal: a recent success or a
	// consecutive-failure count below the threshold. Monitoring only, never
	// used for routing.
	Healthy() bool

	// SupportsAlertType reports whether this adapter handles the detection type.
	SupportsAlertType(t models.DetectionType) bool

	// SupportsHighPriority reports whether the high-priority path is configured.
	SupportsHighPriority() bool

	// SupportsFallback reports whether a degraded send path is configured.
	SupportsFallback() bool

	// SendAlert delivers via the primary path.
	SendAlert(ctx context.Context, alert *models.FormattedAlert) error

	// SendHighPriorityAlert delivers via the urgent path.
	// Only valid when SupportsHighPriority is true.
	SendHighPriorityAlert(ctx context.Context, alert *models.FormattedAlert) error

	// SendFallbackAlert delivers via the degraded path after a primary failure.
	// Only valid when SupportsFallback is true.
	SendFallbackAlert(ctx context.Context, alert *models.FormattedAlert) error

	// RecordOutcome updates the adapter's health state after a send attempt.
	RecordOutcome(success bool)

	// HealthStatus returns the adapter's current health snapshot.
	HealthStatus() models.ChannelHealthStatus
}

// AlertDispatcher fans a formatted alert out to all eligible adapters within
// a wall-clock budget and succeeds if at least one channel succeeds.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, result *models.AnalysisResult, meta *models.MessageMeta) *models.DispatchOutcome
	DispatchHighPriority(ctx context.Context, result *models.AnalysisResult, meta *models.MessageMeta) *models.DispatchOutcome
	Health() *models.DispatcherHealth
}
