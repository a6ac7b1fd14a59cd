package channels

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/models"
)

// ConsoleChannel writes alerts to the structured log. It supports every
// capability and never fails, which guarantees at least one deliverable
// channel in local deployments.
type ConsoleChannel struct {
	config *common.ConsoleChannelConfig
	logger arbor.ILogger
	health *HealthTracker
}

// NewConsoleChannel creates the console adapter.
func NewConsoleChannel(cfg *common.ConsoleChannelConfig, alertsCfg *common.AlertsConfig, logger arbor.ILogger) *ConsoleChannel {
	return &ConsoleChannel{
		config: cfg,
		logger: logger,
		health: NewHealthTracker("console", cfg.Enabled, alertsCfg.GetHealthWindow(), alertsCfg.FailureThreshold),
	}
}

func (c *ConsoleChannel) Name() string {
	return "console"
}

func (c *ConsoleChannel) Enabled() bool {
	return c.config.Enabled
}

func (c *ConsoleChannel) Healthy() bool {
	return c.health.Healthy()
}

func (c *ConsoleChannel) SupportsAlertType(t models.DetectionType) bool {
	return t.IsAbnormal()
}

func (c *ConsoleChannel) SupportsHighPriority() bool {
	return true
}

func (c *ConsoleChannel) SupportsFallback() bool {
	return true
}

func (c *ConsoleChannel) SendAlert(ctx context.Context, alert *models.FormattedAlert) error {
	c.logAlert(alert, false)
	return nil
}

func (c *ConsoleChannel) SendHighPriorityAlert(ctx context.Context, alert *models.FormattedAlert) error {
	c.logAlert(alert, true)
	return nil
}

func (c *ConsoleChannel) SendFallbackAlert(ctx context.Context, alert *models.FormattedAlert) error {
	c.logAlert(alert, false)
	return nil
}

func (c *ConsoleChannel) RecordOutcome(success bool) {
	c.health.RecordOutcome(success)
}

func (c *ConsoleChannel) HealthStatus() models.ChannelHealthStatus {
	return c.health.Status()
}

func (c *ConsoleChannel) logAlert(alert *models.FormattedAlert, urgent bool) {
	event := c.logger.Warn()
	if alert.Severity == models.SeverityCritical || urgent {
		event = c.logger.Error()
	}

	event.
		Str("alert_id", alert.AlertID).
		Str("alert_type", string(alert.AlertType)).
		Str("severity", string(alert.Severity)).
		Str("chat_room", alert.ChatRoomLabel).
		Float64("confidence", alert.Confidence).
		Bool("urgent", urgent).
		Msg(alert.Title + ": " + alert.Message)
}

var _ interfaces.ChannelAdapter = (*ConsoleChannel)(nil)
