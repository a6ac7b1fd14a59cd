package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/slack-go/slack"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/models"
)

// SlackChannel is the push-bot adapter. Primary sends post a formatted
// attachment to the configured channel; high-priority sends target the
// urgent channel with an @channel mention; fallback sends degrade to a
// minimal plain-text message.
type SlackChannel struct {
	config *common.SlackChannelConfig
	logger arbor.ILogger
	api    *slack.Client
	health *HealthTracker
}

// NewSlackChannel creates the Slack adapter. The client is created even when
// the adapter is disabled so enabling via config reload needs no rewiring.
func NewSlackChannel(cfg *common.SlackChannelConfig, alertsCfg *common.AlertsConfig, logger arbor.ILogger) *SlackChannel {
	return &SlackChannel{
		config: cfg,
		logger: logger,
		api:    slack.New(cfg.Token),
		health: NewHealthTracker("slack", cfg.Enabled, alertsCfg.GetHealthWindow(), alertsCfg.FailureThreshold),
	}
}

func (c *SlackChannel) Name() string {
	return "slack"
}

func (c *SlackChannel) Enabled() bool {
	return c.config.Enabled && c.config.Token != "" && c.config.Channel != ""
}

func (c *SlackChannel) Healthy() bool {
	return c.health.Healthy()
}

func (c *SlackChannel) SupportsAlertType(t models.DetectionType) bool {
	return typeSupported(c.config.AlertTypes, t)
}

func (c *SlackChannel) SupportsHighPriority() bool {
	return c.config.HighPriority
}

func (c *SlackChannel) SupportsFallback() bool {
	return c.config.Fallback
}

// attachmentFor builds the rich attachment form of an alert. Slack wants the
// timestamp as a json.Number holding epoch seconds.
func attachmentFor(alert *models.FormattedAlert) slack.Attachment {
	return slack.Attachment{
		Color:      severityColor(alert.Severity),
		Title:      alert.Title,
		Text:       alert.Message,
		Footer:     fmt.Sprintf("room: %s | confidence: %.2f", alert.ChatRoomLabel, alert.Confidence),
		Ts:         json.Number(strconv.FormatInt(alert.Timestamp.Unix(), 10)),
		MarkdownIn: []string{"text"},
	}
}

// SendAlert posts the rich attachment form to the default channel.
func (c *SlackChannel) SendAlert(ctx context.Context, alert *models.FormattedAlert) error {
	_, _, err := c.api.PostMessageContext(ctx, c.config.Channel,
		slack.MsgOptionAttachments(attachmentFor(alert)),
	)
	if err != nil {
		return fmt.Errorf("slack post failed: %w", err)
	}
	return nil
}

// SendHighPriorityAlert posts to the urgent channel with an @channel mention.
func (c *SlackChannel) SendHighPriorityAlert(ctx context.Context, alert *models.FormattedAlert) error {
	if !c.SupportsHighPriority() {
		return fmt.Errorf("slack adapter: high-priority path not configured")
	}

	channel := c.config.UrgentChannel
	if channel == "" {
		channel = c.config.Channel
	}

	text := fmt.Sprintf("<!channel> *%s*\n%s", alert.Title, alert.DetailedMessage)
	_, _, err := c.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("slack urgent post failed: %w", err)
	}
	return nil
}

// SendFallbackAlert posts a minimal plain-text message to the default
// channel. Used after a primary send failure.
func (c *SlackChannel) SendFallbackAlert(ctx context.Context, alert *models.FormattedAlert) error {
	if !c.SupportsFallback() {
		return fmt.Errorf("slack adapter: fallback path not configured")
	}

	text := fmt.Sprintf("[%s] %s (%s)", strings.ToUpper(string(alert.Severity)), alert.Title, alert.ChatRoomLabel)
	_, _, err := c.api.PostMessageContext(ctx, c.config.Channel,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("slack fallback post failed: %w", err)
	}
	return nil
}

func (c *SlackChannel) RecordOutcome(success bool) {
	c.health.RecordOutcome(success)
}

func (c *SlackChannel) HealthStatus() models.ChannelHealthStatus {
	return c.health.Status()
}

func severityColor(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "danger"
	case models.SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}

var _ interfaces.ChannelAdapter = (*SlackChannel)(nil)
