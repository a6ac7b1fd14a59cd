package channels

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/models"
)

// EmailChannel is the SMTP adapter. Primary sends deliver a multipart
// HTML/text body to every configured recipient; fallback sends degrade to a
// subject-only plain message. Supports direct TLS with STARTTLS fallback.
type EmailChannel struct {
	config *common.EmailChannelConfig
	logger arbor.ILogger
	health *HealthTracker
}

// NewEmailChannel creates the SMTP adapter.
func NewEmailChannel(cfg *common.EmailChannelConfig, alertsCfg *common.AlertsConfig, logger arbor.ILogger) *EmailChannel {
	return &EmailChannel{
		config: cfg,
		logger: logger,
		health: NewHealthTracker("email", cfg.Enabled, alertsCfg.GetHealthWindow(), alertsCfg.FailureThreshold),
	}
}

func (c *EmailChannel) Name() string {
	return "email"
}

func (c *EmailChannel) Enabled() bool {
	return c.config.Enabled && c.config.Host != "" && c.config.From != "" && len(c.config.To) > 0
}

func (c *EmailChannel) Healthy() bool {
	return c.health.Healthy()
}

func (c *EmailChannel) SupportsAlertType(t models.DetectionType) bool {
	return typeSupported(c.config.AlertTypes, t)
}

func (c *EmailChannel) SupportsHighPriority() bool {
	return c.config.HighPriority
}

func (c *EmailChannel) SupportsFallback() bool {
	return c.config.Fallback
}

// SendAlert delivers the full alert body to every configured recipient.
// Any recipient failure fails the send.
func (c *EmailChannel) SendAlert(ctx context.Context, alert *models.FormattedAlert) error {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
	return c.send(subject, alert.DetailedMessage)
}

// SendHighPriorityAlert prefixes the subject so mail rules can route it.
func (c *EmailChannel) SendHighPriorityAlert(ctx context.Context, alert *models.FormattedAlert) error {
	if !c.SupportsHighPriority() {
		return fmt.Errorf("email adapter: high-priority path not configured")
	}
	subject := fmt.Sprintf("[URGENT][%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
	return c.send(subject, alert.DetailedMessage)
}

// SendFallbackAlert sends a minimal plain message carrying only the title.
func (c *EmailChannel) SendFallbackAlert(ctx context.Context, alert *models.FormattedAlert) error {
	if !c.SupportsFallback() {
		return fmt.Errorf("email adapter: fallback path not configured")
	}
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
	return c.send(subject, alert.Message)
}

func (c *EmailChannel) RecordOutcome(success bool) {
	c.health.RecordOutcome(success)
}

func (c *EmailChannel) HealthStatus() models.ChannelHealthStatus {
	return c.health.Status()
}

func (c *EmailChannel) send(subject, body string) error {
	if c.config.Host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if c.config.From == "" {
		return fmt.Errorf("from email not configured")
	}

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	var auth smtp.Auth
	if c.config.Username != "" {
		auth = smtp.PlainAuth("", c.config.Username, c.config.Password, c.config.Host)
	}

	var lastErr error
	for _, to := range c.config.To {
		msg := c.buildMessage(to, subject, body)

		var err error
		if c.config.UseTLS {
			err = c.sendWithTLS(addr, auth, to, msg)
		} else {
			err = smtp.SendMail(addr, auth, c.config.From, []string{to}, []byte(msg))
		}
		if err != nil {
			lastErr = fmt.Errorf("send to %s failed: %w", to, err)
			c.logger.Warn().Err(err).Str("recipient", to).Msg("Email send failed")
		}
	}

	return lastErr
}

// buildMessage assembles an RFC 5322 message with a base64-encoded body so
// long lines and non-ASCII content survive every mail server.
func (c *EmailChannel) buildMessage(to, subject, body string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", c.config.FromName, c.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	msg.WriteString("Content-Transfer-Encoding: base64\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(encodeBase64WithLineBreaks(body))
	msg.WriteString("\r\n")
	return msg.String()
}

// sendWithTLS connects with direct TLS, falling back to STARTTLS when the
// server does not accept implicit TLS on the configured port.
func (c *EmailChannel) sendWithTLS(addr string, auth smtp.Auth, to, msg string) error {
	host := strings.Split(addr, ":")[0]

	conn, err := tls.Dial("tcp", addr, &tls.Config{
		ServerName: host,
	})
	if err != nil {
		return c.sendWithSTARTTLS(addr, auth, to, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return c.deliver(client, auth, to, msg)
}

// sendWithSTARTTLS upgrades a plain connection to TLS.
func (c *EmailChannel) sendWithSTARTTLS(addr string, auth smtp.Auth, to, msg string) error {
	host := strings.Split(addr, ":")[0]

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	return c.deliver(client, auth, to, msg)
}

func (c *EmailChannel) deliver(client *smtp.Client, auth smtp.Auth, to, msg string) error {
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(c.config.From); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set mail recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err = w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// encodeBase64WithLineBreaks encodes content as base64 with 76-char line
// breaks per RFC 2045.
func encodeBase64WithLineBreaks(content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))

	var result strings.Builder
	const lineLen = 76

	for i := 0; i < len(encoded); i += lineLen {
		end := i + lineLen
		if end > len(encoded) {
			end = len(encoded)
		}
		result.WriteString(encoded[i:end])
		if end < len(encoded) {
			result.WriteString("\r\n")
		}
	}

	return result.String()
}

var _ interfaces.ChannelAdapter = (*EmailChannel)(nil)
