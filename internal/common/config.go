package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Queue       QueueConfig     `toml:"queue"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Analyzer    AnalyzerConfig  `toml:"analyzer"`
	Claude      ClaudeConfig    `toml:"claude"`
	Gemini      GeminiConfig    `toml:"gemini"`
	LLM         LLMConfig       `toml:"llm"`
	Alerts      AlertsConfig    `toml:"alerts"`
	Channels    ChannelsConfig  `toml:"channels"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

// QueueConfig controls the analysis queue and its consumers
type QueueConfig struct {
	QueueName         string `toml:"queue_name"`                   // Queue name prefix in Badger
	Concurrency       int    `toml:"concurrency" validate:"min=1"` // Number of concurrent workers
	BatchSize         int    `toml:"batch_size" validate:"min=1"`  // Max messages per ReceiveBatch
	BlockTimeout      string `toml:"block_timeout"`                // e.g. "2s" - how long ReceiveBatch blocks when empty
	PollInterval      string `toml:"poll_interval"`                // e.g. "100ms" - poll cadence while blocked
	VisibilityTimeout string `toml:"visibility_timeout"`           // e.g. "5m" - redelivery window for unacked messages
	MaxReceive        int    `toml:"max_receive" validate:"min=1"` // Deliveries before dead-letter
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// AnalyzerConfig controls the analyze path: cache, retries, fallback
type AnalyzerConfig struct {
	CacheTTL       string `toml:"cache_ttl"`        // Analysis cache TTL (default: "300s")
	MaxRetries     int    `toml:"max_retries"`      // Capability call retries before fallback (default: 3)
	RetryBaseDelay string `toml:"retry_base_delay"` // Backoff unit, delay = attempt * base (default: "1s")
	RequestTimeout string `toml:"request_timeout"`  // Per-attempt capability timeout (default: "30s")
	HealthTimeout  string `toml:"health_timeout"`   // Health probe timeout (default: "5s")
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key (ANTHROPIC_API_KEY or config)
	Model       string  `toml:"model"`       // Model for classification (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 1024)
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.0 for classification)
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for classification (default: "gemini-3-flash-preview")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "4s" for free tier)
	Temperature float32 `toml:"temperature"` // Completion temperature
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig selects the classification provider
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "claude" or "gemini" (default: "claude")
}

// AlertsConfig controls the alert dispatcher
type AlertsConfig struct {
	DispatchBudget     string  `toml:"dispatch_budget"`      // Wall-clock budget for a fan-out (default: "5s")
	HighPriorityBudget string  `toml:"high_priority_budget"` // Tighter budget for urgent alerts (default: "3s")
	HealthWindow       string  `toml:"health_window"`        // A channel is healthy if it succeeded within this window (default: "10m")
	FailureThreshold   int     `toml:"failure_threshold"`    // ...or its consecutive failures are below this (default: 5)
	MinAlertConfidence float64 `toml:"min_alert_confidence"` // Results below this confidence are persisted but not dispatched
}

// ChannelsConfig holds per-adapter configuration
type ChannelsConfig struct {
	Slack   SlackChannelConfig   `toml:"slack"`
	Email   EmailChannelConfig   `toml:"email"`
	Console ConsoleChannelConfig `toml:"console"`
}

// SlackChannelConfig configures the push-bot adapter
type SlackChannelConfig struct {
	Enabled       bool     `toml:"enabled"`
	Token         string   `toml:"token"`          // Bot token (xoxb-...)
	Channel       string   `toml:"channel"`        // Default alert channel ID
	UrgentChannel string   `toml:"urgent_channel"` // High-priority channel ID (falls back to Channel)
	AlertTypes    []string `toml:"alert_types"`    // Detection types this adapter handles (empty = all abnormal)
	HighPriority  bool     `toml:"high_priority"`  // Supports the high-priority path
	Fallback      bool     `toml:"fallback"`       // Supports fallback sends
}

// EmailChannelConfig configures the SMTP adapter
type EmailChannelConfig struct {
	Enabled      bool     `toml:"enabled"`
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	Username     string   `toml:"username"`
	Password     string   `toml:"password"`
	From         string   `toml:"from"`
	FromName     string   `toml:"from_name"`
	To           []string `toml:"to"`
	UseTLS       bool     `toml:"use_tls"`
	AlertTypes   []string `toml:"alert_types"`
	HighPriority bool     `toml:"high_priority"`
	Fallback     bool     `toml:"fallback"`
}

// ConsoleChannelConfig configures the stdout adapter
type ConsoleChannelConfig struct {
	Enabled bool `toml:"enabled"`
}

// SchedulerConfig controls periodic maintenance jobs
type SchedulerConfig struct {
	Enabled             bool   `toml:"enabled"`
	CacheSweepSchedule  string `toml:"cache_sweep_schedule"`  // Cron schedule (with seconds) for cache sweep
	HealthProbeSchedule string `toml:"health_probe_schedule"` // Cron schedule for capability/channel health probes
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in sentinel.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Queue: QueueConfig{
			QueueName:         "sentinel_analysis",
			Concurrency:       4,
			BatchSize:         10,
			BlockTimeout:      "2s",
			PollInterval:      "100ms",
			VisibilityTimeout: "5m",
			MaxReceive:        3,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Analyzer: AnalyzerConfig{
			CacheTTL:       "300s",
			MaxRetries:     3,
			RetryBaseDelay: "1s",
			RequestTimeout: "30s",
			HealthTimeout:  "5s",
		},
		Claude: ClaudeConfig{
			APIKey:      "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   1024,
			RateLimit:   "1s",
			Temperature: 0.0, // Deterministic-leaning output for classification
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-3-flash-preview",
			RateLimit:   "4s", // 15 RPM free tier
			Temperature: 0.0,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderClaude,
		},
		Alerts: AlertsConfig{
			DispatchBudget:     "5s",
			HighPriorityBudget: "3s",
			HealthWindow:       "10m",
			FailureThreshold:   5,
			MinAlertConfidence: 0.0, // Dispatch every abnormal result by default
		},
		Channels: ChannelsConfig{
			Console: ConsoleChannelConfig{
				Enabled: true, // Always have at least one channel in development
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:             true,
			CacheSweepSchedule:  "0 */5 * * * *", // Every 5 minutes
			HealthProbeSchedule: "30 */1 * * * *",
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files.
// Later files override earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks structural constraints and duration fields
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"queue.block_timeout":         c.Queue.BlockTimeout,
		"queue.poll_interval":         c.Queue.PollInterval,
		"queue.visibility_timeout":    c.Queue.VisibilityTimeout,
		"analyzer.cache_ttl":          c.Analyzer.CacheTTL,
		"analyzer.retry_base_delay":   c.Analyzer.RetryBaseDelay,
		"analyzer.request_timeout":    c.Analyzer.RequestTimeout,
		"analyzer.health_timeout":     c.Analyzer.HealthTimeout,
		"alerts.dispatch_budget":      c.Alerts.DispatchBudget,
		"alerts.high_priority_budget": c.Alerts.HighPriorityBudget,
		"alerts.health_window":        c.Alerts.HealthWindow,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q: %w", field, value, err)
		}
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SENTINEL_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Queue configuration
	if queueName := os.Getenv("SENTINEL_QUEUE_NAME"); queueName != "" {
		config.Queue.QueueName = queueName
	}
	if concurrency := os.Getenv("SENTINEL_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if batchSize := os.Getenv("SENTINEL_QUEUE_BATCH_SIZE"); batchSize != "" {
		if bs, err := strconv.Atoi(batchSize); err == nil {
			config.Queue.BatchSize = bs
		}
	}
	if blockTimeout := os.Getenv("SENTINEL_QUEUE_BLOCK_TIMEOUT"); blockTimeout != "" {
		config.Queue.BlockTimeout = blockTimeout
	}
	if visibilityTimeout := os.Getenv("SENTINEL_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxReceive := os.Getenv("SENTINEL_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("SENTINEL_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("SENTINEL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SENTINEL_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Analyzer configuration
	if cacheTTL := os.Getenv("SENTINEL_ANALYZER_CACHE_TTL"); cacheTTL != "" {
		config.Analyzer.CacheTTL = cacheTTL
	}
	if maxRetries := os.Getenv("SENTINEL_ANALYZER_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.Analyzer.MaxRetries = mr
		}
	}
	if requestTimeout := os.Getenv("SENTINEL_ANALYZER_REQUEST_TIMEOUT"); requestTimeout != "" {
		config.Analyzer.RequestTimeout = requestTimeout
	}

	// Provider keys
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("SENTINEL_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("SENTINEL_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if provider := os.Getenv("SENTINEL_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	// Alerts configuration
	if budget := os.Getenv("SENTINEL_ALERTS_DISPATCH_BUDGET"); budget != "" {
		config.Alerts.DispatchBudget = budget
	}
	if budget := os.Getenv("SENTINEL_ALERTS_HIGH_PRIORITY_BUDGET"); budget != "" {
		config.Alerts.HighPriorityBudget = budget
	}

	// Slack channel
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" {
		config.Channels.Slack.Token = token
	}
	if channel := os.Getenv("SENTINEL_SLACK_CHANNEL"); channel != "" {
		config.Channels.Slack.Channel = channel
	}
}

// Duration helpers. Config durations are strings in TOML; defaults applied
// here keep the zero value safe for tests that build Config structs directly.

func (c *QueueConfig) GetBlockTimeout() time.Duration {
	return parseDurationOr(c.BlockTimeout, 2*time.Second)
}

func (c *QueueConfig) GetPollInterval() time.Duration {
	return parseDurationOr(c.PollInterval, 100*time.Millisecond)
}

func (c *QueueConfig) GetVisibilityTimeout() time.Duration {
	return parseDurationOr(c.VisibilityTimeout, 5*time.Minute)
}

func (c *AnalyzerConfig) GetCacheTTL() time.Duration {
	return parseDurationOr(c.CacheTTL, 300*time.Second)
}

func (c *AnalyzerConfig) GetRetryBaseDelay() time.Duration {
	return parseDurationOr(c.RetryBaseDelay, time.Second)
}

func (c *AnalyzerConfig) GetRequestTimeout() time.Duration {
	return parseDurationOr(c.RequestTimeout, 30*time.Second)
}

func (c *AnalyzerConfig) GetHealthTimeout() time.Duration {
	return parseDurationOr(c.HealthTimeout, 5*time.Second)
}

func (c *AlertsConfig) GetDispatchBudget() time.Duration {
	return parseDurationOr(c.DispatchBudget, 5*time.Second)
}

func (c *AlertsConfig) GetHighPriorityBudget() time.Duration {
	return parseDurationOr(c.HighPriorityBudget, 3*time.Second)
}

func (c *AlertsConfig) GetHealthWindow() time.Duration {
	return parseDurationOr(c.HealthWindow, 10*time.Minute)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
