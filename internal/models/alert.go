package models

import "time"

// Severity buckets detection types for channel formatting
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// SeverityFor maps a detection type to an alert severity
func SeverityFor(t DetectionType) Severity {
	switch t {
	case DetectionAbuse, DetectionInappropriate:
		return SeverityCritical
	case DetectionSpam, DetectionAdvertisement, DetectionConflict:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// MessageMeta carries message context into alert formatting.
// Structured on purpose: channels never re-parse serialized text to recover
// fields like confidence or room label.
type MessageMeta struct {
	JobID         string    `json:"job_id"`
	ChatRoomLabel string    `json:"chat_room_label"`
	DeviceID      string    `json:"device_id,omitempty"`
	Priority      Priority  `json:"priority"`
	Content       string    `json:"content"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// FormattedAlert is the read-only view shared across all channel sends for
// one dispatch. Built once per abnormal result.
type FormattedAlert struct {
	AlertID         string        `json:"alert_id"`
	AlertType       DetectionType `json:"alert_type"`
	Severity        Severity      `json:"severity"`
	Title           string        `json:"title"`
	Message         string        `json:"message"`
	DetailedMessage string        `json:"detailed_message"`
	Timestamp       time.Time     `json:"timestamp"`
	ChatRoomLabel   string        `json:"chat_room_label"`
	Confidence      float64       `json:"confidence"`
}

// ChannelOutcome is one adapter's result for one dispatch attempt
type ChannelOutcome struct {
	ChannelName      string `json:"channel_name"`
	Success          bool   `json:"success"`
	FallbackUsed     bool   `json:"fallback_used"`
	ErrorMessage     string `json:"error_message,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// DispatchOutcome summarizes a fan-out. OverallSuccess is true iff at least
// one channel succeeded; partial failure is the expected steady state.
type DispatchOutcome struct {
	OverallSuccess  bool             `json:"overall_success"`
	ChannelOutcomes []ChannelOutcome `json:"channel_outcomes"`
	TotalTimeMs     int64            `json:"total_time_ms"`
}

// ChannelHealthStatus is the observability view of one adapter
type ChannelHealthStatus struct {
	Name                string    `json:"name"`
	Enabled             bool      `json:"enabled"`
	Healthy             bool      `json:"healthy"`
	LastSuccessTime     time.Time `json:"last_success_time"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// DispatcherHealth is the observability view of the whole dispatcher
type DispatcherHealth struct {
	OverallHealthy bool                  `json:"overall_healthy"`
	Channels       []ChannelHealthStatus `json:"channels"`
}

// QueueStatus is the observability view of the queue
type QueueStatus struct {
	PendingCount    int  `json:"pending_count"`
	ProcessingCount int  `json:"processing_count"`
	Healthy         bool `json:"healthy"`
}
