package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// Priority is the producer-assigned priority of an analysis job
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ParsePriority maps a wire string to a Priority, defaulting to normal
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(s)
	default:
		return PriorityNormal
	}
}

// AnalysisJob is a pending classification request accepted by ingress.
// Immutable once enqueued; consumed at-least-once with idempotent
// re-processing keyed by JobID.
type AnalysisJob struct {
	JobID         string    `json:"job_id"`
	Content       string    `json:"content"`
	ChatRoomLabel string    `json:"chat_room_label"`
	DeviceID      string    `json:"device_id,omitempty"`
	Priority      Priority  `json:"priority"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// Validate checks the fields ingress is required to supply
func (j *AnalysisJob) Validate() error {
	if j.JobID == "" {
		return errors.New("job_id is required")
	}
	if j.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// ToJSON serializes the job for the queue wire format
func (j *AnalysisJob) ToJSON() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis job: %w", err)
	}
	return data, nil
}

// JobFromJSON decodes a queue payload back into an AnalysisJob
func JobFromJSON(data []byte) (*AnalysisJob, error) {
	var job AnalysisJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis job payload: %w", err)
	}
	return &job, nil
}
