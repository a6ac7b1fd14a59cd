package models

import "time"

// MessageStatus is the persisted processing state of a message
type MessageStatus string

const (
	StatusReceived MessageStatus = "received"
	StatusAnalyzed MessageStatus = "analyzed"
	StatusFailed   MessageStatus = "failed"
)

// MessageRecord is the persistence collaborator's view of a message.
// Keyed by JobID so redelivered jobs upsert the same record instead of
// duplicating it.
type MessageRecord struct {
	JobID         string        `badgerhold:"key" json:"job_id"`
	ChatRoomLabel string        `json:"chat_room_label"`
	DeviceID      string        `json:"device_id,omitempty"`
	Status        MessageStatus `badgerhold:"index" json:"status"`
	DetectedType  DetectionType `json:"detected_type,omitempty"`
	Confidence    float64       `json:"confidence"`
	UsedFallback  bool          `json:"used_fallback"`
	AnalyzedAt    time.Time     `json:"analyzed_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// DeadLetterRecord preserves a job that exhausted its delivery attempts,
// with the last error reason attached for out-of-band inspection.
type DeadLetterRecord struct {
	ID           string    `badgerhold:"key" json:"id"`
	JobID        string    `json:"job_id"`
	Payload      []byte    `json:"payload"`
	Reason       string    `json:"reason"`
	ReceiveCount int       `json:"receive_count"`
	FailedAt     time.Time `json:"failed_at"`
}
