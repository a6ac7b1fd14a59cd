package common

import (
	"github.com/google/uuid"
)

// NewMessageID generates a unique queue message ID with the "msg_" prefix
func NewMessageID() string {
	return "msg_" + uuid.New().String()
}

// NewAlertID generates a unique alert ID with the "alert_" prefix
func NewAlertID() string {
	return "alert_" + uuid.New().String()
}
