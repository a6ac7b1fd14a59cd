package alerts

import (
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/sentinel/internal/models"
)

func TestBuildAlert(t *testing.T) {
	result := &models.AnalysisResult{
		DetectedType: models.DetectionAbuse,
		Confidence:   0.87,
		Reasoning:    "direct insults",
	}
	meta := &models.MessageMeta{
		JobID:         "msg_123",
		ChatRoomLabel: "Room A",
		Content:       "some abusive message",
		EnqueuedAt:    time.Now(),
	}

	alert := BuildAlert(result, meta)

	if alert.AlertID == "" {
		t.Error("Expected a generated alert ID")
	}
	if alert.AlertType != models.DetectionAbuse {
		t.Errorf("Expected abuse alert type, got %s", alert.AlertType)
	}
	if alert.Severity != models.SeverityCritical {
		t.Errorf("Expected critical severity for abuse, got %s", alert.Severity)
	}
	if alert.ChatRoomLabel != "Room A" {
		t.Errorf("Expected structured room label, got %s", alert.ChatRoomLabel)
	}
	if alert.Confidence != 0.87 {
		t.Errorf("Expected structured confidence, got %f", alert.Confidence)
	}
	if !strings.Contains(alert.DetailedMessage, "msg_123") {
		t.Error("Expected job ID in detailed message")
	}
	if !strings.Contains(alert.DetailedMessage, "direct insults") {
		t.Error("Expected reasoning in detailed message")
	}
}

func TestBuildAlert_FallbackNote(t *testing.T) {
	result := &models.AnalysisResult{
		DetectedType: models.DetectionSpam,
		Confidence:   0.9,
		UsedFallback: true,
	}
	meta := &models.MessageMeta{JobID: "msg_1", ChatRoomLabel: "Room B"}

	alert := BuildAlert(result, meta)
	if !strings.Contains(alert.DetailedMessage, "fallback") {
		t.Error("Expected fallback note in detailed message")
	}
}

func TestBuildAlert_TruncatesLongContent(t *testing.T) {
	result := &models.AnalysisResult{DetectedType: models.DetectionSpam, Confidence: 0.9}
	meta := &models.MessageMeta{
		JobID:         "msg_1",
		ChatRoomLabel: "Room B",
		Content:       strings.Repeat("도배", 1000),
	}

	alert := BuildAlert(result, meta)
	if len([]rune(alert.DetailedMessage)) > 800 {
		t.Errorf("Expected content truncated, detailed message is %d runes", len([]rune(alert.DetailedMessage)))
	}
	if !strings.Contains(alert.DetailedMessage, "...") {
		t.Error("Expected truncation marker")
	}
}
