package channels

import (
	"strconv"
	"testing"
	"time"

	"github.com/ternarybob/sentinel/internal/models"
)

func TestAttachmentFor_EpochSecondsTimestamp(t *testing.T) {
	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	alert := &models.FormattedAlert{
		AlertID:       "a-1",
		AlertType:     models.DetectionSpam,
		Severity:      models.SeverityWarning,
		Title:         "Spam detected",
		Message:       "spam message",
		Timestamp:     ts,
		ChatRoomLabel: "Room A",
		Confidence:    0.9,
	}

	attachment := attachmentFor(alert)

	got, err := attachment.Ts.Int64()
	if err != nil {
		t.Fatalf("Attachment timestamp is not integral: %v", err)
	}
	if got != ts.Unix() {
		t.Errorf("Expected epoch %d, got %d", ts.Unix(), got)
	}
	if attachment.Ts.String() != strconv.FormatInt(ts.Unix(), 10) {
		t.Errorf("Unexpected timestamp encoding %q", attachment.Ts.String())
	}
}

func TestAttachmentFor_SeverityColor(t *testing.T) {
	cases := []struct {
		severity models.Severity
		color    string
	}{
		{models.SeverityCritical, "danger"},
		{models.SeverityWarning, "warning"},
		{models.SeverityInfo, "good"},
	}
	for _, tc := range cases {
		alert := &models.FormattedAlert{Severity: tc.severity, Timestamp: time.Now()}
		if got := attachmentFor(alert).Color; got != tc.color {
			t.Errorf("Severity %s: expected color %q, got %q", tc.severity, tc.color, got)
		}
	}
}
