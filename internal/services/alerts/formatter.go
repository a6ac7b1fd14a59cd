package alerts

import (
	"fmt"
	"time"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/models"
)

// alertTitles maps detection types to operator-facing titles.
var alertTitles = map[models.DetectionType]string{
	models.DetectionSpam:          "Spam detected",
	models.DetectionAdvertisement: "Advertisement detected",
	models.DetectionAbuse:         "Abusive language detected",
	models.DetectionInappropriate: "Inappropriate content detected",
	models.DetectionConflict:      "Escalating conflict detected",
}

// BuildAlert derives the read-only alert view shared across all channel
// sends for one dispatch. Metadata arrives structured; nothing here parses
// serialized text to recover fields.
func BuildAlert(result *models.AnalysisResult, meta *models.MessageMeta) *models.FormattedAlert {
	title, ok := alertTitles[result.DetectedType]
	if !ok {
		title = "Abnormal message detected"
	}

	message := fmt.Sprintf("%s in %s (confidence %.2f)", title, meta.ChatRoomLabel, result.Confidence)

	detailed := fmt.Sprintf(
		"Room: %s\nJob: %s\nType: %s\nConfidence: %.2f\nReasoning: %s\nMessage: %s",
		meta.ChatRoomLabel, meta.JobID, result.DetectedType, result.Confidence,
		result.Reasoning, truncateContent(meta.Content, 500),
	)
	if result.UsedFallback {
		detailed += "\nClassified by fallback rules (AI capability unavailable)"
	}

	return &models.FormattedAlert{
		AlertID:         common.NewAlertID(),
		AlertType:       result.DetectedType,
		Severity:        models.SeverityFor(result.DetectedType),
		Title:           title,
		Message:         message,
		DetailedMessage: detailed,
		Timestamp:       time.Now().UTC(),
		ChatRoomLabel:   meta.ChatRoomLabel,
		Confidence:      result.Confidence,
	}
}

func truncateContent(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
