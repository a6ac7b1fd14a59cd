package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// MessageStorage implements the MessageStorage interface for Badger.
// All writes are upserts keyed by job ID; redelivered jobs overwrite their
// own record rather than duplicating it.
type MessageStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMessageStorage creates a new MessageStorage instance
func NewMessageStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MessageStorage {
	return &MessageStorage{
		db:     db,
		logger: logger,
	}
}

// UpdateStatus upserts the processing status for a job
func (s *MessageStorage) UpdateStatus(ctx context.Context, jobID string, status models.MessageStatus) error {
	now := time.Now()

	record := models.MessageRecord{
		JobID:     jobID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Preserve existing fields when the record already exists
	var existing models.MessageRecord
	if err := s.db.Store().Get(jobID, &existing); err == nil {
		record = existing
		record.Status = status
		record.UpdatedAt = now
	}

	if err := s.db.Store().Upsert(jobID, &record); err != nil {
		return fmt.Errorf("failed to update status for job %s: %w", jobID, err)
	}

	return nil
}

// UpdateAnalysisResult upserts the classification outcome for a job
func (s *MessageStorage) UpdateAnalysisResult(ctx context.Context, jobID string, result *models.AnalysisResult, meta *models.MessageMeta, analyzedAt time.Time) error {
	now := time.Now()

	record := models.MessageRecord{
		JobID:     jobID,
		CreatedAt: now,
	}

	var existing models.MessageRecord
	if err := s.db.Store().Get(jobID, &existing); err == nil {
		record = existing
	} else if err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to read record for job %s: %w", jobID, err)
	}

	record.Status = models.StatusAnalyzed
	record.DetectedType = result.DetectedType
	record.Confidence = result.Confidence
	record.UsedFallback = result.UsedFallback
	record.AnalyzedAt = analyzedAt
	record.UpdatedAt = now
	if meta != nil {
		record.ChatRoomLabel = meta.ChatRoomLabel
		record.DeviceID = meta.DeviceID
	}

	if err := s.db.Store().Upsert(jobID, &record); err != nil {
		return fmt.Errorf("failed to persist analysis result for job %s: %w", jobID, err)
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Str("detected_type", string(result.DetectedType)).
		Float64("confidence", result.Confidence).
		Msg("Analysis result persisted")

	return nil
}

// GetRecord returns the persisted record for a job
func (s *MessageStorage) GetRecord(ctx context.Context, jobID string) (*models.MessageRecord, error) {
	var record models.MessageRecord
	err := s.db.Store().Get(jobID, &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record for job %s: %w", jobID, err)
	}
	return &record, nil
}

// CountByStatus returns how many records carry the given status
func (s *MessageStorage) CountByStatus(ctx context.Context, status models.MessageStatus) (int, error) {
	count, err := s.db.Store().Count(&models.MessageRecord{}, badgerhold.Where("Status").Eq(status).Index("Status"))
	if err != nil {
		return 0, fmt.Errorf("failed to count records by status: %w", err)
	}
	return int(count), nil
}
