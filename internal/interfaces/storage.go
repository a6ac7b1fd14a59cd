package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/sentinel/internal/models"
)

// ErrRecordNotFound is returned when a message record does not exist
var ErrRecordNotFound = errors.New("record not found")

// MessageStorage is the persistence collaborator for message state.
// Both update operations are upserts keyed by job ID so that redelivered
// jobs re-persist the same record without corrupting state.
type MessageStorage interface {
	// UpdateStatus upserts the processing status for a job.
	UpdateStatus(ctx context.Context, jobID string, status models.MessageStatus) error

	// UpdateAnalysisResult upserts the classification outcome for a job.
	UpdateAnalysisResult(ctx context.Context, jobID string, result *models.AnalysisResult, meta *models.MessageMeta, analyzedAt time.Time) error

	// GetRecord returns the persisted record for a job.
	GetRecord(ctx context.Context, jobID string) (*models.MessageRecord, error)

	// CountByStatus returns how many records carry the given status.
	CountByStatus(ctx context.Context, status models.MessageStatus) (int, error)
}

// StorageManager aggregates storage backends behind one lifecycle
type StorageManager interface {
	MessageStorage() MessageStorage
	Close() error
}
