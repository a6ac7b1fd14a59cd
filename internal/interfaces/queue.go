// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/sentinel/internal/models"
)

// AckFunc acknowledges a received job, removing it from the queue.
// A job whose AckFunc is never called becomes visible again after the
// visibility timeout and is redelivered.
type AckFunc func() error

// ReceivedJob pairs a dequeued job with its acknowledgement token
type ReceivedJob struct {
	Job          *models.AnalysisJob
	MessageID    string
	ReceiveCount int
	Ack          AckFunc
}

// AnalysisQueue is the durable stream of pending analysis jobs.
// Delivery is at-least-once; the queue's own claim bookkeeping is the sole
// source of truth for job ownership.
type AnalysisQueue interface {
	// Enqueue appends a job to the stream. Failure must be tolerable for the
	// producer: the message is already persisted upstream.
	Enqueue(ctx context.Context, job *models.AnalysisJob) (string, error)

	// ReceiveBatch claims up to maxCount visible jobs for this consumer,
	// blocking up to blockTimeout when the queue is empty.
	ReceiveBatch(ctx context.Context, maxCount int, blockTimeout time.Duration) ([]*ReceivedJob, error)

	// MoveToDeadLetter removes a job from the live stream and records it with
	// the failure reason for out-of-band inspection.
	MoveToDeadLetter(ctx context.Context, rj *ReceivedJob, reason string) error

	// ListDeadLetters returns dead-lettered jobs, most recent first.
	ListDeadLetters(ctx context.Context, limit int) ([]*models.DeadLetterRecord, error)

	// RequeueDeadLetter moves a dead-lettered job back onto the live stream.
	RequeueDeadLetter(ctx context.Context, id string) error

	// Status reports pending and in-flight counts.
	Status(ctx context.Context) (*models.QueueStatus, error)

	Close() error
}
