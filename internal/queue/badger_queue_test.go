package queue

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/models"
)

func newTestQueue(t *testing.T, cfg *common.QueueConfig) *BadgerQueue {
	t.Helper()

	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	q, err := NewBadgerQueue(db, arbor.NewLogger(), cfg)
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	return q
}

func testQueueConfig() *common.QueueConfig {
	return &common.QueueConfig{
		QueueName:         "test_queue",
		Concurrency:       1,
		BatchSize:         10,
		BlockTimeout:      "50ms",
		PollInterval:      "10ms",
		VisibilityTimeout: "5m",
		MaxReceive:        3,
	}
}

func testJob(jobID string) *models.AnalysisJob {
	return &models.AnalysisJob{
		JobID:         jobID,
		Content:       "test message",
		ChatRoomLabel: "Room A",
		Priority:      models.PriorityNormal,
		EnqueuedAt:    time.Now(),
	}
}

func TestEnqueueReceiveAck(t *testing.T) {
	q := newTestQueue(t, testQueueConfig())
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, testJob("job_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := q.Enqueue(ctx, testJob("job_2")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	batch, err := q.ReceiveBatch(ctx, 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("ReceiveBatch failed: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(batch))
	}

	for _, rj := range batch {
		if rj.ReceiveCount != 1 {
			t.Errorf("Expected receive count 1, got %d", rj.ReceiveCount)
		}
		if err := rj.Ack(); err != nil {
			t.Errorf("Ack failed: %v", err)
		}
	}

	// Acked jobs are gone
	batch, err = q.ReceiveBatch(ctx, 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("ReceiveBatch failed: %v", err)
	}
	if len(batch) != 0 {
		t.Errorf("Expected empty queue after acks, got %d jobs", len(batch))
	}
}

func TestEnqueue_RejectsInvalidJob(t *testing.T) {
	q := newTestQueue(t, testQueueConfig())

	job := testJob("job_1")
	job.Content = ""
	if _, err := q.Enqueue(context.Background(), job); err == nil {
		t.Error("Expected error for job without content")
	}
}

func TestReceiveBatch_ClaimedJobInvisible(t *testing.T) {
	q := newTestQueue(t, testQueueConfig())
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, testJob("job_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	first, err := q.ReceiveBatch(ctx, 10, 100*time.Millisecond)
	if err != nil || len(first) != 1 {
		t.Fatalf("Expected 1 job, got %d (err=%v)", len(first), err)
	}

	// Unacked but claimed: invisible until the visibility timeout lapses
	second, err := q.ReceiveBatch(ctx, 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("ReceiveBatch failed: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("Claimed job must be invisible to other consumers, got %d", len(second))
	}
}

func TestRedeliveryAfterVisibilityTimeout(t *testing.T) {
	cfg := testQueueConfig()
	cfg.VisibilityTimeout = "100ms"
	q := newTestQueue(t, cfg)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, testJob("job_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	first, err := q.ReceiveBatch(ctx, 10, 100*time.Millisecond)
	if err != nil || len(first) != 1 {
		t.Fatalf("Expected 1 job, got %d (err=%v)", len(first), err)
	}

	// Don't ack; wait out the visibility timeout
	time.Sleep(150 * time.Millisecond)

	second, err := q.ReceiveBatch(ctx, 10, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("ReceiveBatch failed: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("Expected redelivery, got %d jobs", len(second))
	}
	if second[0].ReceiveCount != 2 {
		t.Errorf("Expected receive count 2 on redelivery, got %d", second[0].ReceiveCount)
	}
	if second[0].Job.JobID != "job_1" {
		t.Errorf("Expected same job, got %s", second[0].Job.JobID)
	}
}

func TestDeadLetterAfterMaxReceive(t *testing.T) {
	cfg := testQueueConfig()
	cfg.VisibilityTimeout = "50ms"
	cfg.MaxReceive = 2
	q := newTestQueue(t, cfg)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, testJob("poison_job")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Exhaust the delivery budget without acking
	for i := 0; i < 2; i++ {
		batch, err := q.ReceiveBatch(ctx, 10, 100*time.Millisecond)
		if err != nil || len(batch) != 1 {
			t.Fatalf("Delivery %d: expected 1 job, got %d (err=%v)", i+1, len(batch), err)
		}
		time.Sleep(80 * time.Millisecond)
	}

	// Next claim attempt moves the job to the dead-letter stream
	batch, err := q.ReceiveBatch(ctx, 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("ReceiveBatch failed: %v", err)
	}
	if len(batch) != 0 {
		t.Errorf("Expected no live jobs after dead-lettering, got %d", len(batch))
	}

	records, err := q.ListDeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("ListDeadLetters failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 dead letter, got %d", len(records))
	}
	if records[0].JobID != "poison_job" {
		t.Errorf("Expected poison_job in dead letters, got %s", records[0].JobID)
	}
	if records[0].Reason == "" {
		t.Error("Expected a dead-letter reason")
	}
}

func TestMoveToDeadLetterAndRequeue(t *testing.T) {
	q := newTestQueue(t, testQueueConfig())
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, testJob("job_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	batch, err := q.ReceiveBatch(ctx, 10, 100*time.Millisecond)
	if err != nil || len(batch) != 1 {
		t.Fatalf("Expected 1 job, got %d (err=%v)", len(batch), err)
	}

	if err := q.MoveToDeadLetter(ctx, batch[0], "manual inspection"); err != nil {
		t.Fatalf("MoveToDeadLetter failed: %v", err)
	}

	records, err := q.ListDeadLetters(ctx, 10)
	if err != nil || len(records) != 1 {
		t.Fatalf("Expected 1 dead letter, got %d (err=%v)", len(records), err)
	}
	if records[0].Reason != "manual inspection" {
		t.Errorf("Expected reason preserved, got %q", records[0].Reason)
	}

	if err := q.RequeueDeadLetter(ctx, records[0].ID); err != nil {
		t.Fatalf("RequeueDeadLetter failed: %v", err)
	}

	// The job is live again with a fresh delivery budget
	batch, err = q.ReceiveBatch(ctx, 10, 200*time.Millisecond)
	if err != nil || len(batch) != 1 {
		t.Fatalf("Expected requeued job, got %d (err=%v)", len(batch), err)
	}
	if batch[0].Job.JobID != "job_1" {
		t.Errorf("Expected job_1, got %s", batch[0].Job.JobID)
	}
	if batch[0].ReceiveCount != 1 {
		t.Errorf("Expected reset receive count, got %d", batch[0].ReceiveCount)
	}

	// And it is gone from the dead-letter stream
	records, err = q.ListDeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("ListDeadLetters failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected empty dead-letter stream after requeue, got %d", len(records))
	}
}

func TestAckIdempotent(t *testing.T) {
	q := newTestQueue(t, testQueueConfig())
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, testJob("job_1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	batch, err := q.ReceiveBatch(ctx, 10, 100*time.Millisecond)
	if err != nil || len(batch) != 1 {
		t.Fatalf("Expected 1 job, got %d (err=%v)", len(batch), err)
	}

	if err := batch[0].Ack(); err != nil {
		t.Fatalf("First ack failed: %v", err)
	}
	if err := batch[0].Ack(); err != nil {
		t.Errorf("Second ack must be a no-op, got: %v", err)
	}
}

func TestStatus(t *testing.T) {
	q := newTestQueue(t, testQueueConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(ctx, testJob(common.NewMessageID())); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	status, err := q.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.PendingCount != 3 || status.ProcessingCount != 0 {
		t.Errorf("Expected 3 pending / 0 processing, got %d / %d", status.PendingCount, status.ProcessingCount)
	}

	// Claim one; it moves from pending to processing
	if _, err := q.ReceiveBatch(ctx, 1, 100*time.Millisecond); err != nil {
		t.Fatalf("ReceiveBatch failed: %v", err)
	}

	status, err = q.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.PendingCount != 2 || status.ProcessingCount != 1 {
		t.Errorf("Expected 2 pending / 1 processing, got %d / %d", status.PendingCount, status.ProcessingCount)
	}
	if !status.Healthy {
		t.Error("Expected healthy queue")
	}
}
