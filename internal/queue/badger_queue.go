// -----------------------------------------------------------------------
// Analysis Queue - Badger-backed durable stream with visibility timeouts
// and a dead-letter keyspace for jobs that exhaust delivery attempts
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/models"
)

// queueMessage is the internal structure stored in Badger
type queueMessage struct {
	ID           string    `json:"id"`
	Payload      []byte    `json:"payload"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	VisibleAt    time.Time `json:"visible_at"`
	ReceiveCount int       `json:"receive_count"`
	LastError    string    `json:"last_error,omitempty"`
}

// BadgerQueue implements a persistent analysis queue using BadgerDB.
// Message data lives at queue:{name}:msg:{id}; a visibility index at
// queue:{name}:index:{visibleAt}:{id} keeps ready messages scannable in
// order. Claiming a message moves its index key forward by the visibility
// timeout inside a single transaction, which is the atomic ownership
// mechanism: a claimed message is invisible to other consumers until the
// timeout lapses or it is acknowledged.
type BadgerQueue struct {
	db                *badger.DB
	logger            arbor.ILogger
	events            interfaces.EventService
	queueName         string
	visibilityTimeout time.Duration
	pollInterval      time.Duration
	maxReceive        int
}

// NewBadgerQueue creates a new Badger-backed analysis queue
func NewBadgerQueue(db *badger.DB, logger arbor.ILogger, cfg *common.QueueConfig) (*BadgerQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if cfg == nil || cfg.QueueName == "" {
		return nil, errors.New("queue name is required")
	}

	maxReceive := cfg.MaxReceive
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &BadgerQueue{
		db:                db,
		logger:            logger,
		queueName:         cfg.QueueName,
		visibilityTimeout: cfg.GetVisibilityTimeout(),
		pollInterval:      cfg.GetPollInterval(),
		maxReceive:        maxReceive,
	}, nil
}

// SetEventService attaches an optional publisher for dead-letter events.
func (q *BadgerQueue) SetEventService(events interfaces.EventService) {
	q.events = events
}

// publishDeadLetter is best-effort: called after the dead-letter write has
// committed, never before.
func (q *BadgerQueue) publishDeadLetter(messageID, reason string, receiveCount int) {
	if q.events == nil {
		return
	}
	if err := q.events.Publish(context.Background(), interfaces.Event{
		Type: interfaces.EventJobDeadLettered,
		Payload: map[string]interface{}{
			"message_id":    messageID,
			"reason":        reason,
			"receive_count": receiveCount,
		},
	}); err != nil {
		q.logger.Warn().Err(err).Str("message_id", messageID).Msg("Failed to publish dead-letter event")
	}
}

// Enqueue appends a job to the stream and returns its message ID
func (q *BadgerQueue) Enqueue(ctx context.Context, job *models.AnalysisJob) (string, error) {
	if err := job.Validate(); err != nil {
		return "", fmt.Errorf("refusing to enqueue invalid job: %w", err)
	}

	payload, err := job.ToJSON()
	if err != nil {
		return "", err
	}

	id := common.NewMessageID()
	now := time.Now()
	qMsg := queueMessage{
		ID:         id,
		Payload:    payload,
		EnqueuedAt: now,
		VisibleAt:  now, // Immediately visible
	}

	data, err := json.Marshal(qMsg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal queue message: %w", err)
	}

	err = q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(q.msgKey(id), data); err != nil {
			return err
		}
		return txn.Set(q.indexKey(qMsg.VisibleAt, id), []byte{})
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}

	q.logger.Debug().
		Str("message_id", id).
		Str("job_id", job.JobID).
		Str("priority", string(job.Priority)).
		Msg("Job enqueued")

	return id, nil
}

// ReceiveBatch claims up to maxCount visible jobs, blocking up to
// blockTimeout when the queue is empty. Returns an empty slice on timeout
// rather than busy-polling the caller.
func (q *BadgerQueue) ReceiveBatch(ctx context.Context, maxCount int, blockTimeout time.Duration) ([]*interfaces.ReceivedJob, error) {
	if maxCount <= 0 {
		maxCount = 1
	}

	deadline := time.Now().Add(blockTimeout)
	for {
		batch, err := q.claimBatch(maxCount)
		if err != nil && err != models.ErrNoMessage {
			return nil, err
		}
		if len(batch) > 0 {
			return batch, nil
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// claimBatch atomically claims ready messages. Messages past their delivery
// budget are moved to the dead-letter keyspace in the same transaction so a
// poison job can never loop forever between consumers.
func (q *BadgerQueue) claimBatch(maxCount int) ([]*interfaces.ReceivedJob, error) {
	type claimed struct {
		msg queueMessage
	}
	var claims []claimed
	var deadLettered []queueMessage

	err := q.db.Update(func(txn *badger.Txn) error {
		claims = claims[:0]
		deadLettered = deadLettered[:0]

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := q.indexPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(claims) < maxCount; it.Next() {
			item := it.Item()
			indexKey := item.KeyCopy(nil)

			ts, id, err := q.parseIndexKey(indexKey)
			if err != nil {
				continue // Skip invalid keys
			}
			if ts.After(now) {
				// Index keys are sorted by timestamp; nothing later is ready either
				break
			}

			msgItem, err := txn.Get(q.msgKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Index without data, clean up the orphan
					if err := txn.Delete(indexKey); err != nil {
						return err
					}
					continue
				}
				return err
			}

			var qMsg queueMessage
			if err := msgItem.Value(func(val []byte) error {
				return json.Unmarshal(val, &qMsg)
			}); err != nil {
				return err
			}

			if qMsg.ReceiveCount >= q.maxReceive {
				if err := q.deadLetterInTxn(txn, &qMsg, indexKey, "exceeded max delivery count"); err != nil {
					return err
				}
				deadLettered = append(deadLettered, qMsg)
				continue
			}

			// Claim: bump receive count and push visibility forward
			qMsg.ReceiveCount++
			qMsg.VisibleAt = now.Add(q.visibilityTimeout)

			data, err := json.Marshal(qMsg)
			if err != nil {
				return err
			}
			if err := txn.Set(q.msgKey(id), data); err != nil {
				return err
			}
			if err := txn.Delete(indexKey); err != nil {
				return err
			}
			if err := txn.Set(q.indexKey(qMsg.VisibleAt, id), []byte{}); err != nil {
				return err
			}

			claims = append(claims, claimed{msg: qMsg})
		}

		// Dead-letter writes must commit even when nothing was claimed, so
		// an empty result is signalled after the transaction, not from it.
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, qMsg := range deadLettered {
		q.publishDeadLetter(qMsg.ID, "exceeded max delivery count", qMsg.ReceiveCount)
	}

	batch := make([]*interfaces.ReceivedJob, 0, len(claims))
	for _, c := range claims {
		job, err := models.JobFromJSON(c.msg.Payload)
		if err != nil {
			// Contract error: the payload cannot be processed by anyone.
			// Dead-letter immediately instead of cycling through redelivery.
			q.logger.Error().
				Err(err).
				Str("message_id", c.msg.ID).
				Msg("Malformed job payload, moving to dead-letter")
			if dlErr := q.deadLetter(&c.msg, "malformed payload: "+err.Error()); dlErr != nil {
				q.logger.Warn().Err(dlErr).Str("message_id", c.msg.ID).Msg("Failed to dead-letter malformed message")
			}
			continue
		}

		msgID := c.msg.ID
		batch = append(batch, &interfaces.ReceivedJob{
			Job:          job,
			MessageID:    msgID,
			ReceiveCount: c.msg.ReceiveCount,
			Ack:          func() error { return q.delete(msgID) },
		})
	}

	if len(batch) == 0 {
		return nil, models.ErrNoMessage
	}
	return batch, nil
}

// MoveToDeadLetter removes a claimed job from the live stream and records it
// with the failure reason
func (q *BadgerQueue) MoveToDeadLetter(ctx context.Context, rj *interfaces.ReceivedJob, reason string) error {
	var qMsg queueMessage
	err := q.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(q.msgKey(rj.MessageID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil // Already gone
	}
	if err != nil {
		return fmt.Errorf("failed to read message %s for dead-letter: %w", rj.MessageID, err)
	}

	return q.deadLetter(&qMsg, reason)
}

// ListDeadLetters returns dead-lettered jobs, most recent first
func (q *BadgerQueue) ListDeadLetters(ctx context.Context, limit int) ([]*models.DeadLetterRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var records []*models.DeadLetterRecord
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		prefix := q.deadLetterPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration: seek past the prefix range, then walk backwards
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(records) < limit; it.Next() {
			var record models.DeadLetterRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return records, nil
}

// RequeueDeadLetter moves a dead-lettered job back onto the live stream
func (q *BadgerQueue) RequeueDeadLetter(ctx context.Context, id string) error {
	var record models.DeadLetterRecord
	key := q.deadLetterKey(id)

	err := q.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("dead letter %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read dead letter %s: %w", id, err)
	}

	job, err := models.JobFromJSON(record.Payload)
	if err != nil {
		return fmt.Errorf("dead letter %s holds an unparseable payload: %w", id, err)
	}

	if _, err := q.Enqueue(ctx, job); err != nil {
		return err
	}

	if err := q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}); err != nil {
		return fmt.Errorf("failed to remove requeued dead letter %s: %w", id, err)
	}

	q.logger.Info().
		Str("dead_letter_id", id).
		Str("job_id", record.JobID).
		Msg("Dead letter requeued")

	return nil
}

// Status reports pending and in-flight counts. Index entries visible now are
// pending; entries pushed into the future are claimed by a consumer.
func (q *BadgerQueue) Status(ctx context.Context) (*models.QueueStatus, error) {
	status := &models.QueueStatus{}

	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := q.indexPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ts, _, err := q.parseIndexKey(it.Item().Key())
			if err != nil {
				continue
			}
			if ts.After(now) {
				status.ProcessingCount++
			} else {
				status.PendingCount++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read queue status: %w", err)
	}

	status.Healthy = true
	return status, nil
}

// Close closes the queue (no-op, the DB is managed by storage)
func (q *BadgerQueue) Close() error {
	return nil
}

// delete acknowledges a message: removes data and index in one transaction.
// Safe to call more than once; a missing message is already acknowledged.
func (q *BadgerQueue) delete(id string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(q.msgKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}

		var qMsg queueMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}

		if err := txn.Delete(q.indexKey(qMsg.VisibleAt, id)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Delete(q.msgKey(id))
	})
}

// deadLetter moves a message to the dead-letter keyspace in its own txn
func (q *BadgerQueue) deadLetter(qMsg *queueMessage, reason string) error {
	err := q.db.Update(func(txn *badger.Txn) error {
		return q.deadLetterInTxn(txn, qMsg, q.indexKey(qMsg.VisibleAt, qMsg.ID), reason)
	})
	if err == nil {
		q.publishDeadLetter(qMsg.ID, reason, qMsg.ReceiveCount)
	}
	return err
}

// deadLetterInTxn writes the dead-letter record and removes the live message
// within the caller's transaction
func (q *BadgerQueue) deadLetterInTxn(txn *badger.Txn, qMsg *queueMessage, indexKey []byte, reason string) error {
	var job models.AnalysisJob
	jobID := ""
	if err := json.Unmarshal(qMsg.Payload, &job); err == nil {
		jobID = job.JobID
	}

	record := models.DeadLetterRecord{
		ID:           qMsg.ID,
		JobID:        jobID,
		Payload:      qMsg.Payload,
		Reason:       reason,
		ReceiveCount: qMsg.ReceiveCount,
		FailedAt:     time.Now(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter record: %w", err)
	}

	if err := txn.Set(q.deadLetterKey(qMsg.ID), data); err != nil {
		return err
	}
	if err := txn.Delete(indexKey); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	if err := txn.Delete(q.msgKey(qMsg.ID)); err != nil && err != badger.ErrKeyNotFound {
		return err
	}

	q.logger.Warn().
		Str("message_id", qMsg.ID).
		Str("job_id", jobID).
		Int("receive_count", qMsg.ReceiveCount).
		Str("reason", reason).
		Msg("Job moved to dead-letter stream")

	return nil
}

// Key helpers

func (q *BadgerQueue) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", q.queueName, id))
}

func (q *BadgerQueue) indexPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", q.queueName))
}

func (q *BadgerQueue) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so lexicographic ordering matches numeric ordering
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", q.queueName, visibleAt.UnixNano(), id))
}

func (q *BadgerQueue) deadLetterPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:deadletter:", q.queueName))
}

func (q *BadgerQueue) deadLetterKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:deadletter:%s", q.queueName, id))
}

func (q *BadgerQueue) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := q.indexPrefix()
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 22 { // 20 digits + colon + at least one id byte
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), suffix[21:], nil
}

// Ensure BadgerQueue implements AnalysisQueue
var _ interfaces.AnalysisQueue = (*BadgerQueue)(nil)
