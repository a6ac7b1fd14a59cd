package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/models"
)

// MockAnalyzer returns a fixed result or error
type MockAnalyzer struct {
	result *models.AnalysisResult
	err    error
}

func (m *MockAnalyzer) Analyze(ctx context.Context, content, chatRoomLabel string) (*models.AnalysisResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *MockAnalyzer) CheckHealth(ctx context.Context) bool { return true }

// MockStorage records calls in memory
type MockStorage struct {
	mu        sync.Mutex
	statuses  map[string]models.MessageStatus
	results   map[string]*models.AnalysisResult
	updateErr error
}

func NewMockStorage() *MockStorage {
	return &MockStorage{
		statuses: make(map[string]models.MessageStatus),
		results:  make(map[string]*models.AnalysisResult),
	}
}

func (m *MockStorage) UpdateStatus(ctx context.Context, jobID string, status models.MessageStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[jobID] = status
	return nil
}

func (m *MockStorage) UpdateAnalysisResult(ctx context.Context, jobID string, result *models.AnalysisResult, meta *models.MessageMeta, analyzedAt time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[jobID] = result
	m.statuses[jobID] = models.StatusAnalyzed
	return nil
}

func (m *MockStorage) GetRecord(ctx context.Context, jobID string) (*models.MessageRecord, error) {
	return nil, interfaces.ErrRecordNotFound
}

func (m *MockStorage) CountByStatus(ctx context.Context, status models.MessageStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.statuses {
		if s == status {
			count++
		}
	}
	return count, nil
}

func (m *MockStorage) Status(jobID string) models.MessageStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[jobID]
}

// MockDispatcher records dispatch calls
type MockDispatcher struct {
	mu            sync.Mutex
	dispatches    int
	highPriority  int
	lastAlertType models.DetectionType
}

func (m *MockDispatcher) Dispatch(ctx context.Context, result *models.AnalysisResult, meta *models.MessageMeta) *models.DispatchOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches++
	m.lastAlertType = result.DetectedType
	return &models.DispatchOutcome{OverallSuccess: true}
}

func (m *MockDispatcher) DispatchHighPriority(ctx context.Context, result *models.AnalysisResult, meta *models.MessageMeta) *models.DispatchOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highPriority++
	return &models.DispatchOutcome{OverallSuccess: true}
}

func (m *MockDispatcher) Health() *models.DispatcherHealth {
	return &models.DispatcherHealth{OverallHealthy: true}
}

func (m *MockDispatcher) Counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dispatches, m.highPriority
}

// MockEvents is a no-op event bus
type MockEvents struct{}

func (m *MockEvents) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return nil
}
func (m *MockEvents) Publish(ctx context.Context, event interfaces.Event) error     { return nil }
func (m *MockEvents) PublishSync(ctx context.Context, event interfaces.Event) error { return nil }
func (m *MockEvents) Close() error                                                  { return nil }

func testWorkerConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Queue.Concurrency = 1
	cfg.Queue.BatchSize = 5
	cfg.Queue.BlockTimeout = "10ms"
	return cfg
}

func receivedJob(jobID, content string, priority models.Priority, acked *bool) *interfaces.ReceivedJob {
	return &interfaces.ReceivedJob{
		Job: &models.AnalysisJob{
			JobID:         jobID,
			Content:       content,
			ChatRoomLabel: "Room A",
			Priority:      priority,
			EnqueuedAt:    time.Now(),
		},
		MessageID:    jobID,
		ReceiveCount: 1,
		Ack: func() error {
			*acked = true
			return nil
		},
	}
}

func newTestPool(analyzer interfaces.AnalyzerService, storage interfaces.MessageStorage, dispatcher interfaces.AlertDispatcher) *AnalysisWorkerPool {
	return NewAnalysisWorkerPool(
		testWorkerConfig(),
		nil, // queue unused in direct processJob tests
		analyzer,
		storage,
		dispatcher,
		&MockEvents{},
		arbor.NewLogger(),
	)
}

func TestProcessJob_NormalResultAckedWithoutDispatch(t *testing.T) {
	analyzer := &MockAnalyzer{result: &models.AnalysisResult{
		DetectedType: models.DetectionNormal,
		Confidence:   0.95,
	}}
	storage := NewMockStorage()
	dispatcher := &MockDispatcher{}
	pool := newTestPool(analyzer, storage, dispatcher)

	acked := false
	pool.processJob(receivedJob("msg_1", "안녕하세요", models.PriorityNormal, &acked))

	if !acked {
		t.Error("Expected successful job to be acked")
	}
	if storage.Status("msg_1") != models.StatusAnalyzed {
		t.Errorf("Expected analyzed status, got %s", storage.Status("msg_1"))
	}
	dispatches, high := dispatcher.Counts()
	if dispatches != 0 || high != 0 {
		t.Error("Normal results must not be dispatched")
	}
}

func TestProcessJob_AbnormalResultDispatched(t *testing.T) {
	analyzer := &MockAnalyzer{result: &models.AnalysisResult{
		DetectedType: models.DetectionSpam,
		Confidence:   0.9,
	}}
	storage := NewMockStorage()
	dispatcher := &MockDispatcher{}
	pool := newTestPool(analyzer, storage, dispatcher)

	acked := false
	pool.processJob(receivedJob("msg_2", "도배도배도배", models.PriorityNormal, &acked))

	if !acked {
		t.Error("Expected job acked after dispatch")
	}
	dispatches, _ := dispatcher.Counts()
	if dispatches != 1 {
		t.Errorf("Expected 1 dispatch, got %d", dispatches)
	}
	if dispatcher.lastAlertType != models.DetectionSpam {
		t.Errorf("Expected spam alert, got %s", dispatcher.lastAlertType)
	}
}

func TestProcessJob_HighPriorityRouting(t *testing.T) {
	analyzer := &MockAnalyzer{result: &models.AnalysisResult{
		DetectedType: models.DetectionAbuse,
		Confidence:   0.9,
	}}
	storage := NewMockStorage()
	dispatcher := &MockDispatcher{}
	pool := newTestPool(analyzer, storage, dispatcher)

	acked := false
	pool.processJob(receivedJob("msg_3", "abusive content", models.PriorityHigh, &acked))

	_, high := dispatcher.Counts()
	if high != 1 {
		t.Errorf("Expected high-priority dispatch, got %d", high)
	}
}

func TestProcessJob_PersistFailureLeavesUnacked(t *testing.T) {
	analyzer := &MockAnalyzer{result: &models.AnalysisResult{
		DetectedType: models.DetectionNormal,
		Confidence:   0.9,
	}}
	storage := NewMockStorage()
	storage.updateErr = errors.New("storage down")
	dispatcher := &MockDispatcher{}
	pool := newTestPool(analyzer, storage, dispatcher)

	acked := false
	pool.processJob(receivedJob("msg_4", "message", models.PriorityNormal, &acked))

	if acked {
		t.Error("Expected failed job to stay unacked for redelivery")
	}
	if storage.Status("msg_4") != models.StatusFailed {
		t.Errorf("Expected failed status, got %s", storage.Status("msg_4"))
	}
}

func TestProcessJob_LowConfidenceNotDispatched(t *testing.T) {
	analyzer := &MockAnalyzer{result: &models.AnalysisResult{
		DetectedType: models.DetectionSpam,
		Confidence:   0.1,
	}}
	storage := NewMockStorage()
	dispatcher := &MockDispatcher{}

	cfg := testWorkerConfig()
	cfg.Alerts.MinAlertConfidence = 0.5
	pool := NewAnalysisWorkerPool(cfg, nil, analyzer, storage, dispatcher, &MockEvents{}, arbor.NewLogger())

	acked := false
	pool.processJob(receivedJob("msg_5", "maybe spam", models.PriorityNormal, &acked))

	if !acked {
		t.Error("Expected job acked: low-confidence results persist without alerting")
	}
	dispatches, _ := dispatcher.Counts()
	if dispatches != 0 {
		t.Error("Expected no dispatch below the confidence floor")
	}
}

func TestProcessJob_IdempotentReprocessing(t *testing.T) {
	analyzer := &MockAnalyzer{result: &models.AnalysisResult{
		DetectedType: models.DetectionNormal,
		Confidence:   0.9,
	}}
	storage := NewMockStorage()
	dispatcher := &MockDispatcher{}
	pool := newTestPool(analyzer, storage, dispatcher)

	// Same job delivered twice, as after a crash before ack
	for i := 0; i < 2; i++ {
		acked := false
		pool.processJob(receivedJob("msg_6", "message", models.PriorityNormal, &acked))
		if !acked {
			t.Fatalf("Delivery %d not acked", i+1)
		}
	}

	if storage.Status("msg_6") != models.StatusAnalyzed {
		t.Errorf("Expected analyzed after reprocessing, got %s", storage.Status("msg_6"))
	}
	count, err := storage.CountByStatus(context.Background(), models.StatusAnalyzed)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected a single upserted record, got %d", count)
	}
}
