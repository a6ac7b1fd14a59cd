package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/models"
)

// testConfig builds a configuration suitable for in-process testing: Badger
// in a temp dir, console channel only, no AI provider, fast queue polling.
func testConfig(t *testing.T) *common.Config {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Storage.Badger.Path = t.TempDir()
	config.Queue.BlockTimeout = "100ms"
	config.Queue.PollInterval = "10ms"
	config.Scheduler.Enabled = false
	config.Claude.APIKey = ""
	config.Gemini.APIKey = ""
	return config
}

// TestApplicationStartup verifies that the application initializes successfully
// and every pipeline component is available without an AI provider configured.
func TestApplicationStartup(t *testing.T) {
	config := testConfig(t)
	logger := arbor.NewLogger()

	application, err := New(config, logger)
	require.NoError(t, err, "Application initialization should succeed")
	require.NotNil(t, application, "Application should not be nil")
	defer application.Close()

	// No API key configured: provider is nil, classification degrades to fallback
	assert.Nil(t, application.LLMService, "LLM service should be nil without an API key")

	require.NotNil(t, application.StorageManager, "Storage manager should be initialized")
	require.NotNil(t, application.StorageManager.DB(), "Database should be initialized")
	require.NotNil(t, application.Queue, "Analysis queue should be initialized")
	require.NotNil(t, application.CacheService, "Cache service should be initialized")
	require.NotNil(t, application.AnalyzerService, "Analyzer service should be initialized")
	require.NotNil(t, application.Dispatcher, "Alert dispatcher should be initialized")
	require.NotNil(t, application.EventService, "Event service should be initialized")
	require.NotNil(t, application.WorkerPool, "Worker pool should be initialized")
	require.NotNil(t, application.StatusService, "Status service should be initialized")
	require.NotNil(t, application.SchedulerService, "Scheduler service should be initialized")
}

// TestPipelineEndToEnd exercises the whole path: enqueue -> worker pool ->
// analyzer (fallback, no provider) -> persistence -> console dispatch.
func TestPipelineEndToEnd(t *testing.T) {
	config := testConfig(t)
	logger := arbor.NewLogger()

	application, err := New(config, logger)
	require.NoError(t, err, "Application initialization should succeed")
	defer application.Close()

	require.NoError(t, application.Start(), "Pipeline should start")

	ctx := context.Background()

	job := &models.AnalysisJob{
		JobID:         common.NewMessageID(),
		Content:       "당첨되셨습니다! 지금 클릭하세요",
		ChatRoomLabel: "Room A",
		Priority:      models.PriorityNormal,
		EnqueuedAt:    time.Now(),
	}
	messageID, err := application.Queue.Enqueue(ctx, job)
	require.NoError(t, err, "Enqueue should succeed")
	require.NotEmpty(t, messageID, "Enqueue should assign a message ID")

	// Wait for the worker pool to drain the queue and persist the result
	storage := application.StorageManager.MessageStorage()
	deadline := time.Now().Add(5 * time.Second)
	var record *models.MessageRecord
	for time.Now().Before(deadline) {
		if record, err = storage.GetRecord(ctx, job.JobID); err == nil && record.Status == models.StatusAnalyzed {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NotNil(t, record, "Record should be persisted")
	require.Equal(t, models.StatusAnalyzed, record.Status, "Job should be analyzed within the deadline")

	assert.True(t, record.UsedFallback, "Without a provider the fallback classifier should be used")
	assert.Equal(t, models.DetectionSpam, record.DetectedType, "Spam keywords should classify as spam")
	assert.Equal(t, "Room A", record.ChatRoomLabel)

	// Queue should be drained after processing
	status, err := application.Queue.Status(ctx)
	require.NoError(t, err, "Queue status should be readable")
	assert.Equal(t, 0, status.PendingCount, "Queue should be drained")

	// Status snapshot should reflect the analyzed message
	snapshot := application.StatusService.Snapshot(ctx)
	require.NotNil(t, snapshot)
	assert.Equal(t, 1, snapshot.AnalyzedCount, "Snapshot should count the analyzed message")
}
