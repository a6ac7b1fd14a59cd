package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/models"
	"github.com/ternarybob/sentinel/internal/services/status"
)

// MockStatusSource returns a canned snapshot
type MockStatusSource struct {
	snapshot *status.Snapshot
}

func (m *MockStatusSource) Snapshot(ctx context.Context) *status.Snapshot {
	return m.snapshot
}

// MockEventService records published events in memory
type MockEventService struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (m *MockEventService) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return nil
}

func (m *MockEventService) Publish(ctx context.Context, event interfaces.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventService) PublishSync(ctx context.Context, event interfaces.Event) error {
	return m.Publish(ctx, event)
}

func (m *MockEventService) Close() error { return nil }

func (m *MockEventService) Published() []interfaces.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]interfaces.Event, len(m.events))
	copy(out, m.events)
	return out
}

// MockCache counts sweeps
type MockCache struct {
	sweeps  int
	removed int
}

func (m *MockCache) Get(ctx context.Context, content, chatRoomLabel string) (*models.AnalysisResult, bool) {
	return nil, false
}

func (m *MockCache) Put(ctx context.Context, content, chatRoomLabel string, result *models.AnalysisResult, ttl time.Duration) error {
	return nil
}

func (m *MockCache) Invalidate(ctx context.Context, content, chatRoomLabel string) (bool, error) {
	return false, nil
}

func (m *MockCache) Sweep(ctx context.Context) (int, error) {
	m.sweeps++
	return m.removed, nil
}

func healthySnapshot() *status.Snapshot {
	return &status.Snapshot{
		Timestamp:       time.Now().UTC(),
		AnalyzerHealthy: true,
		Queue:           models.QueueStatus{Healthy: true},
		Dispatcher: models.DispatcherHealth{
			OverallHealthy: true,
			Channels: []models.ChannelHealthStatus{
				{Name: "slack", Enabled: true, Healthy: true},
			},
		},
	}
}

func newTestScheduler(source StatusSource, events interfaces.EventService) *Service {
	cfg := &common.SchedulerConfig{Enabled: true}
	return NewService(cfg, &MockCache{}, source, events, arbor.NewLogger())
}

func TestHealthProbe_HealthySnapshotPublishesNothing(t *testing.T) {
	events := &MockEventService{}
	svc := newTestScheduler(&MockStatusSource{snapshot: healthySnapshot()}, events)

	svc.runHealthProbe()

	if got := len(events.Published()); got != 0 {
		t.Errorf("Expected no events for a healthy snapshot, got %d", got)
	}
}

func TestHealthProbe_DegradedSnapshotPublishesEvent(t *testing.T) {
	snap := healthySnapshot()
	snap.AnalyzerHealthy = false
	snap.Dispatcher.OverallHealthy = false
	snap.Dispatcher.Channels = []models.ChannelHealthStatus{
		{Name: "slack", Enabled: true, Healthy: false},
		{Name: "console", Enabled: true, Healthy: true},
		{Name: "email", Enabled: false, Healthy: false},
	}

	events := &MockEventService{}
	svc := newTestScheduler(&MockStatusSource{snapshot: snap}, events)

	svc.runHealthProbe()

	published := events.Published()
	if len(published) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(published))
	}
	if published[0].Type != interfaces.EventHealthDegraded {
		t.Errorf("Expected %s event, got %s", interfaces.EventHealthDegraded, published[0].Type)
	}

	payload, ok := published[0].Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("Unexpected payload type %T", published[0].Payload)
	}
	if payload["analyzer_healthy"] != false {
		t.Error("Expected analyzer reported unhealthy")
	}
	unhealthy, ok := payload["unhealthy_channels"].([]string)
	if !ok || len(unhealthy) != 1 || unhealthy[0] != "slack" {
		t.Errorf("Expected only the enabled unhealthy channel, got %v", payload["unhealthy_channels"])
	}
}

func TestCacheSweep_ReportsRemovals(t *testing.T) {
	cache := &MockCache{removed: 3}
	svc := NewService(&common.SchedulerConfig{Enabled: true}, cache,
		&MockStatusSource{snapshot: healthySnapshot()}, &MockEventService{}, arbor.NewLogger())

	svc.runCacheSweep()

	if cache.sweeps != 1 {
		t.Errorf("Expected 1 sweep, got %d", cache.sweeps)
	}
}
