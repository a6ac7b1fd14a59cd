package channels

import (
	"sync"
	"time"

	"github.com/ternarybob/sentinel/internal/models"
)

// HealthTracker keeps per-adapter delivery health. It is the only state
// multiple dispatches mutate concurrently for the same adapter, so every
// update happens under the mutex; no read-modify-write escapes it.
type HealthTracker struct {
	mu                  sync.Mutex
	name                string
	enabled             bool
	window              time.Duration
	failureThreshold    int
	lastSuccessTime     time.Time
	consecutiveFailures int
}

// NewHealthTracker creates a tracker for one adapter. window and threshold
// define the health predicate: a success within window OR fewer consecutive
// failures than threshold.
func NewHealthTracker(name string, enabled bool, window time.Duration, failureThreshold int) *HealthTracker {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	return &HealthTracker{
		name:             name,
		enabled:          enabled,
		window:           window,
		failureThreshold: failureThreshold,
	}
}

// RecordOutcome folds one send attempt into the health state. Success resets
// the failure counter and stamps the success time; failure only increments.
func (h *HealthTracker) RecordOutcome(success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if success {
		h.consecutiveFailures = 0
		h.lastSuccessTime = time.Now()
		return
	}
	h.consecutiveFailures++
}

// Healthy reports the coarse liveness signal. Monitoring only, never routing.
func (h *HealthTracker) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.healthyLocked()
}

func (h *HealthTracker) healthyLocked() bool {
	if !h.lastSuccessTime.IsZero() && time.Since(h.lastSuccessTime) < h.window {
		return true
	}
	return h.consecutiveFailures < h.failureThreshold
}

// Status returns a snapshot for the observability surface.
func (h *HealthTracker) Status() models.ChannelHealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	return models.ChannelHealthStatus{
		Name:                h.name,
		Enabled:             h.enabled,
		Healthy:             h.healthyLocked(),
		LastSuccessTime:     h.lastSuccessTime,
		ConsecutiveFailures: h.consecutiveFailures,
	}
}
