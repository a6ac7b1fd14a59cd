package channels

import (
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/sentinel/internal/models"
)

func TestHealthTracker_SuccessResetsFailures(t *testing.T) {
	tracker := NewHealthTracker("test", true, 10*time.Minute, 5)

	for i := 0; i < 4; i++ {
		tracker.RecordOutcome(false)
	}
	if !tracker.Healthy() {
		t.Error("Expected healthy below the failure threshold")
	}

	tracker.RecordOutcome(false)
	if tracker.Healthy() {
		t.Error("Expected unhealthy at the failure threshold with no recent success")
	}

	tracker.RecordOutcome(true)
	status := tracker.Status()
	if status.ConsecutiveFailures != 0 {
		t.Errorf("Expected failure counter reset, got %d", status.ConsecutiveFailures)
	}
	if status.LastSuccessTime.IsZero() {
		t.Error("Expected LastSuccessTime to be stamped")
	}
	if !tracker.Healthy() {
		t.Error("Expected healthy after a success")
	}
}

func TestHealthTracker_RecentSuccessOverridesFailures(t *testing.T) {
	tracker := NewHealthTracker("test", true, 10*time.Minute, 5)

	tracker.RecordOutcome(true)
	for i := 0; i < 10; i++ {
		tracker.RecordOutcome(false)
	}

	// Ten consecutive failures, but the success is within the window
	if !tracker.Healthy() {
		t.Error("Expected healthy while last success is inside the window")
	}
}

func TestHealthTracker_ConcurrentUpdates(t *testing.T) {
	tracker := NewHealthTracker("test", true, 10*time.Minute, 5)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.RecordOutcome(false)
		}()
	}
	wg.Wait()

	status := tracker.Status()
	if status.ConsecutiveFailures != 50 {
		t.Errorf("Expected 50 failures after concurrent updates, got %d", status.ConsecutiveFailures)
	}
}

func TestTypeSupported(t *testing.T) {
	t.Run("Empty list covers all abnormal types", func(t *testing.T) {
		if !typeSupported(nil, models.DetectionSpam) {
			t.Error("Expected spam supported with empty allowlist")
		}
		if typeSupported(nil, models.DetectionNormal) {
			t.Error("Normal must never be alertable")
		}
	})

	t.Run("Explicit list filters", func(t *testing.T) {
		allowed := []string{"abuse", "inappropriate"}
		if !typeSupported(allowed, models.DetectionAbuse) {
			t.Error("Expected abuse supported")
		}
		if typeSupported(allowed, models.DetectionSpam) {
			t.Error("Expected spam filtered out")
		}
	})
}
