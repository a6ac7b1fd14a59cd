package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/models"
)

func newTestCache(t *testing.T) *Service {
	t.Helper()

	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewService(db, arbor.NewLogger(), 300*time.Second)
}

func sampleResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		DetectedType: models.DetectionSpam,
		Confidence:   0.9,
		Reasoning:    "repeated content",
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	key1 := CacheKey("안녕하세요", "Room A")
	key2 := CacheKey("안녕하세요", "Room A")
	if key1 != key2 {
		t.Error("Identical inputs must produce identical keys")
	}

	if CacheKey("안녕하세요", "Room A") == CacheKey("안녕하세요", "Room B") {
		t.Error("Different rooms must produce different keys")
	}
	if CacheKey("ab", "c") == CacheKey("a", "bc") {
		t.Error("Key derivation must separate content and room")
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "message", "Room A"); ok {
		t.Fatal("Expected miss on empty cache")
	}

	if err := cache.Put(ctx, "message", "Room A", sampleResult(), 300*time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	result, ok := cache.Get(ctx, "message", "Room A")
	if !ok {
		t.Fatal("Expected hit after put")
	}
	if result.DetectedType != models.DetectionSpam || result.Confidence != 0.9 {
		t.Errorf("Cached result differs: %+v", result)
	}

	// Different room is a different entry
	if _, ok := cache.Get(ctx, "message", "Room B"); ok {
		t.Error("Expected miss for a different room")
	}
}

func TestGet_LazyExpiry(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Put(ctx, "message", "Room A", sampleResult(), 50*time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, ok := cache.Get(ctx, "message", "Room A"); !ok {
		t.Fatal("Expected hit before expiry")
	}

	time.Sleep(80 * time.Millisecond)

	if _, ok := cache.Get(ctx, "message", "Room A"); ok {
		t.Error("Expected miss past expiry")
	}
}

func TestInvalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	existed, err := cache.Invalidate(ctx, "message", "Room A")
	if err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if existed {
		t.Error("Expected existed=false for absent entry")
	}

	if err := cache.Put(ctx, "message", "Room A", sampleResult(), 300*time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	existed, err = cache.Invalidate(ctx, "message", "Room A")
	if err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if !existed {
		t.Error("Expected existed=true for present entry")
	}

	if _, ok := cache.Get(ctx, "message", "Room A"); ok {
		t.Error("Expected miss after invalidation")
	}
}

func TestSweep(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Put(ctx, "short", "Room A", sampleResult(), 50*time.Millisecond); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := cache.Put(ctx, "long", "Room A", sampleResult(), 300*time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	removed, err := cache.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 swept entry, got %d", removed)
	}

	if _, ok := cache.Get(ctx, "long", "Room A"); !ok {
		t.Error("Sweep must not remove live entries")
	}
}

func TestPut_LastWriteWins(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	first := sampleResult()
	if err := cache.Put(ctx, "message", "Room A", first, 300*time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	second := &models.AnalysisResult{
		DetectedType: models.DetectionNormal,
		Confidence:   0.7,
	}
	if err := cache.Put(ctx, "message", "Room A", second, 300*time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	result, ok := cache.Get(ctx, "message", "Room A")
	if !ok {
		t.Fatal("Expected hit")
	}
	if result.DetectedType != models.DetectionNormal {
		t.Errorf("Expected last write to win, got %s", result.DetectedType)
	}
}
