package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/sentinel/internal/models"
)

// AnalysisCache is a time-bounded, content-addressed cache of classification
// results. Callers follow cache-aside: check before calling the analyzer,
// store after. Keys derive deterministically from (content, chatRoomLabel).
type AnalysisCache interface {
	// Get returns the cached result for the content/room pair, or
	// (nil, false) on miss or expiry. Expired entries are dropped lazily.
	Get(ctx context.Context, content, chatRoomLabel string) (*models.AnalysisResult, bool)

	// Put stores a result under the pair's content hash for ttl.
	// Last write wins; no transactional guarantee is required.
	Put(ctx context.Context, content, chatRoomLabel string, result *models.AnalysisResult, ttl time.Duration) error

	// Invalidate removes the entry for the pair. Returns true if an entry
	// was present.
	Invalidate(ctx context.Context, content, chatRoomLabel string) (bool, error)

	// Sweep removes expired entries. Optional optimization; lazy expiry on
	// read is the correctness mechanism.
	Sweep(ctx context.Context) (int, error)
}
