package interfaces

import (
	"context"

	"github.com/ternarybob/sentinel/internal/models"
)

// AnalyzerService resolves a message to an AnalysisResult through
// cache -> AI capability (with retry/backoff) -> deterministic fallback.
// Analyze never returns an error for capability failures: exhausted retries
// degrade to the fallback classifier.
type AnalyzerService interface {
	// Analyze classifies a message. The returned result always has a
	// confidence within [0,1] and is cached before returning.
	Analyze(ctx context.Context, content, chatRoomLabel string) (*models.AnalysisResult, error)

	// CheckHealth probes the AI capability with a trivial request and a
	// short timeout. Probe failures do not touch the analyze path's retry
	// counters.
	CheckHealth(ctx context.Context) bool
}
