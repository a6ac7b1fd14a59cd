package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/models"
)

const classificationSystemPrompt = `You are a chat moderation specialist for group messaging rooms.

Task: Classify the user message into exactly one category.

Categories:
- normal: ordinary conversation
- spam: flooding, repeated content, scam or phishing messages
- advertisement: unsolicited promotion, sales, or solicitation
- abuse: insults, harassment, threats
- inappropriate: sexual or otherwise unacceptable content
- conflict: escalating arguments between members

Output Format (JSON only, no markdown fences):
{
  "detected_type": "normal",
  "confidence": 0.95,
  "reasoning": "One sentence explaining the classification"
}`

// Service implements the AnalyzerService interface. It resolves a message
// through cache -> LLM provider (bounded timeout, linear backoff retries) ->
// deterministic keyword fallback, and caches whatever it returns.
type Service struct {
	llm    interfaces.LLMService
	cache  interfaces.AnalysisCache
	logger arbor.ILogger

	cacheTTL       time.Duration
	maxRetries     int
	baseDelay      time.Duration
	requestTimeout time.Duration
	healthTimeout  time.Duration
}

// NewService creates an analyzer backed by the given LLM provider and cache.
func NewService(cfg *common.AnalyzerConfig, llm interfaces.LLMService, cache interfaces.AnalysisCache, logger arbor.ILogger) *Service {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Service{
		llm:            llm,
		cache:          cache,
		logger:         logger,
		cacheTTL:       cfg.GetCacheTTL(),
		maxRetries:     maxRetries,
		baseDelay:      cfg.GetRetryBaseDelay(),
		requestTimeout: cfg.GetRequestTimeout(),
		healthTimeout:  cfg.GetHealthTimeout(),
	}
}

// Analyze classifies a message. Capability failures never surface as errors:
// exhausted retries degrade to the fallback classifier, so the returned
// result is always usable. Confidence is clamped to [0,1] on every path.
func (s *Service) Analyze(ctx context.Context, content, chatRoomLabel string) (*models.AnalysisResult, error) {
	startTime := time.Now()

	if cached, ok := s.cache.Get(ctx, content, chatRoomLabel); ok {
		hit := *cached
		hit.ProcessingTimeMs = time.Since(startTime).Milliseconds()
		s.logger.Debug().
			Str("chat_room", chatRoomLabel).
			Str("detected_type", string(hit.DetectedType)).
			Msg("Analysis cache hit")
		return &hit, nil
	}

	result, lastErr := s.classifyWithRetries(ctx, content, chatRoomLabel)
	if result == nil {
		s.logger.Warn().
			Err(lastErr).
			Str("chat_room", chatRoomLabel).
			Int("max_retries", s.maxRetries).
			Msg("AI capability unavailable, degrading to fallback classifier")
		result = ClassifyFallback(content)
	}

	result.Confidence = models.ClampConfidence(result.Confidence)
	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()

	if err := s.cache.Put(ctx, content, chatRoomLabel, result, s.cacheTTL); err != nil {
		// A cache write failure only costs a future lookup
		s.logger.Warn().Err(err).Msg("Failed to cache analysis result")
	}

	return result, nil
}

// CheckHealth probes the provider with a trivial request and a short
// timeout. It shares no state with the analyze path's retries.
func (s *Service) CheckHealth(ctx context.Context) bool {
	if s.llm == nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.healthTimeout)
	defer cancel()

	if err := s.llm.HealthCheck(probeCtx); err != nil {
		s.logger.Warn().Err(err).Msg("AI capability health probe failed")
		return false
	}
	return true
}

// classifyWithRetries calls the provider up to maxRetries times with a
// per-attempt timeout and linearly scaled backoff between attempts.
// Returns (nil, lastErr) when every attempt failed or the context died.
func (s *Service) classifyWithRetries(ctx context.Context, content, chatRoomLabel string) (*models.AnalysisResult, error) {
	// No provider configured: degrade straight to the fallback classifier
	if s.llm == nil {
		return nil, fmt.Errorf("no AI provider configured")
	}

	var lastErr error

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
		result, err := s.classifyOnce(attemptCtx, content, chatRoomLabel)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		s.logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Int("max_retries", s.maxRetries).
			Msg("Classification attempt failed")

		if attempt == s.maxRetries {
			break
		}

		// Linear backoff: attempt * base delay
		backoff := time.Duration(attempt) * s.baseDelay
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return nil, lastErr
}

// classifyOnce performs a single provider round-trip and parses the reply.
func (s *Service) classifyOnce(ctx context.Context, content, chatRoomLabel string) (*models.AnalysisResult, error) {
	messages := []interfaces.Message{
		{Role: "system", Content: classificationSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Chat room: %s\nMessage: %s", chatRoomLabel, content)},
	}

	response, err := s.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("provider call failed: %w", err)
	}

	result, err := parseClassificationResponse(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse provider response: %w (response: %s)", err, response)
	}

	return result, nil
}

var fencePattern = regexp.MustCompile(`(?s)^\s*` + "```" + `(?:json|JSON)?\s*\n?(.*?)\n?\s*` + "```" + `\s*$`)

// cleanMarkdownFences removes markdown code fences that models sometimes
// wrap around JSON output despite instructions.
func cleanMarkdownFences(s string) string {
	s = strings.TrimSpace(s)

	if matches := fencePattern.FindStringSubmatch(s); len(matches) > 1 {
		s = matches[1]
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}

// parseClassificationResponse parses the provider's JSON reply into an
// AnalysisResult. Unknown detected_type values degrade to "unknown" rather
// than failing the attempt; confidence is clamped here so malformed provider
// values never escape.
func parseClassificationResponse(response string) (*models.AnalysisResult, error) {
	cleaned := cleanMarkdownFences(response)

	var parsed struct {
		DetectedType string  `json:"detected_type"`
		Confidence   float64 `json:"confidence"`
		Reasoning    string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if strings.TrimSpace(parsed.DetectedType) == "" {
		return nil, fmt.Errorf("response missing detected_type")
	}

	return &models.AnalysisResult{
		DetectedType: models.ParseDetectionType(parsed.DetectedType),
		Confidence:   models.ClampConfidence(parsed.Confidence),
		Reasoning:    parsed.Reasoning,
		UsedFallback: false,
	}, nil
}

var _ interfaces.AnalyzerService = (*Service)(nil)
