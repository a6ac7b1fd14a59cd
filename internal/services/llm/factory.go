package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/interfaces"
)

// NewLLMService creates the appropriate LLM service implementation based on
// the configured default provider.
func NewLLMService(cfg *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	provider := cfg.LLM.DefaultProvider
	if provider == "" {
		provider = common.LLMProviderClaude
	}

	logger.Info().Str("provider", string(provider)).Msg("Initializing LLM service")

	switch provider {
	case common.LLMProviderClaude:
		service, err := NewClaudeService(&cfg.Claude, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Claude LLM service: %w", err)
		}
		return service, nil

	case common.LLMProviderGemini:
		service, err := NewGeminiService(&cfg.Gemini, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini LLM service: %w", err)
		}
		return service, nil

	default:
		return nil, fmt.Errorf("invalid LLM provider '%s': must be 'claude' or 'gemini'", provider)
	}
}
