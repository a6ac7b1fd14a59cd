package interfaces

import "context"

// Message represents a single message in a model conversation
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// LLMMode indicates where a provider runs
type LLMMode string

const (
	LLMModeCloud LLMMode = "cloud"
)

// LLMService abstracts the external classification capability.
// Implementations wrap one provider's chat API; retry, fallback, and caching
// live above this interface in the analyzer.
type LLMService interface {
	// Chat generates a completion for the conversation history.
	Chat(ctx context.Context, messages []Message) (string, error)

	// HealthCheck verifies the provider is reachable with a minimal probe.
	HealthCheck(ctx context.Context) error

	// GetMode returns the provider's operational mode.
	GetMode() LLMMode

	Close() error
}
