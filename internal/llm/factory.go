package llm

import (
	"strings"

	"github.com/kagent-dev/toolbridge/internal/apperrors"
)

// Supported provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"

	DefaultProvider = ProviderAnthropic
)

// Normalize lower-cases a provider name and maps the empty or unrecognized
// value to the default provider.
func Normalize(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProviderAnthropic:
		return ProviderAnthropic
	case ProviderOpenAI:
		return ProviderOpenAI
	case ProviderGemini:
		return ProviderGemini
	default:
		return DefaultProvider
	}
}

// New creates a provider adapter by exact name. Callers that want
// default-on-unknown semantics pass the name through Normalize first.
func New(name string, cfg Config) (Provider, error) {
	switch name {
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	case ProviderGemini:
		return NewGeminiProvider(cfg), nil
	}
	return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "unsupported provider: "+name, nil)
}
