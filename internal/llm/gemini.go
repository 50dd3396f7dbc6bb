package llm

// Gemini exposes an OpenAI-compatible chat completions endpoint, so the
// adapter reuses the OpenAI wire conversion with a different base URL and
// provider name.

const (
	geminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

	defaultGeminiModel = "gemini-2.0-flash"
)

// NewGeminiProvider creates a new Gemini provider backed by the
// OpenAI-compatible endpoint.
func NewGeminiProvider(cfg Config) Provider {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiOpenAIBaseURL
	}
	p := NewOpenAIProvider(cfg).(*openaiProvider)
	p.name = ProviderGemini
	return p
}
