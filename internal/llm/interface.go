// Package llm contains the provider adapters. Each adapter normalizes the
// bridge's provider-neutral tool descriptors and conversation history into
// one provider family's wire shape and extracts text plus tool requests from
// the response. Orchestration logic never lives here.
package llm

import (
	"context"

	"github.com/kagent-dev/toolbridge/internal/conversation"
	"github.com/kagent-dev/toolbridge/internal/models"
)

// Provider is an interface for LLM providers
type Provider interface {
	// Chat sends the full history plus tool list to the model and returns
	// the normalized response
	Chat(ctx context.Context, history []conversation.Message, tools []models.ToolDescriptor) (*models.ChatResponse, error)

	// Name returns the provider name
	Name() string

	// Model returns the model identifier in use
	Model() string
}

// Config carries per-provider settings.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

const defaultMaxTokens = 4096

func (c Config) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return defaultMaxTokens
}
