// Package models holds the provider-neutral types exchanged between the
// MCP client, the provider adapters and the orchestrator.
package models

// ToolDescriptor describes a callable tool in provider-neutral form.
// Name is the invocation key on the MCP server and must be surfaced to the
// model byte-identical; the adapters wrap but never rewrite it.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema
}

// ToolRequest represents a tool call requested by the model.
type ToolRequest struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ChatResponse represents a model response normalized across providers.
type ChatResponse struct {
	Text         string        `json:"text"`
	ToolRequests []ToolRequest `json:"tool_requests,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
	TokenUsage   TokenUsage    `json:"token_usage"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates token usage across calls.
func (t *TokenUsage) Add(other TokenUsage) {
	t.PromptTokens += other.PromptTokens
	t.CompletionTokens += other.CompletionTokens
	t.TotalTokens += other.TotalTokens
}
