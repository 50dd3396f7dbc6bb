package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/kagent-dev/toolbridge/internal/apperrors"
	"github.com/kagent-dev/toolbridge/internal/conversation"
	"github.com/kagent-dev/toolbridge/internal/models"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"

type anthropicProvider struct {
	client anthropic.Client
	config Config
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(cfg Config) Provider {
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicProvider{
		client: anthropic.NewClient(opts...),
		config: cfg,
	}
}

func (p *anthropicProvider) Name() string {
	return ProviderAnthropic
}

func (p *anthropicProvider) Model() string {
	return p.config.Model
}

func (p *anthropicProvider) Chat(ctx context.Context, history []conversation.Message, tools []models.ToolDescriptor) (*models.ChatResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		Messages:  convertMessagesToAnthropic(history),
		MaxTokens: int64(p.config.maxTokens()),
	}
	if p.config.Temperature > 0 {
		params.Temperature = anthropic.Float(p.config.Temperature)
	}
	if len(tools) > 0 {
		params.Tools = convertToolsToAnthropic(tools)
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeProviderFailure, "anthropic API call failed", err)
	}

	response := &models.ChatResponse{
		FinishReason: string(message.StopReason),
		TokenUsage: models.TokenUsage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}

	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			response.Text += b.Text
		case anthropic.ToolUseBlock:
			args := map[string]interface{}{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &args); err != nil {
					return nil, apperrors.New(apperrors.ErrCodeProviderFailure,
						fmt.Sprintf("failed to parse tool_use input for %s", b.Name), err)
				}
			}
			id := b.ID
			if id == "" {
				id = uuid.NewString()
			}
			response.ToolRequests = append(response.ToolRequests, models.ToolRequest{
				ID:        id,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}

	return response, nil
}

func convertMessagesToAnthropic(history []conversation.Message) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		switch msg.Kind {
		case conversation.KindUserText:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case conversation.KindAssistantText:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		case conversation.KindAssistantToolRequest:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolRequests)+1)
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, req := range msg.ToolRequests {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    req.ID,
						Name:  req.Name,
						Input: req.Arguments,
					},
				})
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		case conversation.KindToolResult:
			// Anthropic expects tool results inside a user-role message.
			messages = append(messages, anthropic.NewUserMessage(anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: msg.CallID,
					Content: []anthropic.ToolResultBlockParamContentUnion{
						{OfText: &anthropic.TextBlockParam{Text: msg.Content}},
					},
				},
			}))
		}
	}
	return messages
}

func convertToolsToAnthropic(tools []models.ToolDescriptor) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := tool.InputSchema["properties"]; ok {
			schema.Properties = props
		}
		if required, ok := tool.InputSchema["required"]; ok {
			schema.Required = toStringSlice(required)
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: schema,
			},
		})
	}
	return result
}

func toStringSlice(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, val := range vals {
			if s, ok := val.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
