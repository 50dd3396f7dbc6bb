package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kagent-dev/toolbridge/internal/apperrors"
	"github.com/kagent-dev/toolbridge/internal/conversation"
	"github.com/kagent-dev/toolbridge/internal/models"
)

const defaultOpenAIModel = "gpt-4-turbo"

type openaiProvider struct {
	name   string
	client openai.Client
	config Config
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg Config) Provider {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openaiProvider{
		name:   ProviderOpenAI,
		client: openai.NewClient(opts...),
		config: cfg,
	}
}

func (p *openaiProvider) Name() string {
	return p.name
}

func (p *openaiProvider) Model() string {
	return p.config.Model
}

func (p *openaiProvider) Chat(ctx context.Context, history []conversation.Message, tools []models.ToolDescriptor) (*models.ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(p.config.Model),
		Messages:  convertMessagesToOpenAI(history),
		MaxTokens: openai.Int(int64(p.config.maxTokens())),
	}
	if p.config.Temperature > 0 {
		params.Temperature = openai.Float(p.config.Temperature)
	}
	if len(tools) > 0 {
		params.Tools = convertToolsToOpenAI(tools)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeProviderFailure, p.name+" API call failed", err)
	}
	if len(completion.Choices) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeProviderFailure, "no completion choices returned", nil)
	}

	choice := completion.Choices[0]
	response := &models.ChatResponse{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		TokenUsage: models.TokenUsage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		// Arguments arrive as a JSON string and must be parsed before dispatch.
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, apperrors.New(apperrors.ErrCodeProviderFailure,
				fmt.Sprintf("failed to parse tool arguments for %s", tc.Function.Name), err)
		}
		id := tc.ID
		if id == "" {
			id = uuid.NewString()
		}
		response.ToolRequests = append(response.ToolRequests, models.ToolRequest{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return response, nil
}

func convertMessagesToOpenAI(history []conversation.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, msg := range history {
		switch msg.Kind {
		case conversation.KindUserText:
			messages = append(messages, openai.UserMessage(msg.Content))
		case conversation.KindAssistantText:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case conversation.KindAssistantToolRequest:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			for _, req := range msg.ToolRequests {
				argsJSON, _ := json.Marshal(req.Arguments)
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: req.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      req.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case conversation.KindToolResult:
			tool := openai.ChatCompletionToolMessageParam{ToolCallID: msg.CallID}
			tool.Content.OfString = openai.String(msg.Content)
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfTool: &tool})
		}
	}
	return messages
}

func convertToolsToOpenAI(tools []models.ToolDescriptor) []openai.ChatCompletionToolParam {
	result := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, tool := range tools {
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.InputSchema),
			},
		})
	}
	return result
}
