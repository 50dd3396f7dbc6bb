// Package orchestrator drives one chat round: user message in, model call,
// tool executions, and at most one follow-up model call.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/kagent-dev/toolbridge/internal/apperrors"
	"github.com/kagent-dev/toolbridge/internal/conversation"
	"github.com/kagent-dev/toolbridge/internal/llm"
	"github.com/kagent-dev/toolbridge/internal/metrics"
	"github.com/kagent-dev/toolbridge/internal/models"
)

// ToolInvoker executes a named tool and returns its textual output.
type ToolInvoker interface {
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) (string, error)
}

// Result summarizes a completed chat round.
type Result struct {
	Text               string            `json:"text"`
	ToolsInvoked       []string          `json:"tools_invoked,omitempty"`
	ConversationLength int               `json:"conversation_length"`
	Usage              models.TokenUsage `json:"usage"`
	FinishReason       string            `json:"finish_reason,omitempty"`
}

// Orchestrator runs chat rounds against a fixed provider and tool invoker.
type Orchestrator struct {
	provider llm.Provider
	invoker  ToolInvoker
	logger   logr.Logger
}

// New creates an orchestrator.
func New(provider llm.Provider, invoker ToolInvoker, logger logr.Logger) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		invoker:  invoker,
		logger:   logger.WithValues("provider", provider.Name()),
	}
}

// Run executes one round. The user message is committed to the history
// first; a plain-text response appends exactly one assistant message, and a
// tool-requesting response appends the tool request, one result per executed
// tool, and the single follow-up response. Tool requests in the follow-up
// are never executed.
//
// A provider failure leaves everything committed so far in place. A tool
// failure other than server-side session termination aborts the round with
// the failure surfaced to the caller; the failed call and any skipped calls
// are recorded as error results, so the session stays usable for later
// rounds.
func (o *Orchestrator) Run(ctx context.Context, history *conversation.History, tools []models.ToolDescriptor, userText string) (*Result, error) {
	if userText == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "empty user message", nil)
	}
	if err := history.Append(conversation.NewUserText(userText)); err != nil {
		return nil, err
	}

	response, err := o.chat(ctx, history, tools)
	if err != nil {
		metrics.ChatRounds.WithLabelValues(o.provider.Name(), "provider_error").Inc()
		return nil, err
	}

	result := &Result{Usage: response.TokenUsage, FinishReason: response.FinishReason}

	if len(response.ToolRequests) == 0 {
		if err := history.Append(conversation.NewAssistantText(response.Text)); err != nil {
			return nil, err
		}
		result.Text = response.Text
		result.ConversationLength = history.Len()
		metrics.ChatRounds.WithLabelValues(o.provider.Name(), "ok").Inc()
		return result, nil
	}

	toolMsg, err := conversation.NewAssistantToolRequest(response.Text, response.ToolRequests)
	if err != nil {
		return nil, err
	}
	if err := history.Append(toolMsg); err != nil {
		return nil, err
	}

	// Every committed tool request must get a result, even on failure:
	// both provider wire formats reject an assistant tool call with no
	// matching result, so a gap here would poison every later round.
	var toolFailure error
	for _, req := range response.ToolRequests {
		var output string
		if toolFailure != nil {
			output = fmt.Sprintf("tool %s was not executed: an earlier tool call in this round failed", req.Name)
		} else {
			o.logger.Info("invoking tool", "tool", req.Name, "callID", req.ID)
			out, err := o.invoker.CallTool(ctx, req.Name, req.Arguments)
			switch {
			case err != nil && apperrors.HasCode(err, apperrors.ErrCodeSessionTerminated):
				// The session is being evicted; its history is dead.
				metrics.ToolInvocations.WithLabelValues(req.Name, "error").Inc()
				metrics.ChatRounds.WithLabelValues(o.provider.Name(), "tool_error").Inc()
				return nil, err
			case err != nil:
				metrics.ToolInvocations.WithLabelValues(req.Name, "error").Inc()
				toolFailure = err
				output = fmt.Sprintf("tool %s failed: %v", req.Name, err)
			default:
				metrics.ToolInvocations.WithLabelValues(req.Name, "ok").Inc()
				output = out
				result.ToolsInvoked = append(result.ToolsInvoked, req.Name)
			}
		}
		resultMsg, err := conversation.NewToolResult(req.ID, output)
		if err != nil {
			return nil, err
		}
		if err := history.Append(resultMsg); err != nil {
			return nil, err
		}
	}
	if toolFailure != nil {
		metrics.ChatRounds.WithLabelValues(o.provider.Name(), "tool_error").Inc()
		return nil, toolFailure
	}

	followUp, err := o.chat(ctx, history, tools)
	if err != nil {
		metrics.ChatRounds.WithLabelValues(o.provider.Name(), "provider_error").Inc()
		return nil, err
	}
	if len(followUp.ToolRequests) > 0 {
		// One tool pass per round. Further requests are surfaced as text
		// context only, never executed.
		o.logger.Info("follow-up requested more tools, not executing",
			"count", len(followUp.ToolRequests))
	}
	if err := history.Append(conversation.NewAssistantText(followUp.Text)); err != nil {
		return nil, err
	}

	result.Text = followUp.Text
	result.ConversationLength = history.Len()
	result.Usage.Add(followUp.TokenUsage)
	result.FinishReason = followUp.FinishReason
	metrics.ChatRounds.WithLabelValues(o.provider.Name(), "ok").Inc()
	return result, nil
}

func (o *Orchestrator) chat(ctx context.Context, history *conversation.History, tools []models.ToolDescriptor) (*models.ChatResponse, error) {
	start := time.Now()
	response, err := o.provider.Chat(ctx, history.Messages(), tools)
	metrics.ProviderLatency.WithLabelValues(o.provider.Name()).Observe(time.Since(start).Seconds())
	return response, err
}
