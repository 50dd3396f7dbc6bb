// Package conversation models per-session chat history as a closed set of
// message kinds with an append-only ordering guarantee.
package conversation

import (
	"time"

	"github.com/kagent-dev/toolbridge/internal/apperrors"
	"github.com/kagent-dev/toolbridge/internal/models"
)

// Kind identifies the variant of a history message.
type Kind string

const (
	KindUserText             Kind = "user_text"
	KindAssistantText        Kind = "assistant_text"
	KindAssistantToolRequest Kind = "assistant_tool_request"
	KindToolResult           Kind = "tool_result"
)

// Message is one entry in a session's history. Exactly one variant applies:
// ToolRequests is set only for KindAssistantToolRequest, CallID only for
// KindToolResult. Messages are built through the constructors below so a
// malformed variant can never enter a history.
type Message struct {
	Kind         Kind                 `json:"kind"`
	Content      string               `json:"content"`
	ToolRequests []models.ToolRequest `json:"tool_requests,omitempty"`
	CallID       string               `json:"call_id,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

// NewUserText creates a user query message.
func NewUserText(content string) Message {
	return Message{Kind: KindUserText, Content: content, Timestamp: time.Now()}
}

// NewAssistantText creates a plain-text assistant message.
func NewAssistantText(content string) Message {
	return Message{Kind: KindAssistantText, Content: content, Timestamp: time.Now()}
}

// NewAssistantToolRequest creates the aggregate assistant message for a
// response that requested tool calls. The text portion may be empty; the
// request list may not.
func NewAssistantToolRequest(content string, requests []models.ToolRequest) (Message, error) {
	if len(requests) == 0 {
		return Message{}, apperrors.New(apperrors.ErrCodeInvalidInput, "assistant tool request without tool requests", nil)
	}
	return Message{
		Kind:         KindAssistantToolRequest,
		Content:      content,
		ToolRequests: requests,
		Timestamp:    time.Now(),
	}, nil
}

// NewToolResult creates a tool result message correlated to an earlier
// assistant tool request by call id.
func NewToolResult(callID, content string) (Message, error) {
	if callID == "" {
		return Message{}, apperrors.New(apperrors.ErrCodeInvalidInput, "tool result requires a call id", nil)
	}
	return Message{Kind: KindToolResult, Content: content, CallID: callID, Timestamp: time.Now()}, nil
}

// History is the strictly append-only message sequence of one session.
// It is not safe for concurrent use; the owning session serializes access.
type History struct {
	messages []Message
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds a message to the end of the history. A ToolResult is accepted
// only when an earlier AssistantToolRequest carries the same call id.
func (h *History) Append(msg Message) error {
	if msg.Kind == KindToolResult && !h.hasToolRequest(msg.CallID) {
		return apperrors.New(apperrors.ErrCodeInvalidInput,
			"tool result "+msg.CallID+" has no matching tool request", nil)
	}
	h.messages = append(h.messages, msg)
	return nil
}

func (h *History) hasToolRequest(callID string) bool {
	for _, msg := range h.messages {
		if msg.Kind != KindAssistantToolRequest {
			continue
		}
		for _, req := range msg.ToolRequests {
			if req.ID == callID {
				return true
			}
		}
	}
	return false
}

// Len returns the number of messages appended so far.
func (h *History) Len() int {
	return len(h.messages)
}

// Messages returns a copy of the ordered message sequence.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}
