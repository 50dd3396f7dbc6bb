package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/kagent-dev/toolbridge/internal/apperrors"
	"github.com/kagent-dev/toolbridge/internal/llm"
)

type connectRequest struct {
	Provider string `json:"provider,omitempty"`
}

type connectResponse struct {
	SessionID string   `json:"session_id"`
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
	Tools     []string `json:"tools"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	token, err := extractBearerToken(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req connectRequest
	if r.Body != nil {
		// An empty body is fine; the provider just falls back to the default.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	providerName := req.Provider
	if providerName == "" {
		providerName = s.cfg.LLM.DefaultProvider
	}
	providerName = llm.Normalize(providerName)

	sess, err := s.registry.Create(r.Context(), s.cfg.MCP.Endpoint, token, providerName, s.providerConfig(providerName))
	if err != nil {
		s.writeError(w, err)
		return
	}

	tools := make([]string, 0, len(sess.Tools()))
	for _, t := range sess.Tools() {
		tools = append(tools, t.Name)
	}
	writeJSON(w, http.StatusOK, connectResponse{
		SessionID: sess.ID,
		Provider:  sess.Provider.Name(),
		Model:     sess.Provider.Model(),
		Tools:     tools,
	})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type chatResponse struct {
	Response           string   `json:"response"`
	ConversationLength int      `json:"conversation_length"`
	ToolsInvoked       []string `json:"tools_invoked,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid request body", err))
		return
	}
	if req.SessionID == "" || req.Query == "" {
		s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "session_id and query are required", nil))
		return
	}

	result, err := s.registry.Chat(r.Context(), req.SessionID, req.Query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response:           result.Text,
		ConversationLength: result.ConversationLength,
		ToolsInvoked:       result.ToolsInvoked,
	})
}

type disconnectRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req disconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid request body", err))
		return
	}
	if req.SessionID == "" {
		s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "session_id is required", nil))
		return
	}

	err := s.registry.Remove(r.Context(), req.SessionID)
	if err != nil && apperrors.HasCode(err, apperrors.ErrCodeSessionNotFound) {
		s.writeError(w, err)
		return
	}
	if err != nil {
		// Local removal already happened; termination trouble is log-only.
		s.logger.V(1).Info("session terminated with error", "session", req.SessionID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": s.registry.List(),
	})
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	jwt, err := extractBearerToken(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	token, err := s.exchanger.Exchange(r.Context(), jwt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}
