// Package session tracks live bridge sessions keyed by the MCP server's
// session id and serializes chat rounds per session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/kagent-dev/toolbridge/internal/conversation"
	"github.com/kagent-dev/toolbridge/internal/llm"
	"github.com/kagent-dev/toolbridge/internal/models"
	"github.com/kagent-dev/toolbridge/internal/orchestrator"
)

// ToolConn is the slice of the MCP client a session needs. Satisfied by
// *mcpclient.Client; tests substitute fakes.
type ToolConn interface {
	SessionID() string
	Tools() []models.ToolDescriptor
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) (string, error)
	Terminate(ctx context.Context) error
}

// Session binds one MCP connection to one provider and a conversation
// history. All chat rounds on a session run under its mutex, so appends to
// the history are strictly ordered.
type Session struct {
	ID        string
	Provider  llm.Provider
	CreatedAt time.Time

	mu           sync.Mutex
	conn         ToolConn
	history      *conversation.History
	orch         *orchestrator.Orchestrator
	lastActivity time.Time
}

func newSession(id string, provider llm.Provider, conn ToolConn, logger logr.Logger) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Provider:     provider,
		CreatedAt:    now,
		conn:         conn,
		history:      conversation.NewHistory(),
		orch:         orchestrator.New(provider, conn, logger.WithValues("session", id)),
		lastActivity: now,
	}
}

// Chat runs one orchestrated round on this session.
func (s *Session) Chat(ctx context.Context, userText string) (*orchestrator.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
	return s.orch.Run(ctx, s.history, s.conn.Tools(), userText)
}

// Tools returns the descriptors discovered when the session connected.
func (s *Session) Tools() []models.ToolDescriptor {
	return s.conn.Tools()
}

// History returns a copy of the session's message sequence.
func (s *Session) History() []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Messages()
}

// LastActivity reports when the session last served a request.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) terminate(ctx context.Context) error {
	return s.conn.Terminate(ctx)
}
