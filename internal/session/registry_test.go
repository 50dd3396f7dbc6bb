package session

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/toolbridge/internal/apperrors"
	"github.com/kagent-dev/toolbridge/internal/conversation"
	"github.com/kagent-dev/toolbridge/internal/llm"
	"github.com/kagent-dev/toolbridge/internal/models"
)

type fakeConn struct {
	id         string
	tools      []models.ToolDescriptor
	callErr    error
	callCount  int
	terminated int
	termErr    error
}

func (f *fakeConn) SessionID() string                 { return f.id }
func (f *fakeConn) Tools() []models.ToolDescriptor    { return f.tools }
func (f *fakeConn) Terminate(context.Context) error   { f.terminated++; return f.termErr }
func (f *fakeConn) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	f.callCount++
	if f.callErr != nil {
		return "", f.callErr
	}
	return "output for " + name, nil
}

type fakeProvider struct {
	responses []*models.ChatResponse
	calls     int
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }
func (f *fakeProvider) Chat(ctx context.Context, history []conversation.Message, tools []models.ToolDescriptor) (*models.ChatResponse, error) {
	resp := f.responses[f.calls%len(f.responses)]
	f.calls++
	return resp, nil
}

func textOnlyProvider() *fakeProvider {
	return &fakeProvider{responses: []*models.ChatResponse{{Text: "plain answer"}}}
}

func toolThenTextProvider() *fakeProvider {
	return &fakeProvider{responses: []*models.ChatResponse{
		{ToolRequests: []models.ToolRequest{{ID: "call_1", Name: "search", Arguments: map[string]interface{}{"q": "x"}}}},
		{Text: "final answer"},
	}}
}

func newTestRegistry(conn ToolConn, provider llm.Provider, connectErr error) *Registry {
	return NewRegistry(logr.Discard(),
		WithConnector(func(ctx context.Context, endpoint, token string, logger logr.Logger) (ToolConn, error) {
			if connectErr != nil {
				return nil, connectErr
			}
			return conn, nil
		}),
		WithProviderFactory(func(name string, cfg llm.Config) (llm.Provider, error) {
			return provider, nil
		}),
	)
}

func searchTool() []models.ToolDescriptor {
	return []models.ToolDescriptor{{Name: "search", InputSchema: map[string]interface{}{"type": "object"}}}
}

func TestCreateRegistersSession(t *testing.T) {
	conn := &fakeConn{id: "sess-1", tools: searchTool()}
	r := newTestRegistry(conn, textOnlyProvider(), nil)

	s, err := r.Create(context.Background(), "http://mcp", "token", "anthropic", llm.Config{})
	require.NoError(t, err)
	require.Equal(t, "sess-1", s.ID)
	require.Equal(t, 1, r.Len())

	names := []string{}
	for _, tool := range s.Tools() {
		names = append(names, tool.Name)
	}
	require.Equal(t, []string{"search"}, names)
}

func TestCreateConnectFailureRegistersNothing(t *testing.T) {
	connectErr := apperrors.New(apperrors.ErrCodeConnectFailure, "refused", nil)
	r := newTestRegistry(nil, textOnlyProvider(), connectErr)

	_, err := r.Create(context.Background(), "http://mcp", "token", "anthropic", llm.Config{})
	require.Error(t, err)
	require.Equal(t, 0, r.Len())
}

func TestCreateReplacesCollidingID(t *testing.T) {
	first := &fakeConn{id: "sess-1"}
	second := &fakeConn{id: "sess-1"}
	provider := textOnlyProvider()

	conns := []ToolConn{first, second}
	i := 0
	r := NewRegistry(logr.Discard(),
		WithConnector(func(ctx context.Context, endpoint, token string, logger logr.Logger) (ToolConn, error) {
			c := conns[i]
			i++
			return c, nil
		}),
		WithProviderFactory(func(name string, cfg llm.Config) (llm.Provider, error) { return provider, nil }),
	)

	_, err := r.Create(context.Background(), "http://mcp", "token", "anthropic", llm.Config{})
	require.NoError(t, err)
	_, err = r.Create(context.Background(), "http://mcp", "token", "anthropic", llm.Config{})
	require.NoError(t, err)

	require.Equal(t, 1, r.Len())
	require.Equal(t, 1, first.terminated)
	require.Equal(t, 0, second.terminated)
}

func TestGetUnknownSession(t *testing.T) {
	r := NewRegistry(logr.Discard())
	_, err := r.Get("nope")
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionNotFound))
}

func TestChatPlainTextRound(t *testing.T) {
	conn := &fakeConn{id: "sess-1", tools: searchTool()}
	r := newTestRegistry(conn, textOnlyProvider(), nil)
	_, err := r.Create(context.Background(), "http://mcp", "token", "anthropic", llm.Config{})
	require.NoError(t, err)

	result, err := r.Chat(context.Background(), "sess-1", "hello")
	require.NoError(t, err)
	require.Equal(t, "plain answer", result.Text)
	require.Equal(t, 2, result.ConversationLength)
	require.Equal(t, 0, conn.callCount)
}

func TestChatToolRound(t *testing.T) {
	conn := &fakeConn{id: "sess-1", tools: searchTool()}
	r := newTestRegistry(conn, toolThenTextProvider(), nil)
	_, err := r.Create(context.Background(), "http://mcp", "token", "anthropic", llm.Config{})
	require.NoError(t, err)

	result, err := r.Chat(context.Background(), "sess-1", "find x")
	require.NoError(t, err)
	require.Equal(t, "final answer", result.Text)
	require.Equal(t, 4, result.ConversationLength)
	require.Equal(t, []string{"search"}, result.ToolsInvoked)
	require.Equal(t, 1, conn.callCount)
}

func TestChatServerTerminationEvicts(t *testing.T) {
	conn := &fakeConn{
		id:      "sess-1",
		tools:   searchTool(),
		callErr: apperrors.New(apperrors.ErrCodeSessionTerminated, "gone", nil),
	}
	r := newTestRegistry(conn, toolThenTextProvider(), nil)
	_, err := r.Create(context.Background(), "http://mcp", "token", "anthropic", llm.Config{})
	require.NoError(t, err)

	_, err = r.Chat(context.Background(), "sess-1", "find x")
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionTerminated))

	// Evicted: the listing no longer includes it and a retry is not-found.
	require.Empty(t, r.List())
	_, err = r.Chat(context.Background(), "sess-1", "again")
	require.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionNotFound))
}

func TestChatToolFailureKeepsSession(t *testing.T) {
	conn := &fakeConn{
		id:      "sess-1",
		tools:   searchTool(),
		callErr: apperrors.New(apperrors.ErrCodeToolExecution, "boom", nil),
	}
	r := newTestRegistry(conn, toolThenTextProvider(), nil)
	_, err := r.Create(context.Background(), "http://mcp", "token", "anthropic", llm.Config{})
	require.NoError(t, err)

	_, err = r.Chat(context.Background(), "sess-1", "find x")
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrCodeToolExecution))
	require.Equal(t, 1, r.Len())

	// The surviving session still serves rounds once the tool recovers.
	conn.callErr = nil
	result, err := r.Chat(context.Background(), "sess-1", "try again")
	require.NoError(t, err)
	require.Equal(t, "final answer", result.Text)
}

func TestRemoveTerminatesAndDeletes(t *testing.T) {
	conn := &fakeConn{id: "sess-1"}
	r := newTestRegistry(conn, textOnlyProvider(), nil)
	_, err := r.Create(context.Background(), "http://mcp", "token", "anthropic", llm.Config{})
	require.NoError(t, err)

	require.NoError(t, r.Remove(context.Background(), "sess-1"))
	require.Equal(t, 1, conn.terminated)
	require.Equal(t, 0, r.Len())

	err = r.Remove(context.Background(), "sess-1")
	require.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionNotFound))
}

func TestRemoveSucceedsLocallyWhenTerminationFails(t *testing.T) {
	conn := &fakeConn{id: "sess-1", termErr: apperrors.New(apperrors.ErrCodeConnectFailure, "timeout", nil)}
	r := newTestRegistry(conn, textOnlyProvider(), nil)
	_, err := r.Create(context.Background(), "http://mcp", "token", "anthropic", llm.Config{})
	require.NoError(t, err)

	err = r.Remove(context.Background(), "sess-1")
	require.Error(t, err)
	require.Equal(t, 0, r.Len())
}

func TestShutdownDrainsAllSessions(t *testing.T) {
	first := &fakeConn{id: "sess-1"}
	second := &fakeConn{id: "sess-2", termErr: apperrors.New(apperrors.ErrCodeConnectFailure, "timeout", nil)}

	conns := []ToolConn{first, second}
	i := 0
	provider := textOnlyProvider()
	r := NewRegistry(logr.Discard(),
		WithConnector(func(ctx context.Context, endpoint, token string, logger logr.Logger) (ToolConn, error) {
			c := conns[i]
			i++
			return c, nil
		}),
		WithProviderFactory(func(name string, cfg llm.Config) (llm.Provider, error) { return provider, nil }),
	)
	_, err := r.Create(context.Background(), "http://mcp", "token", "anthropic", llm.Config{})
	require.NoError(t, err)
	_, err = r.Create(context.Background(), "http://mcp", "token", "anthropic", llm.Config{})
	require.NoError(t, err)

	err = r.Shutdown(context.Background())
	require.Error(t, err)
	require.Equal(t, 0, r.Len())
	require.Equal(t, 1, first.terminated)
	require.Equal(t, 1, second.terminated)
}
