package mcpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/toolbridge/internal/apperrors"
)

// fakeToolServer speaks just enough streamable-HTTP JSON-RPC for the client:
// initialize, the initialized notification, tools/list and tools/call.
type fakeToolServer struct {
	sessionID      string
	terminated     atomic.Bool
	deleteStatus   int
	deleteRequests atomic.Int32
	lastDeleteAuth atomic.Value
	lastToken      atomic.Value
}

func (f *fakeToolServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			f.deleteRequests.Add(1)
			f.lastDeleteAuth.Store(r.Header.Get("Authorization"))
			status := f.deleteStatus
			if status == 0 {
				status = http.StatusOK
			}
			w.WriteHeader(status)
			return
		}

		if token := r.URL.Query().Get("token"); token != "" {
			f.lastToken.Store(token)
		}

		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if f.terminated.Load() {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch req.Method {
		case "initialize":
			if f.sessionID != "" {
				w.Header().Set("Mcp-Session-Id", f.sessionID)
			}
			f.writeResult(w, req.ID, map[string]interface{}{
				"protocolVersion": "2025-03-26",
				"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
				"serverInfo":      map[string]interface{}{"name": "fake", "version": "1.0"},
			})
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
		case "tools/list":
			f.writeResult(w, req.ID, map[string]interface{}{
				"tools": []map[string]interface{}{
					{
						"name":        "search",
						"description": "Search the index",
						"inputSchema": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"q": map[string]interface{}{"type": "string"},
							},
							"required": []string{"q"},
						},
					},
				},
			})
		case "tools/call":
			f.writeResult(w, req.ID, map[string]interface{}{
				"content": []map[string]interface{}{
					{"type": "text", "text": "tool output"},
				},
				"isError": false,
			})
		default:
			w.WriteHeader(http.StatusAccepted)
		}
	})
}

func (f *fakeToolServer) writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
}

func TestConnectHandshake(t *testing.T) {
	fake := &fakeToolServer{sessionID: "sess-123"}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	c, err := Connect(context.Background(), server.URL, "api-token", logr.Discard())
	require.NoError(t, err)

	require.Equal(t, "sess-123", c.SessionID())
	require.Equal(t, "api-token", fake.lastToken.Load())

	tools := c.Tools()
	require.Len(t, tools, 1)
	require.Equal(t, "search", tools[0].Name)
	require.Equal(t, "object", tools[0].InputSchema["type"])
}

func TestConnectWithoutSessionHeader(t *testing.T) {
	fake := &fakeToolServer{}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	c, err := Connect(context.Background(), server.URL, "api-token", logr.Discard())
	require.NoError(t, err)
	require.Equal(t, NoSessionID, c.SessionID())

	// Nothing to terminate server-side without an id.
	require.NoError(t, c.Terminate(context.Background()))
	require.Equal(t, int32(0), fake.deleteRequests.Load())
}

func TestConnectFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := Connect(context.Background(), server.URL, "api-token", logr.Discard())
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrCodeConnectFailure))
}

func TestCallTool(t *testing.T) {
	fake := &fakeToolServer{sessionID: "sess-123"}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	c, err := Connect(context.Background(), server.URL, "api-token", logr.Discard())
	require.NoError(t, err)

	out, err := c.CallTool(context.Background(), "search", map[string]interface{}{"q": "x"})
	require.NoError(t, err)
	require.Equal(t, "tool output", out)
}

func TestCallToolAfterServerTermination(t *testing.T) {
	fake := &fakeToolServer{sessionID: "sess-123"}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	c, err := Connect(context.Background(), server.URL, "api-token", logr.Discard())
	require.NoError(t, err)

	fake.terminated.Store(true)
	_, err = c.CallTool(context.Background(), "search", map[string]interface{}{"q": "x"})
	require.Error(t, err)
	require.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionTerminated))
}

func TestTerminateSendsDelete(t *testing.T) {
	fake := &fakeToolServer{sessionID: "sess-123"}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	c, err := Connect(context.Background(), server.URL, "api-token", logr.Discard())
	require.NoError(t, err)

	require.NoError(t, c.Terminate(context.Background()))
	require.GreaterOrEqual(t, fake.deleteRequests.Load(), int32(1))
	require.Equal(t, "Bearer api-token", fake.lastDeleteAuth.Load())
}

func TestTerminateTolerates405(t *testing.T) {
	fake := &fakeToolServer{sessionID: "sess-123", deleteStatus: http.StatusMethodNotAllowed}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	c, err := Connect(context.Background(), server.URL, "api-token", logr.Discard())
	require.NoError(t, err)

	require.NoError(t, c.Terminate(context.Background()))
}
