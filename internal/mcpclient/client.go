// Package mcpclient wraps a streamable-HTTP MCP connection with the session
// lifecycle the bridge needs: handshake with token auth, tool discovery,
// invocation with server-side termination detection, and explicit teardown.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kagent-dev/toolbridge/internal/apperrors"
	"github.com/kagent-dev/toolbridge/internal/models"
)

const (
	// NoSessionID stands in for a session id when the server never issued
	// one. Every layer above uses this same value, so "server without
	// session support" is representable and comparable everywhere.
	NoSessionID = "no-session"

	sessionIDHeader = "Mcp-Session-Id"

	clientName    = "toolbridge"
	clientVersion = "0.1.0"

	terminateTimeout = 10 * time.Second
)

// Client is one live MCP connection. It is not safe for concurrent use; the
// owning session serializes calls.
type Client struct {
	endpoint  string
	authToken string
	logger    logr.Logger

	mcp       *client.Client
	trans     *transport.StreamableHTTP
	sessionID string
	tools     []models.ToolDescriptor
}

// Connect performs the full handshake against the MCP server at endpoint:
// open the streamable-HTTP transport, initialize, capture the session id the
// server assigned, and list the available tools. The API token travels as a
// query parameter on the handshake URL.
func Connect(ctx context.Context, endpoint, authToken string, logger logr.Logger) (*Client, error) {
	connectURL, err := buildConnectURL(endpoint, authToken)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeConnectFailure, "invalid MCP endpoint", err)
	}

	var opts []transport.StreamableHTTPCOption
	if authToken != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + authToken,
		}))
	}
	trans, err := transport.NewStreamableHTTP(connectURL, opts...)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeConnectFailure, "failed to create MCP transport", err)
	}

	c := client.NewClient(trans)
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, apperrors.New(apperrors.ErrCodeConnectFailure, "failed to start MCP client", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, apperrors.New(apperrors.ErrCodeConnectFailure, "MCP initialize failed", err)
	}

	sessionID := trans.GetSessionId()
	if sessionID == "" {
		sessionID = NoSessionID
	}

	cl := &Client{
		endpoint:  endpoint,
		authToken: authToken,
		logger:    logger.WithValues("mcpSession", sessionID),
		mcp:       c,
		trans:     trans,
		sessionID: sessionID,
	}

	if err := cl.refreshTools(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	cl.logger.Info("connected to MCP server", "endpoint", endpoint, "tools", len(cl.tools))
	return cl, nil
}

func buildConnectURL(endpoint, authToken string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if authToken != "" {
		q := u.Query()
		q.Set("token", authToken)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// SessionID returns the id the server assigned during the handshake, or
// NoSessionID when the server did not issue one.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Tools returns the tool descriptors discovered during the handshake.
func (c *Client) Tools() []models.ToolDescriptor {
	return c.tools
}

func (c *Client) refreshTools(ctx context.Context) error {
	result, err := c.mcp.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return apperrors.New(apperrors.ErrCodeConnectFailure, "failed to list MCP tools", err)
	}
	tools := make([]models.ToolDescriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema, err := toSchemaMap(t.InputSchema)
		if err != nil {
			return apperrors.New(apperrors.ErrCodeConnectFailure,
				fmt.Sprintf("invalid input schema for tool %s", t.Name), err)
		}
		tools = append(tools, models.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	c.tools = tools
	return nil
}

func toSchemaMap(schema mcp.ToolInputSchema) (map[string]interface{}, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CallTool invokes a named tool and returns its textual output. When the
// server has terminated the session out from under us it returns an error
// carrying ErrCodeSessionTerminated so the caller can evict and signal a
// reconnect.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments

	result, err := c.mcp.CallTool(ctx, req)
	if err != nil {
		if errors.Is(err, transport.ErrSessionTerminated) {
			return "", apperrors.New(apperrors.ErrCodeSessionTerminated,
				"MCP server terminated the session", err)
		}
		return "", apperrors.New(apperrors.ErrCodeToolExecution,
			fmt.Sprintf("tool %s failed", name), err)
	}
	text := flattenContent(result)
	if result.IsError {
		return "", apperrors.New(apperrors.ErrCodeToolExecution,
			fmt.Sprintf("tool %s returned an error: %s", name, text), nil)
	}
	return text, nil
}

// flattenContent concatenates text blocks; any other block kind is
// JSON-stringified so the model still sees it.
func flattenContent(result *mcp.CallToolResult) string {
	var out string
	for _, content := range result.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			out += tc.Text
			continue
		}
		if raw, err := json.Marshal(content); err == nil {
			out += string(raw)
		}
	}
	return out
}

// Terminate tells the server this session is over, then closes the
// transport. Termination is best effort: a 405 means the server does not
// support explicit teardown and is not an error, and any failure still
// results in the transport being closed.
func (c *Client) Terminate(ctx context.Context) error {
	defer func() {
		if err := c.mcp.Close(); err != nil {
			c.logger.V(1).Info("error closing MCP transport", "error", err)
		}
	}()

	if c.sessionID == NoSessionID {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, terminateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint, nil)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeConnectFailure, "failed to build terminate request", err)
	}
	req.Header.Set(sessionIDHeader, c.sessionID)
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeConnectFailure, "terminate request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 405 is allowed: the server may not support explicit termination.
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusMethodNotAllowed {
		return apperrors.New(apperrors.ErrCodeConnectFailure,
			fmt.Sprintf("terminate returned status %d", resp.StatusCode), nil)
	}
	c.logger.Info("MCP session terminated", "status", resp.StatusCode)
	return nil
}
