package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"

	"github.com/kagent-dev/toolbridge/internal/apperrors"
	"github.com/kagent-dev/toolbridge/internal/llm"
	"github.com/kagent-dev/toolbridge/internal/mcpclient"
	"github.com/kagent-dev/toolbridge/internal/metrics"
	"github.com/kagent-dev/toolbridge/internal/orchestrator"
)

// Connector opens an MCP connection. The default dials the real server;
// tests inject fakes.
type Connector func(ctx context.Context, endpoint, authToken string, logger logr.Logger) (ToolConn, error)

// ProviderFactory builds a provider adapter by name.
type ProviderFactory func(name string, cfg llm.Config) (llm.Provider, error)

func defaultConnector(ctx context.Context, endpoint, authToken string, logger logr.Logger) (ToolConn, error) {
	return mcpclient.Connect(ctx, endpoint, authToken, logger)
}

// Registry owns the session map. Sessions are keyed by the id the MCP
// server assigned, including the shared no-session sentinel.
type Registry struct {
	logger      logr.Logger
	connect     Connector
	newProvider ProviderFactory

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Registry.
type Option func(*Registry)

// WithConnector overrides how the registry dials MCP servers.
func WithConnector(c Connector) Option {
	return func(r *Registry) { r.connect = c }
}

// WithProviderFactory overrides how the registry builds provider adapters.
func WithProviderFactory(f ProviderFactory) Option {
	return func(r *Registry) { r.newProvider = f }
}

// NewRegistry creates an empty registry.
func NewRegistry(logger logr.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:      logger,
		connect:     defaultConnector,
		newProvider: llm.New,
		sessions:    map[string]*Session{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create connects to the MCP server, builds the requested provider and
// registers the resulting session under the server-assigned id. Nothing is
// registered when the connect fails. When the server hands out an id that is
// already registered, the stale entry is terminated and replaced.
func (r *Registry) Create(ctx context.Context, endpoint, authToken, providerName string, cfg llm.Config) (*Session, error) {
	provider, err := r.newProvider(llm.Normalize(providerName), cfg)
	if err != nil {
		return nil, err
	}

	conn, err := r.connect(ctx, endpoint, authToken, r.logger)
	if err != nil {
		return nil, err
	}

	id := conn.SessionID()
	s := newSession(id, provider, conn, r.logger)

	r.mu.Lock()
	stale := r.sessions[id]
	r.sessions[id] = s
	r.mu.Unlock()

	if stale != nil {
		r.logger.Info("replacing existing session", "session", id)
		if err := stale.terminate(ctx); err != nil {
			r.logger.V(1).Info("failed to terminate replaced session", "session", id, "error", err)
		}
	} else {
		metrics.ActiveSessions.Inc()
	}

	r.logger.Info("session created", "session", id, "provider", provider.Name())
	return s, nil
}

// Get returns a session by id and refreshes its activity timestamp.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeSessionNotFound, "unknown session: "+id, nil)
	}
	s.touch()
	return s, nil
}

// Chat runs one round on the named session. When the MCP server reports the
// session terminated mid-round, the local entry is evicted before the error
// is returned so the caller can tell the client to reconnect.
func (r *Registry) Chat(ctx context.Context, id, userText string) (*orchestrator.Result, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	result, err := s.Chat(ctx, userText)
	if err != nil && apperrors.HasCode(err, apperrors.ErrCodeSessionTerminated) {
		r.logger.Info("server terminated session, evicting", "session", id)
		r.evict(ctx, id)
	}
	return result, err
}

// Remove terminates a session's MCP connection and drops it from the map.
// Local removal always succeeds; the termination error, if any, is returned
// for logging only.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.ErrCodeSessionNotFound, "unknown session: "+id, nil)
	}
	metrics.ActiveSessions.Dec()
	return s.terminate(ctx)
}

func (r *Registry) evict(ctx context.Context, id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	metrics.ActiveSessions.Dec()
	if err := s.terminate(ctx); err != nil {
		r.logger.V(1).Info("error terminating evicted session", "session", id, "error", err)
	}
}

// Info is a read-only snapshot of a session for listings.
type Info struct {
	ID                 string    `json:"session_id"`
	Provider           string    `json:"provider"`
	Model              string    `json:"model"`
	Tools              []string  `json:"tools"`
	ConversationLength int       `json:"conversation_length"`
	CreatedAt          time.Time `json:"created_at"`
	LastActivity       time.Time `json:"last_activity"`
}

// List returns snapshots of all registered sessions, ordered by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		tools := make([]string, 0, len(s.Tools()))
		for _, t := range s.Tools() {
			tools = append(tools, t.Name)
		}
		infos = append(infos, Info{
			ID:                 s.ID,
			Provider:           s.Provider.Name(),
			Model:              s.Provider.Model(),
			Tools:              tools,
			ConversationLength: len(s.History()),
			CreatedAt:          s.CreatedAt,
			LastActivity:       s.LastActivity(),
		})
	}
	r.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown terminates every session, collecting termination errors.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = map[string]*Session{}
	r.mu.Unlock()

	var result *multierror.Error
	for id, s := range sessions {
		metrics.ActiveSessions.Dec()
		if err := s.terminate(ctx); err != nil {
			result = multierror.Append(result, err)
			r.logger.V(1).Info("error terminating session during shutdown", "session", id, "error", err)
		}
	}
	return result.ErrorOrNil()
}
