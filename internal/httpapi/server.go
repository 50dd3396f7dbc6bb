// Package httpapi exposes the bridge over HTTP: connect, chat, disconnect,
// session listing, token exchange, health and metrics.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kagent-dev/toolbridge/internal/apperrors"
	"github.com/kagent-dev/toolbridge/internal/auth"
	"github.com/kagent-dev/toolbridge/internal/config"
	"github.com/kagent-dev/toolbridge/internal/llm"
	"github.com/kagent-dev/toolbridge/internal/metrics"
	"github.com/kagent-dev/toolbridge/internal/session"
)

// Server wires the session registry and token exchanger into HTTP handlers.
type Server struct {
	registry  *session.Registry
	cfg       *config.Config
	exchanger *auth.Exchanger
	logger    logr.Logger
}

// NewServer creates a Server. The exchanger may be nil when token exchange
// is not configured; the /api/token route is then omitted.
func NewServer(registry *session.Registry, cfg *config.Config, exchanger *auth.Exchanger, logger logr.Logger) *Server {
	return &Server{
		registry:  registry,
		cfg:       cfg,
		exchanger: exchanger,
		logger:    logger,
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/api/connect", s.instrument("connect", s.handleConnect)).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/chat", s.instrument("chat", s.handleChat)).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/disconnect", s.instrument("disconnect", s.handleDisconnect)).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/sessions", s.instrument("sessions", s.handleListSessions)).Methods("GET")
	if s.exchanger != nil {
		router.HandleFunc("/api/token", s.instrument("token", s.handleToken)).Methods("POST", "OPTIONS")
	}
	return router
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	}
}

// extractBearerToken pulls the token out of the Authorization header.
func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperrors.New(apperrors.ErrCodeAuthMissing, "missing Authorization header", nil)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", apperrors.New(apperrors.ErrCodeAuthMissing, "malformed Authorization header, expected Bearer token", nil)
	}
	return parts[1], nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error             string `json:"error"`
	ReconnectRequired bool   `json:"reconnect_required,omitempty"`
}

// writeError maps application error codes to HTTP responses. Codes that
// describe caller mistakes carry their precise message; infrastructure
// failures are logged with full detail and surfaced opaquely.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case apperrors.HasCode(err, apperrors.ErrCodeAuthMissing):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case apperrors.HasCode(err, apperrors.ErrCodeAuthFailed):
		s.logger.Error(err, "authentication failure")
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication failed"})
	case apperrors.HasCode(err, apperrors.ErrCodeSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case apperrors.HasCode(err, apperrors.ErrCodeSessionTerminated):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:             "tool server terminated the session, reconnect required",
			ReconnectRequired: true,
		})
	case apperrors.HasCode(err, apperrors.ErrCodeInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case apperrors.HasCode(err, apperrors.ErrCodeConnectFailure):
		s.logger.Error(err, "tool server connect failure")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "failed to connect to tool server"})
	case apperrors.HasCode(err, apperrors.ErrCodeProviderFailure):
		s.logger.Error(err, "provider failure")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "model provider request failed"})
	case apperrors.HasCode(err, apperrors.ErrCodeToolExecution):
		s.logger.Error(err, "tool execution failure")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "tool execution failed"})
	default:
		s.logger.Error(err, "unhandled error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) providerConfig(name string) llm.Config {
	normalized := llm.Normalize(name)
	if pc := s.cfg.Provider(normalized); pc != nil {
		return llm.Config{
			APIKey:      pc.APIKey,
			Model:       pc.Model,
			BaseURL:     pc.BaseURL,
			MaxTokens:   pc.MaxTokens,
			Temperature: pc.Temperature,
		}
	}
	return llm.Config{}
}
