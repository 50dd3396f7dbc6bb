// Package metrics registers the bridge's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChatRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toolbridge_chat_rounds_total",
		Help: "Chat rounds processed, labeled by provider and outcome.",
	}, []string{"provider", "outcome"})

	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toolbridge_tool_invocations_total",
		Help: "Tool invocations forwarded to the MCP server, labeled by outcome.",
	}, []string{"tool", "outcome"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "toolbridge_provider_request_seconds",
		Help:    "Latency of model API calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "toolbridge_active_sessions",
		Help: "Currently registered bridge sessions.",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toolbridge_http_requests_total",
		Help: "HTTP API requests, labeled by route and status code.",
	}, []string{"route", "code"})
)
