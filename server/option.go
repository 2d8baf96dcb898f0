// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/a2a-taskd/internal/telemetry"
	"github.com/go-a2a/a2a-taskd/server/agent"
)

// Option represents an option for configuring the [Server].
type Option func(*Server)

// WithEndpoint sets the custom JSON-RPC endpoint for the [Server]. The default is "/".
func WithEndpoint(endpoint string) Option {
	return func(s *Server) {
		s.endpoint = endpoint
	}
}

// WithLogger sets the [*slog.Logger] for the [Server].
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTracer sets the [trace.Tracer] for the [Server].
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// WithMetrics sets the metric instruments recorded by the [Server].
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithMetricsHandler exposes h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithAgentRegistry sets the agent directory served under /agents.
func WithAgentRegistry(r *agent.Registry) Option {
	return func(s *Server) {
		s.agents = r
	}
}

// WithAgentCard sets the card served at /.well-known/agent.json.
func WithAgentCard(card *agent.Card) Option {
	return func(s *Server) {
		s.agentCard = card
	}
}

// WithPingInterval sets the interval of WebSocket keepalive pings.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		s.pingInterval = d
	}
}
