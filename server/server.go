// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the HTTP surface of the task server: the JSON-RPC endpoint, the
// task event streams, the agent directory and the health probes.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/a2a-taskd/internal/telemetry"
	"github.com/go-a2a/a2a-taskd/server/agent"
)

const defaultPingInterval = 54 * time.Second

// Server implements the task server HTTP API.
type Server struct {
	taskManager TaskManager
	mux         *http.ServeMux
	handler     http.Handler

	endpoint       string
	agents         *agent.Registry
	agentCard      *agent.Card
	metricsHandler http.Handler
	upgrader       websocket.Upgrader
	pingInterval   time.Duration

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

// NewServer creates a new Server serving taskManager.
func NewServer(taskManager TaskManager, opts ...Option) (*Server, error) {
	if taskManager == nil {
		return nil, errors.New("task manager is required")
	}

	s := &Server{
		taskManager:  taskManager,
		mux:          http.NewServeMux(),
		endpoint:     "/",
		pingInterval: defaultPingInterval,
		logger:       slog.Default(),
		tracer:       otel.Tracer(telemetry.InstrumentationName),
		metrics:      telemetry.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !strings.HasPrefix(s.endpoint, "/") {
		return nil, errors.New("endpoint must start with a slash")
	}
	if s.pingInterval <= 0 {
		s.pingInterval = defaultPingInterval
	}
	if s.agents == nil {
		s.agents = agent.NewRegistry(s.logger)
	}
	if s.agentCard == nil {
		s.agentCard = agent.DefaultCard("")
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	s.registerHandlers()
	s.handler = recoverMiddleware(s.logger, logMiddleware(s.logger, s.mux))

	return s, nil
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// registerHandlers sets up all the HTTP routes of the server.
func (s *Server) registerHandlers() {
	rpc := "POST " + s.endpoint
	if strings.HasSuffix(s.endpoint, "/") {
		rpc += "{$}"
	}
	s.mux.HandleFunc(rpc, s.handleJSONRPC)

	s.mux.HandleFunc("GET /tasks/{id}/stream", s.handleStream)
	s.mux.HandleFunc("GET /tasks/{id}/ws", s.handleWebSocket)

	s.mux.HandleFunc("GET /.well-known/agent.json", s.handleAgentCard)
	s.mux.HandleFunc("GET /agents", s.handleListAgents)
	s.mux.HandleFunc("GET /agents/{id}", s.handleGetAgent)
	s.mux.HandleFunc("POST /agents", s.handleRegisterAgent)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleHealth)

	if s.metricsHandler != nil {
		s.mux.Handle("GET /metrics", s.metricsHandler)
	}
}

// handleAgentCard serves the agent card
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.agentCard)
}

type healthResponse struct {
	Status string `json:"status"`
	Stats  *Stats `json:"stats,omitempty"`
}

// handleHealth serves both the liveness and the readiness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy"}
	if sp, ok := s.taskManager.(interface{ Stats() Stats }); ok {
		stats := sp.Stats()
		resp.Stats = &stats
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError writes a plain JSON error body, as used outside the JSON-RPC endpoint.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, errorResponse{Error: msg})
}

// writeJSON encodes v as the response body.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := sonic.ConfigDefault.Marshal(v)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to encode response", "path", r.URL.Path, "error", err)
		http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.DebugContext(r.Context(), "failed to write response", "path", r.URL.Path, "error", err)
	}
}
