// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	a2a "github.com/go-a2a/a2a-taskd"
)

// maxRequestBytes bounds the size of a JSON-RPC request body.
const maxRequestBytes = 4 << 20

// methodHandler handles one JSON-RPC method and returns its result.
type methodHandler func(ctx context.Context, params jsontext.Value) (any, error)

// methods maps JSON-RPC method names to their handlers.
func (s *Server) methods() map[string]methodHandler {
	return map[string]methodHandler{
		a2a.MethodTasksSend:          s.handleTasksSend,
		a2a.MethodTasksSendSubscribe: s.handleTasksSendSubscribe,
		a2a.MethodTasksGet:           s.handleTasksGet,
		a2a.MethodTasksCancel:        s.handleTasksCancel,
	}
}

// handleJSONRPC handles all JSON-RPC requests.
//
// A request whose envelope cannot be decoded is answered with HTTP 500 and a null id; every
// other outcome, including method errors, is a regular JSON-RPC response.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := decodeRequest(w, r)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to decode JSON-RPC request", "error", err)
		s.metrics.RPCHandled(r.Context(), "", a2a.InternalErrorCode, time.Since(start))
		s.writeJSON(w, r, http.StatusInternalServerError, a2a.NewJSONRPCErrorResponse(nil, a2a.NewInternalError()))
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "a2a.server.HandleJSONRPC",
		trace.WithAttributes(attribute.String("rpc.method", req.Method)))
	defer span.End()

	resp := s.dispatch(ctx, req)
	code := 0
	if resp.Error != nil {
		code = resp.Error.Code
		span.SetStatus(codes.Error, resp.Error.Message)
	}
	s.metrics.RPCHandled(ctx, req.Method, code, time.Since(start))

	s.writeJSON(w, r, http.StatusOK, resp)
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (*a2a.JSONRPCRequest, error) {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}

	var req a2a.JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if req.JSONRPC != "" && req.JSONRPC != a2a.JSONRPCVersion {
		return nil, fmt.Errorf("unsupported JSON-RPC version %q", req.JSONRPC)
	}
	if req.Method == "" {
		return nil, errors.New("method is required")
	}

	return &req, nil
}

// dispatch routes req to its method handler and converts the outcome into a response.
func (s *Server) dispatch(ctx context.Context, req *a2a.JSONRPCRequest) *a2a.JSONRPCResponse {
	handle, ok := s.methods()[req.Method]
	if !ok {
		return a2a.NewJSONRPCErrorResponse(req.ID, a2a.NewMethodNotFoundError(req.Method))
	}

	result, err := handle(ctx, req.Params)
	if err != nil {
		rpcErr := a2a.ToJSONRPCError(err)
		if rpcErr.Code == a2a.InternalErrorCode {
			s.logger.ErrorContext(ctx, "JSON-RPC method failed", "method", req.Method, "error", err)
		} else {
			s.logger.DebugContext(ctx, "JSON-RPC method rejected", "method", req.Method, "error", err)
		}
		return a2a.NewJSONRPCErrorResponse(req.ID, rpcErr)
	}

	return a2a.NewJSONRPCResult(req.ID, result)
}

// decodeParams unmarshals params into v. Absent params leave v unchanged.
func decodeParams(params jsontext.Value, v any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &a2a.InvalidParamsError{Reason: err.Error()}
	}
	return nil
}

// handleTasksSend handles the tasks/send method
func (s *Server) handleTasksSend(ctx context.Context, params jsontext.Value) (any, error) {
	var p a2a.TaskSendParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.taskManager.OnSendTask(ctx, &p)
}

// handleTasksSendSubscribe handles the tasks/sendSubscribe method
func (s *Server) handleTasksSendSubscribe(ctx context.Context, params jsontext.Value) (any, error) {
	var p a2a.TaskSendParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.taskManager.OnSendTaskSubscribe(ctx, &p)
}

// handleTasksGet handles the tasks/get method
func (s *Server) handleTasksGet(ctx context.Context, params jsontext.Value) (any, error) {
	var p a2a.TaskIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.taskManager.OnGetTask(ctx, p.ID)
}

// handleTasksCancel handles the tasks/cancel method
func (s *Server) handleTasksCancel(ctx context.Context, params jsontext.Value) (any, error) {
	var p a2a.TaskIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.taskManager.OnCancelTask(ctx, p.ID)
}
