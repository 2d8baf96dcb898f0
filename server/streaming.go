// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"net/http"

	"github.com/bytedance/sonic"

	a2a "github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/internal/pool"
	"github.com/go-a2a/a2a-taskd/server/event"
)

// Stream represents a Server-Sent Events (SSE) connection
type Stream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	taskID  string
}

// newStream prepares w for Server-Sent Events. It returns nil if w cannot be flushed.
func newStream(taskID string, w http.ResponseWriter) *Stream {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}

	// Set up SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // For Nginx proxy
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Stream{
		w:       w,
		flusher: flusher,
		taskID:  taskID,
	}
}

// Send writes ev as one SSE frame and flushes it to the client.
func (s *Stream) Send(ev event.Event) error {
	buf := pool.Buffers.Get()
	defer pool.Buffers.Put(buf)

	if err := encodeFrame(buf, ev); err != nil {
		return err
	}
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()

	return nil
}

// encodeFrame appends the SSE frame of ev to buf.
func encodeFrame(buf *bytes.Buffer, ev event.Event) error {
	data, err := sonic.ConfigDefault.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return nil
}

// attach resolves the event sequence of the task named in the request path, writing an error
// response when the task cannot be streamed. The sequence ends when ctx is done.
func (s *Server) attach(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, iter.Seq2[event.Event, error], bool) {
	taskID := r.PathValue("id")
	events, err := s.taskManager.OnResubscribe(ctx, taskID)
	switch {
	case err == nil:
		return taskID, events, true
	case a2a.IsTaskNotFound(err):
		s.writeError(w, r, http.StatusNotFound, "Task not found")
	default:
		s.logger.ErrorContext(r.Context(), "failed to attach to task stream", "task_id", taskID, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "Internal server error")
	}
	return "", nil, false
}

// handleStream streams the events of a task as Server-Sent Events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, events, ok := s.attach(ctx, w, r)
	if !ok {
		return
	}

	stream := newStream(taskID, w)
	if stream == nil {
		s.writeError(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	s.metrics.StreamOpened(ctx, "sse")
	defer s.metrics.StreamClosed(context.WithoutCancel(ctx), "sse")

	for ev, err := range events {
		if err != nil {
			s.logger.DebugContext(ctx, "task stream ended", "task_id", taskID, "error", err)
			return
		}
		if err := stream.Send(ev); err != nil {
			s.logger.InfoContext(ctx, "client disconnected from task stream", "task_id", taskID, "error", err)
			return
		}
	}
}
