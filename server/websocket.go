// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/go-a2a/a2a-taskd/server/event"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// maxClientMessage is the largest message accepted from the peer. Clients only send control
	// frames.
	maxClientMessage = 512
)

// handleWebSocket streams the events of a task as WebSocket text messages, one JSON event per
// message. The connection is closed normally after the final event.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// canceled when the peer goes away; a hijacked request context is not
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	taskID, events, ok := s.attach(ctx, w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(ctx, "websocket upgrade failed", "task_id", taskID, "error", err)
		return
	}
	defer conn.Close()

	s.metrics.StreamOpened(ctx, "websocket")
	defer s.metrics.StreamClosed(context.WithoutCancel(ctx), "websocket")

	go s.readPump(conn, cancel)
	go s.pingPump(ctx, conn)

	for ev, err := range events {
		if err != nil {
			s.logger.DebugContext(ctx, "task stream ended", "task_id", taskID, "error", err)
			return
		}
		if err := writeEvent(conn, ev); err != nil {
			s.logger.InfoContext(ctx, "client disconnected from task stream", "task_id", taskID, "error", err)
			return
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream complete")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		s.logger.DebugContext(ctx, "failed to close websocket", "task_id", taskID, "error", err)
	}
}

// readPump discards peer messages and calls cancel once the peer is gone or stops answering pings.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	pongWait := s.pingInterval * 10 / 9
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// pingPump pings the peer every ping interval until ctx is done.
func (s *Server) pingPump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev event.Event) error {
	data, err := sonic.ConfigDefault.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
