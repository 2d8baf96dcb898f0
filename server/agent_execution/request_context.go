// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agent_execution

import (
	"fmt"

	a2a "github.com/go-a2a/a2a-taskd"
)

// RequestContext is the input handed to an [AgentExecutor].
type RequestContext struct {
	// TaskID is the ID of the task being executed.
	TaskID string
	// SessionID is the optional session grouping related tasks.
	SessionID string
	// Message is the user message the agent answers.
	Message *a2a.Message
	// Task is a snapshot of the task taken when execution started.
	Task *a2a.Task
	// Streaming is set when the task runs in the background and its progress is streamed.
	Streaming bool
}

// UserInput returns the text of the user message.
func (rc *RequestContext) UserInput() string {
	if rc.Message == nil {
		return ""
	}
	return rc.Message.Text()
}

func (rc *RequestContext) String() string {
	return fmt.Sprintf("RequestContext{TaskID: %s, SessionID: %s}", rc.TaskID, rc.SessionID)
}
