// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"
)

// TaskSendParams are the parameters of tasks/send and tasks/sendSubscribe.
type TaskSendParams struct {
	// ID is the caller supplied task identifier.
	ID string `json:"id"`
	// SessionID optionally groups related tasks.
	SessionID string `json:"sessionId,omitempty"`
	// Message is the initial user message.
	Message *Message `json:"message"`
}

// Validate returns an [*InvalidParamsError] when the id or the message is missing or malformed.
func (p *TaskSendParams) Validate() error {
	if p == nil {
		return &InvalidParamsError{Reason: "params are required"}
	}
	if p.ID == "" {
		return &InvalidParamsError{Reason: "task id is required"}
	}
	if p.Message == nil {
		return &InvalidParamsError{Reason: "message is required"}
	}
	if err := p.Message.Validate(); err != nil {
		return &InvalidParamsError{Reason: fmt.Sprintf("invalid message: %v", err)}
	}
	return nil
}

// TaskIDParams are the parameters of the methods addressing an existing task.
type TaskIDParams struct {
	// ID is the task identifier.
	ID string `json:"id"`
}

// Validate returns an [*InvalidParamsError] when the id is missing.
func (p *TaskIDParams) Validate() error {
	if p == nil || p.ID == "" {
		return &InvalidParamsError{Reason: "task id is required"}
	}
	return nil
}

// SendTaskResult is the result of tasks/send.
type SendTaskResult struct {
	TaskID  string    `json:"taskId"`
	State   TaskState `json:"state"`
	Message *Message  `json:"message"`
}

// SubscribeTaskResult is the result of tasks/sendSubscribe.
type SubscribeTaskResult struct {
	TaskID    string    `json:"taskId"`
	State     TaskState `json:"state"`
	StreamURL string    `json:"streamUrl"`
}

// StreamURL returns the relative URL of the event stream of the task identified by taskID.
func StreamURL(taskID string) string {
	return "/tasks/" + taskID + "/stream"
}
