// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
	"fmt"
	"time"
)

// TaskState represents the state of a Task.
type TaskState string

const (
	// TaskStateActive indicates the task has been accepted and not yet picked up.
	TaskStateActive TaskState = "active"

	// TaskStateProcessing indicates the work operation is running.
	TaskStateProcessing TaskState = "processing"

	// TaskStateCompleted indicates the task has been completed.
	TaskStateCompleted TaskState = "completed"

	// TaskStateFailed indicates the task has failed.
	TaskStateFailed TaskState = "failed"

	// TaskStateCanceled indicates the task has been canceled.
	TaskStateCanceled TaskState = "canceled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	default:
		return false
	}
}

// Validate checks that s is a known task state.
func (s TaskState) Validate() error {
	switch s {
	case TaskStateActive, TaskStateProcessing, TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return nil
	default:
		return fmt.Errorf("invalid task state: %q", s)
	}
}

// CanTransition reports whether a task in state s may move to next.
//
// ACTIVE may move to PROCESSING or straight to a terminal state, PROCESSING only to a terminal
// state, and a terminal state never moves.
func (s TaskState) CanTransition(next TaskState) bool {
	switch s {
	case TaskStateActive:
		return next == TaskStateProcessing || next.IsTerminal()
	case TaskStateProcessing:
		return next.IsTerminal()
	default:
		return false
	}
}

// Task is a unit of asynchronous work tracked by the server.
type Task struct {
	// ID is the caller supplied identifier of the task.
	ID string `json:"id"`
	// SessionID optionally groups related tasks.
	SessionID string `json:"sessionId,omitempty"`
	// State is the current lifecycle state.
	State TaskState `json:"state"`
	// Messages is the append-only conversation history.
	Messages []*Message `json:"messages"`
	// CreatedAt is the time the task was created.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is the time of the last committed mutation.
	UpdatedAt time.Time `json:"updatedAt"`
	// Error holds the failure description, set only when State is failed.
	Error string `json:"error,omitempty"`

	// Revision counts committed mutations. It is stamped onto every event published for the
	// task so a stream consumer can tell which events a snapshot already reflects.
	Revision uint64 `json:"-"`
}

// NewTask creates a new ACTIVE task holding msg as its first message.
func NewTask(id, sessionID string, msg *Message) *Task {
	now := time.Now().UTC()
	t := &Task{
		ID:        id,
		SessionID: sessionID,
		State:     TaskStateActive,
		Messages:  []*Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if msg != nil {
		t.Messages = append(t.Messages, msg)
	}
	return t
}

// Validate checks the task fields.
func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task ID is required")
	}
	if err := t.State.Validate(); err != nil {
		return err
	}
	for i, msg := range t.Messages {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("invalid message at index %d: %w", i, err)
		}
	}
	return nil
}

// AppendMessage appends msg to the task history.
func (t *Task) AppendMessage(msg *Message) {
	t.Messages = append(t.Messages, msg)
}

// LastMessage returns the most recent message, or nil if there is none.
func (t *Task) LastMessage() *Message {
	if len(t.Messages) == 0 {
		return nil
	}
	return t.Messages[len(t.Messages)-1]
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Messages = make([]*Message, len(t.Messages))
	for i, msg := range t.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return &clone
}
