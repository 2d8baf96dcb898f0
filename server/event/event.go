// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package event provides the task events published while a task runs, the per-task event
// queues buffering them, and the registry mapping task IDs to queues.
package event

import (
	"errors"
	"fmt"

	"github.com/go-json-experiment/json"

	a2a "github.com/go-a2a/a2a-taskd"
)

// Type names the kind of an [Event].
type Type string

const (
	// TypeStatusUpdate is the type of a [StatusUpdateEvent].
	TypeStatusUpdate Type = "status_update"
	// TypePartialMessage is the type of a [PartialMessageEvent].
	TypePartialMessage Type = "partial_message"
	// TypeTerminal is the type of a [TerminalEvent].
	TypeTerminal Type = "terminal"
	// TypeSnapshot is the type of a [SnapshotEvent].
	TypeSnapshot Type = "snapshot"
)

// Meta identifies the task an event belongs to and the task revision committed with it.
type Meta struct {
	TaskID   string
	Revision uint64
}

// EventMeta returns m.
func (m Meta) EventMeta() Meta { return m }

// Event is a notification about one task. The set of implementations is closed:
// [*StatusUpdateEvent], [*PartialMessageEvent], [*TerminalEvent] and [*SnapshotEvent].
type Event interface {
	// EventType returns the kind of the event.
	EventType() Type

	// EventMeta returns the task identity and revision of the event.
	EventMeta() Meta

	// Validate ensures the event is in a valid state.
	Validate() error

	// String returns a string representation of the event.
	String() string

	isEvent()
}

// StatusUpdateEvent reports a non-terminal state change.
type StatusUpdateEvent struct {
	Meta
	State a2a.TaskState
}

var _ Event = (*StatusUpdateEvent)(nil)

// NewStatusUpdateEvent returns a [*StatusUpdateEvent] for the committed task.
func NewStatusUpdateEvent(task *a2a.Task) *StatusUpdateEvent {
	return &StatusUpdateEvent{
		Meta:  Meta{TaskID: task.ID, Revision: task.Revision},
		State: task.State,
	}
}

// EventType implements [Event].
func (*StatusUpdateEvent) EventType() Type { return TypeStatusUpdate }

// Validate implements [Event].
func (e *StatusUpdateEvent) Validate() error {
	if e.TaskID == "" {
		return errors.New("status update event task ID cannot be empty")
	}
	if e.State.IsTerminal() {
		return fmt.Errorf("status update event cannot carry terminal state %s", e.State)
	}
	return e.State.Validate()
}

func (e *StatusUpdateEvent) String() string {
	return fmt.Sprintf("StatusUpdateEvent{TaskID: %s, State: %s, Revision: %d}", e.TaskID, e.State, e.Revision)
}

func (*StatusUpdateEvent) isEvent() {}

// MarshalJSON implements [json.Marshaler].
func (e *StatusUpdateEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		State a2a.TaskState `json:"state"`
	}{State: e.State})
}

// PartialMessageEvent carries intermediate output of the work operation.
type PartialMessageEvent struct {
	Meta
	Message *a2a.Message
}

var _ Event = (*PartialMessageEvent)(nil)

// NewPartialMessageEvent returns a [*PartialMessageEvent] for the committed task.
func NewPartialMessageEvent(task *a2a.Task, msg *a2a.Message) *PartialMessageEvent {
	return &PartialMessageEvent{
		Meta:    Meta{TaskID: task.ID, Revision: task.Revision},
		Message: msg,
	}
}

// EventType implements [Event].
func (*PartialMessageEvent) EventType() Type { return TypePartialMessage }

// Validate implements [Event].
func (e *PartialMessageEvent) Validate() error {
	if e.TaskID == "" {
		return errors.New("partial message event task ID cannot be empty")
	}
	return e.Message.Validate()
}

func (e *PartialMessageEvent) String() string {
	var text string
	if e.Message != nil {
		text = e.Message.Text()
	}
	return fmt.Sprintf("PartialMessageEvent{TaskID: %s, Text: %.50s, Revision: %d}", e.TaskID, text, e.Revision)
}

func (*PartialMessageEvent) isEvent() {}

// MarshalJSON implements [json.Marshaler].
func (e *PartialMessageEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PartialMessage *a2a.Message `json:"partialMessage"`
	}{PartialMessage: e.Message})
}

// TerminalEvent reports the final state of a task. Message is set for a completed task, Error for
// a failed one; a canceled task carries neither.
type TerminalEvent struct {
	Meta
	State   a2a.TaskState
	Message *a2a.Message
	Error   string
}

var _ Event = (*TerminalEvent)(nil)

// NewTerminalEvent returns a [*TerminalEvent] for the committed task.
func NewTerminalEvent(task *a2a.Task) *TerminalEvent {
	e := &TerminalEvent{
		Meta:  Meta{TaskID: task.ID, Revision: task.Revision},
		State: task.State,
		Error: task.Error,
	}
	if task.State == a2a.TaskStateCompleted {
		e.Message = task.LastMessage()
	}
	return e
}

// EventType implements [Event].
func (*TerminalEvent) EventType() Type { return TypeTerminal }

// Validate implements [Event].
func (e *TerminalEvent) Validate() error {
	if e.TaskID == "" {
		return errors.New("terminal event task ID cannot be empty")
	}
	if !e.State.IsTerminal() {
		return fmt.Errorf("terminal event cannot carry non-terminal state %s", e.State)
	}
	if e.State == a2a.TaskStateFailed && e.Error == "" {
		return errors.New("failed terminal event must carry an error")
	}
	return nil
}

func (e *TerminalEvent) String() string {
	return fmt.Sprintf("TerminalEvent{TaskID: %s, State: %s, Error: %q, Revision: %d}", e.TaskID, e.State, e.Error, e.Revision)
}

func (*TerminalEvent) isEvent() {}

// MarshalJSON implements [json.Marshaler].
func (e *TerminalEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		State   a2a.TaskState `json:"state"`
		Message *a2a.Message  `json:"message,omitempty"`
		Error   string        `json:"error,omitempty"`
	}{State: e.State, Message: e.Message, Error: e.Error})
}

// SnapshotEvent carries the full task state observed when a stream is attached. It is only ever
// produced as the first element of a stream and never enqueued.
type SnapshotEvent struct {
	Meta
	Task *a2a.Task
}

var _ Event = (*SnapshotEvent)(nil)

// NewSnapshotEvent returns a [*SnapshotEvent] for task.
func NewSnapshotEvent(task *a2a.Task) *SnapshotEvent {
	return &SnapshotEvent{
		Meta: Meta{TaskID: task.ID, Revision: task.Revision},
		Task: task,
	}
}

// EventType implements [Event].
func (*SnapshotEvent) EventType() Type { return TypeSnapshot }

// Validate implements [Event].
func (e *SnapshotEvent) Validate() error {
	if e.Task == nil {
		return errors.New("snapshot event task cannot be nil")
	}
	return e.Task.Validate()
}

func (e *SnapshotEvent) String() string {
	if e.Task == nil {
		return "SnapshotEvent{Task: nil}"
	}
	return fmt.Sprintf("SnapshotEvent{TaskID: %s, State: %s, Revision: %d}", e.Task.ID, e.Task.State, e.Revision)
}

func (*SnapshotEvent) isEvent() {}

// MarshalJSON implements [json.Marshaler].
func (e *SnapshotEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Task)
}

// IsFinalEvent reports whether ev ends a stream: a [*TerminalEvent], or a [*SnapshotEvent] of a
// task already in a terminal state.
func IsFinalEvent(ev Event) bool {
	switch e := ev.(type) {
	case *TerminalEvent:
		return true
	case *SnapshotEvent:
		return e.Task != nil && e.Task.State.IsTerminal()
	default:
		return false
	}
}

// State returns the task state carried by ev and whether it carries one.
func State(ev Event) (a2a.TaskState, bool) {
	switch e := ev.(type) {
	case *StatusUpdateEvent:
		return e.State, true
	case *TerminalEvent:
		return e.State, true
	case *SnapshotEvent:
		if e.Task == nil {
			return "", false
		}
		return e.Task.State, true
	default:
		return "", false
	}
}
