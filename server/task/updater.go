// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	a2a "github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/internal/telemetry"
	"github.com/go-a2a/a2a-taskd/server/event"
)

// TaskUpdaterConfig holds configuration for creating a TaskUpdater.
type TaskUpdaterConfig struct {
	TaskID string
	Store  TaskStore
	Queues event.QueueManager

	// Persister, if set, receives a snapshot after every state change.
	Persister Persister
	// Buffered makes events wait in a newly created queue when no stream is attached yet.
	// Otherwise events only reach an already attached stream.
	Buffered bool

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// TaskUpdater commits the lifecycle mutations of one task and publishes the matching event
// after each commit. Once a terminal state has been committed every further update fails with
// [*TaskNotUpdatableError], so a task emits exactly one terminal event.
type TaskUpdater struct {
	taskID    string
	store     TaskStore
	queues    event.QueueManager
	persister Persister
	buffered  bool
	metrics   *telemetry.Metrics
	logger    *slog.Logger

	mu       sync.Mutex
	terminal bool
	state    a2a.TaskState
}

// NewTaskUpdater creates a new TaskUpdater with the given configuration.
func NewTaskUpdater(config TaskUpdaterConfig) (*TaskUpdater, error) {
	if config.TaskID == "" {
		return nil, errors.New("task ID cannot be empty")
	}
	if config.Store == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if config.Queues == nil {
		return nil, errors.New("queue manager cannot be nil")
	}
	if config.Metrics == nil {
		config.Metrics = telemetry.Default()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &TaskUpdater{
		taskID:    config.TaskID,
		store:     config.Store,
		queues:    config.Queues,
		persister: config.Persister,
		buffered:  config.Buffered,
		metrics:   config.Metrics,
		logger:    config.Logger,
	}, nil
}

// StartWork moves the task to PROCESSING.
func (u *TaskUpdater) StartWork(ctx context.Context) (*a2a.Task, error) {
	return u.commit(ctx, transition(a2a.TaskStateProcessing, nil), func(t *a2a.Task) event.Event {
		return event.NewStatusUpdateEvent(t)
	})
}

// Progress records partial output of the work operation.
func (u *TaskUpdater) Progress(ctx context.Context, msg *a2a.Message) (*a2a.Task, error) {
	if err := msg.Validate(); err != nil {
		return nil, NewTaskValidationError(u.taskID, err)
	}
	check := func(t *a2a.Task) error {
		if t.State.IsTerminal() {
			return NewTaskNotUpdatableError(t.ID, t.State)
		}
		return nil
	}
	return u.commit(ctx, check, func(t *a2a.Task) event.Event {
		return event.NewPartialMessageEvent(t, msg.Clone())
	})
}

// Complete appends the agent answer and moves the task to COMPLETED.
func (u *TaskUpdater) Complete(ctx context.Context, msg *a2a.Message) (*a2a.Task, error) {
	if err := msg.Validate(); err != nil {
		return nil, NewTaskValidationError(u.taskID, err)
	}
	return u.commit(ctx, transition(a2a.TaskStateCompleted, func(t *a2a.Task) {
		t.AppendMessage(msg.Clone())
	}), terminalEvent)
}

// Fail records cause and moves the task to FAILED.
func (u *TaskUpdater) Fail(ctx context.Context, cause error) (*a2a.Task, error) {
	if cause == nil {
		cause = errors.New("unknown error")
	}
	return u.commit(ctx, transition(a2a.TaskStateFailed, func(t *a2a.Task) {
		t.Error = cause.Error()
	}), terminalEvent)
}

// Cancel moves the task to CANCELED.
func (u *TaskUpdater) Cancel(ctx context.Context) (*a2a.Task, error) {
	return u.commit(ctx, transition(a2a.TaskStateCanceled, nil), terminalEvent)
}

// IsTerminal reports whether a terminal state has been committed through u.
func (u *TaskUpdater) IsTerminal() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.terminal
}

// TaskID returns the ID of the updated task.
func (u *TaskUpdater) TaskID() string {
	return u.taskID
}

func terminalEvent(t *a2a.Task) event.Event {
	return event.NewTerminalEvent(t)
}

// transition returns a mutation moving a task to next, applying apply first.
func transition(next a2a.TaskState, apply func(*a2a.Task)) MutateFunc {
	return func(t *a2a.Task) error {
		if !t.State.CanTransition(next) {
			return NewTaskNotUpdatableError(t.ID, t.State)
		}
		if apply != nil {
			apply(t)
		}
		t.State = next
		return nil
	}
}

func (u *TaskUpdater) commit(ctx context.Context, fn MutateFunc, newEvent func(*a2a.Task) event.Event) (*a2a.Task, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.terminal {
		return nil, NewTaskNotUpdatableError(u.taskID, u.state)
	}

	task, err := u.store.Update(ctx, u.taskID, fn)
	if err != nil {
		var notUpdatable *TaskNotUpdatableError
		if errors.As(err, &notUpdatable) && notUpdatable.State.IsTerminal() {
			u.terminal = true
			u.state = notUpdatable.State
		}
		return nil, err
	}

	stateChanged := task.State != u.state
	u.state = task.State
	if task.State.IsTerminal() {
		u.terminal = true
		u.metrics.TaskFinished(ctx, string(task.State), time.Since(task.CreatedAt))
	}
	if stateChanged {
		u.persist(ctx, task)
	}
	u.publish(ctx, newEvent(task))

	return task, nil
}

func (u *TaskUpdater) persist(ctx context.Context, task *a2a.Task) {
	if u.persister == nil {
		return
	}
	if err := u.persister.Save(ctx, task); err != nil {
		u.logger.WarnContext(ctx, "failed to persist task", "task_id", task.ID, "state", task.State, "error", err)
	}
}

func (u *TaskUpdater) publish(ctx context.Context, ev event.Event) {
	var err error
	if u.buffered {
		err = u.queues.Publish(ctx, u.taskID, ev)
	} else {
		_, err = u.queues.Offer(ctx, u.taskID, ev)
	}
	if err != nil {
		u.logger.ErrorContext(ctx, "failed to publish task event", "task_id", u.taskID, "event", ev.String(), "error", err)
		return
	}
	u.metrics.EventPublished(ctx, string(ev.EventType()))
}
