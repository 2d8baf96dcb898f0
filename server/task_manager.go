// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	a2a "github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/internal/telemetry"
	"github.com/go-a2a/a2a-taskd/server/agent_execution"
	"github.com/go-a2a/a2a-taskd/server/event"
	"github.com/go-a2a/a2a-taskd/server/task"
)

// TaskManager is the interface that task managers must implement.
type TaskManager interface {
	// OnSendTask creates a task and runs it to completion before returning.
	OnSendTask(ctx context.Context, params *a2a.TaskSendParams) (*a2a.SendTaskResult, error)

	// OnSendTaskSubscribe creates a task, schedules it in the background and returns the URL of
	// its event stream.
	OnSendTaskSubscribe(ctx context.Context, params *a2a.TaskSendParams) (*a2a.SubscribeTaskResult, error)

	// OnGetTask retrieves a task.
	OnGetTask(ctx context.Context, taskID string) (*a2a.Task, error)

	// OnResubscribe attaches to the event stream of a task. The returned sequence starts with a
	// snapshot of the task and ends with its terminal event. A task stream has a single consumer.
	OnResubscribe(ctx context.Context, taskID string) (iter.Seq2[event.Event, error], error)

	// OnCancelTask cancels a task.
	OnCancelTask(ctx context.Context, taskID string) (*a2a.Task, error)
}

// Stats is a point-in-time view of the task manager load.
type Stats struct {
	Tasks   int `json:"tasks"`
	Queues  int `json:"queues"`
	Running int `json:"running"`
}

// TaskManagerConfig holds configuration for creating a DefaultTaskManager.
type TaskManagerConfig struct {
	// Agent performs the work of every task. Defaults to [agent_execution.SimulatedAgentExecutor].
	Agent agent_execution.AgentExecutor
	// Store defaults to an [task.InMemoryTaskStore] bounded by MaxTasks and TaskTTL.
	Store task.TaskStore
	// Queues defaults to an [event.InMemoryQueueManager].
	Queues event.QueueManager
	// Persister, if set, receives a snapshot of every created task and every state change.
	Persister task.Persister

	// StageDelay is the pause before each lifecycle stage of a streaming task.
	StageDelay time.Duration
	// MaxTasks and TaskTTL bound the default store. Zero means unbounded.
	MaxTasks int
	TaskTTL  time.Duration

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *telemetry.Metrics
}

// DefaultTaskManager is the default [TaskManager]. It composes a task store, an event queue
// registry and an executor.
type DefaultTaskManager struct {
	store     task.TaskStore
	queues    event.QueueManager
	executor  *task.Executor
	persister task.Persister

	// submitMu serializes task creation with the start of its background execution.
	submitMu sync.Mutex

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

var _ TaskManager = (*DefaultTaskManager)(nil)

// NewDefaultTaskManager creates a new DefaultTaskManager.
func NewDefaultTaskManager(cfg TaskManagerConfig) *DefaultTaskManager {
	if cfg.Agent == nil {
		cfg.Agent = agent_execution.NewSimulatedAgentExecutor()
	}
	if cfg.Queues == nil {
		cfg.Queues = event.NewInMemoryQueueManager()
	}
	if cfg.Store == nil {
		queues := cfg.Queues
		cfg.Store = task.NewInMemoryTaskStore(
			task.WithRetention(cfg.MaxTasks, cfg.TaskTTL),
			task.WithEvictCallback(func(taskID string) { queues.Remove(taskID) }),
		)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(telemetry.InstrumentationName)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.Default()
	}

	return &DefaultTaskManager{
		store:  cfg.Store,
		queues: cfg.Queues,
		executor: task.NewExecutor(cfg.Store, cfg.Queues, cfg.Agent,
			task.WithStageDelay(cfg.StageDelay),
			task.WithPersister(cfg.Persister),
			task.WithExecutorLogger(cfg.Logger),
			task.WithExecutorTracer(cfg.Tracer),
			task.WithExecutorMetrics(cfg.Metrics),
		),
		persister: cfg.Persister,
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
		metrics:   cfg.Metrics,
	}
}

// OnSendTask implements [TaskManager].
//
// A failing work operation leaves the task FAILED and is returned as [*task.TaskExecutionError].
func (tm *DefaultTaskManager) OnSendTask(ctx context.Context, params *a2a.TaskSendParams) (*a2a.SendTaskResult, error) {
	ctx, span := tm.tracer.Start(ctx, "a2a.task_manager.OnSendTask")
	defer span.End()

	tm.submitMu.Lock()
	created, err := tm.create(ctx, params)
	tm.submitMu.Unlock()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("a2a.task_id", created.ID))
	tm.metrics.TaskSubmitted(ctx, "sync")

	finished, err := tm.executor.RunSync(ctx, created.ID)
	if err != nil {
		tm.logger.ErrorContext(ctx, "task failed", "task_id", created.ID, "error", err)
		return nil, err
	}

	return &a2a.SendTaskResult{
		TaskID:  finished.ID,
		State:   finished.State,
		Message: finished.LastMessage(),
	}, nil
}

// OnSendTaskSubscribe implements [TaskManager].
//
// Submitting an id whose background execution is still in flight fails with
// [*a2a.InvalidParamsError] and leaves the running task untouched.
func (tm *DefaultTaskManager) OnSendTaskSubscribe(ctx context.Context, params *a2a.TaskSendParams) (*a2a.SubscribeTaskResult, error) {
	ctx, span := tm.tracer.Start(ctx, "a2a.task_manager.OnSendTaskSubscribe")
	defer span.End()

	tm.submitMu.Lock()
	defer tm.submitMu.Unlock()

	created, err := tm.create(ctx, params)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("a2a.task_id", created.ID))

	q := tm.queues.GetOrCreate(created.ID)
	if err := tm.executor.Start(ctx, created.ID); err != nil {
		tm.queues.Release(created.ID, q)
		tm.logger.ErrorContext(ctx, "failed to schedule task", "task_id", created.ID, "error", err)
		return nil, err
	}
	tm.metrics.TaskSubmitted(ctx, "stream")

	return &a2a.SubscribeTaskResult{
		TaskID:    created.ID,
		State:     created.State,
		StreamURL: a2a.StreamURL(created.ID),
	}, nil
}

// OnGetTask implements [TaskManager].
func (tm *DefaultTaskManager) OnGetTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	ctx, span := tm.tracer.Start(ctx, "a2a.task_manager.OnGetTask",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	if err := (&a2a.TaskIDParams{ID: taskID}).Validate(); err != nil {
		return nil, err
	}
	return tm.store.Get(ctx, taskID)
}

// OnResubscribe implements [TaskManager].
//
// The sequence can be iterated once. Events already reflected by the snapshot are skipped, and
// the task queue is released when the iteration ends for any reason. A later attach gets a fresh
// queue and never sees events delivered to an earlier one.
//
// Each task has a single event queue. Concurrent attaches to the same task share it, so every
// event reaches only one of them, and the first to finish closes the queue for the others.
func (tm *DefaultTaskManager) OnResubscribe(ctx context.Context, taskID string) (iter.Seq2[event.Event, error], error) {
	ctx, span := tm.tracer.Start(ctx, "a2a.task_manager.OnResubscribe",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	if err := (&a2a.TaskIDParams{ID: taskID}).Validate(); err != nil {
		return nil, err
	}
	if _, err := tm.store.Get(ctx, taskID); err != nil {
		return nil, err
	}

	var consumed atomic.Bool
	return func(yield func(event.Event, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			return
		}

		// the queue must exist before the snapshot so no later event is missed
		q := tm.queues.GetOrCreate(taskID)
		defer tm.queues.Release(taskID, q)

		snapshot, err := tm.store.Get(ctx, taskID)
		if err != nil {
			yield(nil, err)
			return
		}
		if !yield(event.NewSnapshotEvent(snapshot), nil) || snapshot.State.IsTerminal() {
			return
		}

		for ev, err := range event.NewEventConsumer(q, snapshot.Revision).ConsumeAll(ctx) {
			if !yield(ev, err) {
				return
			}
		}
	}, nil
}

// OnCancelTask implements [TaskManager].
//
// It waits until the task has committed its terminal state and returns the final snapshot.
func (tm *DefaultTaskManager) OnCancelTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	ctx, span := tm.tracer.Start(ctx, "a2a.task_manager.OnCancelTask",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	if err := (&a2a.TaskIDParams{ID: taskID}).Validate(); err != nil {
		return nil, err
	}
	current, err := tm.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if current.State.IsTerminal() {
		return nil, &a2a.TaskNotCancelableError{TaskID: taskID, State: current.State}
	}

	if done, ok := tm.executor.Cancel(taskID); ok {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := tm.cancelIdle(ctx, taskID); err != nil {
		return nil, err
	}

	canceled, err := tm.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	tm.logger.InfoContext(ctx, "task cancel requested", "task_id", taskID, "state", canceled.State)

	return canceled, nil
}

// cancelIdle cancels a task that has no background execution.
func (tm *DefaultTaskManager) cancelIdle(ctx context.Context, taskID string) error {
	u, err := task.NewTaskUpdater(task.TaskUpdaterConfig{
		TaskID:    taskID,
		Store:     tm.store,
		Queues:    tm.queues,
		Persister: tm.persister,
		Metrics:   tm.metrics,
		Logger:    tm.logger,
	})
	if err != nil {
		return err
	}

	_, err = u.Cancel(context.WithoutCancel(ctx))
	var notUpdatable *task.TaskNotUpdatableError
	if errors.As(err, &notUpdatable) {
		return &a2a.TaskNotCancelableError{TaskID: taskID, State: notUpdatable.State}
	}
	return err
}

// Stats returns the current load of tm.
func (tm *DefaultTaskManager) Stats() Stats {
	return Stats{
		Tasks:   tm.store.Len(),
		Queues:  tm.queues.Len(),
		Running: tm.executor.Len(),
	}
}

// Close waits for running tasks to finish, bounded by ctx, and ends every open stream.
func (tm *DefaultTaskManager) Close(ctx context.Context) error {
	err := tm.executor.Close(ctx)
	tm.queues.CloseAll()
	return err
}

// create validates params and stores a new ACTIVE task. The caller holds submitMu.
func (tm *DefaultTaskManager) create(ctx context.Context, params *a2a.TaskSendParams) (*a2a.Task, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if tm.executor.Running(params.ID) {
		return nil, &a2a.InvalidParamsError{Reason: fmt.Sprintf("task %s is already running", params.ID)}
	}

	created := a2a.NewTask(params.ID, params.SessionID, params.Message.Clone())
	if err := tm.store.Save(ctx, created); err != nil {
		return nil, err
	}
	if tm.persister != nil {
		if err := tm.persister.Save(ctx, created); err != nil {
			tm.logger.WarnContext(ctx, "failed to persist task", "task_id", created.ID, "error", err)
		}
	}
	tm.logger.InfoContext(ctx, "task created", "task_id", created.ID, "state", created.State)

	return created, nil
}
