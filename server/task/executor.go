// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	a2a "github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/internal/telemetry"
	"github.com/go-a2a/a2a-taskd/server/agent_execution"
	"github.com/go-a2a/a2a-taskd/server/event"
)

// ErrExecutorClosed is returned by [Executor.Start] after [Executor.Close] has been called.
var ErrExecutorClosed = errors.New("executor is closed")

// errNoResult is recorded when an agent returns neither a message nor an error.
var errNoResult = errors.New("agent returned no message")

// run is the handle of one background execution.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Executor drives tasks from ACTIVE to a terminal state by calling an [agent_execution.AgentExecutor].
type Executor struct {
	store     TaskStore
	queues    event.QueueManager
	agent     agent_execution.AgentExecutor
	builder   agent_execution.RequestContextBuilder
	persister Persister

	stageDelay time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *telemetry.Metrics

	wg      conc.WaitGroup
	mu      sync.Mutex
	closed  bool
	running map[string]*run
}

// ExecutorOption configures an [Executor].
type ExecutorOption func(*Executor)

// WithStageDelay sets the pause taken before each lifecycle stage of a background execution.
func WithStageDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.stageDelay = d
	}
}

// WithPersister sets the persister receiving a snapshot after every state change.
func WithPersister(p Persister) ExecutorOption {
	return func(e *Executor) {
		e.persister = p
	}
}

// WithRequestContextBuilder replaces the default [agent_execution.SimpleRequestContextBuilder].
func WithRequestContextBuilder(b agent_execution.RequestContextBuilder) ExecutorOption {
	return func(e *Executor) {
		e.builder = b
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithExecutorTracer sets the tracer.
func WithExecutorTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithExecutorMetrics sets the metric instruments.
func WithExecutorMetrics(m *telemetry.Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates a new Executor.
func NewExecutor(store TaskStore, queues event.QueueManager, agent agent_execution.AgentExecutor, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:   store,
		queues:  queues,
		agent:   agent,
		builder: agent_execution.NewSimpleRequestContextBuilder(),
		logger:  slog.Default(),
		tracer:  otel.Tracer(telemetry.InstrumentationName),
		metrics: telemetry.Default(),
		running: make(map[string]*run),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start runs the stored task taskID on a new goroutine and returns immediately.
// The execution outlives ctx; it stops early only through [Executor.Cancel] or [Executor.Close].
func (e *Executor) Start(ctx context.Context, taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrExecutorClosed
	}
	if _, ok := e.running[taskID]; ok {
		return fmt.Errorf("task %s is already running", taskID)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{cancel: cancel, done: make(chan struct{})}
	e.running[taskID] = r
	e.wg.Go(func() {
		e.runBackground(runCtx, taskID, r)
	})

	return nil
}

// RunSync runs the stored task taskID to completion on the calling goroutine without stage
// delays or progress events. Events only reach streams that are already attached.
// A failed execution is committed as FAILED and returned as [*TaskExecutionError].
func (e *Executor) RunSync(ctx context.Context, taskID string) (*a2a.Task, error) {
	ctx, span := e.tracer.Start(ctx, "a2a.executor.RunSync",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	u, err := e.newUpdater(taskID, false)
	if err != nil {
		return nil, err
	}
	commitCtx := context.WithoutCancel(ctx)

	task, err := u.StartWork(commitCtx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result, err := e.work(ctx, task, false, agent_execution.NopReporter{})
	switch {
	case ctx.Err() != nil:
		if _, cerr := u.Cancel(commitCtx); cerr != nil {
			e.logger.ErrorContext(commitCtx, "failed to cancel task", "task_id", taskID, "error", cerr)
		}
		return nil, ctx.Err()

	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "task execution failed")
		if _, ferr := u.Fail(commitCtx, err); ferr != nil {
			e.logger.ErrorContext(commitCtx, "failed to record task failure", "task_id", taskID, "error", ferr)
		}
		return nil, &TaskExecutionError{TaskID: taskID, Err: err}
	}

	task, err = u.Complete(commitCtx, result)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	e.logger.InfoContext(ctx, "task finished", "task_id", taskID, "state", task.State)

	return task, nil
}

// Cancel stops the background execution of taskID. The returned channel is closed once the
// execution has committed its terminal state. ok is false when taskID is not running.
func (e *Executor) Cancel(taskID string) (done <-chan struct{}, ok bool) {
	e.mu.Lock()
	r, ok := e.running[taskID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}

	r.cancel()
	return r.done, true
}

// Running reports whether taskID has a background execution in flight.
func (e *Executor) Running(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[taskID]
	return ok
}

// Len returns the number of background executions in flight.
func (e *Executor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

// Close rejects new executions and waits for the running ones to finish.
// When ctx ends first every running execution is canceled and ctx's error is returned.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		e.mu.Lock()
		for _, r := range e.running {
			r.cancel()
		}
		e.mu.Unlock()
		return ctx.Err()
	}
}

func (e *Executor) runBackground(ctx context.Context, taskID string, r *run) {
	defer close(r.done)
	defer e.forget(taskID, r)
	defer r.cancel()

	ctx, span := e.tracer.Start(ctx, "a2a.executor.Run",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	// commits outlive cancellation so the CANCELED terminal event is still delivered
	commitCtx := context.WithoutCancel(ctx)

	u, err := e.newUpdater(taskID, true)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to create task updater", "task_id", taskID, "error", err)
		return
	}

	if err := e.pause(ctx); err != nil {
		e.finish(commitCtx, span, u.Cancel)
		return
	}
	task, err := u.StartWork(commitCtx)
	if err != nil {
		span.RecordError(err)
		e.logger.ErrorContext(ctx, "failed to start task", "task_id", taskID, "error", err)
		return
	}
	e.logger.DebugContext(ctx, "task processing", "task_id", taskID)

	result, err := e.work(ctx, task, true, &stageReporter{executor: e, updater: u, commitCtx: commitCtx})
	if err == nil && ctx.Err() == nil {
		err = e.pause(ctx)
	}

	switch {
	case ctx.Err() != nil:
		e.finish(commitCtx, span, u.Cancel)
	case err != nil:
		span.RecordError(err)
		e.finish(commitCtx, span, func(ctx context.Context) (*a2a.Task, error) {
			return u.Fail(ctx, err)
		})
	default:
		e.finish(commitCtx, span, func(ctx context.Context) (*a2a.Task, error) {
			return u.Complete(ctx, result)
		})
	}
}

// work builds the request context for task and calls the agent, turning a panic into an error.
func (e *Executor) work(ctx context.Context, task *a2a.Task, streaming bool, reporter agent_execution.Reporter) (result *a2a.Message, err error) {
	reqCtx, err := e.builder.Build(ctx, task)
	if err != nil {
		return nil, err
	}
	reqCtx.Streaming = streaming

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "agent executor panicked", "task_id", task.ID, "panic", r)
			result, err = nil, fmt.Errorf("agent executor panicked: %v", r)
		}
	}()

	result, err = e.agent.Execute(ctx, reqCtx, reporter)
	if err == nil && result == nil {
		err = errNoResult
	}
	return result, err
}

func (e *Executor) finish(ctx context.Context, span trace.Span, commit func(context.Context) (*a2a.Task, error)) {
	task, err := commit(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "terminal commit failed")
		e.logger.ErrorContext(ctx, "failed to finish task", "error", err)
		return
	}

	span.SetAttributes(attribute.String("a2a.task_state", string(task.State)))
	if task.State == a2a.TaskStateFailed {
		span.SetStatus(codes.Error, task.Error)
	}
	e.logger.InfoContext(ctx, "task finished", "task_id", task.ID, "state", task.State)
}

func (e *Executor) newUpdater(taskID string, buffered bool) (*TaskUpdater, error) {
	return NewTaskUpdater(TaskUpdaterConfig{
		TaskID:    taskID,
		Store:     e.store,
		Queues:    e.queues,
		Persister: e.persister,
		Buffered:  buffered,
		Metrics:   e.metrics,
		Logger:    e.logger,
	})
}

func (e *Executor) forget(taskID string, r *run) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[taskID] == r {
		delete(e.running, taskID)
	}
}

func (e *Executor) pause(ctx context.Context) error {
	if e.stageDelay <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(e.stageDelay)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stageReporter paces progress reports of a background execution and commits them.
type stageReporter struct {
	executor  *Executor
	updater   *TaskUpdater
	commitCtx context.Context
}

var _ agent_execution.Reporter = (*stageReporter)(nil)

// Progress implements [agent_execution.Reporter].
func (r *stageReporter) Progress(ctx context.Context, msg *a2a.Message) error {
	if err := r.executor.pause(ctx); err != nil {
		return err
	}
	_, err := r.updater.Progress(r.commitCtx, msg)
	return err
}
