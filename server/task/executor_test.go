// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	gocmp "github.com/google/go-cmp/cmp"

	a2a "github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/server/agent_execution"
	"github.com/go-a2a/a2a-taskd/server/event"
)

type executorFixture struct {
	store    *InMemoryTaskStore
	queues   *event.InMemoryQueueManager
	executor *Executor
}

func newExecutorFixture(t *testing.T, agent agent_execution.AgentExecutor, opts ...ExecutorOption) *executorFixture {
	t.Helper()

	store := NewInMemoryTaskStore()
	queues := event.NewInMemoryQueueManager()
	opts = append([]ExecutorOption{WithExecutorLogger(discardLogger)}, opts...)
	f := &executorFixture{
		store:    store,
		queues:   queues,
		executor: NewExecutor(store, queues, agent, opts...),
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.executor.Close(ctx); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return f
}

// submit saves a fresh task and returns its queue, attached before the execution starts.
func (f *executorFixture) submit(t *testing.T, id string) *event.EventQueue {
	t.Helper()

	if err := f.store.Save(t.Context(), newTestTask(id)); err != nil {
		t.Fatal(err)
	}
	return f.queues.GetOrCreate(id)
}

// blockingAgent returns an agent that signals started and then waits for cancellation.
func blockingAgent(started chan<- struct{}) agent_execution.AgentExecutor {
	return agent_execution.AgentExecutorFunc(func(ctx context.Context, _ *agent_execution.RequestContext, _ agent_execution.Reporter) (*a2a.Message, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func TestExecutor_Start(t *testing.T) {
	t.Parallel()

	p := &recordingPersister{}
	f := newExecutorFixture(t, agent_execution.NewSimulatedAgentExecutor(),
		WithStageDelay(time.Millisecond), WithPersister(p))
	q := f.submit(t, "t1")

	if err := f.executor.Start(t.Context(), "t1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	evs := drain(t, q)

	wantTypes := []event.Type{event.TypeStatusUpdate, event.TypePartialMessage, event.TypeTerminal}
	if diff := gocmp.Diff(wantTypes, eventTypes(evs)); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}
	if got := evs[1].(*event.PartialMessageEvent).Message.Text(); got != agent_execution.ProgressText {
		t.Errorf("partial message = %q, want %q", got, agent_execution.ProgressText)
	}
	term := evs[2].(*event.TerminalEvent)
	if term.State != a2a.TaskStateCompleted || term.Message.Text() != agent_execution.StreamResultText {
		t.Errorf("terminal event = %+v", term)
	}

	task, err := f.store.Get(t.Context(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if task.State != a2a.TaskStateCompleted || len(task.Messages) != 2 {
		t.Errorf("stored task = %s with %d messages, want completed with 2", task.State, len(task.Messages))
	}
	wantSaved := []a2a.TaskState{a2a.TaskStateProcessing, a2a.TaskStateCompleted}
	if diff := gocmp.Diff(wantSaved, p.Saved()); diff != "" {
		t.Errorf("persisted states mismatch (-want +got):\n%s", diff)
	}
}

func TestExecutor_StartFailures(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		agent     agent_execution.AgentExecutorFunc
		wantError string
	}{
		"agent error": {
			agent: func(context.Context, *agent_execution.RequestContext, agent_execution.Reporter) (*a2a.Message, error) {
				return nil, errors.New("model unavailable")
			},
			wantError: "model unavailable",
		},
		"agent panic": {
			agent: func(context.Context, *agent_execution.RequestContext, agent_execution.Reporter) (*a2a.Message, error) {
				panic("boom")
			},
			wantError: "agent executor panicked: boom",
		},
		"no result": {
			agent: func(context.Context, *agent_execution.RequestContext, agent_execution.Reporter) (*a2a.Message, error) {
				return nil, nil
			},
			wantError: errNoResult.Error(),
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newExecutorFixture(t, tt.agent)
			q := f.submit(t, "t1")
			if err := f.executor.Start(t.Context(), "t1"); err != nil {
				t.Fatal(err)
			}

			evs := drain(t, q)
			wantTypes := []event.Type{event.TypeStatusUpdate, event.TypeTerminal}
			if diff := gocmp.Diff(wantTypes, eventTypes(evs)); diff != "" {
				t.Fatalf("event types mismatch (-want +got):\n%s", diff)
			}
			term := evs[1].(*event.TerminalEvent)
			if term.State != a2a.TaskStateFailed || term.Error != tt.wantError {
				t.Errorf("terminal event = %s %q, want failed %q", term.State, term.Error, tt.wantError)
			}
			if term.Message != nil {
				t.Errorf("failed terminal event carries message %v", term.Message)
			}
		})
	}
}

func TestExecutor_Cancel(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	f := newExecutorFixture(t, blockingAgent(started))
	q := f.submit(t, "t1")

	if err := f.executor.Start(t.Context(), "t1"); err != nil {
		t.Fatal(err)
	}
	<-started
	if !f.executor.Running("t1") {
		t.Fatal("Running() = false for a started task")
	}

	done, ok := f.executor.Cancel("t1")
	if !ok {
		t.Fatal("Cancel() ok = false for a running task")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("canceled execution did not finish")
	}

	task, err := f.store.Get(t.Context(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if task.State != a2a.TaskStateCanceled {
		t.Errorf("state = %s, want %s", task.State, a2a.TaskStateCanceled)
	}
	if f.executor.Running("t1") || f.executor.Len() != 0 {
		t.Error("finished execution is still registered")
	}

	evs := drain(t, q)
	last, ok := evs[len(evs)-1].(*event.TerminalEvent)
	if !ok || last.State != a2a.TaskStateCanceled {
		t.Errorf("last event = %v, want canceled terminal event", evs[len(evs)-1])
	}

	if _, ok := f.executor.Cancel("t1"); ok {
		t.Error("Cancel() of a finished task ok = true")
	}
}

func TestExecutor_CancelDuringStageDelay(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, agent_execution.NewSimulatedAgentExecutor(), WithStageDelay(time.Hour))
	q := f.submit(t, "t1")
	if err := f.executor.Start(t.Context(), "t1"); err != nil {
		t.Fatal(err)
	}

	done, ok := f.executor.Cancel("t1")
	if !ok {
		t.Fatal("Cancel() ok = false")
	}
	<-done

	evs := drain(t, q)
	if diff := gocmp.Diff([]event.Type{event.TypeTerminal}, eventTypes(evs)); diff != "" {
		t.Errorf("event types mismatch (-want +got):\n%s", diff)
	}
}

func TestExecutor_OutlivesStartContext(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, agent_execution.NewSimulatedAgentExecutor(), WithStageDelay(5*time.Millisecond))
	q := f.submit(t, "t1")

	ctx, cancel := context.WithCancel(t.Context())
	if err := f.executor.Start(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	cancel()

	evs := drain(t, q)
	last := evs[len(evs)-1].(*event.TerminalEvent)
	if last.State != a2a.TaskStateCompleted {
		t.Errorf("terminal state = %s, want %s", last.State, a2a.TaskStateCompleted)
	}
}

func TestExecutor_Close(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	store := NewInMemoryTaskStore()
	queues := event.NewInMemoryQueueManager()
	ex := NewExecutor(store, queues, blockingAgent(started), WithExecutorLogger(discardLogger))
	if err := store.Save(t.Context(), newTestTask("t1")); err != nil {
		t.Fatal(err)
	}
	if err := ex.Start(t.Context(), "t1"); err != nil {
		t.Fatal(err)
	}
	<-started

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	if err := ex.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close() error = %v, want %v", err, context.DeadlineExceeded)
	}
	if err := ex.Close(t.Context()); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	task, err := store.Get(t.Context(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if task.State != a2a.TaskStateCanceled {
		t.Errorf("state after Close = %s, want %s", task.State, a2a.TaskStateCanceled)
	}
	if err := ex.Start(t.Context(), "t1"); !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("Start() after Close error = %v, want %v", err, ErrExecutorClosed)
	}
}

func TestExecutor_RunSync(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, agent_execution.NewSimulatedAgentExecutor(), WithStageDelay(time.Hour))
	if err := f.store.Save(t.Context(), newTestTask("t1")); err != nil {
		t.Fatal(err)
	}

	task, err := f.executor.RunSync(t.Context(), "t1")
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if task.State != a2a.TaskStateCompleted {
		t.Errorf("state = %s, want %s", task.State, a2a.TaskStateCompleted)
	}
	want := []*a2a.Message{a2a.NewUserTextMessage("Hello"), a2a.NewAgentTextMessage(agent_execution.ResultText)}
	if diff := gocmp.Diff(want, task.Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if got := f.queues.Len(); got != 0 {
		t.Errorf("RunSync() left %d queues behind", got)
	}
}

func TestExecutor_RunSyncFailure(t *testing.T) {
	t.Parallel()

	agent := agent_execution.AgentExecutorFunc(func(context.Context, *agent_execution.RequestContext, agent_execution.Reporter) (*a2a.Message, error) {
		return nil, errors.New("model unavailable")
	})
	f := newExecutorFixture(t, agent)
	if err := f.store.Save(t.Context(), newTestTask("t1")); err != nil {
		t.Fatal(err)
	}

	_, err := f.executor.RunSync(t.Context(), "t1")
	var execErr *TaskExecutionError
	if !errors.As(err, &execErr) || !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("RunSync() error = %v, want TaskExecutionError", err)
	}

	task, err := f.store.Get(t.Context(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if task.State != a2a.TaskStateFailed || task.Error != "model unavailable" {
		t.Errorf("task = %s %q, want failed %q", task.State, task.Error, "model unavailable")
	}
}
