// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"testing"
	"time"

	gocmp "github.com/google/go-cmp/cmp"

	a2a "github.com/go-a2a/a2a-taskd"
	"github.com/go-a2a/a2a-taskd/server/agent_execution"
	"github.com/go-a2a/a2a-taskd/server/event"
	"github.com/go-a2a/a2a-taskd/server/task"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestTaskManager(t *testing.T, cfg TaskManagerConfig) *DefaultTaskManager {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger = discardLogger
	}
	tm := NewDefaultTaskManager(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tm.Close(ctx); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return tm
}

func helloParams(id string) *a2a.TaskSendParams {
	return &a2a.TaskSendParams{ID: id, Message: a2a.NewUserTextMessage("Hello")}
}

// collect iterates events to the end, failing the test on a stream error.
func collect(t *testing.T, events func(func(event.Event, error) bool)) []event.Event {
	t.Helper()

	var evs []event.Event
	for ev, err := range events {
		if err != nil {
			t.Fatalf("stream error = %v", err)
		}
		evs = append(evs, ev)
	}
	return evs
}

func eventTypes(evs []event.Event) []event.Type {
	types := make([]event.Type, len(evs))
	for i, ev := range evs {
		types[i] = ev.EventType()
	}
	return types
}

func statesOf(evs []event.Event) []a2a.TaskState {
	var states []a2a.TaskState
	for _, ev := range evs {
		if s, ok := event.State(ev); ok {
			states = append(states, s)
		}
	}
	return states
}

// checkStateOrder verifies that states is a strictly ordered subsequence of
// [active, processing, terminal] ending in exactly one terminal state.
func checkStateOrder(t *testing.T, states []a2a.TaskState) {
	t.Helper()

	rank := func(s a2a.TaskState) int {
		switch {
		case s == a2a.TaskStateActive:
			return 0
		case s == a2a.TaskStateProcessing:
			return 1
		default:
			return 2
		}
	}
	if len(states) == 0 {
		t.Fatal("no states observed")
	}
	for i := 1; i < len(states); i++ {
		if rank(states[i]) <= rank(states[i-1]) {
			t.Fatalf("states out of order: %v", states)
		}
	}
	if !states[len(states)-1].IsTerminal() {
		t.Fatalf("stream did not end in a terminal state: %v", states)
	}
}

func TestDefaultTaskManager_OnSendTask(t *testing.T) {
	t.Parallel()

	tm := newTestTaskManager(t, TaskManagerConfig{StageDelay: time.Hour})

	got, err := tm.OnSendTask(t.Context(), helloParams("t1"))
	if err != nil {
		t.Fatalf("OnSendTask() error = %v", err)
	}
	want := &a2a.SendTaskResult{
		TaskID:  "t1",
		State:   a2a.TaskStateCompleted,
		Message: a2a.NewAgentTextMessage("Task processed successfully"),
	}
	if diff := gocmp.Diff(want, got); diff != "" {
		t.Errorf("OnSendTask() mismatch (-want +got):\n%s", diff)
	}

	stored, err := tm.OnGetTask(t.Context(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Messages) != 2 || stored.State != a2a.TaskStateCompleted {
		t.Errorf("stored task = %s with %d messages, want completed with 2", stored.State, len(stored.Messages))
	}
	if stats := tm.Stats(); stats.Queues != 0 || stats.Running != 0 {
		t.Errorf("Stats() = %+v, want no queues and nothing running", stats)
	}
}

func TestDefaultTaskManager_InvalidParams(t *testing.T) {
	t.Parallel()

	tests := map[string]*a2a.TaskSendParams{
		"nil params":      nil,
		"missing id":      {Message: a2a.NewUserTextMessage("Hello")},
		"missing message": {ID: "t1"},
		"empty message":   {ID: "t1", Message: &a2a.Message{Role: a2a.RoleUser}},
	}
	for name, params := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tm := newTestTaskManager(t, TaskManagerConfig{})
			var invalid *a2a.InvalidParamsError

			if _, err := tm.OnSendTask(t.Context(), params); !errors.As(err, &invalid) {
				t.Errorf("OnSendTask() error = %v, want InvalidParamsError", err)
			}
			if _, err := tm.OnSendTaskSubscribe(t.Context(), params); !errors.As(err, &invalid) {
				t.Errorf("OnSendTaskSubscribe() error = %v, want InvalidParamsError", err)
			}
			if got := tm.Stats().Tasks; got != 0 {
				t.Errorf("invalid submission created %d tasks", got)
			}
		})
	}
}

func TestDefaultTaskManager_SendFailure(t *testing.T) {
	t.Parallel()

	agent := agent_execution.AgentExecutorFunc(func(context.Context, *agent_execution.RequestContext, agent_execution.Reporter) (*a2a.Message, error) {
		return nil, errors.New("model unavailable")
	})
	tm := newTestTaskManager(t, TaskManagerConfig{Agent: agent})

	_, err := tm.OnSendTask(t.Context(), helloParams("t1"))
	if got := a2a.ToJSONRPCError(err); got.Code != a2a.InternalErrorCode {
		t.Errorf("ToJSONRPCError(%v).Code = %d, want %d", err, got.Code, a2a.InternalErrorCode)
	}

	stored, err := tm.OnGetTask(t.Context(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != a2a.TaskStateFailed || stored.Error != "model unavailable" {
		t.Errorf("stored task = %s %q, want failed", stored.State, stored.Error)
	}
}

func TestDefaultTaskManager_SubscribeAndAttach(t *testing.T) {
	t.Parallel()

	tm := newTestTaskManager(t, TaskManagerConfig{StageDelay: 50 * time.Millisecond})

	res, err := tm.OnSendTaskSubscribe(t.Context(), helloParams("t1"))
	if err != nil {
		t.Fatalf("OnSendTaskSubscribe() error = %v", err)
	}
	want := &a2a.SubscribeTaskResult{TaskID: "t1", State: a2a.TaskStateActive, StreamURL: "/tasks/t1/stream"}
	if diff := gocmp.Diff(want, res); diff != "" {
		t.Errorf("OnSendTaskSubscribe() mismatch (-want +got):\n%s", diff)
	}

	events, err := tm.OnResubscribe(t.Context(), "t1")
	if err != nil {
		t.Fatalf("OnResubscribe() error = %v", err)
	}
	evs := collect(t, events)

	wantTypes := []event.Type{event.TypeSnapshot, event.TypeStatusUpdate, event.TypePartialMessage, event.TypeTerminal}
	if diff := gocmp.Diff(wantTypes, eventTypes(evs)); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}
	wantStates := []a2a.TaskState{a2a.TaskStateActive, a2a.TaskStateProcessing, a2a.TaskStateCompleted}
	if diff := gocmp.Diff(wantStates, statesOf(evs)); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	term := evs[3].(*event.TerminalEvent)
	if diff := gocmp.Diff(a2a.NewAgentTextMessage(agent_execution.StreamResultText), term.Message); diff != "" {
		t.Errorf("terminal message mismatch (-want +got):\n%s", diff)
	}

	if got := tm.Stats().Queues; got != 0 {
		t.Errorf("attach left %d queues behind", got)
	}

	// a finished sequence cannot be restarted
	if again := collect(t, events); len(again) != 0 {
		t.Errorf("second iteration yielded %d events", len(again))
	}
}

func TestDefaultTaskManager_AttachAfterCompletion(t *testing.T) {
	t.Parallel()

	tm := newTestTaskManager(t, TaskManagerConfig{})
	if _, err := tm.OnSendTask(t.Context(), helloParams("t1")); err != nil {
		t.Fatal(err)
	}

	for range 2 {
		events, err := tm.OnResubscribe(t.Context(), "t1")
		if err != nil {
			t.Fatalf("OnResubscribe() error = %v", err)
		}
		evs := collect(t, events)
		if len(evs) != 1 {
			t.Fatalf("got %d events, want only the snapshot", len(evs))
		}
		snap := evs[0].(*event.SnapshotEvent)
		if snap.Task.State != a2a.TaskStateCompleted || len(snap.Task.Messages) != 2 {
			t.Errorf("snapshot = %s with %d messages", snap.Task.State, len(snap.Task.Messages))
		}
		if got := tm.Stats().Queues; got != 0 {
			t.Errorf("attach left %d queues behind", got)
		}
	}
}

func TestDefaultTaskManager_AttachLate(t *testing.T) {
	t.Parallel()

	tm := newTestTaskManager(t, TaskManagerConfig{StageDelay: 5 * time.Millisecond})
	if _, err := tm.OnSendTaskSubscribe(t.Context(), helloParams("t1")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(12 * time.Millisecond)

	events, err := tm.OnResubscribe(t.Context(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	evs := collect(t, events)

	checkStateOrder(t, statesOf(evs))
	if _, ok := evs[0].(*event.SnapshotEvent); !ok {
		t.Errorf("first event = %T, want snapshot", evs[0])
	}
	terminals := 0
	for _, ev := range evs {
		if event.IsFinalEvent(ev) {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("observed %d final events, want 1", terminals)
	}
}

func TestDefaultTaskManager_ConsumerBreakReleasesQueue(t *testing.T) {
	t.Parallel()

	tm := newTestTaskManager(t, TaskManagerConfig{StageDelay: 20 * time.Millisecond})
	if _, err := tm.OnSendTaskSubscribe(t.Context(), helloParams("t1")); err != nil {
		t.Fatal(err)
	}

	events, err := tm.OnResubscribe(t.Context(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	for range events {
		break
	}
	if got := tm.Stats().Queues; got != 0 {
		t.Errorf("Stats().Queues = %d after consumer break, want 0", got)
	}

	// the execution is not affected by the departed consumer
	deadline := time.After(5 * time.Second)
	for {
		stored, err := tm.OnGetTask(t.Context(), "t1")
		if err != nil {
			t.Fatal(err)
		}
		if stored.State == a2a.TaskStateCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("task stuck in %s", stored.State)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDefaultTaskManager_ReattachGetsFreshQueue(t *testing.T) {
	t.Parallel()

	reported := make(chan struct{})
	release := make(chan struct{})
	agent := agent_execution.AgentExecutorFunc(func(ctx context.Context, _ *agent_execution.RequestContext, reporter agent_execution.Reporter) (*a2a.Message, error) {
		if err := reporter.Progress(ctx, a2a.NewAgentTextMessage("halfway")); err != nil {
			return nil, err
		}
		close(reported)
		select {
		case <-release:
			return a2a.NewAgentTextMessage("done"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	tm := newTestTaskManager(t, TaskManagerConfig{Agent: agent})
	if _, err := tm.OnSendTaskSubscribe(t.Context(), helloParams("t1")); err != nil {
		t.Fatal(err)
	}
	<-reported

	first, err := tm.OnResubscribe(t.Context(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	for range first {
		break
	}
	if got := tm.Stats().Queues; got != 0 {
		t.Fatalf("Stats().Queues = %d after the first stream ended, want 0", got)
	}

	second, err := tm.OnResubscribe(t.Context(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	next, stop := iter.Pull2(second)
	defer stop()

	ev, err, ok := next()
	if !ok || err != nil {
		t.Fatalf("first element = %v, %v, %v, want a snapshot", ev, err, ok)
	}
	snap, isSnapshot := ev.(*event.SnapshotEvent)
	if !isSnapshot {
		t.Fatalf("first element = %T, want snapshot", ev)
	}
	if snap.Task.State != a2a.TaskStateProcessing {
		t.Fatalf("snapshot state = %s, want %s", snap.Task.State, a2a.TaskStateProcessing)
	}

	close(release)
	var rest []event.Event
	for {
		ev, err, ok := next()
		if !ok {
			break
		}
		if err != nil {
			t.Fatalf("stream error = %v", err)
		}
		rest = append(rest, ev)
	}

	if len(rest) == 0 {
		t.Fatal("stream ended without a terminal event")
	}
	for _, ev := range rest {
		if rev := ev.EventMeta().Revision; rev <= snap.Revision {
			t.Errorf("%v replayed at revision %d, snapshot is at %d", ev, rev, snap.Revision)
		}
	}
	finals := 0
	for _, ev := range rest {
		if event.IsFinalEvent(ev) {
			finals++
		}
	}
	if finals != 1 || !event.IsFinalEvent(rest[len(rest)-1]) {
		t.Errorf("got %d final events with last %v, want exactly one at the end", finals, rest[len(rest)-1])
	}
	if s, _ := event.State(rest[len(rest)-1]); s != a2a.TaskStateCompleted {
		t.Errorf("final state = %s, want %s", s, a2a.TaskStateCompleted)
	}
}

func TestDefaultTaskManager_RejectsDuplicateWhileRunning(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	agent := agent_execution.AgentExecutorFunc(func(ctx context.Context, _ *agent_execution.RequestContext, _ agent_execution.Reporter) (*a2a.Message, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	tm := newTestTaskManager(t, TaskManagerConfig{Agent: agent})

	firstParams := &a2a.TaskSendParams{ID: "t1", SessionID: "first", Message: a2a.NewUserTextMessage("Hello")}
	if _, err := tm.OnSendTaskSubscribe(t.Context(), firstParams); err != nil {
		t.Fatal(err)
	}
	<-started
	before, err := tm.OnGetTask(t.Context(), "t1")
	if err != nil {
		t.Fatal(err)
	}

	again := &a2a.TaskSendParams{ID: "t1", SessionID: "second", Message: a2a.NewUserTextMessage("Again")}
	var invalid *a2a.InvalidParamsError
	if _, err := tm.OnSendTaskSubscribe(t.Context(), again); !errors.As(err, &invalid) {
		t.Errorf("OnSendTaskSubscribe() error = %v, want InvalidParamsError", err)
	}
	if _, err := tm.OnSendTask(t.Context(), again); !errors.As(err, &invalid) {
		t.Errorf("OnSendTask() error = %v, want InvalidParamsError", err)
	}
	if invalid != nil {
		if got := a2a.ToJSONRPCError(invalid).Code; got != a2a.InvalidParamsErrorCode {
			t.Errorf("ToJSONRPCError().Code = %d, want %d", got, a2a.InvalidParamsErrorCode)
		}
	}

	after, err := tm.OnGetTask(t.Context(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := gocmp.Diff(before, after); diff != "" {
		t.Errorf("rejected submission changed the task (-before +after):\n%s", diff)
	}
	if stats := tm.Stats(); stats.Queues != 1 || stats.Running != 1 {
		t.Errorf("Stats() = %+v, want one queue and one running task", stats)
	}

	canceled, err := tm.OnCancelTask(t.Context(), "t1")
	if err != nil {
		t.Fatalf("OnCancelTask() error = %v", err)
	}
	if canceled.SessionID != "first" || len(canceled.Messages) != 1 || canceled.Messages[0].Text() != "Hello" {
		t.Errorf("canceled task = session %q with %d messages, want the first submission", canceled.SessionID, len(canceled.Messages))
	}
}

func TestDefaultTaskManager_AttachContextCanceled(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	agent := agent_execution.AgentExecutorFunc(func(ctx context.Context, _ *agent_execution.RequestContext, _ agent_execution.Reporter) (*a2a.Message, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	tm := newTestTaskManager(t, TaskManagerConfig{Agent: agent})
	if _, err := tm.OnSendTaskSubscribe(t.Context(), helloParams("t1")); err != nil {
		t.Fatal(err)
	}
	<-started

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	events, err := tm.OnResubscribe(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}

	var gotErr error
	for _, err := range events {
		if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, context.DeadlineExceeded) {
		t.Errorf("stream error = %v, want %v", gotErr, context.DeadlineExceeded)
	}
	if got := tm.Stats().Queues; got != 0 {
		t.Errorf("Stats().Queues = %d, want 0", got)
	}

	if _, err := tm.OnCancelTask(t.Context(), "t1"); err != nil {
		t.Errorf("OnCancelTask() error = %v", err)
	}
}

func TestDefaultTaskManager_NotFound(t *testing.T) {
	t.Parallel()

	tm := newTestTaskManager(t, TaskManagerConfig{})

	if _, err := tm.OnGetTask(t.Context(), "missing"); !a2a.IsTaskNotFound(err) {
		t.Errorf("OnGetTask() error = %v, want not found", err)
	}
	if _, err := tm.OnResubscribe(t.Context(), "missing"); !a2a.IsTaskNotFound(err) {
		t.Errorf("OnResubscribe() error = %v, want not found", err)
	}
	if _, err := tm.OnCancelTask(t.Context(), "missing"); !a2a.IsTaskNotFound(err) {
		t.Errorf("OnCancelTask() error = %v, want not found", err)
	}

	var invalid *a2a.InvalidParamsError
	if _, err := tm.OnGetTask(t.Context(), ""); !errors.As(err, &invalid) {
		t.Errorf("OnGetTask(\"\") error = %v, want InvalidParamsError", err)
	}
}

func TestDefaultTaskManager_OnCancelTask(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	agent := agent_execution.AgentExecutorFunc(func(ctx context.Context, _ *agent_execution.RequestContext, _ agent_execution.Reporter) (*a2a.Message, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	tm := newTestTaskManager(t, TaskManagerConfig{Agent: agent})

	if _, err := tm.OnSendTaskSubscribe(t.Context(), helloParams("t1")); err != nil {
		t.Fatal(err)
	}
	events, err := tm.OnResubscribe(t.Context(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	streamed := make(chan []event.Event)
	go func() {
		var evs []event.Event
		for ev, err := range events {
			if err == nil {
				evs = append(evs, ev)
			}
		}
		streamed <- evs
	}()
	<-started

	canceled, err := tm.OnCancelTask(t.Context(), "t1")
	if err != nil {
		t.Fatalf("OnCancelTask() error = %v", err)
	}
	if canceled.State != a2a.TaskStateCanceled {
		t.Errorf("OnCancelTask() state = %s, want %s", canceled.State, a2a.TaskStateCanceled)
	}

	evs := <-streamed
	checkStateOrder(t, statesOf(evs))
	if got := statesOf(evs)[len(statesOf(evs))-1]; got != a2a.TaskStateCanceled {
		t.Errorf("last streamed state = %s, want %s", got, a2a.TaskStateCanceled)
	}

	var notCancelable *a2a.TaskNotCancelableError
	if _, err := tm.OnCancelTask(t.Context(), "t1"); !errors.As(err, &notCancelable) {
		t.Errorf("second OnCancelTask() error = %v, want TaskNotCancelableError", err)
	}
}

func TestDefaultTaskManager_OnCancelIdleTask(t *testing.T) {
	t.Parallel()

	store := task.NewInMemoryTaskStore()
	if err := store.Save(t.Context(), a2a.NewTask("t1", "", a2a.NewUserTextMessage("Hello"))); err != nil {
		t.Fatal(err)
	}
	tm := newTestTaskManager(t, TaskManagerConfig{Store: store})

	canceled, err := tm.OnCancelTask(t.Context(), "t1")
	if err != nil {
		t.Fatalf("OnCancelTask() error = %v", err)
	}
	if canceled.State != a2a.TaskStateCanceled {
		t.Errorf("state = %s, want %s", canceled.State, a2a.TaskStateCanceled)
	}
}

func TestDefaultTaskManager_RetentionRemovesQueues(t *testing.T) {
	t.Parallel()

	tm := newTestTaskManager(t, TaskManagerConfig{MaxTasks: 1, StageDelay: time.Millisecond})
	for _, id := range []string{"a", "b"} {
		if _, err := tm.OnSendTaskSubscribe(t.Context(), helloParams(id)); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := tm.OnGetTask(t.Context(), "a"); !a2a.IsTaskNotFound(err) {
		t.Errorf("OnGetTask(a) error = %v, want evicted", err)
	}
	if got := tm.Stats().Tasks; got != 1 {
		t.Errorf("Stats().Tasks = %d, want 1", got)
	}
}
