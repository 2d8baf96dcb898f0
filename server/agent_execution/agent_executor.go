// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent_execution defines the pluggable work operation run for every task.
package agent_execution

import (
	"context"

	a2a "github.com/go-a2a/a2a-taskd"
)

// AgentExecutor performs the work of a task.
//
// Execute returns the agent message answering the request. Intermediate output is reported
// through reporter. Execute must return promptly once ctx is canceled.
type AgentExecutor interface {
	Execute(ctx context.Context, reqCtx *RequestContext, reporter Reporter) (*a2a.Message, error)
}

// AgentExecutorFunc adapts a function to the [AgentExecutor] interface.
type AgentExecutorFunc func(ctx context.Context, reqCtx *RequestContext, reporter Reporter) (*a2a.Message, error)

var _ AgentExecutor = AgentExecutorFunc(nil)

// Execute implements [AgentExecutor].
func (f AgentExecutorFunc) Execute(ctx context.Context, reqCtx *RequestContext, reporter Reporter) (*a2a.Message, error) {
	return f(ctx, reqCtx, reporter)
}

// Reporter receives the intermediate output of an [AgentExecutor].
type Reporter interface {
	// Progress publishes msg as partial output of the running task. It returns an error if the
	// task was canceled or has already finished.
	Progress(ctx context.Context, msg *a2a.Message) error
}

// NopReporter discards every report. It is used when a task runs inline for a synchronous
// request and nobody observes its progress.
type NopReporter struct{}

var _ Reporter = NopReporter{}

// Progress implements [Reporter].
func (NopReporter) Progress(context.Context, *a2a.Message) error { return nil }
