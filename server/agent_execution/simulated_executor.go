// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agent_execution

import (
	"context"

	a2a "github.com/go-a2a/a2a-taskd"
)

const (
	// ProgressText is the partial output reported by [SimulatedAgentExecutor].
	ProgressText = "Processing task..."
	// ResultText is the answer returned by [SimulatedAgentExecutor] to a synchronous request.
	ResultText = "Task processed successfully"
	// StreamResultText is the answer returned by [SimulatedAgentExecutor] to a streamed task.
	StreamResultText = "Task completed successfully"
)

// SimulatedAgentExecutor is the default [AgentExecutor]. It performs no real work: it reports a
// single progress message and answers with a fixed agent message, which differs between
// synchronous and streamed tasks.
type SimulatedAgentExecutor struct{}

var _ AgentExecutor = (*SimulatedAgentExecutor)(nil)

// NewSimulatedAgentExecutor creates a new SimulatedAgentExecutor.
func NewSimulatedAgentExecutor() *SimulatedAgentExecutor {
	return &SimulatedAgentExecutor{}
}

// Execute implements [AgentExecutor].
func (*SimulatedAgentExecutor) Execute(ctx context.Context, reqCtx *RequestContext, reporter Reporter) (*a2a.Message, error) {
	if err := reporter.Progress(ctx, a2a.NewAgentTextMessage(ProgressText)); err != nil {
		return nil, err
	}
	if reqCtx.Streaming {
		return a2a.NewAgentTextMessage(StreamResultText), nil
	}
	return a2a.NewAgentTextMessage(ResultText), nil
}
