// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agent_execution

import (
	"context"

	a2a "github.com/go-a2a/a2a-taskd"
)

// RequestContextBuilder builds the [RequestContext] supplied to an [AgentExecutor].
type RequestContextBuilder interface {
	// Build creates a RequestContext for task.
	Build(ctx context.Context, task *a2a.Task) (*RequestContext, error)
}
