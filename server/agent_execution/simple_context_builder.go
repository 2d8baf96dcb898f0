// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agent_execution

import (
	"context"
	"errors"
	"fmt"

	a2a "github.com/go-a2a/a2a-taskd"
)

// SimpleRequestContextBuilder is the default [RequestContextBuilder]. It answers the most recent
// user message of the task.
type SimpleRequestContextBuilder struct{}

var _ RequestContextBuilder = (*SimpleRequestContextBuilder)(nil)

// NewSimpleRequestContextBuilder creates a new SimpleRequestContextBuilder instance.
func NewSimpleRequestContextBuilder() *SimpleRequestContextBuilder {
	return &SimpleRequestContextBuilder{}
}

// Build implements [RequestContextBuilder].
func (b *SimpleRequestContextBuilder) Build(ctx context.Context, task *a2a.Task) (*RequestContext, error) {
	if task == nil {
		return nil, errors.New("task cannot be nil")
	}

	var msg *a2a.Message
	for i := len(task.Messages) - 1; i >= 0; i-- {
		if m := task.Messages[i]; m != nil && m.Role == a2a.RoleUser {
			msg = m
			break
		}
	}
	if msg == nil {
		return nil, fmt.Errorf("task %s has no user message", task.ID)
	}

	return &RequestContext{
		TaskID:    task.ID,
		SessionID: task.SessionID,
		Message:   msg.Clone(),
		Task:      task.Clone(),
	}, nil
}
