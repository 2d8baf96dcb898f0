// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package task provides task storage and the executor driving a task through its lifecycle.
package task

import (
	"context"

	a2a "github.com/go-a2a/a2a-taskd"
)

// MutateFunc changes a task in place. Returning an error discards the change.
type MutateFunc func(task *a2a.Task) error

// TaskStore is the single source of truth for task state.
type TaskStore interface {
	// Save inserts task, or replaces the task stored under the same ID.
	Save(ctx context.Context, task *a2a.Task) error

	// Get returns an isolated snapshot of the task.
	// Returns [*a2a.TaskNotFoundError] if the task doesn't exist.
	Get(ctx context.Context, taskID string) (*a2a.Task, error)

	// Update applies fn to the task as one atomic commit, advancing its revision and UpdatedAt,
	// and returns a snapshot of the committed task.
	// Returns [*a2a.TaskNotFoundError] if the task doesn't exist.
	Update(ctx context.Context, taskID string, fn MutateFunc) (*a2a.Task, error)

	// Len returns the number of stored tasks.
	Len() int
}

// Persister writes task snapshots to durable storage. It is called opportunistically and is not
// required for the in-memory lifecycle to be correct.
type Persister interface {
	// Save writes task, replacing any previous snapshot with the same ID.
	Save(ctx context.Context, task *a2a.Task) error
}
