// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	a2a "github.com/go-a2a/a2a-taskd"
)

// entry guards one stored task. Mutations of a task hold only its entry lock.
type entry struct {
	mu   sync.Mutex
	task *a2a.Task
}

// InMemoryTaskStore is an in-memory implementation of [TaskStore].
// Task data is lost when the server process stops.
//
// By default tasks are retained for the process lifetime. [WithRetention] bounds the store by
// count and age, evicting the least recently used tasks first.
type InMemoryTaskStore struct {
	// mu serializes Save so that replacing a task observes the entry it replaces.
	mu      sync.Mutex
	entries *expirable.LRU[string, *entry]

	maxTasks int
	ttl      time.Duration
	onEvict  func(taskID string)
}

var _ TaskStore = (*InMemoryTaskStore)(nil)

// StoreOption configures an [InMemoryTaskStore].
type StoreOption func(*InMemoryTaskStore)

// WithRetention bounds the store to maxTasks entries, each kept at most ttl after it was saved.
// Zero disables the respective limit.
func WithRetention(maxTasks int, ttl time.Duration) StoreOption {
	return func(s *InMemoryTaskStore) {
		s.maxTasks = maxTasks
		s.ttl = ttl
	}
}

// WithEvictCallback registers fn to be called with the ID of every evicted task.
func WithEvictCallback(fn func(taskID string)) StoreOption {
	return func(s *InMemoryTaskStore) {
		s.onEvict = fn
	}
}

// NewInMemoryTaskStore creates a new InMemoryTaskStore.
func NewInMemoryTaskStore(opts ...StoreOption) *InMemoryTaskStore {
	s := &InMemoryTaskStore{}
	for _, opt := range opts {
		opt(s)
	}

	var onEvict expirable.EvictCallback[string, *entry]
	if s.onEvict != nil {
		onEvict = func(taskID string, _ *entry) { s.onEvict(taskID) }
	}
	s.entries = expirable.NewLRU(s.maxTasks, onEvict, s.ttl)

	return s
}

// Save stores a copy of task. Replacing an existing task keeps its revision counter increasing.
func (s *InMemoryTaskStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return NewTaskValidationError(task.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := task.Clone()
	saved.Revision = task.Revision + 1
	if old, ok := s.entries.Peek(task.ID); ok {
		old.mu.Lock()
		saved.Revision = max(saved.Revision, old.task.Revision+1)
		old.mu.Unlock()
	}
	s.entries.Add(task.ID, &entry{task: saved})

	return nil
}

// Get returns a deep copy of the task stored under taskID.
func (s *InMemoryTaskStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	if taskID == "" {
		return nil, errors.New("task ID cannot be empty")
	}

	e, ok := s.entries.Get(taskID)
	if !ok {
		return nil, &a2a.TaskNotFoundError{TaskID: taskID}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Clone(), nil
}

// Update applies fn to a copy of the stored task and commits the copy only if fn succeeds.
func (s *InMemoryTaskStore) Update(ctx context.Context, taskID string, fn MutateFunc) (*a2a.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewTaskStoreError("update", taskID, err)
	}

	e, ok := s.entries.Get(taskID)
	if !ok {
		return nil, &a2a.TaskNotFoundError{TaskID: taskID}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.task.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if len(next.Messages) < len(e.task.Messages) {
		return nil, NewTaskValidationError(taskID, errors.New("messages are append-only"))
	}
	next.ID = e.task.ID
	next.Revision = e.task.Revision + 1
	next.UpdatedAt = time.Now().UTC()
	e.task = next

	return next.Clone(), nil
}

// Len returns the number of stored tasks.
func (s *InMemoryTaskStore) Len() int {
	return s.entries.Len()
}
