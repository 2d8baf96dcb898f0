// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// QueueManager maps task IDs to their event queues.
type QueueManager interface {
	// GetOrCreate returns the queue of taskID, creating an empty one if none is registered.
	GetOrCreate(taskID string) *EventQueue

	// Get returns the queue registered for taskID.
	Get(taskID string) (*EventQueue, bool)

	// Remove unregisters and closes the queue of taskID. A consumer blocked on it receives the
	// events already queued and then the end of stream. It reports whether a queue was removed.
	Remove(taskID string) bool

	// Release behaves like Remove but only if queue is still the one registered for taskID.
	Release(taskID string, queue *EventQueue) bool

	// Publish enqueues ev on the queue of taskID, creating the queue if needed.
	Publish(ctx context.Context, taskID string, ev Event) error

	// Offer enqueues ev only if a queue is registered for taskID. It reports whether ev was
	// enqueued.
	Offer(ctx context.Context, taskID string, ev Event) (bool, error)

	// Len returns the number of registered queues.
	Len() int

	// CloseAll removes and closes every queue.
	CloseAll()
}

// InMemoryQueueManager implements [QueueManager] for a single process.
type InMemoryQueueManager struct {
	mu     sync.Mutex
	queues map[string]*EventQueue
}

var _ QueueManager = (*InMemoryQueueManager)(nil)

// NewInMemoryQueueManager creates a new empty [InMemoryQueueManager].
func NewInMemoryQueueManager() *InMemoryQueueManager {
	return &InMemoryQueueManager{
		queues: make(map[string]*EventQueue),
	}
}

// GetOrCreate implements [QueueManager].
func (m *InMemoryQueueManager) GetOrCreate(taskID string) *EventQueue {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[taskID]; ok {
		return q
	}
	q := NewEventQueueWithName(fmt.Sprintf("TaskQueue-%s", taskID))
	m.queues[taskID] = q
	return q
}

// Get implements [QueueManager].
func (m *InMemoryQueueManager) Get(taskID string) (*EventQueue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[taskID]
	return q, ok
}

// Remove implements [QueueManager].
func (m *InMemoryQueueManager) Remove(taskID string) bool {
	m.mu.Lock()
	q, ok := m.queues[taskID]
	delete(m.queues, taskID)
	m.mu.Unlock()

	if ok {
		q.Close()
	}
	return ok
}

// Release implements [QueueManager].
func (m *InMemoryQueueManager) Release(taskID string, queue *EventQueue) bool {
	m.mu.Lock()
	q, ok := m.queues[taskID]
	ok = ok && q == queue
	if ok {
		delete(m.queues, taskID)
	}
	m.mu.Unlock()

	queue.Close()
	return ok
}

// Publish implements [QueueManager].
//
// A queue removed between lookup and enqueue is closed; Publish then retries once on a fresh
// queue so a consumer attaching afterwards still receives the event.
func (m *InMemoryQueueManager) Publish(ctx context.Context, taskID string, ev Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event %s: %w", ev, err)
	}

	var err error
	for range 2 {
		err = m.GetOrCreate(taskID).EnqueueEvent(ctx, ev)
		if !errors.Is(err, ErrQueueClosed) {
			return err
		}
	}
	return err
}

// Offer implements [QueueManager].
func (m *InMemoryQueueManager) Offer(ctx context.Context, taskID string, ev Event) (bool, error) {
	if ev == nil {
		return false, ErrNilEvent
	}
	if err := ev.Validate(); err != nil {
		return false, fmt.Errorf("invalid event %s: %w", ev, err)
	}

	q, ok := m.Get(taskID)
	if !ok {
		return false, nil
	}
	switch err := q.EnqueueEvent(ctx, ev); {
	case errors.Is(err, ErrQueueClosed):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Len implements [QueueManager].
func (m *InMemoryQueueManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}

// CloseAll implements [QueueManager].
func (m *InMemoryQueueManager) CloseAll() {
	m.mu.Lock()
	queues := m.queues
	m.queues = make(map[string]*EventQueue)
	m.mu.Unlock()

	for _, q := range queues {
		q.Close()
	}
}
