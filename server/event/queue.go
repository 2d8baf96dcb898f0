// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrQueueClosed is returned when enqueuing to a closed queue, and by DequeueEvent once a
	// closed queue has been drained.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrNilEvent is returned when enqueuing a nil event.
	ErrNilEvent = errors.New("event cannot be nil")
)

// EventQueue is an unbounded FIFO of events for one task.
//
// Producers never block. Consumers block in DequeueEvent while the queue is empty. Closing the
// queue acts as an end-of-stream marker placed after the events already queued.
type EventQueue struct {
	name string

	mu     sync.Mutex
	items  []Event
	closed bool

	// signal holds at most one wakeup token for a blocked consumer.
	signal chan struct{}
	done   chan struct{}
}

// NewEventQueue creates a new empty [EventQueue].
func NewEventQueue() *EventQueue {
	return NewEventQueueWithName("EventQueue")
}

// NewEventQueueWithName creates a new empty [EventQueue] with the given name.
func NewEventQueueWithName(name string) *EventQueue {
	return &EventQueue{
		name:   name,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// EnqueueEvent appends ev to the queue. It returns [ErrQueueClosed] if the queue has been
// closed.
func (eq *EventQueue) EnqueueEvent(ctx context.Context, ev Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	eq.mu.Lock()
	defer eq.mu.Unlock()

	if eq.closed {
		return ErrQueueClosed
	}
	eq.items = append(eq.items, ev)
	eq.wakeLocked()

	return nil
}

// DequeueEvent removes and returns the oldest event, blocking until one is available.
//
// After Close it keeps returning the events queued before the close, then [ErrQueueClosed].
// It returns ctx.Err() if ctx is done first.
func (eq *EventQueue) DequeueEvent(ctx context.Context) (Event, error) {
	for {
		eq.mu.Lock()
		if len(eq.items) > 0 {
			ev := eq.items[0]
			eq.items[0] = nil
			eq.items = eq.items[1:]
			if len(eq.items) > 0 {
				eq.wakeLocked()
			}
			eq.mu.Unlock()
			return ev, nil
		}
		if eq.closed {
			eq.mu.Unlock()
			return nil, ErrQueueClosed
		}
		eq.mu.Unlock()

		select {
		case <-eq.signal:
		case <-eq.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (eq *EventQueue) wakeLocked() {
	select {
	case eq.signal <- struct{}{}:
	default:
	}
}

// Close marks the end of the stream. Events already queued remain available to DequeueEvent.
// Closing an already closed queue is a no-op.
func (eq *EventQueue) Close() {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	if eq.closed {
		return
	}
	eq.closed = true
	close(eq.done)
}

// IsClosed reports whether the queue has been closed.
func (eq *EventQueue) IsClosed() bool {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	return eq.closed
}

// Len returns the number of queued events.
func (eq *EventQueue) Len() int {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	return len(eq.items)
}

// Name returns the queue name.
func (eq *EventQueue) Name() string {
	return eq.name
}

func (eq *EventQueue) String() string {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	return fmt.Sprintf("EventQueue{Name: %s, Len: %d, Closed: %t}", eq.name, len(eq.items), eq.closed)
}
