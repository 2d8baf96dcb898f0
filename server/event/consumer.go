// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"
	"iter"
)

// EventConsumer drains a single [EventQueue] until the end of the stream.
type EventConsumer struct {
	queue *EventQueue
	after uint64
}

// NewEventConsumer returns a consumer of queue that skips every event whose revision is at most
// after, i.e. events already reflected by a snapshot taken at that revision.
func NewEventConsumer(queue *EventQueue, after uint64) *EventConsumer {
	return &EventConsumer{
		queue: queue,
		after: after,
	}
}

// Queue returns the consumed queue.
func (ec *EventConsumer) Queue() *EventQueue {
	return ec.queue
}

// ConsumeAll returns the sequence of queued events in order. The sequence ends after a final
// event or when the queue is closed and drained. If ctx is done first the sequence yields
// ctx.Err() and ends.
func (ec *EventConsumer) ConsumeAll(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := ec.queue.DequeueEvent(ctx)
			if err != nil {
				if !errors.Is(err, ErrQueueClosed) {
					yield(nil, err)
				}
				return
			}

			if ev.EventMeta().Revision <= ec.after {
				continue
			}
			if !yield(ev, nil) || IsFinalEvent(ev) {
				return
			}
		}
	}
}
