// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool provides typed object pooling and the [*bytes.Buffer] pool used to encode
// stream frames.
package pool

import (
	"bytes"
	"sync"
)

// maxPooledBuffer is the largest buffer capacity returned to [Buffers].
const maxPooledBuffer = 64 << 10

// Pool is a generics wrapper around [sync.Pool] to provide strongly-typed object pooling.
type Pool[T any] struct {
	p    sync.Pool
	keep func(T) bool
}

// Resetter is implemented by pooled objects that must be cleared before reuse.
type Resetter interface {
	Reset()
}

// New returns a new [Pool] for T, and will use fn to construct new T's when the pool is empty.
func New[T any](fn func() T) *Pool[T] {
	return &Pool[T]{
		p: sync.Pool{
			New: func() any {
				return fn()
			},
		},
	}
}

// Get gets a T from the pool, or creates a new one if the pool is empty.
func (p *Pool[T]) Get() T {
	return p.p.Get().(T)
}

// Put resets x and returns it into the pool, unless the keep function set by [Pool.Keep] rejects it.
func (p *Pool[T]) Put(x T) {
	if p.keep != nil && !p.keep(x) {
		return
	}
	if r, ok := any(x).(Resetter); ok {
		r.Reset()
	}
	p.p.Put(x)
}

// Keep sets the function deciding whether an object may return to the pool.
func (p *Pool[T]) Keep(fn func(T) bool) *Pool[T] {
	p.keep = fn
	return p
}

// Buffers provides the [*bytes.Buffer] pooling objects. Oversized buffers are dropped.
var Buffers = New(func() *bytes.Buffer {
	return &bytes.Buffer{}
}).Keep(func(b *bytes.Buffer) bool {
	return b.Cap() <= maxPooledBuffer
})
