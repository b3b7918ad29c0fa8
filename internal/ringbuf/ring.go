// Package ringbuf provides a fixed-capacity, oldest-first-evicting buffer.
package ringbuf

import "sync/atomic"

// Buffer is a fixed-capacity ring that overwrites its oldest element when full.
// Buffer is not safe for concurrent use; owners guard it with their own lock
// so that recording and summarizing share one critical section.
type Buffer[T any] struct {
	items []T
	head  int // index of the oldest element
	size  int

	evicted atomic.Int64
	pushed  atomic.Int64
}

// New creates a Buffer holding at most capacity elements.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element if the buffer is full.
// Returns true if an element was evicted.
func (b *Buffer[T]) Push(v T) bool {
	b.pushed.Add(1)
	capacity := len(b.items)
	if b.size < capacity {
		b.items[(b.head+b.size)%capacity] = v
		b.size++
		return false
	}

	b.items[b.head] = v
	b.head = (b.head + 1) % capacity
	b.evicted.Add(1)
	return true
}

// Len returns the number of stored elements.
func (b *Buffer[T]) Len() int {
	return b.size
}

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Snapshot copies the stored elements in arrival order.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Last copies the n most recent elements in arrival order.
// If fewer than n are stored, all are returned.
func (b *Buffer[T]) Last(n int) []T {
	if n <= 0 {
		return []T{}
	}
	if n > b.size {
		n = b.size
	}
	out := make([]T, n)
	start := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.items[(b.head+start+i)%len(b.items)]
	}
	return out
}

// Each calls fn on every element, oldest first, until fn returns false.
func (b *Buffer[T]) Each(fn func(T) bool) {
	for i := 0; i < b.size; i++ {
		if !fn(b.items[(b.head+i)%len(b.items)]) {
			return
		}
	}
}

// Stats reports lifetime push and eviction counts.
type Stats struct {
	Pushed  int64 `json:"pushed"`
	Evicted int64 `json:"evicted"`
}

// Stats returns lifetime counters. Safe to call without the owner's lock.
func (b *Buffer[T]) Stats() Stats {
	return Stats{
		Pushed:  b.pushed.Load(),
		Evicted: b.evicted.Load(),
	}
}
