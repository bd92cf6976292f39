package core

import (
	"fmt"
	"sync"
)

// Ring is a fixed-capacity, thread-safe ring buffer. Once full, Push
// overwrites the oldest entry. It caps in-memory retention of recent
// items and is independent of any on-disk rotation.
type Ring[T any] struct {
	mu    sync.RWMutex
	data  []T
	start int
	count int
}

// NewRing creates a ring buffer with the given capacity.
// Capacity must be positive.
func NewRing[T any](capacity int) (*Ring[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring capacity must be positive, got %d", capacity)
	}
	return &Ring[T]{data: make([]T, capacity)}, nil
}

// Push appends an item, overwriting the oldest entry when full.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := (r.start + r.count) % len(r.data)
	r.data[end] = item
	if r.count < len(r.data) {
		r.count++
	} else {
		r.start = (r.start + 1) % len(r.data)
	}
}

// Items returns the buffered items in chronological (oldest-to-newest)
// order regardless of the internal write position.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.data[(r.start+i)%len(r.data)])
	}
	return out
}

// Recent returns up to n of the newest items in chronological order.
func (r *Ring[T]) Recent(n int) []T {
	items := r.Items()
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Clear resets the buffer to empty.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = 0
	r.count = 0
}
