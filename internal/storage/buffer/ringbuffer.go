// Package buffer provides a bounded, thread-safe ring that evicts its
// oldest item when full.
package buffer

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1024

// RingBuffer is a thread-safe circular buffer.
// It uses a simple mutex-based approach for correctness.
type RingBuffer[T any] struct {
	mu       sync.RWMutex
	data     []T
	head     int64 // Next write position
	tail     int64 // Oldest data position
	count    int64 // Current number of elements
	capacity int64

	// Statistics
	pushCount   atomic.Int64
	dropCount   atomic.Int64
	removeCount atomic.Int64
}

// New creates a new RingBuffer with the given capacity.
func New[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: int64(capacity),
	}
}

// PushOverwrite adds an item, evicting the oldest one if the buffer is full.
// The evicted item is returned with ok=true.
func (rb *RingBuffer[T]) PushOverwrite(item T) (evicted T, ok bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count >= rb.capacity {
		idx := rb.tail % rb.capacity
		evicted, ok = rb.data[idx], true
		var zero T
		rb.data[idx] = zero
		rb.tail++
		rb.count--
		rb.dropCount.Add(1)
	}
	rb.pushLocked(item)
	return evicted, ok
}

func (rb *RingBuffer[T]) pushLocked(item T) {
	idx := rb.head % rb.capacity
	rb.data[idx] = item
	rb.head++
	rb.count++
	rb.pushCount.Add(1)
}

// PeekNewest returns the newest item without removing it.
func (rb *RingBuffer[T]) PeekNewest() (T, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		var zero T
		return zero, false
	}
	return rb.data[(rb.head-1)%rb.capacity], true
}

// RemoveFirst removes the oldest item for which match returns true, keeping
// the relative order of the remaining items.
func (rb *RingBuffer[T]) RemoveFirst(match func(T) bool) (T, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	for i := int64(0); i < rb.count; i++ {
		idx := (rb.tail + i) % rb.capacity
		if !match(rb.data[idx]) {
			continue
		}

		removed := rb.data[idx]
		// Shift the newer items one slot towards the tail.
		for j := i; j < rb.count-1; j++ {
			rb.data[(rb.tail+j)%rb.capacity] = rb.data[(rb.tail+j+1)%rb.capacity]
		}
		rb.head--
		rb.count--
		rb.data[rb.head%rb.capacity] = zero
		rb.removeCount.Add(1)
		return removed, true
	}
	return zero, false
}

// Snapshot returns a copy of the contents, ordered from oldest to newest.
func (rb *RingBuffer[T]) Snapshot() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]T, rb.count)
	for i := int64(0); i < rb.count; i++ {
		out[i] = rb.data[(rb.tail+i)%rb.capacity]
	}
	return out
}

// Newest returns up to limit items for which keep returns true, ordered from
// newest to oldest. A nil keep accepts every item; limit <= 0 means no limit.
func (rb *RingBuffer[T]) Newest(limit int, keep func(T) bool) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []T
	for i := rb.count - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		item := rb.data[(rb.tail+i)%rb.capacity]
		if keep == nil || keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Len returns the current number of items in the buffer.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return int(rb.count)
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer[T]) Cap() int {
	return int(rb.capacity)
}

// Stats returns buffer statistics.
func (rb *RingBuffer[T]) Stats() BufferStats {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return BufferStats{
		Capacity:    int(rb.capacity),
		Count:       int(rb.count),
		UsageRatio:  float64(rb.count) / float64(rb.capacity),
		PushCount:   rb.pushCount.Load(),
		DropCount:   rb.dropCount.Load(),
		RemoveCount: rb.removeCount.Load(),
	}
}

// BufferStats holds buffer statistics.
type BufferStats struct {
	Capacity    int     `json:"capacity"`
	Count       int     `json:"count"`
	UsageRatio  float64 `json:"usage_ratio"`
	PushCount   int64   `json:"push_count"`
	DropCount   int64   `json:"drop_count"`
	RemoveCount int64   `json:"remove_count"`
}
