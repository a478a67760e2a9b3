// Package history keeps a bounded, time-stamped rolling window of values.
package history

import (
	"sync"
	"time"
)

// Entry is one appended value. Entries are never modified after Append.
type Entry[T any] struct {
	Timestamp time.Time `json:"timestamp"`
	Value     T         `json:"value"`
}

// Ring is a fixed-capacity history. When full, Append evicts the oldest entry.
// A Ring is safe for concurrent use.
type Ring[T any] struct {
	mu    sync.RWMutex
	buf   []Entry[T]
	start int
	size  int
	def   T
	now   func() time.Time
}

// New creates a Ring holding at most capacity entries. A capacity below one
// is treated as one.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]Entry[T], capacity), now: time.Now}
}

// WithDefault sets the value returned by Latest while the ring is empty.
func (r *Ring[T]) WithDefault(v T) *Ring[T] {
	r.mu.Lock()
	r.def = v
	r.mu.Unlock()
	return r
}

// Append stores v stamped with the current time.
func (r *Ring[T]) Append(v T) Entry[T] {
	return r.AppendAt(r.now(), v)
}

// AppendAt stores v with an explicit timestamp.
func (r *Ring[T]) AppendAt(ts time.Time, v T) Entry[T] {
	e := Entry[T]{Timestamp: ts, Value: v}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := (r.start + r.size) % len(r.buf)
	if r.size == len(r.buf) {
		r.start = (r.start + 1) % len(r.buf)
	} else {
		r.size++
	}
	r.buf[idx] = e
	return e
}

// Latest returns the newest value, or the default value when empty.
func (r *Ring[T]) Latest() T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return r.def
	}
	return r.buf[(r.start+r.size-1)%len(r.buf)].Value
}

// LatestEntry returns the newest entry and whether one exists.
func (r *Ring[T]) LatestEntry() (Entry[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return Entry[T]{}, false
	}
	return r.buf[(r.start+r.size-1)%len(r.buf)], true
}

// Window returns up to n of the newest entries, oldest first. n <= 0 returns
// every stored entry.
func (r *Ring[T]) Window(n int) []Entry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]Entry[T], n)
	first := r.start + r.size - n
	for i := range out {
		out[i] = r.buf[(first+i)%len(r.buf)]
	}
	return out
}

// Values is Window without timestamps.
func (r *Ring[T]) Values(n int) []T {
	w := r.Window(n)
	out := make([]T, len(w))
	for i, e := range w {
		out[i] = e.Value
	}
	return out
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }
