package retriever

import "sync/atomic"

// Handle publishes an immutable snapshot to concurrent readers and lets a
// rebuild replace it in one step. Readers either see the old snapshot or
// the new one, never a mix.
type Handle[T any] struct {
	current atomic.Pointer[T]
}

// NewHandle creates a handle holding the given snapshot.
func NewHandle[T any](snapshot *T) *Handle[T] {
	h := &Handle[T]{}
	h.current.Store(snapshot)
	return h
}

// Load returns the current snapshot.
func (h *Handle[T]) Load() *T {
	return h.current.Load()
}

// Swap publishes a new snapshot. In-flight readers keep the one they
// loaded.
func (h *Handle[T]) Swap(snapshot *T) {
	h.current.Store(snapshot)
}
