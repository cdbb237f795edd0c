package handoff

import (
	"sync/atomic"
)

// Slot is a generic single-value handoff. Publishing replaces whatever is
// held; readers never block and always see a complete value.
type Slot[T any] struct {
	latest   atomic.Pointer[T]
	pending  atomic.Pointer[T] // set until taken
	notify   chan struct{}
	dropped  atomic.Uint64
	publishN atomic.Uint64
}

// New creates an empty slot.
func New[T any]() *Slot[T] {
	s := &Slot[T]{
		notify: make(chan struct{}, 1),
	}
	return s
}

// Publish stores v, replacing the previous value. It never blocks.
// Returns true if an unconsumed value was overwritten.
func (s *Slot[T]) Publish(v T) bool {
	s.latest.Store(&v)
	s.publishN.Add(1)
	overwrote := s.pending.Swap(&v) != nil
	if overwrote {
		s.dropped.Add(1)
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return overwrote
}

// Load returns the latest value without consuming it.
func (s *Slot[T]) Load() (T, bool) {
	p := s.latest.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Take returns the latest value if it has not been taken yet.
func (s *Slot[T]) Take() (T, bool) {
	p := s.pending.Swap(nil)
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Ready is signalled after a Publish. A single pending signal covers any
// number of publishes.
func (s *Slot[T]) Ready() <-chan struct{} {
	return s.notify
}

// Pending reports whether a published value has not been taken yet.
func (s *Slot[T]) Pending() bool {
	return s.pending.Load() != nil
}

// Clear discards the held value.
func (s *Slot[T]) Clear() {
	s.latest.Store(nil)
	s.pending.Store(nil)
}

// Dropped returns the number of values overwritten before being taken.
func (s *Slot[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Published returns the total number of publishes.
func (s *Slot[T]) Published() uint64 {
	return s.publishN.Load()
}
