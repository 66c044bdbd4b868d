package rt

import "sync/atomic"

// Ring is a bounded single-producer single-consumer queue. The render
// context pushes telemetry (positions, underruns) without locking; the
// control context drains it at its leisure. A full ring drops the new entry
// and counts the drop instead of blocking the producer.
type Ring[T any] struct {
	buf  []T
	mask uint64

	head    atomic.Uint64 // next slot to pop (consumer)
	tail    atomic.Uint64 // next slot to push (producer)
	dropped atomic.Uint64
}

// NewRing returns a ring with capacity rounded up to the next power of two.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 2 {
		capacity = 2
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Ring[T]{
		buf:  make([]T, size),
		mask: uint64(size - 1),
	}
}

// Push enqueues v. It must only be called from the producer goroutine.
// Returns false (and counts a drop) when the ring is full.
func (r *Ring[T]) Push(v T) bool {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head > r.mask {
		r.dropped.Add(1)
		return false
	}
	r.buf[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

// Pop dequeues the oldest entry. It must only be called from the consumer
// goroutine. Returns false when the ring is empty.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	v := r.buf[head&r.mask]
	r.buf[head&r.mask] = zero
	r.head.Store(head + 1)
	return v, true
}

// Len reports the number of queued entries.
func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Dropped reports how many pushes were discarded because the ring was full.
func (r *Ring[T]) Dropped() uint64 {
	return r.dropped.Load()
}
