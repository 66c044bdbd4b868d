// Package rt holds the two primitives the render context is allowed to touch:
// an atomic snapshot channel (control -> render) and a bounded lock-free ring
// (render -> control). Neither side ever blocks on the other.
package rt

import "sync/atomic"

// Channel exchanges immutable snapshots between the control context and the
// render context. Publish never blocks; Current never blocks and returns the
// most recent value published before the call. Superseded snapshots become
// unreachable and are reclaimed by the garbage collector once no reader
// holds them, which gives the newest-wins, drop-older semantics for free.
type Channel[T any] struct {
	cur atomic.Pointer[T]
}

// NewChannel returns an empty channel; Current returns nil until the first
// Publish.
func NewChannel[T any]() *Channel[T] {
	return &Channel[T]{}
}

// Publish makes v the current snapshot. v must not be mutated afterwards.
func (c *Channel[T]) Publish(v *T) {
	c.cur.Store(v)
}

// Current returns the latest published snapshot, or nil if none exists yet.
// The swap is a single atomic pointer load, so a reader can never observe a
// half-updated snapshot.
func (c *Channel[T]) Current() *T {
	return c.cur.Load()
}
