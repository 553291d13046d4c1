// Package ringbuffer provides the concurrent frame ring buffer used for
// zero-shutter-lag capture.
//
// Images and their capture-result metadata arrive on different goroutines
// and in either order. Both are merged into one slot per sensor timestamp:
//
//	buf := ringbuffer.New(8)
//	buf.Swap(ts, func(existing *frame.Slot) *frame.Slot {
//	    if existing == nil {
//	        existing = frame.NewSlot(ts)
//	    }
//	    return existing.WithImage(img)
//	})
//
// # Eviction
//
// When a new timestamp pushes the resident count past capacity the oldest
// unpinned slot is evicted and its image closed. WithEvictionPolicy lets a
// policy choose among the unpinned slots instead. Pinned slots are never
// evicted; if every other slot is pinned the buffer stays over capacity
// until a pin is released.
//
// # Pinning
//
// A pin keeps a slot resident while a consumer reads it:
//
//	h, ok := buf.TryPinGreatestSatisfying(func(s *frame.Slot) bool {
//	    return isSharp(s.Metadata())
//	})
//	if ok {
//	    defer buf.Release(h)
//	    use(h.Slot().Image().Data())
//	}
//
// Only the buffer closes images. A pin holder must copy what it needs before
// releasing, and must release promptly: Close waits for outstanding pins.
//
// # Closing
//
// Close stops all inserts and pins, drains unpinned slots at once and drains
// each pinned slot when its last pin is released:
//
//	err := buf.Close(ctx, func(s *frame.Slot) { s.Release() })
//
// # Availability
//
// SetAvailabilityListener reports whether a complete slot is resident. The
// listener runs on its own goroutine and only sees transitions.
//
// # Thread Safety
//
// Every method is safe for concurrent use. A single mutex per buffer guards
// structural changes and selection scans, so predicates passed to
// TryPinGreatestSatisfying must be fast and must not call back into the
// buffer.
package ringbuffer
