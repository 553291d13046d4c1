// Package ring defines interfaces for timestamp-keyed frame ring buffers.
//
// Two buffers implement these contracts: a concurrent buffer with pinning
// used for zero-shutter-lag capture, and an evicting buffer used for bursts
// whose eviction is driven entirely by an EvictionHandler.
package ring

import (
	"context"

	"github.com/jittakal/zslring/pkg/frame"
)

// MergeFunc builds the slot to store for a timestamp from the slot already
// resident there, or from nil when the timestamp is new.
type MergeFunc func(existing *frame.Slot) *frame.Slot

// Predicate selects slots during a constrained scan.
type Predicate func(slot *frame.Slot) bool

// DrainFunc receives each remaining slot when a buffer closes. It owns the
// slot's payload and is responsible for releasing it.
type DrainFunc func(slot *frame.Slot)

// AvailabilityListener is told when pinnable frames become available or
// unavailable.
type AvailabilityListener func(available bool)

// Handle is a pin on a resident slot. The slot cannot be evicted or drained
// until the handle is released.
type Handle interface {
	Timestamp() frame.Timestamp
	Slot() *frame.Slot
}

// Buffer is a bounded, timestamp-keyed store with reference-counted pins.
// All implementations must be safe for concurrent use.
type Buffer interface {
	// Swap creates or merges the slot at ts. It returns false without
	// mutating anything if the buffer is closed; the caller then still
	// owns whatever it meant to insert.
	Swap(ts frame.Timestamp, merge MergeFunc) bool

	// TryPin pins the slot at ts if it is resident and the buffer is open.
	TryPin(ts frame.Timestamp) (Handle, bool)

	// TryPinGreatest pins the newest resident slot.
	TryPinGreatest() (Handle, bool)

	// TryPinGreatestSatisfying pins the newest complete slot accepted by pred.
	TryPinGreatestSatisfying(pred Predicate) (Handle, bool)

	// Release drops a pin obtained from this buffer.
	Release(h Handle)

	// SetAvailabilityListener replaces the availability listener. nil removes it.
	SetAvailabilityListener(l AvailabilityListener)

	// Close stops accepting inserts and drains every slot once unpinned.
	// It blocks until all slots are drained or ctx is done.
	Close(ctx context.Context, drain DrainFunc) error
}

// EvictionPolicy chooses which resident timestamp to remove on overflow.
type EvictionPolicy interface {
	// SelectVictim returns one of candidates. candidates is ordered oldest
	// first and is never empty.
	SelectVictim(candidates []frame.Timestamp) frame.Timestamp
}

// EvictionHandler is an EvictionPolicy that is also told about every
// insertion, drop and metadata arrival, so it can revise later choices.
type EvictionHandler interface {
	EvictionPolicy

	// OnFrameInserted is called after a new frame becomes resident. md is
	// nil if the frame's metadata has not arrived yet.
	OnFrameInserted(ts frame.Timestamp, md *frame.Metadata)

	// OnFrameDropped is called after the buffer evicted ts.
	OnFrameDropped(ts frame.Timestamp)

	// OnMetadataAvailable is called when metadata for a resident frame arrives.
	OnMetadataAvailable(ts frame.Timestamp, md *frame.Metadata)
}
