// Package frame defines the core frame types used across the capture pipeline.
//
// A camera delivers two independent streams per physical frame: the image
// payload and the capture-result metadata. Both carry the same sensor
// timestamp, which is the key used to pair them.
//
// # Slots
//
// Slot holds whatever has arrived for one timestamp. Slots are immutable and
// merging produces a new value:
//
//	slot := frame.NewSlot(ts).WithImage(img)
//	slot = slot.WithMetadata(md)
//	slot.Complete() // true
//
// # Ownership
//
// An Image owns an exclusive resource. Once an image is handed to a ring
// buffer, only the buffer calls Close on it (through Slot.Release). Holders
// of a pinned slot may read Data but must copy anything they keep.
//
// # Metadata
//
// Metadata is an opaque key/value map with typed accessors:
//
//	state, ok := md.Int(frame.KeyAEState)
//	if ok && state == frame.AEConverged {
//	    // exposure settled
//	}
//
// # Records
//
// Record is the storage form of a delivered frame: the image bytes are copied
// and metadata values are rendered to strings so the record outlives the
// buffer slot it came from.
package frame
