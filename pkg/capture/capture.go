// Package capture defines the contracts of the zero-shutter-lag capture
// orchestrator and its collaborators.
package capture

import (
	"context"

	"github.com/jittakal/zslring/pkg/frame"
)

// Callback receives a captured frame. The slot is complete and stays
// pinned until the callback returns; the callback must copy whatever it
// needs and must not close the image.
type Callback func(slot *frame.Slot)

// Constraint accepts or rejects a frame by its metadata.
type Constraint func(md *frame.Metadata) bool

// MetadataChangeListener is told when the value of a watched metadata key
// changes. old is nil the first time a value is seen.
type MetadataChangeListener func(key frame.Key, old, new any, md *frame.Metadata)

// Executor runs capture callbacks off the frame-arrival goroutines.
type Executor interface {
	// Execute schedules task. It returns an error if the task will not run.
	Execute(task func()) error
}

// Orchestrator reconciles image and metadata arrival into complete frames
// and resolves capture requests against them.
type Orchestrator interface {
	// OnImageAvailable takes ownership of img.
	OnImageAvailable(img frame.Image)

	// OnMetadataAvailable records the capture result for a frame.
	OnMetadataAvailable(md *frame.Metadata)

	// CaptureNextImage registers a deferred request for the next complete
	// frame satisfying constraints. It replaces any unresolved request.
	CaptureNextImage(cb Callback, constraints ...Constraint)

	// TryCaptureExistingImage delivers the newest resident frame satisfying
	// constraints. It returns false if none matched.
	TryCaptureExistingImage(cb Callback, constraints ...Constraint) bool

	// Ready reports whether a complete frame is available.
	Ready() bool

	// SetReadyListener replaces the readiness listener.
	SetReadyListener(fn func(ready bool))

	// AddMetadataChangeListener watches key and returns a function that
	// removes the listener.
	AddMetadataChangeListener(key frame.Key, fn MetadataChangeListener) (remove func())

	// Close stops accepting frames and waits for pinned frames to drain.
	Close(ctx context.Context) error
}

// Satisfied reports whether md passes every constraint, evaluated in order.
func Satisfied(md *frame.Metadata, constraints []Constraint) bool {
	if md == nil {
		return false
	}
	for _, c := range constraints {
		if !c(md) {
			return false
		}
	}
	return true
}
