// Package source produces frames and routes them to the capture pipeline.
//
// A Simulator stands in for the camera: it emits image and metadata halves
// of each frame on separate goroutines, with jitter, so they arrive out of
// order. A Dispatcher hands each half to the burst session while a burst is
// running and to the ZSL orchestrator otherwise.
package source

import (
	"github.com/jittakal/zslring/pkg/frame"
)

// Sink consumes the two halves of each frame.
type Sink interface {
	OnImageAvailable(img frame.Image)
	OnMetadataAvailable(md *frame.Metadata)
}

// BurstClaimer takes images while a burst is running.
type BurstClaimer interface {
	TryClaimImage(img frame.Image) bool
	OnMetadataAvailable(md *frame.Metadata)
}

// Dispatcher routes images to the burst session when it claims them and to
// the ZSL sink otherwise. Metadata goes to both.
type Dispatcher struct {
	zsl   Sink
	burst BurstClaimer
}

// Ensure Dispatcher can be driven by a Simulator.
var _ Sink = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher. burst may be nil.
func NewDispatcher(zsl Sink, burst BurstClaimer) *Dispatcher {
	return &Dispatcher{zsl: zsl, burst: burst}
}

// OnImageAvailable hands img to exactly one consumer.
func (d *Dispatcher) OnImageAvailable(img frame.Image) {
	if d.burst != nil && d.burst.TryClaimImage(img) {
		return
	}
	d.zsl.OnImageAvailable(img)
}

// OnMetadataAvailable forwards md to the burst session and the ZSL sink.
func (d *Dispatcher) OnMetadataAvailable(md *frame.Metadata) {
	if d.burst != nil {
		d.burst.OnMetadataAvailable(md)
	}
	d.zsl.OnMetadataAvailable(md)
}
