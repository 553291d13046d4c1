package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jittakal/zslring/pkg/capture"
	"github.com/jittakal/zslring/pkg/frame"
)

// AutoFlashFilter decides ZSL acceptability in AUTO flash mode from the
// most recent converged auto-exposure result. Once AE has converged without
// requiring flash, frames taken while AE searches again are still accepted,
// until a result reports that flash is required.
type AutoFlashFilter struct {
	requireConvergence atomic.Bool
	logger             *slog.Logger

	mu     sync.Mutex
	remove func()
}

// NewAutoFlashFilter creates a filter that requires AE convergence until it
// observes a converged result.
func NewAutoFlashFilter(logger *slog.Logger) *AutoFlashFilter {
	if logger == nil {
		logger = slog.Default()
	}
	f := &AutoFlashFilter{logger: logger}
	f.requireConvergence.Store(true)
	return f
}

// Watch subscribes the filter to AE state changes from o. A previous
// subscription is removed.
func (f *AutoFlashFilter) Watch(o capture.Orchestrator) {
	remove := o.AddMetadataChangeListener(frame.KeyAEState, f.onAEStateChange)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remove != nil {
		f.remove()
	}
	f.remove = remove
}

// Stop removes the subscription.
func (f *AutoFlashFilter) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remove != nil {
		f.remove()
		f.remove = nil
	}
}

func (f *AutoFlashFilter) onAEStateChange(_ frame.Key, _, _ any, md *frame.Metadata) {
	state, ok := md.Int(frame.KeyAEState)
	if !ok {
		return
	}
	switch state {
	case frame.AEFlashRequired:
		if !f.requireConvergence.Swap(true) {
			f.logger.Info("flash required", "frame_number", md.FrameNumber())
		}
	case frame.AEConverged:
		if f.requireConvergence.Swap(false) {
			f.logger.Info("flash not required", "frame_number", md.FrameNumber())
		}
	}
}

// Acceptable reports whether AE last converged without requiring flash.
func (f *AutoFlashFilter) Acceptable() bool {
	return !f.requireConvergence.Load()
}

// Constraint applies the AE and AUTO flash rules, treating a searching AE
// as converged while the last result did not require flash.
func (f *AutoFlashFilter) Constraint() capture.Constraint {
	return func(md *frame.Metadata) bool {
		state, ok := md.Int(frame.KeyAEState)
		if ok && state == frame.AESearching && !f.requireConvergence.Load() {
			state = frame.AEConverged
		}
		if ok && (state == frame.AESearching || state == frame.AEPrecapture) {
			return false
		}
		fired := intIs(md, frame.KeyFlashState, frame.FlashFired)
		return fired || !ok || state != frame.AEFlashRequired
	}
}

// Constraints returns the ZSL constraint set for AUTO flash, with the
// filter standing in for the AE and flash checks.
func (f *AutoFlashFilter) Constraints(tracker *DeliveryTracker) []capture.Constraint {
	return []capture.Constraint{
		tracker.Newer(),
		LensStationary(),
		f.Constraint(),
		AFStable(),
		AWBStable(),
	}
}
