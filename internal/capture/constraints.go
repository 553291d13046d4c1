package capture

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/jittakal/zslring/pkg/capture"
	"github.com/jittakal/zslring/pkg/frame"
)

// FlashSetting is the flash mode requested by the user.
type FlashSetting string

const (
	FlashOff  FlashSetting = "off"
	FlashOn   FlashSetting = "on"
	FlashAuto FlashSetting = "auto"
)

// ParseFlashSetting parses "off", "on" or "auto", case-insensitively.
func ParseFlashSetting(s string) (FlashSetting, error) {
	switch f := FlashSetting(strings.ToLower(s)); f {
	case FlashOff, FlashOn, FlashAuto:
		return f, nil
	default:
		return "", fmt.Errorf("unknown flash setting %q", s)
	}
}

// intIs reports whether key is present and equal to want.
func intIs(md *frame.Metadata, key frame.Key, want int) bool {
	v, ok := md.Int(key)
	return ok && v == want
}

// LensStationary rejects frames taken while the lens was moving.
func LensStationary() capture.Constraint {
	return func(md *frame.Metadata) bool {
		return !intIs(md, frame.KeyLensState, frame.LensMoving)
	}
}

// AEStable rejects frames taken while auto-exposure was searching or
// running a precapture sequence.
func AEStable() capture.Constraint {
	return func(md *frame.Metadata) bool {
		return !intIs(md, frame.KeyAEState, frame.AESearching) &&
			!intIs(md, frame.KeyAEState, frame.AEPrecapture)
	}
}

// FlashSatisfied applies the flash rules for setting:
// with OFF any frame passes, with ON the flash must have fired as a single
// flash, and with AUTO a frame that needed flash must have had it fire.
func FlashSatisfied(setting FlashSetting) capture.Constraint {
	return func(md *frame.Metadata) bool {
		fired := intIs(md, frame.KeyFlashState, frame.FlashFired)
		switch setting {
		case FlashOn:
			return fired && intIs(md, frame.KeyFlashMode, frame.FlashModeSingle)
		case FlashAuto:
			return fired || !intIs(md, frame.KeyAEState, frame.AEFlashRequired)
		default:
			return true
		}
	}
}

// AFStable rejects frames taken during an active or passive focus scan.
func AFStable() capture.Constraint {
	return func(md *frame.Metadata) bool {
		return !intIs(md, frame.KeyAFState, frame.AFActiveScan) &&
			!intIs(md, frame.KeyAFState, frame.AFPassiveScan)
	}
}

// AWBStable rejects frames taken while white balance was searching.
func AWBStable() capture.Constraint {
	return func(md *frame.Metadata) bool {
		return !intIs(md, frame.KeyAWBState, frame.AWBSearching)
	}
}

// RequestTag accepts only frames whose request carried tag.
func RequestTag(tag string) capture.Constraint {
	return func(md *frame.Metadata) bool {
		v, ok := md.String(frame.KeyRequestTag)
		return ok && v == tag
	}
}

// DeliveryTracker remembers the newest delivered timestamp so that a frame
// is never captured twice and never older than the last capture.
type DeliveryTracker struct {
	last atomic.Int64
}

// NewDeliveryTracker creates a tracker that accepts any timestamp.
func NewDeliveryTracker() *DeliveryTracker {
	t := &DeliveryTracker{}
	t.last.Store(math.MinInt64)
	return t
}

// Newer accepts frames newer than the last delivered one.
func (t *DeliveryTracker) Newer() capture.Constraint {
	return func(md *frame.Metadata) bool {
		return int64(md.Timestamp()) > t.last.Load()
	}
}

// Track wraps cb so that each delivered timestamp is recorded first. A
// frame no newer than the last delivery does not reach cb.
func (t *DeliveryTracker) Track(cb capture.Callback) capture.Callback {
	return func(slot *frame.Slot) {
		ts := int64(slot.Timestamp())
		for {
			last := t.last.Load()
			if ts <= last {
				return
			}
			if t.last.CompareAndSwap(last, ts) {
				break
			}
		}
		cb(slot)
	}
}

// Last returns the newest delivered timestamp and whether one exists.
func (t *DeliveryTracker) Last() (frame.Timestamp, bool) {
	v := t.last.Load()
	return frame.Timestamp(v), v != math.MinInt64
}

// ZSLConstraints returns the standard constraint set for a zero-shutter-lag
// capture: newer than the last capture, lens stationary, exposure stable,
// flash rules for setting, focus and white balance stable.
func ZSLConstraints(tracker *DeliveryTracker, setting FlashSetting) []capture.Constraint {
	return []capture.Constraint{
		tracker.Newer(),
		LensStationary(),
		AEStable(),
		FlashSatisfied(setting),
		AFStable(),
		AWBStable(),
	}
}

// ConstraintsFor returns the constraint set used for setting. In AUTO the
// filter, when given, stands in for the AE and flash checks. A non-empty tag
// adds the request tag check.
func ConstraintsFor(setting FlashSetting, tracker *DeliveryTracker, filter *AutoFlashFilter, tag string) []capture.Constraint {
	var constraints []capture.Constraint
	if setting == FlashAuto && filter != nil {
		constraints = filter.Constraints(tracker)
	} else {
		constraints = ZSLConstraints(tracker, setting)
	}
	if tag != "" {
		constraints = append(constraints, RequestTag(tag))
	}
	return constraints
}
