package frame

import (
	"fmt"
	"maps"
	"slices"
)

// Key names a metadata entry.
type Key string

// Well-known metadata keys reported by the capture pipeline.
const (
	KeyLensState  Key = "lens.state"
	KeyAEState    Key = "control.ae_state"
	KeyAFState    Key = "control.af_state"
	KeyAWBState   Key = "control.awb_state"
	KeyFlashState Key = "flash.state"
	KeyFlashMode  Key = "flash.mode"
	KeyRequestTag Key = "request.tag"
	KeySharpness  Key = "stats.sharpness"
	KeyExposureNS Key = "sensor.exposure_time_ns"
	KeyISO        Key = "sensor.sensitivity"
)

// Lens states.
const (
	LensStationary = 0
	LensMoving     = 1
)

// Auto-exposure states.
const (
	AEInactive      = 0
	AESearching     = 1
	AEConverged     = 2
	AELocked        = 3
	AEFlashRequired = 4
	AEPrecapture    = 5
)

// Auto-focus states.
const (
	AFInactive         = 0
	AFPassiveScan      = 1
	AFPassiveFocused   = 2
	AFActiveScan       = 3
	AFFocusedLocked    = 4
	AFNotFocusedLocked = 5
	AFPassiveUnfocused = 6
)

// Auto-white-balance states.
const (
	AWBInactive  = 0
	AWBSearching = 1
	AWBConverged = 2
	AWBLocked    = 3
)

// Flash states.
const (
	FlashUnavailable = 0
	FlashCharging    = 1
	FlashReady       = 2
	FlashFired       = 3
	FlashPartial     = 4
)

// Flash modes as reported in the capture result.
const (
	FlashModeOff    = 0
	FlashModeSingle = 1
	FlashModeTorch  = 2
)

// Metadata is the per-frame capture result: an opaque key/value map tagged
// with the sensor timestamp and the pipeline frame number.
// A Metadata value is read-only once constructed.
type Metadata struct {
	timestamp   Timestamp
	frameNumber int64
	values      map[Key]any
}

// NewMetadata creates a metadata record. values is copied.
func NewMetadata(ts Timestamp, frameNumber int64, values map[Key]any) *Metadata {
	return &Metadata{
		timestamp:   ts,
		frameNumber: frameNumber,
		values:      maps.Clone(values),
	}
}

// Timestamp returns the sensor timestamp of the frame.
func (m *Metadata) Timestamp() Timestamp {
	return m.timestamp
}

// FrameNumber returns the pipeline frame number.
func (m *Metadata) FrameNumber() int64 {
	return m.frameNumber
}

// Get returns the raw value for key.
func (m *Metadata) Get(key Key) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Int returns the value for key as an int. Any integer kind is accepted.
func (m *Metadata) Int(key Key) (int, bool) {
	switch v := m.values[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	default:
		return 0, false
	}
}

// Float returns the value for key as a float64.
func (m *Metadata) Float(key Key) (float64, bool) {
	switch v := m.values[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// String returns the value for key if it is a string.
func (m *Metadata) String(key Key) (string, bool) {
	v, ok := m.values[key].(string)
	return v, ok
}

// Keys returns the keys in sorted order.
func (m *Metadata) Keys() []Key {
	return slices.Sorted(maps.Keys(m.values))
}

// Len returns the number of entries.
func (m *Metadata) Len() int {
	return len(m.values)
}

// Strings renders every entry with fmt for storage.
func (m *Metadata) Strings() map[string]string {
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[string(k)] = fmt.Sprint(v)
	}
	return out
}
