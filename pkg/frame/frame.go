// Package frame defines the core frame types shared by the ring buffers,
// the capture orchestrator and the persistence layer.
package frame

import (
	"fmt"
	"time"
)

// Timestamp is the sensor-assigned frame timestamp. It is unique within a
// session and its ordering defines recency.
type Timestamp int64

// Image is a sensor payload that owns an exclusive, explicitly releasable
// resource. Close releases it and must be called exactly once.
type Image interface {
	Timestamp() Timestamp
	Format() string
	Width() int
	Height() int
	// Data returns the pixel bytes. The slice is only valid until Close.
	Data() []byte
	Close() error
}

// Slot holds the image and metadata received for one timestamp.
// Slots are immutable; WithImage and WithMetadata return a new Slot.
type Slot struct {
	timestamp Timestamp
	image     Image
	metadata  *Metadata
}

// NewSlot creates an empty slot for timestamp.
func NewSlot(ts Timestamp) *Slot {
	return &Slot{timestamp: ts}
}

// Timestamp returns the slot key.
func (s *Slot) Timestamp() Timestamp {
	return s.timestamp
}

// Image returns the image payload, or nil if it has not arrived.
func (s *Slot) Image() Image {
	return s.image
}

// Metadata returns the metadata record, or nil if it has not arrived.
func (s *Slot) Metadata() *Metadata {
	return s.metadata
}

// HasImage reports whether the image component is present.
func (s *Slot) HasImage() bool {
	return s.image != nil
}

// HasMetadata reports whether the metadata component is present.
func (s *Slot) HasMetadata() bool {
	return s.metadata != nil
}

// Complete reports whether both image and metadata are present.
func (s *Slot) Complete() bool {
	return s.image != nil && s.metadata != nil
}

// WithImage returns a copy of the slot carrying img.
func (s *Slot) WithImage(img Image) *Slot {
	next := *s
	next.image = img
	return &next
}

// WithMetadata returns a copy of the slot carrying md.
func (s *Slot) WithMetadata(md *Metadata) *Slot {
	next := *s
	next.metadata = md
	return &next
}

// Release closes the image payload if one is present.
func (s *Slot) Release() error {
	if s.image == nil {
		return nil
	}
	if err := s.image.Close(); err != nil {
		return fmt.Errorf("release image %d: %w", s.timestamp, err)
	}
	return nil
}

// String returns a short description such as "slot(1234 image+metadata)".
func (s *Slot) String() string {
	parts := "empty"
	switch {
	case s.Complete():
		parts = "image+metadata"
	case s.image != nil:
		parts = "image"
	case s.metadata != nil:
		parts = "metadata"
	}
	return fmt.Sprintf("slot(%d %s)", s.timestamp, parts)
}

// Kind identifies which capture path produced a record.
type Kind string

const (
	KindZSL   Kind = "zsl"
	KindBurst Kind = "burst"
)

// BatchKey groups records that are buffered and written together.
type BatchKey struct {
	SessionID string
	Kind      Kind
}

// String returns "<session>/<kind>".
func (k BatchKey) String() string {
	return fmt.Sprintf("%s/%s", k.SessionID, k.Kind)
}

// Record is a delivered frame copied out of the ring buffer, ready for storage.
// It owns its bytes; the source image may already be released.
type Record struct {
	SessionID   string
	Kind        Kind
	Name        string
	Index       int
	Timestamp   Timestamp
	FrameNumber int64
	Format      string
	Width       int
	Height      int
	Image       []byte
	Metadata    map[string]string
	CapturedAt  time.Time
}

// FileStats contains statistics about an encoded file.
type FileStats struct {
	RecordCount    int
	SizeBytes      int64
	FirstWriteTime time.Time
	LastWriteTime  time.Time
}

// FileFormat represents the storage file format.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
)
