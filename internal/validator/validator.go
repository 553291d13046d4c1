// Package validator checks capture records before they are encoded.
package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/frame"
)

// DefaultFormats are the image formats accepted when none are configured.
var DefaultFormats = []string{"JPEG", "YUV_420_888", "RAW_SENSOR"}

// RecordValidator validates capture records copied out of the ring buffer.
type RecordValidator struct {
	formats       []string
	maxImageBytes int
}

// NewRecordValidator creates a validator. maxImageBytes of zero disables the
// size check; an empty formats list selects DefaultFormats.
func NewRecordValidator(maxImageBytes int, formats ...string) *RecordValidator {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	normalized := make([]string, len(formats))
	for i, f := range formats {
		normalized[i] = strings.ToUpper(f)
	}
	return &RecordValidator{
		formats:       normalized,
		maxImageBytes: maxImageBytes,
	}
}

// Validate validates a record. The format is normalized to upper case.
func (v *RecordValidator) Validate(r *frame.Record) error {
	ts := int64(r.Timestamp)

	if r.SessionID == "" {
		return &errors.ValidationError{Timestamp: ts, Field: "session_id", Reason: "required field is missing"}
	}

	if r.Name == "" {
		return &errors.ValidationError{Timestamp: ts, Field: "name", Reason: "required field is missing"}
	}

	if r.Kind != frame.KindZSL && r.Kind != frame.KindBurst {
		return &errors.ValidationError{Timestamp: ts, Field: "kind", Reason: fmt.Sprintf("unknown kind: %q", r.Kind)}
	}

	if ts < 0 {
		return &errors.ValidationError{Timestamp: ts, Field: "timestamp", Reason: "must not be negative"}
	}

	if len(r.Image) == 0 {
		return &errors.ValidationError{Timestamp: ts, Field: "image", Reason: "empty payload"}
	}

	if v.maxImageBytes > 0 && len(r.Image) > v.maxImageBytes {
		return &errors.ValidationError{
			Timestamp: ts,
			Field:     "image",
			Reason:    fmt.Sprintf("payload of %d bytes exceeds limit of %d", len(r.Image), v.maxImageBytes),
		}
	}

	if r.Width <= 0 || r.Height <= 0 {
		return &errors.ValidationError{
			Timestamp: ts,
			Field:     "dimensions",
			Reason:    fmt.Sprintf("invalid size %dx%d", r.Width, r.Height),
		}
	}

	r.Format = strings.ToUpper(r.Format)
	if !slices.Contains(v.formats, r.Format) {
		return &errors.ValidationError{
			Timestamp: ts,
			Field:     "format",
			Reason:    fmt.Sprintf("unsupported format: %s (supported: %s)", r.Format, strings.Join(v.formats, ", ")),
		}
	}

	return nil
}
