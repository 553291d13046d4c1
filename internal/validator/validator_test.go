package validator

import (
	stderrors "errors"
	"testing"

	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/frame"
)

func validRecord() frame.Record {
	return frame.Record{
		SessionID: "s1",
		Kind:      frame.KindZSL,
		Name:      "ZSL_CAPTURE_1000",
		Timestamp: 1000,
		Format:    "jpeg",
		Width:     4,
		Height:    3,
		Image:     []byte{0xff, 0xd8, 0xff, 0xd9},
	}
}

func TestRecordValidator_ValidateSuccess(t *testing.T) {
	v := NewRecordValidator(0)

	r := validRecord()
	if err := v.Validate(&r); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
	if r.Format != "JPEG" {
		t.Errorf("Format = %q, want normalized JPEG", r.Format)
	}

	burst := validRecord()
	burst.Kind = frame.KindBurst
	burst.Format = "RAW_SENSOR"
	if err := v.Validate(&burst); err != nil {
		t.Errorf("Validate(burst) error = %v, want nil", err)
	}
}

func TestRecordValidator_ValidateErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*frame.Record)
		wantField string
	}{
		{"missing session", func(r *frame.Record) { r.SessionID = "" }, "session_id"},
		{"missing name", func(r *frame.Record) { r.Name = "" }, "name"},
		{"unknown kind", func(r *frame.Record) { r.Kind = "video" }, "kind"},
		{"negative timestamp", func(r *frame.Record) { r.Timestamp = -1 }, "timestamp"},
		{"empty image", func(r *frame.Record) { r.Image = nil }, "image"},
		{"oversized image", func(r *frame.Record) { r.Image = make([]byte, 17) }, "image"},
		{"zero width", func(r *frame.Record) { r.Width = 0 }, "dimensions"},
		{"unsupported format", func(r *frame.Record) { r.Format = "HEIC" }, "format"},
	}

	v := NewRecordValidator(16)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(&r)

			err := v.Validate(&r)
			var validationErr *errors.ValidationError
			if !stderrors.As(err, &validationErr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if validationErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", validationErr.Field, tt.wantField)
			}
			if errors.IsRetryable(err) {
				t.Error("validation errors should not be retryable")
			}
		})
	}
}

func TestRecordValidator_CustomFormats(t *testing.T) {
	v := NewRecordValidator(0, "yuv_420_888")

	r := validRecord()
	if err := v.Validate(&r); err == nil {
		t.Error("JPEG accepted when only YUV_420_888 is configured")
	}

	r.Format = "yuv_420_888"
	if err := v.Validate(&r); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}
