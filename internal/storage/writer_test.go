package storage

import (
	"testing"

	"github.com/jittakal/zslring/pkg/frame"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		name    string
		records []frame.Record
		ext     string
		want    string
	}{
		{"single", captureRecords(frame.KindZSL, 42), ".parquet", "ZSL_CAPTURE_42.parquet"},
		{"batch", captureRecords(frame.KindZSL, 1, 2, 5), ".avro", "zsl_1-5_3.avro"},
		{"burst", captureRecords(frame.KindBurst, 7, 9), ".avro.gz", "burst_7-9_2.avro.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileName(tt.records, tt.ext); got != tt.want {
				t.Errorf("FileName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		scheme string
		want   string
	}{
		{"s3 uri", "s3://bucket/captures/session=a/dt=2026-03-01/kind=zsl/", "s3", "captures/session=a/dt=2026-03-01/kind=zsl/f.parquet"},
		{"gs uri", "gs://bucket/x/", "gs", "x/f.parquet"},
		{"wasbs uri", "wasbs://container/y", "wasbs", "y/f.parquet"},
		{"bucket only", "s3://bucket", "s3", "f.parquet"},
		{"relative", "/captures/", "s3", "captures/f.parquet"},
		{"other scheme untouched", "gs://bucket/x/", "s3", "gs://bucket/x/f.parquet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := objectKey(tt.path, tt.scheme, "f.parquet"); got != tt.want {
				t.Errorf("objectKey(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestRecordKind(t *testing.T) {
	if got := recordKind(nil); got != "" {
		t.Errorf("recordKind(nil) = %q, want empty", got)
	}
	if got := recordKind(captureRecords(frame.KindBurst, 1)); got != "burst" {
		t.Errorf("recordKind() = %q, want burst", got)
	}
}
