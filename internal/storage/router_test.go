package storage

import (
	"testing"
	"time"

	"github.com/jittakal/zslring/pkg/frame"
)

func TestDefaultRouter_Route(t *testing.T) {
	ts := time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC).Unix()

	tests := []struct {
		name   string
		router *DefaultRouter
		key    frame.BatchKey
		want   string
	}{
		{
			name:   "s3 zsl",
			router: NewRouter("s3", "camera-captures", "zslring"),
			key:    frame.BatchKey{SessionID: "abc", Kind: frame.KindZSL},
			want:   "s3://camera-captures/zslring/session=abc/dt=2026-03-01/kind=zsl/",
		},
		{
			name:   "gcs burst",
			router: NewRouter("gs", "bucket", "/base/path/"),
			key:    frame.BatchKey{SessionID: "abc", Kind: frame.KindBurst},
			want:   "gs://bucket/base/path/session=abc/dt=2026-03-01/kind=burst/",
		},
		{
			name:   "empty base path",
			router: NewRouter("file", "local", ""),
			key:    frame.BatchKey{SessionID: "x", Kind: frame.KindZSL},
			want:   "file://local/session=x/dt=2026-03-01/kind=zsl/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.router.Route(tt.key, ts); got != tt.want {
				t.Errorf("Route() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultRouter_RouteUsesUTC(t *testing.T) {
	r := NewRouter("s3", "b", "p")
	key := frame.BatchKey{SessionID: "s", Kind: frame.KindZSL}

	// 2026-03-02 01:00 in UTC+5 is still 2026-03-01 in UTC.
	local := time.Date(2026, 3, 2, 1, 0, 0, 0, time.FixedZone("UTC+5", 5*3600))
	want := "s3://b/p/session=s/dt=2026-03-01/kind=zsl/"
	if got := r.Route(key, local.Unix()); got != want {
		t.Errorf("Route() = %q, want %q", got, want)
	}
}

func TestCompositePolicy_ShouldRotate(t *testing.T) {
	tests := []struct {
		name   string
		config PolicyConfig
		stats  frame.FileStats
		want   bool
	}{
		{
			name:   "empty buffer never rotates",
			config: PolicyConfig{MaxRecordsPerFile: 1},
			stats:  frame.FileStats{},
			want:   false,
		},
		{
			name:   "record limit reached",
			config: PolicyConfig{MaxRecordsPerFile: 2},
			stats:  frame.FileStats{RecordCount: 2},
			want:   true,
		},
		{
			name:   "below record limit",
			config: PolicyConfig{MaxRecordsPerFile: 2},
			stats:  frame.FileStats{RecordCount: 1, FirstWriteTime: time.Now()},
			want:   false,
		},
		{
			name:   "size limit reached",
			config: PolicyConfig{MaxFileSizeMB: 1},
			stats:  frame.FileStats{RecordCount: 1, SizeBytes: 1024 * 1024},
			want:   true,
		},
		{
			name:   "age limit reached",
			config: PolicyConfig{MaxDurationSeconds: 5},
			stats:  frame.FileStats{RecordCount: 1, FirstWriteTime: time.Now().Add(-10 * time.Second)},
			want:   true,
		},
		{
			name:   "young batch",
			config: PolicyConfig{MaxDurationSeconds: 60, MaxRecordsPerFile: 10},
			stats:  frame.FileStats{RecordCount: 3, FirstWriteTime: time.Now()},
			want:   false,
		},
		{
			name:   "no limits",
			config: PolicyConfig{},
			stats:  frame.FileStats{RecordCount: 1000, SizeBytes: 1 << 30},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewPolicy(tt.config).ShouldRotate(tt.stats); got != tt.want {
				t.Errorf("ShouldRotate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompositePolicy_MaxDuration(t *testing.T) {
	p := NewCompositePolicy(PolicyConfig{MaxDurationSeconds: 30})
	if p.MaxDuration() != 30*time.Second {
		t.Errorf("MaxDuration() = %v, want 30s", p.MaxDuration())
	}
}
