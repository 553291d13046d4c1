package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/jittakal/zslring/pkg/frame"
	"github.com/jittakal/zslring/pkg/storage"
)

// Ensure implementations satisfy interfaces.
var (
	_ storage.Router         = (*DefaultRouter)(nil)
	_ storage.RotationPolicy = (*CompositePolicy)(nil)
)

// DefaultRouter implements Hive-style partitioning for capture files.
type DefaultRouter struct {
	protocol string
	bucket   string
	basePath string
}

// NewRouter creates a new storage router.
func NewRouter(protocol, bucket, basePath string) *DefaultRouter {
	return &DefaultRouter{
		protocol: protocol,
		bucket:   bucket,
		basePath: strings.Trim(basePath, "/"),
	}
}

// Route returns the directory for a batch.
// Format: protocol://bucket/basePath/session=<id>/dt=YYYY-MM-DD/kind=<kind>/
// The date is taken from timestamp (Unix seconds) in UTC.
func (r *DefaultRouter) Route(key frame.BatchKey, timestamp int64) string {
	date := time.Unix(timestamp, 0).UTC().Format("2006-01-02")

	parts := make([]string, 0, 4)
	if r.basePath != "" {
		parts = append(parts, r.basePath)
	}
	parts = append(parts,
		"session="+key.SessionID,
		"dt="+date,
		"kind="+string(key.Kind),
	)

	return fmt.Sprintf("%s://%s/%s/", r.protocol, r.bucket, strings.Join(parts, "/"))
}

// NewPolicy creates a new rotation policy (alias for NewCompositePolicy).
func NewPolicy(config PolicyConfig) *CompositePolicy {
	return NewCompositePolicy(config)
}

// PolicyConfig configures rotation behavior.
type PolicyConfig struct {
	MaxFileSizeMB      int64
	MaxRecordsPerFile  int
	MaxDurationSeconds int
}

// CompositePolicy rotates when any configured limit is reached.
type CompositePolicy struct {
	maxSizeBytes int64
	maxRecords   int
	maxDuration  time.Duration
}

// NewCompositePolicy creates a new composite rotation policy.
func NewCompositePolicy(config PolicyConfig) *CompositePolicy {
	return &CompositePolicy{
		maxSizeBytes: config.MaxFileSizeMB * 1024 * 1024,
		maxRecords:   config.MaxRecordsPerFile,
		maxDuration:  time.Duration(config.MaxDurationSeconds) * time.Second,
	}
}

// MaxDuration returns the age limit, or zero if rotation is not time based.
func (p *CompositePolicy) MaxDuration() time.Duration {
	return p.maxDuration
}

// ShouldRotate returns true if any rotation condition is met.
func (p *CompositePolicy) ShouldRotate(stats frame.FileStats) bool {
	if stats.RecordCount == 0 {
		return false
	}

	if p.maxSizeBytes > 0 && stats.SizeBytes >= p.maxSizeBytes {
		return true
	}

	if p.maxRecords > 0 && stats.RecordCount >= p.maxRecords {
		return true
	}

	if p.maxDuration > 0 && !stats.FirstWriteTime.IsZero() {
		if time.Since(stats.FirstWriteTime) >= p.maxDuration {
			return true
		}
	}

	return false
}
