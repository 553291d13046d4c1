// Package storage defines interfaces for persisting capture records.
//
// Writers put encoded files on a backend (S3, GCS, Azure Blob or the local
// filesystem); the Router decides where each batch goes.
package storage

import (
	"context"

	"github.com/jittakal/zslring/pkg/frame"
)

// Result describes a file stored by a Writer.
type Result struct {
	// Location is the full URI of the stored file, e.g.
	// s3://bucket/base/session=x/dt=2026-03-01/kind=zsl/ZSL_CAPTURE_0_1234.parquet
	Location    string
	RecordCount int
	SizeBytes   int64
}

// Writer writes capture records to storage.
type Writer interface {
	// Write encodes records and stores them as one file under the directory
	// path returned by a Router.
	Write(ctx context.Context, records []frame.Record, path string, format frame.FileFormat) (*Result, error)

	// Close closes the writer and releases resources.
	Close() error
}

// Router determines storage paths for batches.
type Router interface {
	// Route returns the directory for a batch written at timestamp
	// (Unix seconds).
	Route(key frame.BatchKey, timestamp int64) string
}

// RotationPolicy determines when to flush buffered records to storage.
type RotationPolicy interface {
	// ShouldRotate returns true if the buffer should be flushed based on stats.
	ShouldRotate(stats frame.FileStats) bool
}
