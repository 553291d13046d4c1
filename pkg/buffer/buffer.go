// Package buffer defines interfaces for batching capture records.
//
// Buffers hold copied-out frames until the rotation policy decides a batch
// is large or old enough to be encoded into one file.
package buffer

import (
	"github.com/jittakal/zslring/pkg/frame"
)

// Buffer manages buffering of records before storage.
// All implementations must be thread-safe.
type Buffer interface {
	// Add adds a record to the buffer.
	// Returns an error if the buffer is full or capacity would be exceeded.
	Add(record frame.Record) error

	// Drain removes and returns all records from the buffer.
	// The buffer is reset after draining.
	Drain() []frame.Record

	// Stats returns current buffer statistics without modifying the buffer.
	Stats() frame.FileStats

	// IsEmpty returns true if the buffer contains no records.
	IsEmpty() bool

	// Reset clears the buffer and resets all statistics.
	Reset()
}

// Manager creates and manages buffers per batch key.
type Manager interface {
	// GetOrCreate returns the buffer for key, creating one if it doesn't exist.
	GetOrCreate(key frame.BatchKey) Buffer

	// Keys returns the keys of every buffer created so far.
	Keys() []frame.BatchKey
}
