// Package buffer implements record buffering for batch writes.
package buffer

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/buffer"
	"github.com/jittakal/zslring/pkg/frame"
)

// Ensure implementation satisfies interface at compile time.
var (
	_ buffer.Buffer  = (*BatchBuffer)(nil)
	_ buffer.Manager = (*Manager)(nil)
)

// BatchBuffer buffers capture records for one session and capture kind.
// It enforces size and record count limits and tracks first and last
// write times for rotation decisions.
type BatchBuffer struct {
	key            frame.BatchKey
	records        []frame.Record
	maxSizeBytes   int64
	maxRecords     int
	currentSize    int64
	firstWriteTime time.Time
	lastWriteTime  time.Time
	now            func() time.Time
	mu             sync.RWMutex
}

// New creates a new batch buffer.
func New(key frame.BatchKey, maxSizeBytes int64, maxRecords int) *BatchBuffer {
	return &BatchBuffer{
		key:          key,
		records:      make([]frame.Record, 0, maxRecords),
		maxSizeBytes: maxSizeBytes,
		maxRecords:   maxRecords,
		now:          time.Now,
	}
}

// Key returns the batch key the buffer collects records for.
func (b *BatchBuffer) Key() frame.BatchKey {
	return b.key
}

// Add adds a record to the buffer.
func (b *BatchBuffer) Add(record frame.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	recordSize := int64(estimateSize(record))

	if len(b.records) >= b.maxRecords {
		return fmt.Errorf("%w: max records (%d) reached", errors.ErrBufferFull, b.maxRecords)
	}

	// An empty buffer always takes one record so oversized frames still get written.
	if b.maxSizeBytes > 0 && len(b.records) > 0 && b.currentSize+recordSize > b.maxSizeBytes {
		return fmt.Errorf("%w: max size (%d bytes) would be exceeded", errors.ErrBufferFull, b.maxSizeBytes)
	}

	b.records = append(b.records, record)
	b.currentSize += recordSize

	now := b.now()
	if b.firstWriteTime.IsZero() {
		b.firstWriteTime = now
	}
	b.lastWriteTime = now

	return nil
}

// Drain removes and returns all records from the buffer.
// The returned slice is owned by the caller.
func (b *BatchBuffer) Drain() []frame.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	records := b.records
	b.reset()
	return records
}

// Stats returns current buffer statistics.
func (b *BatchBuffer) Stats() frame.FileStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return frame.FileStats{
		RecordCount:    len(b.records),
		SizeBytes:      b.currentSize,
		FirstWriteTime: b.firstWriteTime,
		LastWriteTime:  b.lastWriteTime,
	}
}

// IsEmpty returns true if the buffer is empty.
func (b *BatchBuffer) IsEmpty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records) == 0
}

// Reset clears the buffer and resets all statistics.
func (b *BatchBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}

func (b *BatchBuffer) reset() {
	b.records = make([]frame.Record, 0, b.maxRecords)
	b.currentSize = 0
	b.firstWriteTime = time.Time{}
	b.lastWriteTime = time.Time{}
}

// estimateSize estimates the encoded size of a record in bytes.
func estimateSize(record frame.Record) int {
	size := len(record.SessionID) + len(record.Kind) + len(record.Name) + len(record.Format)
	size += 8 * 4 // timestamp, frame number, width, height
	size += len(record.Image)

	for k, v := range record.Metadata {
		size += len(k) + len(v)
	}

	return size
}

// Manager manages buffers for every session and capture kind.
// Buffers are created on demand with double-checked locking.
type Manager struct {
	buffers      map[frame.BatchKey]*BatchBuffer
	maxSizeBytes int64
	maxRecords   int
	mu           sync.RWMutex
}

// NewManager creates a new buffer manager.
func NewManager(maxSizeBytes int64, maxRecords int) *Manager {
	return &Manager{
		buffers:      make(map[frame.BatchKey]*BatchBuffer),
		maxSizeBytes: maxSizeBytes,
		maxRecords:   maxRecords,
	}
}

// GetOrCreate returns a buffer for key, creating it if needed.
func (m *Manager) GetOrCreate(key frame.BatchKey) buffer.Buffer {
	m.mu.RLock()
	buf, exists := m.buffers[key]
	m.mu.RUnlock()

	if exists {
		return buf
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if buf, exists := m.buffers[key]; exists {
		return buf
	}

	buf = New(key, m.maxSizeBytes, m.maxRecords)
	m.buffers[key] = buf
	return buf
}

// Keys returns the keys of all buffers, sorted by session then kind.
func (m *Manager) Keys() []frame.BatchKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]frame.BatchKey, 0, len(m.buffers))
	for k := range m.buffers {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b frame.BatchKey) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}
