// Package burst implements the evicting ring buffer and session used for
// burst capture.
package burst

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/frame"
	"github.com/jittakal/zslring/pkg/ring"
)

// MetricsCollector defines metrics operations for burst capture.
type MetricsCollector interface {
	IncBurstFrames(result string)
}

// RingBuffer is a bounded frame store whose eviction is decided entirely by
// an EvictionHandler. Every method holds one mutex, and the handler is
// called synchronously under it.
type RingBuffer struct {
	mu       sync.Mutex
	capacity int
	frames   map[frame.Timestamp]*frame.Slot
	handler  ring.EvictionHandler
	closed   bool
	logger   *slog.Logger
	metrics  MetricsCollector
}

// NewRingBuffer creates a buffer that keeps at most capacity frames.
// A nil handler evicts the oldest frame.
func NewRingBuffer(capacity int, handler ring.EvictionHandler, logger *slog.Logger, metrics MetricsCollector) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if handler == nil {
		handler = OldestFirstPolicy{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RingBuffer{
		capacity: capacity,
		frames:   make(map[frame.Timestamp]*frame.Slot, capacity+1),
		handler:  handler,
		logger:   logger,
		metrics:  metrics,
	}
}

// Insert adds slot to the buffer and reports whether it became resident.
// A slot whose timestamp is already resident, or one inserted after Close,
// is released instead. On overflow the handler picks a victim, which is
// removed, released and reported through OnFrameDropped.
//
// Insert panics with a ContractViolation if the handler names a victim that
// is not resident.
func (b *RingBuffer) Insert(slot *frame.Slot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := slot.Timestamp()
	if b.closed {
		b.release(slot)
		b.inc("closed")
		return false
	}
	if _, ok := b.frames[ts]; ok {
		b.logger.Debug("duplicate burst frame released", "timestamp", ts)
		b.release(slot)
		b.inc("duplicate")
		return false
	}

	b.frames[ts] = slot
	b.inc("inserted")
	b.handler.OnFrameInserted(ts, slot.Metadata())

	if len(b.frames) > b.capacity {
		victim := b.handler.SelectVictim(b.timestampsLocked())
		dropped, ok := b.frames[victim]
		if !ok {
			errors.Violate("evict", int64(victim), "eviction handler selected a frame that is not resident")
		}
		delete(b.frames, victim)
		b.release(dropped)
		b.inc("dropped")
		b.handler.OnFrameDropped(victim)
	}
	return true
}

// NotifyMetadataAvailable forwards md to the handler if its frame is
// resident, attaching it to the frame when the frame has none yet. It
// reports whether the frame was resident.
func (b *RingBuffer) NotifyMetadataAvailable(md *frame.Metadata) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	ts := md.Timestamp()
	slot, ok := b.frames[ts]
	if !ok {
		return false
	}
	if !slot.HasMetadata() {
		b.frames[ts] = slot.WithMetadata(md)
	}
	b.handler.OnMetadataAvailable(ts, md)
	return true
}

// DrainAll removes every frame and returns them oldest first. The caller
// owns the returned slots and must release them.
func (b *RingBuffer) DrainAll() []*frame.Slot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*frame.Slot, 0, len(b.frames))
	for _, ts := range b.timestampsLocked() {
		out = append(out, b.frames[ts])
	}
	clear(b.frames)
	return out
}

// Close releases every remaining frame. Later inserts are released
// immediately. Close is idempotent.
func (b *RingBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ts := range b.timestampsLocked() {
		b.release(b.frames[ts])
	}
	clear(b.frames)
}

// Len returns the number of resident frames.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Timestamps returns the resident timestamps in ascending order.
func (b *RingBuffer) Timestamps() []frame.Timestamp {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timestampsLocked()
}

func (b *RingBuffer) timestampsLocked() []frame.Timestamp {
	return slices.Sorted(maps.Keys(b.frames))
}

func (b *RingBuffer) release(slot *frame.Slot) {
	if err := slot.Release(); err != nil {
		b.logger.Warn("failed to release burst frame",
			"timestamp", slot.Timestamp(),
			"error", err,
		)
	}
}

func (b *RingBuffer) inc(result string) {
	if b.metrics != nil {
		b.metrics.IncBurstFrames(result)
	}
}
