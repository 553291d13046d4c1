// Package ringbuffer implements the concurrent, timestamp-keyed frame ring buffer.
package ringbuffer

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/frame"
	"github.com/jittakal/zslring/pkg/ring"
)

// Ensure implementation satisfies interface at compile time.
var (
	_ ring.Buffer = (*Buffer)(nil)
	_ ring.Handle = (*PinHandle)(nil)
)

// MetricsCollector defines metrics operations for the ring buffer.
type MetricsCollector interface {
	SetRingResident(name string, count int)
	SetRingPinned(name string, count int)
	IncRingSwaps(name string, result string)
	IncRingEvictions(name string)
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithEvictionPolicy lets p propose the victim among unpinned slots. A
// proposal outside the candidate set falls back to the oldest candidate.
func WithEvictionPolicy(p ring.EvictionPolicy) Option {
	return func(b *Buffer) { b.policy = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Buffer) { b.logger = logger }
}

// WithMetrics reports buffer gauges and counters under name.
func WithMetrics(name string, metrics MetricsCollector) Option {
	return func(b *Buffer) {
		b.name = name
		b.metrics = metrics
	}
}

type entry struct {
	slot *frame.Slot
	pins int
}

// Buffer is a bounded, timestamp-keyed slot store safe for concurrent use.
// One mutex guards every structural change and every selection scan.
//
// Capacity is soft: a pinned slot is never evicted, so while pins are held
// the resident count may exceed capacity until they are released.
type Buffer struct {
	mu        sync.Mutex
	capacity  int
	entries   map[frame.Timestamp]*entry
	order     []frame.Timestamp // ascending
	pins      int
	evictions uint64
	available bool

	closed   bool
	drain    ring.DrainFunc
	drainWG  sync.WaitGroup
	drained  chan struct{}
	notifier *notifier
	policy   ring.EvictionPolicy
	logger   *slog.Logger
	metrics  MetricsCollector
	name     string
}

// New creates a ring buffer holding up to capacity unpinned slots.
func New(capacity int, opts ...Option) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	b := &Buffer{
		capacity: capacity,
		entries:  make(map[frame.Timestamp]*entry, capacity+1),
		order:    make([]frame.Timestamp, 0, capacity+1),
		drained:  make(chan struct{}),
		name:     "zsl",
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Capacity returns the configured capacity.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Swap creates or merges the slot at ts using merge. If a new timestamp
// pushes the resident count past capacity, the least recent unpinned slots
// are evicted and released. Swap returns false on a closed buffer.
func (b *Buffer) Swap(ts frame.Timestamp, merge ring.MergeFunc) bool {
	evicted, ok := b.swap(ts, merge)
	for _, s := range evicted {
		b.releaseSlot(s)
	}
	return ok
}

func (b *Buffer) swap(ts frame.Timestamp, merge ring.MergeFunc) ([]*frame.Slot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.incSwaps("closed")
		return nil, false
	}

	if e, ok := b.entries[ts]; ok {
		e.slot = merge(e.slot)
		b.incSwaps("merged")
		b.updateAvailabilityLocked()
		return nil, true
	}

	b.entries[ts] = &entry{slot: merge(nil)}
	i, _ := slices.BinarySearch(b.order, ts)
	b.order = slices.Insert(b.order, i, ts)
	b.incSwaps("inserted")

	evicted := b.trimLocked(ts)
	b.updateAvailabilityLocked()
	b.reportLocked()
	return evicted, true
}

// trimLocked evicts unpinned slots until the buffer fits its capacity or
// only pinned slots (and keep) remain.
func (b *Buffer) trimLocked(keep frame.Timestamp) []*frame.Slot {
	var evicted []*frame.Slot
	for len(b.entries) > b.capacity {
		victim, ok := b.selectVictimLocked(keep)
		if !ok {
			b.logger.Debug("ring buffer over capacity, all candidates pinned",
				"buffer", b.name,
				"resident", len(b.entries),
				"capacity", b.capacity,
			)
			break
		}
		evicted = append(evicted, b.removeLocked(victim))
		b.evictions++
		if b.metrics != nil {
			b.metrics.IncRingEvictions(b.name)
		}
	}
	return evicted
}

func (b *Buffer) selectVictimLocked(keep frame.Timestamp) (frame.Timestamp, bool) {
	candidates := make([]frame.Timestamp, 0, len(b.order))
	for _, ts := range b.order {
		if ts != keep && b.entries[ts].pins == 0 {
			candidates = append(candidates, ts)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	if b.policy == nil {
		return candidates[0], true
	}

	victim := b.policy.SelectVictim(slices.Clone(candidates))
	if _, found := slices.BinarySearch(candidates, victim); !found {
		b.logger.Warn("eviction policy proposed an ineligible victim, evicting oldest",
			"buffer", b.name,
			"proposed", victim,
			"oldest", candidates[0],
		)
		return candidates[0], true
	}
	return victim, true
}

func (b *Buffer) removeLocked(ts frame.Timestamp) *frame.Slot {
	e := b.entries[ts]
	delete(b.entries, ts)
	if i, found := slices.BinarySearch(b.order, ts); found {
		b.order = slices.Delete(b.order, i, i+1)
	}
	return e.slot
}

// TryPin pins the slot at ts. It reports false if ts is not resident or the
// buffer is closed.
func (b *Buffer) TryPin(ts frame.Timestamp) (ring.Handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, false
	}
	e, ok := b.entries[ts]
	if !ok {
		return nil, false
	}
	return b.pinLocked(ts, e), true
}

// TryPinGreatest pins the newest resident slot, complete or not.
func (b *Buffer) TryPinGreatest() (ring.Handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || len(b.order) == 0 {
		return nil, false
	}
	ts := b.order[len(b.order)-1]
	return b.pinLocked(ts, b.entries[ts]), true
}

// TryPinGreatestSatisfying scans from newest to oldest and pins the first
// complete slot accepted by pred. pred runs under the buffer lock and must
// not call back into the buffer.
func (b *Buffer) TryPinGreatestSatisfying(pred ring.Predicate) (ring.Handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, false
	}
	for i := len(b.order) - 1; i >= 0; i-- {
		ts := b.order[i]
		e := b.entries[ts]
		if !e.slot.Complete() {
			continue
		}
		if pred == nil || pred(e.slot) {
			return b.pinLocked(ts, e), true
		}
	}
	return nil, false
}

func (b *Buffer) pinLocked(ts frame.Timestamp, e *entry) *PinHandle {
	e.pins++
	b.pins++
	if b.metrics != nil {
		b.metrics.SetRingPinned(b.name, b.pins)
	}
	return &PinHandle{buf: b, ts: ts, slot: e.slot}
}

// Release drops a pin. On a closing buffer, the last pin on a slot hands it
// to the drain function. Otherwise, if the buffer is over capacity, the
// newly unpinned slot becomes eligible for eviction again.
// Releasing a handle twice, or a handle from another buffer, panics.
func (b *Buffer) Release(h ring.Handle) {
	ph, ok := h.(*PinHandle)
	if !ok || ph == nil || ph.buf != b {
		var ts int64
		if ph != nil {
			ts = int64(ph.ts)
		}
		errors.Violate("release", ts, "handle does not belong to this buffer")
	}

	toDrain, evicted := b.release(ph)
	for _, s := range evicted {
		b.releaseSlot(s)
	}
	if toDrain != nil {
		b.finishDrain(toDrain)
	}
}

func (b *Buffer) release(ph *PinHandle) (*frame.Slot, []*frame.Slot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ph.released {
		errors.Violate("release", int64(ph.ts), "pin released twice")
	}
	e, ok := b.entries[ph.ts]
	if !ok || e.pins <= 0 {
		errors.Violate("release", int64(ph.ts), "pin count would go negative")
	}
	ph.released = true
	e.pins--
	b.pins--
	if b.metrics != nil {
		b.metrics.SetRingPinned(b.name, b.pins)
	}
	if e.pins > 0 {
		return nil, nil
	}

	if b.closed {
		return b.removeLocked(ph.ts), nil
	}

	var evicted []*frame.Slot
	if len(b.entries) > b.capacity {
		evicted = b.trimLocked(math.MinInt64)
		b.updateAvailabilityLocked()
		b.reportLocked()
	}
	return nil, evicted
}

// SetAvailabilityListener replaces the availability listener. The listener
// is called on a dedicated goroutine, in order, and only on transitions;
// it first receives the current state. It must not call Close.
func (b *Buffer) SetAvailabilityListener(l ring.AvailabilityListener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if b.notifier == nil {
		if l == nil {
			return
		}
		b.notifier = newNotifier()
	}
	b.notifier.setListener(l)
	b.notifier.post(b.available)
}

func (b *Buffer) updateAvailabilityLocked() {
	available := !b.closed && b.hasCompleteLocked()
	if available == b.available {
		return
	}
	b.available = available
	if b.notifier != nil {
		b.notifier.post(available)
	}
}

func (b *Buffer) hasCompleteLocked() bool {
	for _, e := range b.entries {
		if e.slot.Complete() {
			return true
		}
	}
	return false
}

// Close marks the buffer closed, so no further Swap or pin succeeds. Every
// unpinned slot is drained immediately; pinned slots are drained by the
// Release that drops their last pin. Close blocks until every slot has been
// drained or ctx is done. A nil drain releases each slot's payload.
// Close is idempotent; later calls wait for the same drain to finish.
func (b *Buffer) Close(ctx context.Context, drain ring.DrainFunc) error {
	ready := b.beginClose(drain)
	for _, s := range ready {
		b.finishDrain(s)
	}

	select {
	case <-b.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Buffer) beginClose(drain ring.DrainFunc) []*frame.Slot {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.drain = drain

	b.drainWG.Add(len(b.entries))
	var ready []*frame.Slot
	for _, ts := range slices.Clone(b.order) {
		if b.entries[ts].pins == 0 {
			ready = append(ready, b.removeLocked(ts))
		}
	}

	b.logger.Info("closing ring buffer",
		"buffer", b.name,
		"draining", len(ready),
		"pinned", len(b.entries),
	)

	b.updateAvailabilityLocked()
	b.reportLocked()

	n := b.notifier
	go func() {
		b.drainWG.Wait()
		if n != nil {
			n.stop()
		}
		close(b.drained)
	}()
	return ready
}

func (b *Buffer) finishDrain(s *frame.Slot) {
	defer b.drainWG.Done()
	if b.drain != nil {
		b.drain(s)
		return
	}
	b.releaseSlot(s)
}

func (b *Buffer) releaseSlot(s *frame.Slot) {
	if err := s.Release(); err != nil {
		b.logger.Warn("failed to release slot",
			"buffer", b.name,
			"timestamp", s.Timestamp(),
			"error", err,
		)
	}
}

// Stats is a snapshot of buffer state.
type Stats struct {
	Capacity    int
	Resident    int
	PinnedSlots int
	Pins        int
	Evictions   uint64
	Closed      bool
}

// Stats returns current buffer statistics.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	pinned := 0
	for _, e := range b.entries {
		if e.pins > 0 {
			pinned++
		}
	}
	return Stats{
		Capacity:    b.capacity,
		Resident:    len(b.entries),
		PinnedSlots: pinned,
		Pins:        b.pins,
		Evictions:   b.evictions,
		Closed:      b.closed,
	}
}

// PinCount returns the pin count of the slot at ts, or 0 if it is not resident.
func (b *Buffer) PinCount(ts frame.Timestamp) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[ts]; ok {
		return e.pins
	}
	return 0
}

// Timestamps returns the resident timestamps in ascending order.
func (b *Buffer) Timestamps() []frame.Timestamp {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.order)
}

// Available reports whether a complete slot is resident and the buffer is open.
func (b *Buffer) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

func (b *Buffer) incSwaps(result string) {
	if b.metrics != nil {
		b.metrics.IncRingSwaps(b.name, result)
	}
}

func (b *Buffer) reportLocked() {
	if b.metrics != nil {
		b.metrics.SetRingResident(b.name, len(b.entries))
	}
}

// PinHandle is a pin on one slot of a Buffer.
type PinHandle struct {
	buf      *Buffer
	ts       frame.Timestamp
	slot     *frame.Slot
	released bool // guarded by buf.mu
}

// Timestamp returns the pinned timestamp.
func (h *PinHandle) Timestamp() frame.Timestamp {
	return h.ts
}

// Slot returns the slot as it was when pinned.
func (h *PinHandle) Slot() *frame.Slot {
	return h.slot
}
