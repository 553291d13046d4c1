// Package capture implements the zero-shutter-lag capture orchestrator.
package capture

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/internal/ringbuffer"
	"github.com/jittakal/zslring/pkg/capture"
	"github.com/jittakal/zslring/pkg/frame"
	"github.com/jittakal/zslring/pkg/ring"
)

// Ensure implementation satisfies interface at compile time.
var _ capture.Orchestrator = (*Manager)(nil)

// Capture modes, used in logs and metrics.
const (
	ModeNext     = "next"
	ModeExisting = "existing"
)

// MetricsCollector defines metrics operations for the capture manager.
type MetricsCollector interface {
	IncCaptureRequests(mode, outcome string)
	ObserveCaptureLatency(mode string, seconds float64)
	SetOpenImages(count int)
}

// Config holds capture manager configuration.
type Config struct {
	// Capacity is the number of unpinned frames kept for ZSL selection.
	Capacity int
}

type pendingRequest struct {
	cb          capture.Callback
	constraints []capture.Constraint
	registered  time.Time
}

// Manager feeds image and metadata arrivals into a ring buffer and resolves
// capture requests against the complete frames it holds.
type Manager struct {
	buf     *ringbuffer.Buffer
	exec    capture.Executor
	logger  *slog.Logger
	metrics MetricsCollector

	mu      sync.Mutex
	pending *pendingRequest

	openImages atomic.Int64
	ready      atomic.Bool

	readyMu       sync.Mutex
	readyListener func(bool)

	listenersMu     sync.Mutex
	listeners       map[frame.Key]map[uint64]capture.MetadataChangeListener
	nextListenerID  uint64
	lastFrameNumber int64
	lastValues      map[frame.Key]any
}

// NewManager creates a capture manager whose callbacks run on exec.
// Extra options are passed to the underlying ring buffer.
func NewManager(cfg Config, exec capture.Executor, logger *slog.Logger, metrics MetricsCollector, opts ...ringbuffer.Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]ringbuffer.Option{ringbuffer.WithLogger(logger)}, opts...)

	m := &Manager{
		buf:             ringbuffer.New(cfg.Capacity, opts...),
		exec:            exec,
		logger:          logger,
		metrics:         metrics,
		listeners:       make(map[frame.Key]map[uint64]capture.MetadataChangeListener),
		lastFrameNumber: -1,
		lastValues:      make(map[frame.Key]any),
	}
	m.buf.SetAvailabilityListener(m.onAvailabilityChange)
	return m
}

// Buffer returns the underlying ring buffer.
func (m *Manager) Buffer() *ringbuffer.Buffer {
	return m.buf
}

// OnImageAvailable takes ownership of img and merges it into its frame.
// If the manager is closed the image is released at once.
func (m *Manager) OnImageAvailable(img frame.Image) {
	tracked := m.track(img)
	ts := img.Timestamp()

	if !m.buf.Swap(ts, mergeImage(ts, tracked)) {
		if err := tracked.Close(); err != nil {
			m.logger.Warn("failed to release image", "timestamp", ts, "error", err)
		}
		return
	}
	m.tryResolvePending(ts)
}

// OnMetadataAvailable merges md into its frame and notifies metadata
// change listeners.
func (m *Manager) OnMetadataAvailable(md *frame.Metadata) {
	ts := md.Timestamp()
	ok := m.buf.Swap(ts, mergeMetadata(md))
	m.notifyMetadataChange(md)
	if ok {
		m.tryResolvePending(ts)
	}
}

// CaptureNextImage registers cb for the next complete frame that satisfies
// constraints. An unresolved earlier request is silently replaced.
func (m *Manager) CaptureNextImage(cb capture.Callback, constraints ...capture.Constraint) {
	m.mu.Lock()
	superseded := m.pending != nil
	m.pending = &pendingRequest{
		cb:          cb,
		constraints: constraints,
		registered:  time.Now(),
	}
	m.mu.Unlock()

	if superseded {
		m.incRequests(ModeNext, "superseded")
	}
	m.logger.Debug("capture request pending", "mode", ModeNext, "constraints", len(constraints))
}

// TryCaptureExistingImage delivers the newest resident complete frame that
// satisfies constraints. It returns false if no frame matched or the
// executor rejected the delivery.
func (m *Manager) TryCaptureExistingImage(cb capture.Callback, constraints ...capture.Constraint) bool {
	h, ok := m.buf.TryPinGreatestSatisfying(func(s *frame.Slot) bool {
		return capture.Satisfied(s.Metadata(), constraints)
	})
	if !ok {
		m.incRequests(ModeExisting, "no_match")
		return false
	}
	return m.deliver(h, cb, ModeExisting, time.Now())
}

func (m *Manager) tryResolvePending(ts frame.Timestamp) {
	m.mu.Lock()
	p := m.pending
	if p == nil {
		m.mu.Unlock()
		return
	}
	h, ok := m.buf.TryPin(ts)
	if !ok {
		m.mu.Unlock()
		return
	}
	slot := h.Slot()
	if !slot.Complete() || !capture.Satisfied(slot.Metadata(), p.constraints) {
		m.mu.Unlock()
		m.buf.Release(h)
		return
	}
	m.pending = nil
	m.mu.Unlock()

	m.deliver(h, p.cb, ModeNext, p.registered)
}

// deliver runs cb on the executor and releases h when it returns. On
// rejection h is released immediately and the frame is dropped.
func (m *Manager) deliver(h ring.Handle, cb capture.Callback, mode string, since time.Time) bool {
	task := func() {
		defer m.buf.Release(h)
		cb(h.Slot())
		if m.metrics != nil {
			m.metrics.ObserveCaptureLatency(mode, time.Since(since).Seconds())
		}
	}

	if err := m.exec.Execute(task); err != nil {
		m.buf.Release(h)
		derr := &errors.DeliveryError{Timestamp: int64(h.Timestamp()), Mode: mode, Err: err}
		m.logger.Warn("capture dropped",
			"timestamp", h.Timestamp(),
			"mode", mode,
			"error", derr,
			"retryable", derr.IsRetryable(),
		)
		m.incRequests(mode, "rejected")
		return false
	}

	m.logger.Debug("capture delivered", "timestamp", h.Timestamp(), "mode", mode)
	m.incRequests(mode, "delivered")
	return true
}

// Ready reports whether a complete frame is available for capture.
func (m *Manager) Ready() bool {
	return m.ready.Load()
}

// SetReadyListener replaces the readiness listener and calls it with the
// current state.
func (m *Manager) SetReadyListener(fn func(ready bool)) {
	m.readyMu.Lock()
	defer m.readyMu.Unlock()
	m.readyListener = fn
	if fn != nil {
		fn(m.ready.Load())
	}
}

func (m *Manager) onAvailabilityChange(available bool) {
	m.readyMu.Lock()
	defer m.readyMu.Unlock()
	m.ready.Store(available)
	if m.readyListener != nil {
		m.readyListener(available)
	}
}

// AddMetadataChangeListener calls fn whenever the value for key changes in
// metadata newer than any seen before.
func (m *Manager) AddMetadataChangeListener(key frame.Key, fn capture.MetadataChangeListener) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	id := m.nextListenerID
	m.nextListenerID++
	if m.listeners[key] == nil {
		m.listeners[key] = make(map[uint64]capture.MetadataChangeListener)
	}
	m.listeners[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenersMu.Lock()
			defer m.listenersMu.Unlock()
			delete(m.listeners[key], id)
			if len(m.listeners[key]) == 0 {
				delete(m.listeners, key)
			}
		})
	}
}

func (m *Manager) notifyMetadataChange(md *frame.Metadata) {
	type change struct {
		key      frame.Key
		old, new any
		fns      []capture.MetadataChangeListener
	}

	m.listenersMu.Lock()
	if md.FrameNumber() <= m.lastFrameNumber {
		m.listenersMu.Unlock()
		return
	}
	m.lastFrameNumber = md.FrameNumber()

	var changes []change
	for key, fns := range m.listeners {
		value, ok := md.Get(key)
		if !ok {
			continue
		}
		old, seen := m.lastValues[key]
		if seen && reflect.DeepEqual(old, value) {
			continue
		}
		m.lastValues[key] = value
		c := change{key: key, old: old, new: value}
		for _, fn := range fns {
			c.fns = append(c.fns, fn)
		}
		changes = append(changes, c)
	}
	m.listenersMu.Unlock()

	for _, c := range changes {
		for _, fn := range c.fns {
			fn(c.key, c.old, c.new, md)
		}
	}
}

// OpenImages returns the number of images received and not yet released.
func (m *Manager) OpenImages() int {
	return int(m.openImages.Load())
}

// Stats returns the ring buffer statistics.
func (m *Manager) Stats() ringbuffer.Stats {
	return m.buf.Stats()
}

// Close drops any pending request, stops accepting frames and waits until
// every frame has been released or ctx is done.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()

	err := m.buf.Close(ctx, nil)
	m.logger.Info("capture manager closed",
		"open_images", m.OpenImages(),
	)
	return err
}

func (m *Manager) incRequests(mode, outcome string) {
	if m.metrics != nil {
		m.metrics.IncCaptureRequests(mode, outcome)
	}
}

func (m *Manager) track(img frame.Image) *trackedImage {
	n := m.openImages.Add(1)
	if m.metrics != nil {
		m.metrics.SetOpenImages(int(n))
	}
	return &trackedImage{Image: img, m: m}
}

// trackedImage decrements the open image count when closed.
type trackedImage struct {
	frame.Image
	m      *Manager
	closed atomic.Bool
}

func (t *trackedImage) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		errors.Violate("close", int64(t.Timestamp()), "image closed twice")
	}
	n := t.m.openImages.Add(-1)
	if t.m.metrics != nil {
		t.m.metrics.SetOpenImages(int(n))
	}
	return t.Image.Close()
}
