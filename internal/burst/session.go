package burst

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/frame"
)

// Result is a finished burst handed to a Sink.
type Result struct {
	ID        int
	Title     string
	StartedAt time.Time
	// Frames are ordered oldest first. The sink owns them and must release
	// each one.
	Frames []*frame.Slot
}

// Sink persists finished bursts.
type Sink interface {
	SaveBurst(ctx context.Context, result *Result) error
}

// SessionConfig holds burst session configuration.
type SessionConfig struct {
	// MaxImages bounds the frames kept per burst. One frame of that budget is
	// reserved for the frame being delivered, so the buffer holds
	// MaxImages-1.
	MaxImages int
	Policy    PolicyFactory
}

// Session routes frames into a fresh RingBuffer between Start and Stop.
type Session struct {
	cfg     SessionConfig
	sink    Sink
	logger  *slog.Logger
	metrics MetricsCollector
	now     func() time.Time

	mu          sync.Mutex
	buf         *RingBuffer
	pendingMeta map[frame.Timestamp]*frame.Metadata
	current     *Result
	nextID      int
}

// NewSession creates an idle burst session.
func NewSession(cfg SessionConfig, sink Sink, logger *slog.Logger, metrics MetricsCollector) *Session {
	if cfg.MaxImages < 2 {
		cfg.MaxImages = 2
	}
	if cfg.Policy == nil {
		cfg.Policy, _ = PolicyByName("oldest")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:     cfg,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Capacity returns the number of frames a burst keeps.
func (s *Session) Capacity() int {
	return s.cfg.MaxImages - 1
}

// Start begins a burst. It fails with ErrBurstInProgress if one is running.
func (s *Session) Start() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf != nil {
		return 0, errors.ErrBurstInProgress
	}
	started := s.now()
	s.current = &Result{
		ID:        s.nextID,
		Title:     Title(started.UnixMilli()),
		StartedAt: started,
	}
	s.nextID++
	s.buf = NewRingBuffer(s.Capacity(), s.cfg.Policy(), s.logger, s.metrics)
	s.pendingMeta = make(map[frame.Timestamp]*frame.Metadata)

	s.logger.Info("burst started",
		"burst_id", s.current.ID,
		"capacity", s.Capacity(),
	)
	return s.current.ID, nil
}

// Active reports whether a burst is running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf != nil
}

// TryClaimImage takes ownership of img if a burst is running.
func (s *Session) TryClaimImage(img frame.Image) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf == nil {
		return false
	}
	ts := img.Timestamp()
	slot := frame.NewSlot(ts).WithImage(img)
	if md, ok := s.pendingMeta[ts]; ok {
		slot = slot.WithMetadata(md)
		delete(s.pendingMeta, ts)
	}
	s.buf.Insert(slot)
	return true
}

// OnMetadataAvailable passes md to the running burst. Metadata that arrives
// before its image is held until the image is claimed.
func (s *Session) OnMetadataAvailable(md *frame.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf == nil {
		return
	}
	if s.buf.NotifyMetadataAvailable(md) {
		return
	}
	s.pendingMeta[md.Timestamp()] = md
	if len(s.pendingMeta) > s.cfg.MaxImages {
		oldest := slices.Min(slices.Collect(maps.Keys(s.pendingMeta)))
		delete(s.pendingMeta, oldest)
	}
}

// Stop ends the running burst and hands its frames to the sink. Without a
// sink the frames are released.
func (s *Session) Stop(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.buf == nil {
		s.mu.Unlock()
		return nil, errors.ErrNoBurst
	}
	result := s.current
	result.Frames = s.buf.DrainAll()
	s.buf.Close()
	s.buf = nil
	s.pendingMeta = nil
	s.current = nil
	s.mu.Unlock()

	s.logger.Info("burst stopped",
		"burst_id", result.ID,
		"frames", len(result.Frames),
	)

	if s.sink == nil {
		for _, f := range result.Frames {
			if err := f.Release(); err != nil {
				s.logger.Warn("failed to release burst frame", "timestamp", f.Timestamp(), "error", err)
			}
		}
		return result, nil
	}
	if err := s.sink.SaveBurst(ctx, result); err != nil {
		return result, fmt.Errorf("save burst %d: %w", result.ID, err)
	}
	return result, nil
}

// Close discards a running burst, releasing its frames.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf == nil {
		return
	}
	s.buf.Close()
	s.buf = nil
	s.pendingMeta = nil
	s.current = nil
}
