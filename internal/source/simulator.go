package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jaswdr/faker"

	"github.com/jittakal/zslring/pkg/frame"
)

// MetricsCollector defines metrics operations for the simulator.
type MetricsCollector interface {
	IncFramesGenerated()
}

// Config contains simulator configuration.
type Config struct {
	FrameInterval time.Duration
	// MaxJitter bounds the random delay applied to each image and each
	// metadata record independently.
	MaxJitter    time.Duration
	Width        int
	Height       int
	Format       string
	PayloadBytes int
	// RequestTag is stamped on every frame's metadata when set.
	RequestTag string
}

// Simulator generates frames with randomized scene readings.
type Simulator struct {
	cfg     Config
	sink    Sink
	faker   faker.Faker
	logger  *slog.Logger
	metrics MetricsCollector

	fakerMu     sync.Mutex
	frameNumber int64
	lastTS      frame.Timestamp
	open        atomic.Int64
}

// NewSimulator creates a simulator that delivers into sink.
func NewSimulator(cfg Config, sink Sink, logger *slog.Logger, metrics MetricsCollector) *Simulator {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 33 * time.Millisecond
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 640, 480
	}
	if cfg.Format == "" {
		cfg.Format = "JPEG"
	}
	if cfg.PayloadBytes <= 0 {
		cfg.PayloadBytes = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		cfg:     cfg,
		sink:    sink,
		faker:   faker.New(),
		logger:  logger,
		metrics: metrics,
	}
}

// OpenImages returns the number of generated images not yet closed.
func (s *Simulator) OpenImages() int {
	return int(s.open.Load())
}

// Run emits one frame per interval until ctx is done. Frames still in
// flight on return are closed rather than delivered.
func (s *Simulator) Run(ctx context.Context) error {
	images := make(chan frame.Image, 16)
	metadata := make(chan *frame.Metadata, 16)

	var wg sync.WaitGroup
	wg.Go(func() {
		for img := range images {
			if !s.delay(ctx) {
				_ = img.Close()
				continue
			}
			s.sink.OnImageAvailable(img)
		}
	})
	wg.Go(func() {
		for md := range metadata {
			if !s.delay(ctx) {
				continue
			}
			s.sink.OnMetadataAvailable(md)
		}
	})

	s.logger.Info("frame simulator started",
		"interval", s.cfg.FrameInterval,
		"max_jitter", s.cfg.MaxJitter,
		"size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
	)

	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(images)
			close(metadata)
			wg.Wait()
			s.logger.Info("frame simulator stopped", "frames", s.frameNumber)
			return nil
		case now := <-ticker.C:
			img, md := s.Next(now)
			select {
			case images <- img:
			case <-ctx.Done():
				_ = img.Close()
				continue
			}
			select {
			case metadata <- md:
			case <-ctx.Done():
			}
		}
	}
}

// Next generates the image and metadata of one frame captured at now.
// Timestamps are strictly increasing. Next must not be called while Run is
// active.
func (s *Simulator) Next(now time.Time) (frame.Image, *frame.Metadata) {
	ts := frame.Timestamp(now.UnixNano())
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	s.frameNumber++

	s.fakerMu.Lock()
	values := s.scene()
	payload := []byte(s.faker.RandomStringWithLength(s.cfg.PayloadBytes))
	s.fakerMu.Unlock()

	if s.cfg.RequestTag != "" {
		values[frame.KeyRequestTag] = s.cfg.RequestTag
	}

	s.open.Add(1)
	img := &simImage{
		ts:     ts,
		format: s.cfg.Format,
		width:  s.cfg.Width,
		height: s.cfg.Height,
		data:   payload,
		onClose: func() {
			s.open.Add(-1)
		},
	}
	if s.metrics != nil {
		s.metrics.IncFramesGenerated()
	}
	return img, frame.NewMetadata(ts, s.frameNumber, values)
}

// scene draws one set of 3A and sensor readings. Most frames are stable.
func (s *Simulator) scene() map[frame.Key]any {
	return map[frame.Key]any{
		frame.KeyLensState:  s.weighted([]int{frame.LensStationary, frame.LensMoving}, []int{90, 10}),
		frame.KeyAEState:    s.weighted([]int{frame.AEConverged, frame.AESearching, frame.AEFlashRequired, frame.AELocked}, []int{70, 20, 5, 5}),
		frame.KeyAFState:    s.weighted([]int{frame.AFPassiveFocused, frame.AFPassiveScan, frame.AFActiveScan}, []int{75, 20, 5}),
		frame.KeyAWBState:   s.weighted([]int{frame.AWBConverged, frame.AWBSearching}, []int{90, 10}),
		frame.KeyFlashState: frame.FlashReady,
		frame.KeyFlashMode:  frame.FlashModeOff,
		frame.KeySharpness:  float64(s.faker.IntBetween(0, 1000)) / 10,
		frame.KeyExposureNS: int64(s.faker.IntBetween(1_000_000, 33_000_000)),
		frame.KeyISO:        s.faker.IntBetween(100, 3200),
	}
}

func (s *Simulator) weighted(values, weights []int) int {
	n := s.faker.IntBetween(1, 100)
	cumulative := 0
	for i, weight := range weights {
		cumulative += weight
		if n <= cumulative {
			return values[i]
		}
	}
	return values[0]
}

// delay sleeps a random jitter. It returns false if ctx ends first.
func (s *Simulator) delay(ctx context.Context) bool {
	if s.cfg.MaxJitter <= 0 {
		return ctx.Err() == nil
	}
	s.fakerMu.Lock()
	d := time.Duration(s.faker.IntBetween(0, int(s.cfg.MaxJitter/time.Microsecond))) * time.Microsecond
	s.fakerMu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// simImage is a generated frame payload.
type simImage struct {
	ts      frame.Timestamp
	format  string
	width   int
	height  int
	data    []byte
	closed  atomic.Bool
	onClose func()
}

func (i *simImage) Timestamp() frame.Timestamp { return i.ts }
func (i *simImage) Format() string             { return i.format }
func (i *simImage) Width() int                 { return i.width }
func (i *simImage) Height() int                { return i.height }
func (i *simImage) Data() []byte               { return i.data }

func (i *simImage) Close() error {
	if !i.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("image %d already closed", i.ts)
	}
	i.data = nil
	if i.onClose != nil {
		i.onClose()
	}
	return nil
}
