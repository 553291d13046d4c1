package source

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jittakal/zslring/pkg/frame"
)

type recordingSink struct {
	mu       sync.Mutex
	images   []frame.Image
	metadata []*frame.Metadata
}

func (r *recordingSink) OnImageAvailable(img frame.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append(r.images, img)
}

func (r *recordingSink) OnMetadataAvailable(md *frame.Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata = append(r.metadata, md)
}

func (r *recordingSink) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.images), len(r.metadata)
}

type fakeBurst struct {
	active   bool
	claimed  []frame.Timestamp
	metadata []frame.Timestamp
}

func (f *fakeBurst) TryClaimImage(img frame.Image) bool {
	if !f.active {
		return false
	}
	f.claimed = append(f.claimed, img.Timestamp())
	return true
}

func (f *fakeBurst) OnMetadataAvailable(md *frame.Metadata) {
	f.metadata = append(f.metadata, md.Timestamp())
}

type countingMetrics struct {
	mu     sync.Mutex
	frames int
}

func (c *countingMetrics) IncFramesGenerated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
}

func TestDispatcher(t *testing.T) {
	sim := NewSimulator(Config{}, nil, nil, nil)
	zsl := &recordingSink{}
	b := &fakeBurst{}
	d := NewDispatcher(zsl, b)

	img, md := sim.Next(time.Unix(0, 1000))
	d.OnImageAvailable(img)
	d.OnMetadataAvailable(md)

	b.active = true
	img2, md2 := sim.Next(time.Unix(0, 2000))
	d.OnImageAvailable(img2)
	d.OnMetadataAvailable(md2)

	images, metadata := zsl.counts()
	if images != 1 {
		t.Errorf("zsl images = %d, want 1", images)
	}
	if metadata != 2 {
		t.Errorf("zsl metadata = %d, want 2", metadata)
	}
	if len(b.claimed) != 1 || b.claimed[0] != 2000 {
		t.Errorf("burst claimed = %v, want [2000]", b.claimed)
	}
	if len(b.metadata) != 2 {
		t.Errorf("burst metadata = %v, want both frames", b.metadata)
	}
}

func TestDispatcher_NoBurst(t *testing.T) {
	zsl := &recordingSink{}
	d := NewDispatcher(zsl, nil)
	sim := NewSimulator(Config{}, nil, nil, nil)

	img, md := sim.Next(time.Unix(0, 1000))
	d.OnImageAvailable(img)
	d.OnMetadataAvailable(md)

	if images, metadata := zsl.counts(); images != 1 || metadata != 1 {
		t.Errorf("counts = %d, %d, want 1, 1", images, metadata)
	}
}

func TestSimulator_Next(t *testing.T) {
	metrics := &countingMetrics{}
	sim := NewSimulator(Config{Width: 4, Height: 2, PayloadBytes: 16, RequestTag: "zsl"}, nil, nil, metrics)
	at := time.Unix(0, 5000)

	img1, md1 := sim.Next(at)
	img2, md2 := sim.Next(at)

	if img1.Timestamp() != md1.Timestamp() || img2.Timestamp() != md2.Timestamp() {
		t.Error("image and metadata timestamps differ")
	}
	if img2.Timestamp() <= img1.Timestamp() {
		t.Errorf("timestamps %d, %d not increasing", img1.Timestamp(), img2.Timestamp())
	}
	if md2.FrameNumber() != md1.FrameNumber()+1 {
		t.Errorf("frame numbers %d, %d", md1.FrameNumber(), md2.FrameNumber())
	}
	if len(img1.Data()) != 16 || img1.Width() != 4 || img1.Height() != 2 || img1.Format() != "JPEG" {
		t.Errorf("image = %dx%d %s %d bytes", img1.Width(), img1.Height(), img1.Format(), len(img1.Data()))
	}
	if tag, _ := md1.String(frame.KeyRequestTag); tag != "zsl" {
		t.Errorf("request tag = %q, want zsl", tag)
	}
	if metrics.frames != 2 {
		t.Errorf("frames generated = %d, want 2", metrics.frames)
	}

	if sim.OpenImages() != 2 {
		t.Errorf("OpenImages() = %d, want 2", sim.OpenImages())
	}
	if err := img1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := img1.Close(); err == nil {
		t.Error("second Close() succeeded")
	}
	_ = img2.Close()
	if sim.OpenImages() != 0 {
		t.Errorf("OpenImages() = %d, want 0", sim.OpenImages())
	}
}

func TestSimulator_SceneStates(t *testing.T) {
	sim := NewSimulator(Config{}, nil, nil, nil)
	valid := map[frame.Key][]int{
		frame.KeyLensState: {frame.LensStationary, frame.LensMoving},
		frame.KeyAEState:   {frame.AEConverged, frame.AESearching, frame.AEFlashRequired, frame.AELocked},
		frame.KeyAFState:   {frame.AFPassiveFocused, frame.AFPassiveScan, frame.AFActiveScan},
		frame.KeyAWBState:  {frame.AWBConverged, frame.AWBSearching},
	}

	for i := range 200 {
		img, md := sim.Next(time.Unix(0, int64(i)))
		for key, states := range valid {
			v, ok := md.Int(key)
			if !ok {
				t.Fatalf("%s missing", key)
			}
			found := false
			for _, s := range states {
				if s == v {
					found = true
				}
			}
			if !found {
				t.Errorf("%s = %d, want one of %v", key, v, states)
			}
		}
		if sharpness, ok := md.Float(frame.KeySharpness); !ok || sharpness < 0 || sharpness > 100 {
			t.Errorf("sharpness = %v, %v", sharpness, ok)
		}
		_ = img.Close()
	}
}

func TestSimulator_Run(t *testing.T) {
	sink := &recordingSink{}
	sim := NewSimulator(Config{
		FrameInterval: time.Millisecond,
		MaxJitter:     2 * time.Millisecond,
		PayloadBytes:  8,
	}, sink, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		images, metadata := sink.counts()
		if images >= 10 && metadata >= 10 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("delivered %d images, %d metadata before deadline", images, metadata)
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	seen := make(map[frame.Timestamp]bool)
	for _, md := range sink.metadata {
		seen[md.Timestamp()] = true
	}
	matched := 0
	var last frame.Timestamp
	for i, img := range sink.images {
		if seen[img.Timestamp()] {
			matched++
		}
		if i > 0 && img.Timestamp() <= last {
			t.Errorf("image %d delivered after %d", img.Timestamp(), last)
		}
		last = img.Timestamp()
		_ = img.Close()
	}
	if matched == 0 {
		t.Error("no image matched its metadata")
	}
	if sim.OpenImages() != 0 {
		t.Errorf("OpenImages() = %d after closing every delivered image", sim.OpenImages())
	}
}
