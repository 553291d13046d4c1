package ringbuffer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	zslerrors "github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/frame"
)

// fakeImage counts Close calls and panics on a second Close.
type fakeImage struct {
	ts     frame.Timestamp
	closes atomic.Int32
}

func newFakeImage(ts frame.Timestamp) *fakeImage { return &fakeImage{ts: ts} }

func (f *fakeImage) Timestamp() frame.Timestamp { return f.ts }
func (f *fakeImage) Format() string             { return "YUV_420_888" }
func (f *fakeImage) Width() int                 { return 4 }
func (f *fakeImage) Height() int                { return 4 }
func (f *fakeImage) Data() []byte               { return make([]byte, 24) }
func (f *fakeImage) Close() error {
	if f.closes.Add(1) > 1 {
		panic(fmt.Sprintf("image %d closed twice", f.ts))
	}
	return nil
}
func (f *fakeImage) Closed() int { return int(f.closes.Load()) }

func mergeImage(ts frame.Timestamp, img frame.Image) func(*frame.Slot) *frame.Slot {
	return func(existing *frame.Slot) *frame.Slot {
		if existing == nil {
			existing = frame.NewSlot(ts)
		}
		return existing.WithImage(img)
	}
}

func mergeMetadata(md *frame.Metadata) func(*frame.Slot) *frame.Slot {
	return func(existing *frame.Slot) *frame.Slot {
		if existing == nil {
			existing = frame.NewSlot(md.Timestamp())
		}
		return existing.WithMetadata(md)
	}
}

// insertComplete inserts an image and metadata for ts and returns the image.
func insertComplete(t *testing.T, b *Buffer, ts frame.Timestamp) *fakeImage {
	t.Helper()
	img := newFakeImage(ts)
	if !b.Swap(ts, mergeImage(ts, img)) {
		t.Fatalf("Swap(%d, image) = false", ts)
	}
	if !b.Swap(ts, mergeMetadata(frame.NewMetadata(ts, int64(ts), nil))) {
		t.Fatalf("Swap(%d, metadata) = false", ts)
	}
	return img
}

func mustPin(t *testing.T, b *Buffer, ts frame.Timestamp) *PinHandle {
	t.Helper()
	h, ok := b.TryPin(ts)
	if !ok {
		t.Fatalf("TryPin(%d) = false", ts)
	}
	return h.(*PinHandle)
}

func expectPanic(t *testing.T, fn func()) *zslerrors.ContractViolation {
	t.Helper()
	var cv *zslerrors.ContractViolation
	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("expected panic")
			}
			var ok bool
			if cv, ok = r.(*zslerrors.ContractViolation); !ok {
				t.Fatalf("panic value = %T (%v), want *ContractViolation", r, r)
			}
		}()
		fn()
	}()
	return cv
}

type mockMetrics struct {
	mu        sync.Mutex
	resident  int
	pinned    int
	swaps     map[string]int
	evictions int
}

func (m *mockMetrics) SetRingResident(_ string, n int) { m.mu.Lock(); m.resident = n; m.mu.Unlock() }
func (m *mockMetrics) SetRingPinned(_ string, n int)   { m.mu.Lock(); m.pinned = n; m.mu.Unlock() }
func (m *mockMetrics) IncRingEvictions(string)         { m.mu.Lock(); m.evictions++; m.mu.Unlock() }
func (m *mockMetrics) IncRingSwaps(_ string, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.swaps == nil {
		m.swaps = make(map[string]int)
	}
	m.swaps[result]++
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{"positive", 6, 6},
		{"zero clamps to one", 0, 1},
		{"negative clamps to one", -3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.capacity)
			if b.Capacity() != tt.want {
				t.Errorf("Capacity() = %d, want %d", b.Capacity(), tt.want)
			}
			if st := b.Stats(); st.Resident != 0 || st.Closed {
				t.Errorf("Stats() = %+v, want empty and open", st)
			}
		})
	}
}

func TestBuffer_SwapEvictsOldest(t *testing.T) {
	b := New(3)

	imgs := map[frame.Timestamp]*fakeImage{}
	for _, ts := range []frame.Timestamp{1, 2, 3} {
		imgs[ts] = insertComplete(t, b, ts)
	}
	if got := b.Timestamps(); !slices.Equal(got, []frame.Timestamp{1, 2, 3}) {
		t.Fatalf("Timestamps() = %v, want [1 2 3]", got)
	}

	imgs[4] = insertComplete(t, b, 4)

	if got := b.Timestamps(); !slices.Equal(got, []frame.Timestamp{2, 3, 4}) {
		t.Errorf("Timestamps() = %v, want [2 3 4]", got)
	}
	if imgs[1].Closed() != 1 {
		t.Errorf("evicted image closed %d times, want 1", imgs[1].Closed())
	}
	for _, ts := range []frame.Timestamp{2, 3, 4} {
		if imgs[ts].Closed() != 0 {
			t.Errorf("resident image %d closed %d times, want 0", ts, imgs[ts].Closed())
		}
	}
	if st := b.Stats(); st.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", st.Evictions)
	}
}

func TestBuffer_SwapOutOfOrder(t *testing.T) {
	b := New(3)

	for _, ts := range []frame.Timestamp{5, 2, 9, 7} {
		insertComplete(t, b, ts)
	}

	// 2 is the least recent even though it arrived second.
	if got := b.Timestamps(); !slices.Equal(got, []frame.Timestamp{5, 7, 9}) {
		t.Errorf("Timestamps() = %v, want [5 7 9]", got)
	}
}

func TestBuffer_EvictionSkipsPinned(t *testing.T) {
	b := New(3)

	imgs := map[frame.Timestamp]*fakeImage{}
	for _, ts := range []frame.Timestamp{2, 3, 4} {
		imgs[ts] = insertComplete(t, b, ts)
	}

	h := mustPin(t, b, 2)
	imgs[5] = insertComplete(t, b, 5)

	if got := b.Timestamps(); !slices.Equal(got, []frame.Timestamp{2, 4, 5}) {
		t.Fatalf("Timestamps() = %v, want [2 4 5]", got)
	}
	if imgs[2].Closed() != 0 {
		t.Error("pinned image was closed")
	}
	if imgs[3].Closed() != 1 {
		t.Errorf("next-oldest image closed %d times, want 1", imgs[3].Closed())
	}

	b.Release(h)
	if b.PinCount(2) != 0 {
		t.Errorf("PinCount(2) = %d, want 0", b.PinCount(2))
	}

	imgs[6] = insertComplete(t, b, 6)
	if got := b.Timestamps(); !slices.Equal(got, []frame.Timestamp{4, 5, 6}) {
		t.Errorf("Timestamps() = %v, want [4 5 6]", got)
	}
	if imgs[2].Closed() != 1 {
		t.Errorf("released image closed %d times, want 1", imgs[2].Closed())
	}
}

func TestBuffer_AllPinnedExceedsCapacity(t *testing.T) {
	b := New(2)

	img1 := insertComplete(t, b, 1)
	insertComplete(t, b, 2)
	h1 := mustPin(t, b, 1)
	h2 := mustPin(t, b, 2)

	insertComplete(t, b, 3)
	if st := b.Stats(); st.Resident != 3 || st.Evictions != 0 {
		t.Fatalf("Stats() = %+v, want 3 resident and no evictions", st)
	}

	// Dropping the last pin on an over-capacity buffer makes the slot evictable.
	b.Release(h1)
	if got := b.Timestamps(); !slices.Equal(got, []frame.Timestamp{2, 3}) {
		t.Errorf("Timestamps() = %v, want [2 3]", got)
	}
	if img1.Closed() != 1 {
		t.Errorf("image 1 closed %d times, want 1", img1.Closed())
	}

	b.Release(h2)
	if st := b.Stats(); st.Resident != 2 || st.Pins != 0 {
		t.Errorf("Stats() = %+v, want 2 resident and no pins", st)
	}
}

func TestBuffer_SwapMerge(t *testing.T) {
	metrics := &mockMetrics{}
	b := New(2, WithMetrics("test", metrics))

	img := newFakeImage(10)
	b.Swap(10, mergeImage(10, img))

	if _, ok := b.TryPinGreatestSatisfying(nil); ok {
		t.Fatal("incomplete slot should not be selectable")
	}

	b.Swap(10, mergeMetadata(frame.NewMetadata(10, 1, nil)))

	h, ok := b.TryPinGreatestSatisfying(nil)
	if !ok {
		t.Fatal("complete slot should be selectable")
	}
	if h.Slot().Image() != img || !h.Slot().Complete() {
		t.Errorf("pinned slot = %v, want complete slot with image", h.Slot())
	}
	b.Release(h)

	if metrics.swaps["inserted"] != 1 || metrics.swaps["merged"] != 1 {
		t.Errorf("swaps = %v, want 1 inserted and 1 merged", metrics.swaps)
	}
	if metrics.resident != 1 || metrics.pinned != 0 {
		t.Errorf("resident/pinned = %d/%d, want 1/0", metrics.resident, metrics.pinned)
	}
}

func TestBuffer_SwapAfterClose(t *testing.T) {
	b := New(2)
	if err := b.Close(context.Background(), nil); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	called := false
	ok := b.Swap(1, func(*frame.Slot) *frame.Slot {
		called = true
		return frame.NewSlot(1)
	})
	if ok {
		t.Error("Swap() after Close = true, want false")
	}
	if called {
		t.Error("merge function ran on a closed buffer")
	}
	if b.Stats().Resident != 0 {
		t.Error("closed buffer gained a slot")
	}
}

func TestBuffer_TryPin(t *testing.T) {
	b := New(4)
	insertComplete(t, b, 1)

	if _, ok := b.TryPin(99); ok {
		t.Error("TryPin(absent) = true, want false")
	}

	h1 := mustPin(t, b, 1)
	h2 := mustPin(t, b, 1)
	if b.PinCount(1) != 2 {
		t.Errorf("PinCount(1) = %d, want 2", b.PinCount(1))
	}
	b.Release(h1)
	b.Release(h2)
	if b.PinCount(1) != 0 {
		t.Errorf("PinCount(1) = %d, want 0", b.PinCount(1))
	}

	if err := b.Close(context.Background(), nil); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := b.TryPin(1); ok {
		t.Error("TryPin() after Close = true, want false")
	}
	if _, ok := b.TryPinGreatest(); ok {
		t.Error("TryPinGreatest() after Close = true, want false")
	}
	if _, ok := b.TryPinGreatestSatisfying(nil); ok {
		t.Error("TryPinGreatestSatisfying() after Close = true, want false")
	}
}

func TestBuffer_TryPinGreatest(t *testing.T) {
	b := New(4)
	if _, ok := b.TryPinGreatest(); ok {
		t.Fatal("TryPinGreatest() on empty buffer = true")
	}

	insertComplete(t, b, 1)
	b.Swap(2, mergeImage(2, newFakeImage(2)))

	h, ok := b.TryPinGreatest()
	if !ok {
		t.Fatal("TryPinGreatest() = false")
	}
	defer b.Release(h)
	if h.Timestamp() != 2 {
		t.Errorf("Timestamp() = %d, want 2 (incomplete slots are eligible)", h.Timestamp())
	}
}

func TestBuffer_TryPinGreatestSatisfying(t *testing.T) {
	b := New(5)
	for _, ts := range []frame.Timestamp{1, 2, 3, 4} {
		insertComplete(t, b, ts)
	}
	b.Swap(5, mergeImage(5, newFakeImage(5)))

	tests := []struct {
		name   string
		pred   func(*frame.Slot) bool
		want   frame.Timestamp
		wantOK bool
	}{
		{"nil predicate takes newest complete", nil, 4, true},
		{"predicate filters", func(s *frame.Slot) bool { return s.Timestamp()%2 == 1 }, 3, true},
		{"no match", func(*frame.Slot) bool { return false }, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := b.Stats().Pins
			h, ok := b.TryPinGreatestSatisfying(tt.pred)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				if b.Stats().Pins != before {
					t.Errorf("Pins = %d, want unchanged %d", b.Stats().Pins, before)
				}
				return
			}
			if h.Timestamp() != tt.want {
				t.Errorf("Timestamp() = %d, want %d", h.Timestamp(), tt.want)
			}
			b.Release(h)
			if b.Stats().Pins != before {
				t.Errorf("Pins = %d after release, want %d", b.Stats().Pins, before)
			}
		})
	}
}

func TestBuffer_ReleaseContractViolations(t *testing.T) {
	b := New(2)
	insertComplete(t, b, 1)

	t.Run("twice", func(t *testing.T) {
		h := mustPin(t, b, 1)
		b.Release(h)
		cv := expectPanic(t, func() { b.Release(h) })
		if cv.Timestamp != 1 {
			t.Errorf("Timestamp = %d, want 1", cv.Timestamp)
		}
		if b.PinCount(1) != 0 {
			t.Errorf("PinCount(1) = %d, want 0", b.PinCount(1))
		}
	})

	t.Run("foreign handle", func(t *testing.T) {
		other := New(2)
		insertComplete(t, other, 1)
		h := mustPin(t, other, 1)
		expectPanic(t, func() { b.Release(h) })
		other.Release(h)
	})

	t.Run("nil handle", func(t *testing.T) {
		expectPanic(t, func() { b.Release(nil) })
	})

	// The buffer stays usable after a recovered violation.
	h := mustPin(t, b, 1)
	b.Release(h)
}

func TestBuffer_CloseDrainsEverySlotOnce(t *testing.T) {
	b := New(4)
	imgs := []*fakeImage{
		insertComplete(t, b, 1),
		insertComplete(t, b, 2),
	}
	b.Swap(3, mergeMetadata(frame.NewMetadata(3, 3, nil)))

	var drained []frame.Timestamp
	err := b.Close(context.Background(), func(s *frame.Slot) {
		drained = append(drained, s.Timestamp())
		if err := s.Release(); err != nil {
			t.Errorf("Release() error = %v", err)
		}
	})
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !slices.Equal(drained, []frame.Timestamp{1, 2, 3}) {
		t.Errorf("drained = %v, want [1 2 3]", drained)
	}
	for _, img := range imgs {
		if img.Closed() != 1 {
			t.Errorf("image %d closed %d times, want 1", img.ts, img.Closed())
		}
	}

	// Idempotent: a second close neither drains nor blocks.
	if err := b.Close(context.Background(), func(*frame.Slot) {
		t.Error("drain ran on second Close")
	}); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !b.Stats().Closed {
		t.Error("Stats().Closed = false")
	}
}

func TestBuffer_CloseWaitsForPins(t *testing.T) {
	b := New(4)
	for _, ts := range []frame.Timestamp{1, 2, 3} {
		insertComplete(t, b, ts)
	}
	h := mustPin(t, b, 2)

	drained := make(chan frame.Timestamp, 3)
	closeErr := make(chan error, 1)
	go func() {
		closeErr <- b.Close(context.Background(), func(s *frame.Slot) {
			_ = s.Release()
			drained <- s.Timestamp()
		})
	}()

	got := map[frame.Timestamp]bool{}
	for range 2 {
		select {
		case ts := <-drained:
			got[ts] = true
		case <-time.After(2 * time.Second):
			t.Fatal("unpinned slots were not drained")
		}
	}
	if !got[1] || !got[3] {
		t.Errorf("drained %v first, want 1 and 3", got)
	}

	select {
	case err := <-closeErr:
		t.Fatalf("Close() returned %v while a pin was outstanding", err)
	case ts := <-drained:
		t.Fatalf("pinned slot %d drained before release", ts)
	case <-time.After(50 * time.Millisecond):
	}

	if h.Slot().Image().Data() == nil {
		t.Error("pinned slot image should stay readable while closing")
	}
	b.Release(h)

	select {
	case ts := <-drained:
		if ts != 2 {
			t.Errorf("drained %d after release, want 2", ts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("released slot was not drained")
	}
	select {
	case err := <-closeErr:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return after the last release")
	}
}

func TestBuffer_CloseContextCanceled(t *testing.T) {
	b := New(2)
	img := insertComplete(t, b, 1)
	h := mustPin(t, b, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.Close(ctx, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close() error = %v, want %v", err, context.DeadlineExceeded)
	}
	if img.Closed() != 0 {
		t.Fatal("pinned image closed before release")
	}

	// The drain still happens once the pin goes away.
	b.Release(h)
	if img.Closed() != 1 {
		t.Errorf("image closed %d times after release, want 1", img.Closed())
	}
	if err := b.Close(context.Background(), nil); err != nil {
		t.Errorf("Close() after release error = %v", err)
	}
}

func TestBuffer_AvailabilityListener(t *testing.T) {
	b := New(2)
	events := make(chan bool, 8)
	b.SetAvailabilityListener(func(available bool) { events <- available })

	next := func() bool {
		t.Helper()
		select {
		case v := <-events:
			return v
		case <-time.After(2 * time.Second):
			t.Fatal("no availability notification")
			return false
		}
	}

	if next() {
		t.Error("initial availability = true, want false")
	}

	b.Swap(1, mergeImage(1, newFakeImage(1)))
	if b.Available() {
		t.Error("Available() = true with only an incomplete slot")
	}

	b.Swap(1, mergeMetadata(frame.NewMetadata(1, 1, nil)))
	if !next() {
		t.Error("availability after completing a slot = false, want true")
	}

	if err := b.Close(context.Background(), nil); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if next() {
		t.Error("availability after Close = true, want false")
	}

	// Listeners registered after Close are ignored.
	b.SetAvailabilityListener(func(bool) { t.Error("listener called after Close") })
}

type newestPolicy struct{ calls int }

func (p *newestPolicy) SelectVictim(candidates []frame.Timestamp) frame.Timestamp {
	p.calls++
	return candidates[len(candidates)-1]
}

type bogusPolicy struct{}

func (bogusPolicy) SelectVictim([]frame.Timestamp) frame.Timestamp { return 12345 }

func TestBuffer_EvictionPolicy(t *testing.T) {
	t.Run("policy chooses among unpinned", func(t *testing.T) {
		p := &newestPolicy{}
		b := New(2, WithEvictionPolicy(p))
		insertComplete(t, b, 1)
		insertComplete(t, b, 2)
		insertComplete(t, b, 3)

		// 3 is never a candidate for its own insertion, so 2 is the newest.
		if got := b.Timestamps(); !slices.Equal(got, []frame.Timestamp{1, 3}) {
			t.Errorf("Timestamps() = %v, want [1 3]", got)
		}
		if p.calls != 1 {
			t.Errorf("policy calls = %d, want 1", p.calls)
		}
	})

	t.Run("ineligible proposal falls back to oldest", func(t *testing.T) {
		b := New(2, WithEvictionPolicy(bogusPolicy{}))
		insertComplete(t, b, 1)
		insertComplete(t, b, 2)
		insertComplete(t, b, 3)

		if got := b.Timestamps(); !slices.Equal(got, []frame.Timestamp{2, 3}) {
			t.Errorf("Timestamps() = %v, want [2 3]", got)
		}
	})
}

func TestBuffer_ResidentBoundProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := range 20 {
		capacity := 1 + rng.Intn(4)
		b := New(capacity)
		var handles []*PinHandle
		var imgs []*fakeImage

		for ts := frame.Timestamp(1); ts <= 60; ts++ {
			imgs = append(imgs, insertComplete(t, b, ts))

			st := b.Stats()
			if st.Resident > max(capacity, st.PinnedSlots+1) {
				t.Fatalf("round %d ts %d: resident %d exceeds max(capacity %d, pinned %d + 1)",
					round, ts, st.Resident, capacity, st.PinnedSlots)
			}

			switch rng.Intn(3) {
			case 0:
				if h, ok := b.TryPinGreatestSatisfying(nil); ok {
					handles = append(handles, h.(*PinHandle))
				}
			case 1:
				if len(handles) > 0 {
					i := rng.Intn(len(handles))
					b.Release(handles[i])
					handles = slices.Delete(handles, i, i+1)
				}
			}
		}

		for _, h := range handles {
			b.Release(h)
		}
		if err := b.Close(context.Background(), nil); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		for _, img := range imgs {
			if img.Closed() != 1 {
				t.Fatalf("round %d: image %d closed %d times, want 1", round, img.ts, img.Closed())
			}
		}
	}
}

func TestBuffer_ConcurrentProducersAndConsumers(t *testing.T) {
	const frames = 300
	b := New(5)

	imgs := make([]*fakeImage, frames)
	for i := range imgs {
		imgs[i] = newFakeImage(frame.Timestamp(i + 1))
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for _, img := range imgs {
			if !b.Swap(img.ts, mergeImage(img.ts, img)) {
				_ = img.Close()
			}
		}
	}()

	go func() {
		defer wg.Done()
		for i := frames; i >= 1; i-- {
			ts := frame.Timestamp(i)
			b.Swap(ts, mergeMetadata(frame.NewMetadata(ts, int64(i), nil)))
		}
	}()

	var delivered atomic.Int32
	go func() {
		defer wg.Done()
		for range frames {
			if h, ok := b.TryPinGreatestSatisfying(nil); ok {
				if len(h.Slot().Image().Data()) == 0 {
					t.Error("pinned image has no data")
				}
				delivered.Add(1)
				b.Release(h)
			}
		}
	}()

	wg.Wait()

	if err := b.Close(context.Background(), nil); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if st := b.Stats(); st.Pins != 0 || st.Resident != 0 {
		t.Errorf("Stats() = %+v, want no pins and nothing resident", st)
	}
	for _, img := range imgs {
		if img.Closed() != 1 {
			t.Fatalf("image %d closed %d times, want 1", img.ts, img.Closed())
		}
	}
}
