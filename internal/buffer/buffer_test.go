package buffer

import (
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/frame"
)

var testKey = frame.BatchKey{SessionID: "session-1", Kind: frame.KindZSL}

func testRecord(ts int64, size int) frame.Record {
	return frame.Record{
		SessionID:   testKey.SessionID,
		Kind:        testKey.Kind,
		Name:        fmt.Sprintf("ZSL_%d", ts),
		Timestamp:   frame.Timestamp(ts),
		FrameNumber: ts,
		Format:      "JPEG",
		Width:       4,
		Height:      3,
		Image:       make([]byte, size),
		Metadata:    map[string]string{"lens.state": "0"},
	}
}

func TestNew(t *testing.T) {
	buf := New(testKey, 1024*1024, 1000)

	if buf == nil {
		t.Fatal("expected non-nil buffer")
	}
	if buf.Key() != testKey {
		t.Errorf("Key() = %v, want %v", buf.Key(), testKey)
	}
	if buf.maxSizeBytes != 1024*1024 {
		t.Errorf("maxSizeBytes = %d, want %d", buf.maxSizeBytes, 1024*1024)
	}
	if buf.maxRecords != 1000 {
		t.Errorf("maxRecords = %d, want 1000", buf.maxRecords)
	}
}

func TestBatchBuffer_Add(t *testing.T) {
	buf := New(testKey, 1024*1024, 100)

	if err := buf.Add(testRecord(1, 64)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	stats := buf.Stats()
	if stats.RecordCount != 1 {
		t.Errorf("RecordCount = %d, want 1", stats.RecordCount)
	}
	if stats.SizeBytes < 64 {
		t.Errorf("SizeBytes = %d, want at least the image size", stats.SizeBytes)
	}
}

func TestBatchBuffer_AddMaxRecords(t *testing.T) {
	buf := New(testKey, 1024*1024, 2)

	for i := range 2 {
		if err := buf.Add(testRecord(int64(i), 8)); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	err := buf.Add(testRecord(100, 8))
	if !stderrors.Is(err, errors.ErrBufferFull) {
		t.Errorf("Add() error = %v, want ErrBufferFull", err)
	}
}

func TestBatchBuffer_SizeLimit(t *testing.T) {
	buf := New(testKey, 200, 100)

	// The first record is always accepted, even when oversized.
	if err := buf.Add(testRecord(1, 500)); err != nil {
		t.Fatalf("Add() oversized first record error = %v", err)
	}
	if err := buf.Add(testRecord(2, 10)); !stderrors.Is(err, errors.ErrBufferFull) {
		t.Errorf("Add() error = %v, want ErrBufferFull", err)
	}

	buf.Reset()
	if err := buf.Add(testRecord(3, 10)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := buf.Add(testRecord(4, 10)); err != nil {
		t.Errorf("Add() second small record error = %v", err)
	}
}

func TestBatchBuffer_Drain(t *testing.T) {
	buf := New(testKey, 1024*1024, 100)

	for i := range 5 {
		if err := buf.Add(testRecord(int64(i), 16)); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	records := buf.Drain()
	if len(records) != 5 {
		t.Fatalf("Drain() returned %d records, want 5", len(records))
	}
	for i, r := range records {
		if r.Timestamp != frame.Timestamp(i) {
			t.Errorf("records[%d].Timestamp = %d, want %d", i, r.Timestamp, i)
		}
	}

	if !buf.IsEmpty() {
		t.Error("buffer should be empty after Drain()")
	}
	if stats := buf.Stats(); stats.SizeBytes != 0 || !stats.FirstWriteTime.IsZero() {
		t.Errorf("stats after Drain() = %+v, want zero", stats)
	}
}

func TestBatchBuffer_IsEmpty(t *testing.T) {
	buf := New(testKey, 1024*1024, 100)

	if !buf.IsEmpty() {
		t.Error("new buffer should be empty")
	}
	_ = buf.Add(testRecord(1, 1))
	if buf.IsEmpty() {
		t.Error("buffer should not be empty after Add()")
	}
	buf.Reset()
	if !buf.IsEmpty() {
		t.Error("buffer should be empty after Reset()")
	}
}

func TestBatchBuffer_FirstLastWriteTime(t *testing.T) {
	buf := New(testKey, 1024*1024, 100)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	buf.now = func() time.Time { return clock }

	_ = buf.Add(testRecord(1, 1))
	clock = base.Add(2 * time.Second)
	_ = buf.Add(testRecord(2, 1))

	stats := buf.Stats()
	if !stats.FirstWriteTime.Equal(base) {
		t.Errorf("FirstWriteTime = %v, want %v", stats.FirstWriteTime, base)
	}
	if !stats.LastWriteTime.Equal(clock) {
		t.Errorf("LastWriteTime = %v, want %v", stats.LastWriteTime, clock)
	}
}

func TestBatchBuffer_ConcurrentAdd(t *testing.T) {
	buf := New(testKey, 0, 1000)

	var wg sync.WaitGroup
	for g := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				_ = buf.Add(testRecord(int64(g*100+i), 4))
			}
		}()
	}
	wg.Wait()

	if got := buf.Stats().RecordCount; got != 500 {
		t.Errorf("RecordCount = %d, want 500", got)
	}
}

func TestEstimateSize(t *testing.T) {
	small := estimateSize(testRecord(1, 0))
	large := estimateSize(testRecord(1, 1000))

	if small <= 0 {
		t.Errorf("estimateSize(empty image) = %d, want > 0", small)
	}
	if large-small != 1000 {
		t.Errorf("image bytes added %d, want 1000", large-small)
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	m := NewManager(1024, 10)

	zsl := m.GetOrCreate(testKey)
	burst := m.GetOrCreate(frame.BatchKey{SessionID: "session-1", Kind: frame.KindBurst})

	if zsl == burst {
		t.Error("different keys returned the same buffer")
	}
	if again := m.GetOrCreate(testKey); again != zsl {
		t.Error("same key returned a different buffer")
	}

	keys := m.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys() = %v, want 2 keys", keys)
	}
	if keys[0].Kind != frame.KindBurst || keys[1].Kind != frame.KindZSL {
		t.Errorf("Keys() = %v, want burst before zsl", keys)
	}
}

func BenchmarkBatchBuffer_Add(b *testing.B) {
	record := testRecord(1, 1024)

	for b.Loop() {
		buf := New(testKey, 0, 100)
		for range 100 {
			_ = buf.Add(record)
		}
	}
}

func BenchmarkManager_GetOrCreate_Parallel(b *testing.B) {
	manager := NewManager(1024*1024, 1000)

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = manager.GetOrCreate(testKey)
		}
	})
}
