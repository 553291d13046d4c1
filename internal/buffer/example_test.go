package buffer_test

import (
	"fmt"

	"github.com/jittakal/zslring/internal/buffer"
	"github.com/jittakal/zslring/pkg/frame"
)

func Example_batchBuffer() {
	key := frame.BatchKey{SessionID: "9f1c", Kind: frame.KindZSL}
	buf := buffer.New(key, 1024*1024, 100)

	for i := range 3 {
		record := frame.Record{
			SessionID: key.SessionID,
			Kind:      key.Kind,
			Name:      fmt.Sprintf("ZSL_%d", i),
			Timestamp: frame.Timestamp(1000 + i),
			Format:    "JPEG",
			Image:     []byte{0xff, 0xd8},
		}
		if err := buf.Add(record); err != nil {
			fmt.Println("Error adding record:", err)
			return
		}
	}

	fmt.Printf("Records buffered: %d\n", buf.Stats().RecordCount)

	records := buf.Drain()
	fmt.Printf("Drained %d records\n", len(records))
	fmt.Printf("Buffer is empty after drain: %v\n", buf.IsEmpty())

	// Output:
	// Records buffered: 3
	// Drained 3 records
	// Buffer is empty after drain: true
}

func Example_bufferManager() {
	manager := buffer.NewManager(1024*1024, 1000)

	zsl := manager.GetOrCreate(frame.BatchKey{SessionID: "9f1c", Kind: frame.KindZSL})
	burst := manager.GetOrCreate(frame.BatchKey{SessionID: "9f1c", Kind: frame.KindBurst})
	fmt.Printf("ZSL and burst buffers are different: %v\n", zsl != burst)

	for _, key := range manager.Keys() {
		fmt.Println(key)
	}

	// Output:
	// ZSL and burst buffers are different: true
	// 9f1c/burst
	// 9f1c/zsl
}
