// Package buffer provides thread-safe batching for capture records.
//
// Delivered frames are copied out of the ring buffer into frame.Record values
// and collected per session and capture kind until the rotation policy
// flushes them into a single file.
//
//	manager := buffer.NewManager(maxSizeBytes, maxRecords)
//	buf := manager.GetOrCreate(frame.BatchKey{SessionID: id, Kind: frame.KindZSL})
//
//	if err := buf.Add(record); errors.Is(err, errors.ErrBufferFull) {
//	    flush(buf.Drain())
//	}
//
// The first record added to an empty buffer is always accepted, so a single
// frame larger than the size limit is still written on its own.
//
// Add, Drain and Reset take the write lock; Stats and IsEmpty take the read
// lock. Manager.GetOrCreate uses double-checked locking.
package buffer
