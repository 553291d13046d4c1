// Package storage implements storage writers and path routing for capture files.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/encoder"
	"github.com/jittakal/zslring/pkg/frame"
)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncFilesWritten(kind, format, status string)
	ObserveFileSize(kind, format string, size float64)
	ObserveStorageWriteDuration(backend string, duration float64)
	IncStorageErrors(backend, operation string)
}

// FileName returns the object name for a batch: the record name for a
// single frame, otherwise "<kind>_<first ts>-<last ts>_<count>".
func FileName(records []frame.Record, ext string) string {
	if len(records) == 1 {
		return records[0].Name + ext
	}
	first, last := records[0].Timestamp, records[len(records)-1].Timestamp
	return fmt.Sprintf("%s_%d-%d_%d%s", records[0].Kind, first, last, len(records), ext)
}

// objectKey strips "<scheme>://<bucket>/" from a routed path and joins name,
// returning the key relative to the bucket.
func objectKey(path, scheme, name string) string {
	key := path
	if rest, ok := strings.CutPrefix(path, scheme+"://"); ok {
		if _, after, found := strings.Cut(rest, "/"); found {
			key = after
		} else {
			key = ""
		}
	}
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}
	return strings.TrimPrefix(key+name, "/")
}

// stage encodes records into a temporary file for upload. The caller removes it.
func stage(enc encoder.Encoder, backend string, records []frame.Record) (string, *frame.FileStats, error) {
	tempFile := filepath.Join(os.TempDir(),
		fmt.Sprintf("%s-upload-%d%s", backend, time.Now().UnixNano(), enc.FileExtension()))

	stats, err := enc.Encode(tempFile, records)
	if err != nil {
		os.Remove(tempFile)
		return "", nil, &errors.StorageError{Operation: "encode", Path: tempFile, Err: err}
	}
	return tempFile, stats, nil
}

func recordKind(records []frame.Record) string {
	if len(records) == 0 {
		return ""
	}
	return string(records[0].Kind)
}
