// Package encoder implements file format encoders.
package encoder

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/zslring/pkg/encoder"
	"github.com/jittakal/zslring/pkg/frame"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroEncoder)(nil)

// AvroEncoder implements encoder.Encoder for Apache Avro binary format.
// It produces OCF (Object Container File) output with optional gzip compression.
type AvroEncoder struct {
	codec       *goavro.Codec
	compression string
}

// NewAvroEncoder creates a new Avro encoder with specified compression.
func NewAvroEncoder(compression string) (*AvroEncoder, error) {
	codec, err := goavro.NewCodec(avroSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	return &AvroEncoder{
		codec:       codec,
		compression: compression,
	}, nil
}

// avroSchema returns the Avro schema for capture records.
func avroSchema() string {
	return `{
		"type": "record",
		"name": "CaptureRecord",
		"namespace": "io.zslring.capture",
		"fields": [
			{"name": "session_id", "type": "string"},
			{"name": "kind", "type": "string"},
			{"name": "name", "type": "string"},
			{"name": "index", "type": "int"},
			{"name": "timestamp", "type": "long"},
			{"name": "frame_number", "type": "long"},
			{"name": "format", "type": "string"},
			{"name": "width", "type": "int"},
			{"name": "height", "type": "int"},
			{"name": "image", "type": "bytes"},
			{"name": "metadata", "type": {"type": "map", "values": "string"}},
			{"name": "captured_at", "type": ["null", "string"], "default": null}
		]
	}`
}

// Encode writes records to an Avro file.
func (e *AvroEncoder) Encode(filePath string, records []frame.Record) (*frame.FileStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := e.encodeTo(file, records); err != nil {
		return nil, err
	}

	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return newFileStats(records, fileInfo.Size()), nil
}

// EncodeToBytes encodes records to bytes (useful for testing).
func (e *AvroEncoder) EncodeToBytes(records []frame.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	var buf bytes.Buffer
	if err := e.encodeTo(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *AvroEncoder) encodeTo(w io.Writer, records []frame.Record) error {
	var gzipWriter *gzip.Writer
	if e.gzip() {
		gzipWriter = gzip.NewWriter(w)
		w = gzipWriter
	}

	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:     w,
		Codec: e.codec,
	})
	if err != nil {
		return fmt.Errorf("failed to create OCF writer: %w", err)
	}

	for _, record := range records {
		if err := ocfWriter.Append([]any{convertToAvroMap(record)}); err != nil {
			return fmt.Errorf("failed to write record %s: %w", record.Name, err)
		}
	}

	if gzipWriter != nil {
		if err := gzipWriter.Close(); err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}
	return nil
}

// convertToAvroMap converts a Record to Avro map representation.
func convertToAvroMap(record frame.Record) map[string]any {
	metadata := make(map[string]any, len(record.Metadata))
	for k, v := range record.Metadata {
		metadata[k] = v
	}

	image := record.Image
	if image == nil {
		image = []byte{}
	}

	avroMap := map[string]any{
		"session_id":   record.SessionID,
		"kind":         string(record.Kind),
		"name":         record.Name,
		"index":        int32(record.Index),
		"timestamp":    int64(record.Timestamp),
		"frame_number": record.FrameNumber,
		"format":       record.Format,
		"width":        int32(record.Width),
		"height":       int32(record.Height),
		"image":        image,
		"metadata":     metadata,
		"captured_at":  nil,
	}

	if !record.CapturedAt.IsZero() {
		avroMap["captured_at"] = goavro.Union("string", record.CapturedAt.Format(time.RFC3339Nano))
	}

	return avroMap
}

func (e *AvroEncoder) gzip() bool {
	return e.compression == "gzip" || e.compression == "GZIP"
}

// Format returns the file format.
func (e *AvroEncoder) Format() frame.FileFormat {
	return frame.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	if e.gzip() {
		return ".avro.gz"
	}
	return ".avro"
}

func newFileStats(records []frame.Record, size int64) *frame.FileStats {
	stats := &frame.FileStats{
		RecordCount: len(records),
		SizeBytes:   size,
	}
	for _, r := range records {
		if r.CapturedAt.IsZero() {
			continue
		}
		if stats.FirstWriteTime.IsZero() || r.CapturedAt.Before(stats.FirstWriteTime) {
			stats.FirstWriteTime = r.CapturedAt
		}
		if r.CapturedAt.After(stats.LastWriteTime) {
			stats.LastWriteTime = r.CapturedAt
		}
	}
	if stats.FirstWriteTime.IsZero() {
		now := time.Now()
		stats.FirstWriteTime, stats.LastWriteTime = now, now
	}
	return stats
}
