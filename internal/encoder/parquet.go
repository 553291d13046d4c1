package encoder

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/jittakal/zslring/pkg/encoder"
	"github.com/jittakal/zslring/pkg/frame"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*ParquetEncoder)(nil)

// CaptureParquet is the Parquet row for one captured frame.
type CaptureParquet struct {
	SessionID   string            `parquet:"session_id,dict"`
	Kind        string            `parquet:"kind,dict"`
	Name        string            `parquet:"name"`
	Index       int32             `parquet:"index"`
	Timestamp   int64             `parquet:"timestamp"`
	FrameNumber int64             `parquet:"frame_number"`
	Format      string            `parquet:"format,dict"`
	Width       int32             `parquet:"width"`
	Height      int32             `parquet:"height"`
	Image       []byte            `parquet:"image"`
	Metadata    map[string]string `parquet:"metadata"`
	CapturedAt  time.Time         `parquet:"captured_at,timestamp(microsecond)"`
}

// ParquetEncoder implements encoder.Encoder for Apache Parquet columnar format.
// Supports compression codecs SNAPPY (default), GZIP, LZ4 and ZSTD.
type ParquetEncoder struct {
	compressionName string
}

// NewParquetEncoder creates a new Parquet encoder with specified compression.
func NewParquetEncoder(compression string) *ParquetEncoder {
	return &ParquetEncoder{
		compressionName: compression,
	}
}

// compressionCodec converts string compression name to parquet WriterOption.
func compressionCodec(compression string) parquet.WriterOption {
	switch compression {
	case "snappy", "SNAPPY":
		return parquet.Compression(&parquet.Snappy)
	case "gzip", "GZIP":
		return parquet.Compression(&parquet.Gzip)
	case "lz4", "LZ4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "zstd", "ZSTD":
		return parquet.Compression(&parquet.Zstd)
	case "uncompressed", "UNCOMPRESSED", "none", "NONE":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

// Encode writes records to a Parquet file.
func (e *ParquetEncoder) Encode(filePath string, records []frame.Record) (*frame.FileStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	rows := make([]CaptureParquet, len(records))
	for i, record := range records {
		rows[i] = convertToParquetRecord(record)
	}

	writer := parquet.NewGenericWriter[CaptureParquet](
		file,
		parquet.SchemaOf(new(CaptureParquet)),
		compressionCodec(e.compressionName),
		parquet.CreatedBy("zslring", "1.0", "0"),
	)

	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		file.Close()
		return nil, fmt.Errorf("failed to write records: %w", err)
	}

	if err := writer.Close(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to close writer: %w", err)
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

func convertToParquetRecord(record frame.Record) CaptureParquet {
	return CaptureParquet{
		SessionID:   record.SessionID,
		Kind:        string(record.Kind),
		Name:        record.Name,
		Index:       int32(record.Index),
		Timestamp:   int64(record.Timestamp),
		FrameNumber: record.FrameNumber,
		Format:      record.Format,
		Width:       int32(record.Width),
		Height:      int32(record.Height),
		Image:       record.Image,
		Metadata:    record.Metadata,
		CapturedAt:  record.CapturedAt,
	}
}

// Format returns the file format.
func (e *ParquetEncoder) Format() frame.FileFormat {
	return frame.FormatParquet
}

// FileExtension returns the file extension.
func (e *ParquetEncoder) FileExtension() string {
	return ".parquet"
}
