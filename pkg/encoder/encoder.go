// Package encoder defines interfaces for encoding capture records to file formats.
package encoder

import "github.com/jittakal/zslring/pkg/frame"

// Encoder encodes records to a specific file format.
type Encoder interface {
	// Encode writes records to a file and returns file statistics.
	Encode(filePath string, records []frame.Record) (*frame.FileStats, error)

	// Format returns the file format this encoder produces.
	Format() frame.FileFormat

	// FileExtension returns the file extension (e.g., ".parquet", ".avro").
	FileExtension() string
}
