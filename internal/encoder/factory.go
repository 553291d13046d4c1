package encoder

import (
	"fmt"

	"github.com/jittakal/zslring/pkg/encoder"
	"github.com/jittakal/zslring/pkg/frame"
)

// Factory creates encoders based on format and configuration.
type Factory struct {
	format      frame.FileFormat
	compression string
}

// NewFactory creates a new encoder factory.
func NewFactory(format frame.FileFormat, compression string) *Factory {
	return &Factory{
		format:      format,
		compression: compression,
	}
}

// CreateEncoder creates an encoder based on the configured format.
func (f *Factory) CreateEncoder() (encoder.Encoder, error) {
	switch f.format {
	case frame.FormatParquet:
		return NewParquetEncoder(f.compression), nil
	case frame.FormatAvro:
		return NewAvroEncoder(f.compression)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", f.format)
	}
}

// ParseFormat converts a configured format name to a FileFormat.
func ParseFormat(name string) (frame.FileFormat, error) {
	for _, f := range SupportedFormats() {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported file format: %s", name)
}

// SupportedFormats returns a list of supported file formats.
func SupportedFormats() []frame.FileFormat {
	return []frame.FileFormat{
		frame.FormatParquet,
		frame.FormatAvro,
	}
}

// SupportedCompressions returns supported compression codecs for a given format.
func SupportedCompressions(format frame.FileFormat) []string {
	switch format {
	case frame.FormatParquet:
		return []string{"uncompressed", "snappy", "gzip", "lz4", "zstd"}
	case frame.FormatAvro:
		return []string{"uncompressed", "gzip"}
	default:
		return []string{}
	}
}

// DefaultCompression returns the default compression for a format.
func DefaultCompression(format frame.FileFormat) string {
	switch format {
	case frame.FormatParquet:
		return "snappy"
	case frame.FormatAvro:
		return "gzip"
	default:
		return "uncompressed"
	}
}
