// Package encoder writes capture records to Parquet or Avro files.
//
// Each record carries the copied image bytes, its sensor timestamp, frame
// number and the capture metadata rendered as strings, so a single file
// holds one flushed ZSL batch or a complete burst.
//
//	format, _ := encoder.ParseFormat(cfg.Storage.Format)
//	enc, err := encoder.NewFactory(format, cfg.Storage.Compression).CreateEncoder()
//	stats, err := enc.Encode(path, records)
//
// # Parquet
//
// One row per frame with the image in a BYTE_ARRAY column and the metadata
// as a MAP<string,string>. Supported codecs: uncompressed, snappy (default),
// gzip, lz4 and zstd.
//
// # Avro
//
// OCF files with the CaptureRecord schema. gzip wraps the whole container
// and changes the extension to .avro.gz.
package encoder
