package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jittakal/zslring/internal/encoder"
	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/frame"
	pkgstorage "github.com/jittakal/zslring/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Writer = (*GCSWriter)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// GCSWriter implements storage.Writer for Google Cloud Storage.
type GCSWriter struct {
	client         *storage.Client
	bucket         string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
	mu             sync.Mutex
	closed         bool
}

// gcsClientOptions selects the authentication method. Default credentials
// win over JSON, and JSON over a credentials file.
func gcsClientOptions(cfg GCSConfig) ([]option.ClientOption, string) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	switch {
	case cfg.UseDefaultCredential:
		return opts, "default"
	case cfg.CredentialsJSON != "":
		return append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))), "json"
	case cfg.CredentialsFile != "":
		return append(opts, option.WithCredentialsFile(cfg.CredentialsFile)), "file"
	default:
		return opts, "default"
	}
}

// NewGCSWriter creates a new Google Cloud Storage writer.
func NewGCSWriter(
	cfg GCSConfig,
	format frame.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*GCSWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	clientOpts, auth := gcsClientOptions(cfg)
	client, err := storage.NewClient(context.Background(), clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger.Info("GCS writer created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
		"auth", auth,
		"format", format,
		"compression", compression,
	)

	return &GCSWriter{
		client:         client,
		bucket:         cfg.Bucket,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes records and uploads them as one object.
func (w *GCSWriter) Write(
	ctx context.Context,
	records []frame.Record,
	path string,
	format frame.FileFormat,
) (*pkgstorage.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, errors.ErrWriterClosed
	}
	if len(records) == 0 {
		return nil, errors.ErrNoFrames
	}

	startTime := time.Now()

	enc, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		w.incError("encoder_create")
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	objectPath := objectKey(path, "gs", FileName(records, enc.FileExtension()))

	tempFile, stats, err := stage(enc, "gcs", records)
	if err != nil {
		w.incError("encode")
		return nil, err
	}
	defer os.Remove(tempFile)

	file, err := os.Open(tempFile)
	if err != nil {
		w.incError("file_open")
		return nil, fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	gcsWriter := w.client.Bucket(w.bucket).Object(objectPath).NewWriter(ctx)
	gcsWriter.ContentType = contentType(format)
	gcsWriter.Metadata = map[string]string{
		"session_id": records[0].SessionID,
		"kind":       recordKind(records),
	}

	bytesWritten, err := io.Copy(gcsWriter, file)
	if err != nil {
		w.incError("upload")
		gcsWriter.Close()
		return nil, &errors.StorageError{Operation: "upload", Path: objectPath, Err: err}
	}

	if err := gcsWriter.Close(); err != nil {
		w.incError("close")
		return nil, &errors.StorageError{Operation: "upload", Path: objectPath, Err: err}
	}

	duration := time.Since(startTime)

	w.logger.Info("wrote records to GCS",
		"bucket", w.bucket,
		"object", objectPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"bytes_written", bytesWritten,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	if w.metrics != nil {
		kind := recordKind(records)
		w.metrics.IncFilesWritten(kind, string(format), "success")
		w.metrics.ObserveFileSize(kind, string(format), float64(stats.SizeBytes))
		w.metrics.ObserveStorageWriteDuration("gcs", duration.Seconds())
	}

	return &pkgstorage.Result{
		Location:    fmt.Sprintf("gs://%s/%s", w.bucket, objectPath),
		RecordCount: stats.RecordCount,
		SizeBytes:   stats.SizeBytes,
	}, nil
}

func contentType(format frame.FileFormat) string {
	if format == frame.FormatAvro {
		return "application/avro"
	}
	return "application/octet-stream"
}

func (w *GCSWriter) incError(operation string) {
	if w.metrics != nil {
		w.metrics.IncStorageErrors("gcs", operation)
	}
}

// Close closes the GCS writer.
func (w *GCSWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.logger.Info("closing GCS writer")
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}
