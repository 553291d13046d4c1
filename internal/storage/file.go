package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jittakal/zslring/internal/encoder"
	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/frame"
	"github.com/jittakal/zslring/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*FileWriter)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileWriter implements storage.Writer for local filesystem storage.
// Routed paths are resolved below BasePath.
type FileWriter struct {
	basePath       string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
	mu             sync.Mutex
	closed         bool
}

// NewFileWriter creates a new filesystem storage writer.
func NewFileWriter(
	config FileConfig,
	format frame.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileWriter, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("filesystem writer created",
		"base_path", config.BasePath,
		"format", format,
		"compression", compression,
	)

	return &FileWriter{
		basePath:       config.BasePath,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes records into one file below the routed directory.
func (w *FileWriter) Write(
	ctx context.Context,
	records []frame.Record,
	path string,
	format frame.FileFormat,
) (*storage.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, errors.ErrWriterClosed
	}
	if len(records) == 0 {
		return nil, errors.ErrNoFrames
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	startTime := time.Now()

	fileEncoder, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		w.incError("encoder_create")
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	dir := filepath.Join(w.basePath, strings.TrimPrefix(path, "file://"))
	fullPath := filepath.Join(dir, FileName(records, fileEncoder.FileExtension()))

	if err := os.MkdirAll(dir, 0755); err != nil {
		w.incError("mkdir")
		return nil, &errors.StorageError{Operation: "create", Path: dir, Err: err}
	}

	stats, err := fileEncoder.Encode(fullPath, records)
	if err != nil {
		w.incError("encode")
		return nil, &errors.StorageError{Operation: "write", Path: fullPath, Err: err}
	}

	duration := time.Since(startTime)

	w.logger.Info("wrote records to file",
		"path", fullPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	if w.metrics != nil {
		kind := recordKind(records)
		w.metrics.IncFilesWritten(kind, string(format), "success")
		w.metrics.ObserveFileSize(kind, string(format), float64(stats.SizeBytes))
		w.metrics.ObserveStorageWriteDuration("file", duration.Seconds())
	}

	return &storage.Result{
		Location:    "file://" + fullPath,
		RecordCount: stats.RecordCount,
		SizeBytes:   stats.SizeBytes,
	}, nil
}

func (w *FileWriter) incError(operation string) {
	if w.metrics != nil {
		w.metrics.IncStorageErrors("file", operation)
	}
}

// Close closes the writer.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.logger.Info("closing filesystem writer")
	return nil
}
