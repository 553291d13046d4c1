package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/jittakal/zslring/internal/encoder"
	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/frame"
	"github.com/jittakal/zslring/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*AzureWriter)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
}

// AzureWriter implements storage.Writer for Azure Blob Storage using
// shared-key authentication.
type AzureWriter struct {
	client         *azblob.Client
	containerName  string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
	mu             sync.Mutex
	closed         bool
}

// connectionString builds the shared-key connection string. A custom
// endpoint (Azurite) replaces the public endpoint suffix.
func connectionString(cfg AzureConfig) string {
	if cfg.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			cfg.AccountName, cfg.AccountKey, cfg.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		cfg.AccountName, cfg.AccountKey)
}

// NewAzureWriter creates a new Azure Blob storage writer.
func NewAzureWriter(
	cfg AzureConfig,
	format frame.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*AzureWriter, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Azure writer created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
		"format", format,
		"compression", compression,
	)

	return &AzureWriter{
		client:         client,
		containerName:  cfg.ContainerName,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes records and uploads them as one blob.
func (w *AzureWriter) Write(ctx context.Context, records []frame.Record, path string, format frame.FileFormat) (*storage.Result, error) {
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

	blobPath := objectKey(path, "wasbs", FileName(records, enc.FileExtension()))

	tempFile, stats, err := stage(enc, "azure", records)
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

	if _, err := w.client.UploadFile(ctx, w.containerName, blobPath, file, nil); err != nil {
		w.incError("upload")
		return nil, &errors.StorageError{Operation: "upload", Path: blobPath, Err: err}
	}

	duration := time.Since(startTime)

	w.logger.Info("wrote records to Azure Blob",
		"container", w.containerName,
		"blob", blobPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	if w.metrics != nil {
		kind := recordKind(records)
		w.metrics.IncFilesWritten(kind, string(format), "success")
		w.metrics.ObserveFileSize(kind, string(format), float64(stats.SizeBytes))
		w.metrics.ObserveStorageWriteDuration("azure", duration.Seconds())
	}

	return &storage.Result{
		Location:    fmt.Sprintf("wasbs://%s/%s", w.containerName, blobPath),
		RecordCount: stats.RecordCount,
		SizeBytes:   stats.SizeBytes,
	}, nil
}

func (w *AzureWriter) incError(operation string) {
	if w.metrics != nil {
		w.metrics.IncStorageErrors("azure", operation)
	}
}

// Close closes the Azure writer.
func (w *AzureWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.logger.Info("Azure writer closed")
	return nil
}
