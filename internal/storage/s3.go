package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/zslring/internal/encoder"
	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/frame"
	"github.com/jittakal/zslring/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*S3Writer)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// S3Writer implements storage.Writer for AWS S3 storage with multipart
// upload and optional server-side encryption.
type S3Writer struct {
	client         *s3.Client
	uploader       *manager.Uploader
	bucket         string
	sseEnabled     bool
	sseKMSKeyID    string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
	mu             sync.Mutex
	closed         bool
}

// NewS3Writer creates a new S3 storage writer.
func NewS3Writer(
	cfg S3Config,
	format frame.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*S3Writer, error) {
	awsConfig, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 5
	})

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("S3 writer created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"format", format,
		"compression", compression,
		"sse_enabled", cfg.SSEEnabled,
	)

	return &S3Writer{
		client:         s3Client,
		uploader:       uploader,
		bucket:         cfg.Bucket,
		sseEnabled:     cfg.SSEEnabled,
		sseKMSKeyID:    cfg.SSEKMSKeyID,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes records and uploads them as one object.
func (w *S3Writer) Write(
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

	startTime := time.Now()

	fileEncoder, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		w.incError("encoder_create")
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	key := objectKey(path, "s3", FileName(records, fileEncoder.FileExtension()))

	tempFile, stats, err := stage(fileEncoder, "s3", records)
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

	result, err := w.uploader.Upload(ctx, w.putObjectInput(key, file))
	if err != nil {
		w.incError("upload")
		return nil, &errors.StorageError{Operation: "upload", Path: key, Err: err}
	}

	duration := time.Since(startTime)

	w.logger.Info("wrote records to S3",
		"bucket", w.bucket,
		"key", key,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"location", result.Location,
		"total_duration_ms", duration.Milliseconds(),
	)

	if w.metrics != nil {
		kind := recordKind(records)
		w.metrics.IncFilesWritten(kind, string(format), "success")
		w.metrics.ObserveFileSize(kind, string(format), float64(stats.SizeBytes))
		w.metrics.ObserveStorageWriteDuration("s3", duration.Seconds())
	}

	return &storage.Result{
		Location:    fmt.Sprintf("s3://%s/%s", w.bucket, key),
		RecordCount: stats.RecordCount,
		SizeBytes:   stats.SizeBytes,
	}, nil
}

func (w *S3Writer) putObjectInput(key string, body *os.File) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   body,
	}

	if w.sseEnabled {
		if w.sseKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(w.sseKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}
	return input
}

func (w *S3Writer) incError(operation string) {
	if w.metrics != nil {
		w.metrics.IncStorageErrors("s3", operation)
	}
}

// Close closes the S3 writer.
func (w *S3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.logger.Info("closing S3 writer")
	return nil
}
