package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/zslring/internal/buffer"
	"github.com/jittakal/zslring/internal/burst"
	"github.com/jittakal/zslring/internal/capture"
	"github.com/jittakal/zslring/internal/config"
	"github.com/jittakal/zslring/internal/config/dto"
	"github.com/jittakal/zslring/internal/encoder"
	"github.com/jittakal/zslring/internal/executor"
	"github.com/jittakal/zslring/internal/kafka"
	"github.com/jittakal/zslring/internal/observability"
	"github.com/jittakal/zslring/internal/ringbuffer"
	"github.com/jittakal/zslring/internal/saver"
	"github.com/jittakal/zslring/internal/server"
	"github.com/jittakal/zslring/internal/source"
	"github.com/jittakal/zslring/internal/storage"
	"github.com/jittakal/zslring/internal/validator"
	"github.com/jittakal/zslring/pkg/event"
	"github.com/jittakal/zslring/pkg/frame"
	storageapi "github.com/jittakal/zslring/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Load configuration
	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize observability
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:     cfg.Observability.Logging.Level,
		Format:    cfg.Observability.Logging.Format,
		Output:    cfg.Observability.Logging.Output,
		AddSource: cfg.Observability.Logging.AddSource,
		Service:   cfg.Application.Name,
		Version:   cfg.Application.Version,
	})
	logger.Info("starting zsl capture service",
		"environment", cfg.Application.Environment,
		"ring_capacity", cfg.Ring.Capacity(),
		"flash_mode", cfg.Capture.FlashMode,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Track cleanup functions, run in reverse order on exit
	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, func() error {
			if err := fn(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			if err := cleanupFuncs[i](); err != nil {
				logger.Error("cleanup failed", "error", err)
			}
		}
	}()

	// Get file format and compression (format-specific default if not specified)
	format, err := encoder.ParseFormat(cfg.Storage.Format)
	if err != nil {
		return err
	}
	compression := cfg.Storage.Compression
	if compression == "" {
		compression = encoder.DefaultCompression(format)
	}

	writer, err := newStorageWriter(cfg, format, compression, logger, metrics)
	if err != nil {
		return err
	}
	addCleanup("storage-writer", writer.Close)

	router := storage.NewRouter(
		getStorageProtocol(cfg.Storage.Backend),
		getStorageBucket(cfg),
		getStorageBasePath(cfg),
	)
	policy := storage.NewPolicy(storage.PolicyConfig{
		MaxFileSizeMB:      cfg.FileRotation.MaxFileSizeMB,
		MaxRecordsPerFile:  cfg.FileRotation.MaxRecordsPerFile,
		MaxDurationSeconds: cfg.FileRotation.MaxDurationSeconds,
	})
	bufferSizeBytes := int64(cfg.Processing.BufferSizeMB) * 1024 * 1024
	buffers := buffer.NewManager(bufferSizeBytes, cfg.FileRotation.MaxRecordsPerFile)

	// Lifecycle events go to Kafka when enabled
	var publisher event.Publisher = event.Nop{}
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := kafka.NewPublisher(kafka.Config{
			BootstrapServers: cfg.Kafka.BootstrapServers,
			Topic:            cfg.Kafka.Topic,
			ClientID:         cfg.Kafka.ClientID,
			Security: kafka.SecurityConfig{
				Protocol:           cfg.Kafka.SecurityProtocol,
				SASLMechanism:      cfg.Kafka.SASLMechanism,
				SASLUsername:       cfg.Kafka.SASLUsername,
				SASLPassword:       cfg.Kafka.SASLPassword,
				AWSRegion:          cfg.Kafka.AWSRegion,
				CACertFile:         cfg.Kafka.TLS.CACertFile,
				InsecureSkipVerify: cfg.Kafka.TLS.InsecureSkipVerify,
			},
			DLQ: kafka.DLQConfig{
				Enabled:     cfg.Kafka.DLQ.Enabled,
				TopicSuffix: cfg.Kafka.DLQ.TopicSuffix,
			},
		}, observability.Component(logger, "kafka"), metrics)
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		publisher = kafkaPublisher
		addCleanup("kafka-publisher", kafkaPublisher.Close)
	}

	captureSaver := saver.New(saver.Config{
		Format:        format,
		QueueSize:     cfg.Processing.QueueSize,
		FlushInterval: time.Duration(cfg.Processing.BufferFlushIntervalSec) * time.Second,
	}, saver.Deps{
		Writer:    writer,
		Router:    router,
		Policy:    policy,
		Buffers:   buffers,
		Validator: validator.NewRecordValidator(cfg.Processing.MaxImageBytes),
		Publisher: publisher,
	}, observability.Component(logger, "saver"), metrics)

	// Capture pipeline
	pool := executor.New(executor.Config{
		Workers:   cfg.Executor.Workers,
		QueueSize: cfg.Executor.QueueSize,
	}, observability.Component(logger, "executor"), metrics)

	manager := capture.NewManager(
		capture.Config{Capacity: cfg.Ring.Capacity()},
		pool,
		observability.Component(logger, "capture"),
		metrics,
		ringbuffer.WithMetrics("zsl", metrics),
	)
	manager.SetReadyListener(func(ready bool) {
		logger.Debug("capture readiness changed", "ready", ready)
	})

	setting, err := capture.ParseFlashSetting(cfg.Capture.FlashMode)
	if err != nil {
		return err
	}
	var autoFlash *capture.AutoFlashFilter
	if setting == capture.FlashAuto {
		autoFlash = capture.NewAutoFlashFilter(observability.Component(logger, "autoflash"))
		autoFlash.Watch(manager)
	}
	tracker := capture.NewDeliveryTracker()
	constraints := capture.ConstraintsFor(setting, tracker, autoFlash, cfg.Capture.RequestTag)
	if !cfg.Capture.UseConstraints {
		constraints = nil
	}

	burstPolicy, _ := burst.PolicyByName(cfg.Burst.Policy)
	session := burst.NewSession(burst.SessionConfig{
		MaxImages: cfg.Burst.MaxImages,
		Policy:    burstPolicy,
	}, captureSaver, observability.Component(logger, "burst"), metrics)

	dispatcher := source.NewDispatcher(manager, session)

	// Start HTTP server
	healthChecker := server.NewPipelineChecker(manager, session)
	httpServer := server.NewServer(
		server.Config{
			HealthPort:    cfg.Observability.Health.Port,
			MetricsPort:   cfg.Observability.Metrics.Port,
			LivenessPath:  cfg.Observability.Health.LivenessPath,
			ReadinessPath: cfg.Observability.Health.ReadinessPath,
			MetricsPath:   cfg.Observability.Metrics.Path,
		},
		healthChecker,
		&server.Control{
			Capturer:    manager,
			Callback:    tracker.Track(captureSaver.Callback()),
			Constraints: constraints,
			Burst:       session,
			SaveTimeout: cfg.Shutdown.GracePeriod(),
		},
		registry,
		logger,
	)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// Persistence loop
	saverCtx, stopSaver := context.WithCancel(context.Background())
	defer stopSaver()
	saverErrChan := make(chan error, 1)
	go func() {
		saverErrChan <- captureSaver.Run(saverCtx)
	}()

	// Frame source
	sourceCtx, stopSource := context.WithCancel(context.Background())
	defer stopSource()
	sourceErrChan := make(chan error, 1)
	if cfg.Source.Enabled {
		simulator := source.NewSimulator(source.Config{
			FrameInterval: cfg.Source.FrameInterval(),
			MaxJitter:     cfg.Source.MaxJitter(),
			Width:         cfg.Source.Width,
			Height:        cfg.Source.Height,
			Format:        cfg.Source.Format,
			PayloadBytes:  cfg.Source.PayloadBytes,
			RequestTag:    cfg.Capture.RequestTag,
		}, dispatcher, observability.Component(logger, "source"), metrics)
		go func() {
			sourceErrChan <- simulator.Run(sourceCtx)
		}()
	} else {
		close(sourceErrChan)
	}

	logger.Info("application started successfully", "session_id", captureSaver.SessionID())

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("received termination signal")
	case err := <-saverErrChan:
		logger.Error("persistence loop stopped", "error", err)
		return err
	}

	// Graceful shutdown
	logger.Info("initiating graceful shutdown")
	healthChecker.MarkStopping()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod())
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown incomplete", "error", err)
	}

	stopSource()
	if err := <-sourceErrChan; err != nil {
		logger.Warn("frame source stopped with error", "error", err)
	}

	if session.Active() {
		if _, err := session.Stop(shutdownCtx); err != nil {
			logger.Error("failed to save burst on shutdown", "error", err)
		}
	}
	session.Close()
	if autoFlash != nil {
		autoFlash.Stop()
	}

	if err := manager.Close(shutdownCtx); err != nil {
		logger.Warn("capture manager closed with frames pinned", "error", err)
	}
	if err := pool.Close(shutdownCtx); err != nil {
		logger.Warn("executor closed with tasks pending", "error", err)
	}

	// Drain queued captures, then write what is buffered
	stopSaver()
	if err := <-saverErrChan; err != nil {
		logger.Warn("persistence loop stopped with error", "error", err)
	}
	if err := captureSaver.Flush(shutdownCtx); err != nil {
		logger.Error("failed to flush buffered captures", "error", err)
	}

	logger.Info("application stopped successfully", "open_images", manager.OpenImages())
	return nil
}

func newStorageWriter(
	cfg *dto.ApplicationConfig,
	format frame.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics *observability.Metrics,
) (storageapi.Writer, error) {
	logger = observability.Component(logger, "storage")

	switch cfg.Storage.Backend {
	case "file":
		writer, err := storage.NewFileWriter(storage.FileConfig{
			BasePath: cfg.Storage.File.BasePath,
		}, format, compression, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create filesystem writer: %w", err)
		}
		return writer, nil
	case "s3":
		writer, err := storage.NewS3Writer(storage.S3Config{
			Bucket:       cfg.Storage.S3.Bucket,
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
			SSEEnabled:   cfg.Storage.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.Storage.S3.SSEKMSKeyID,
		}, format, compression, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 writer: %w", err)
		}
		return writer, nil
	case "azure":
		accountKey := cfg.Storage.Azure.AccountKey
		if accountKey == "" {
			accountKey = os.Getenv("AZURE_STORAGE_ACCOUNT_KEY")
		}
		writer, err := storage.NewAzureWriter(storage.AzureConfig{
			AccountName:   cfg.Storage.Azure.AccountName,
			AccountKey:    accountKey,
			ContainerName: cfg.Storage.Azure.Container,
			Endpoint:      cfg.Storage.Azure.Endpoint,
		}, format, compression, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Blob writer: %w", err)
		}
		return writer, nil
	case "gcs":
		credentialsJSON := cfg.Storage.GCS.CredentialsJSON
		if credentialsJSON == "" {
			credentialsJSON = os.Getenv("GCP_CREDENTIALS_JSON")
		}
		writer, err := storage.NewGCSWriter(storage.GCSConfig{
			Bucket:               cfg.Storage.GCS.Bucket,
			ProjectID:            cfg.Storage.GCS.ProjectID,
			CredentialsFile:      cfg.Storage.GCS.CredentialsFile,
			CredentialsJSON:      credentialsJSON,
			Endpoint:             cfg.Storage.GCS.Endpoint,
			UseDefaultCredential: cfg.Storage.GCS.UseDefaultCredential,
		}, format, compression, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS writer: %w", err)
		}
		return writer, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (supported: file, s3, azure, gcs)", cfg.Storage.Backend)
	}
}

func getStorageProtocol(backend string) string {
	switch backend {
	case "s3":
		return "s3"
	case "azure":
		return "wasbs"
	case "gcs":
		return "gs"
	default:
		return "file"
	}
}

func getStorageBucket(cfg *dto.ApplicationConfig) string {
	switch cfg.Storage.Backend {
	case "s3":
		return cfg.Storage.S3.Bucket
	case "azure":
		return cfg.Storage.Azure.Container
	case "gcs":
		return cfg.Storage.GCS.Bucket
	default:
		return "" // File backend uses basePath only, no bucket
	}
}

func getStorageBasePath(cfg *dto.ApplicationConfig) string {
	switch cfg.Storage.Backend {
	case "s3":
		return cfg.Storage.S3.BasePath
	case "gcs":
		return cfg.Storage.GCS.BasePath
	default:
		return "" // FileWriter resolves routed paths below its own base path
	}
}
