// Package config loads the service configuration from YAML and APP_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/zslring/internal/burst"
	"github.com/jittakal/zslring/internal/capture"
	"github.com/jittakal/zslring/internal/config/dto"
	"github.com/jittakal/zslring/internal/encoder"
	"github.com/jittakal/zslring/pkg/frame"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand ${VAR} references in string values
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "zslring")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Capture pipeline defaults
	l.v.SetDefault("ring.max_images", 10)
	l.v.SetDefault("capture.flash_mode", "off")
	l.v.SetDefault("capture.request_tag", "")
	l.v.SetDefault("capture.use_constraints", true)
	l.v.SetDefault("executor.workers", 2)
	l.v.SetDefault("executor.queue_size", 16)
	l.v.SetDefault("burst.max_images", 10)
	l.v.SetDefault("burst.policy", "oldest")

	// Source defaults
	l.v.SetDefault("source.enabled", true)
	l.v.SetDefault("source.frame_interval_ms", 33)
	l.v.SetDefault("source.max_jitter_ms", 5)
	l.v.SetDefault("source.width", 640)
	l.v.SetDefault("source.height", 480)
	l.v.SetDefault("source.format", "JPEG")
	l.v.SetDefault("source.payload_bytes", 4096)

	// Storage defaults
	l.v.SetDefault("storage.backend", "file")
	l.v.SetDefault("storage.format", "parquet")
	l.v.SetDefault("storage.compression", "")
	l.v.SetDefault("storage.file.base_path", "./captures")
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.sse_enabled", true)

	// File rotation defaults
	l.v.SetDefault("file_rotation.max_file_size_mb", 64)
	l.v.SetDefault("file_rotation.max_records_per_file", 32)
	l.v.SetDefault("file_rotation.max_duration_seconds", 30)

	// Processing defaults
	l.v.SetDefault("processing.buffer_size_mb", 128)
	l.v.SetDefault("processing.buffer_flush_interval_seconds", 5)
	l.v.SetDefault("processing.queue_size", 64)
	l.v.SetDefault("processing.max_image_bytes", 32*1024*1024)

	// Kafka defaults
	l.v.SetDefault("kafka.enabled", false)
	l.v.SetDefault("kafka.topic", "zsl.captures")
	l.v.SetDefault("kafka.client_id", "zslring")
	l.v.SetDefault("kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("kafka.dlq.enabled", true)
	l.v.SetDefault("kafka.dlq.topic_suffix", "-dlq")

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	// Capture pipeline validation
	if config.Ring.Capacity() < 1 {
		return fmt.Errorf("ring.max_images must be at least 3, got %d", config.Ring.MaxImages)
	}
	if _, err := capture.ParseFlashSetting(config.Capture.FlashMode); err != nil {
		return fmt.Errorf("capture.flash_mode: %w", err)
	}
	if config.Executor.Workers < 1 {
		return errors.New("executor.workers must be positive")
	}
	if config.Executor.QueueSize < 1 {
		return errors.New("executor.queue_size must be positive")
	}
	if config.Burst.MaxImages < 2 {
		return fmt.Errorf("burst.max_images must be at least 2, got %d", config.Burst.MaxImages)
	}
	if _, ok := burst.PolicyByName(config.Burst.Policy); !ok {
		return fmt.Errorf("unsupported burst policy: %s", config.Burst.Policy)
	}
	if config.Source.Enabled && config.Source.FrameIntervalMS < 1 {
		return errors.New("source.frame_interval_ms must be positive")
	}

	// Storage validation
	switch config.Storage.Backend {
	case "s3":
		if config.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required for S3 backend")
		}
		if config.Storage.S3.Region == "" {
			return errors.New("storage.s3.region is required for S3 backend")
		}
	case "azure":
		if config.Storage.Azure.AccountName == "" {
			return errors.New("storage.azure.account_name is required for Azure backend")
		}
		if config.Storage.Azure.Container == "" {
			return errors.New("storage.azure.container is required for Azure backend")
		}
	case "gcs":
		if config.Storage.GCS.Bucket == "" {
			return errors.New("storage.gcs.bucket is required for GCS backend")
		}
	case "file":
		if config.Storage.File.BasePath == "" {
			return errors.New("storage.file.base_path is required for file backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", config.Storage.Backend)
	}

	// Format validation
	format, err := encoder.ParseFormat(config.Storage.Format)
	if err != nil {
		return fmt.Errorf("unsupported storage format: %s", config.Storage.Format)
	}
	if c := config.Storage.Compression; c != "" && !supportsCompression(format, c) {
		return fmt.Errorf("unsupported %s compression: %s", format, c)
	}

	// Kafka validation
	if config.Kafka.Enabled {
		if len(config.Kafka.BootstrapServers) == 0 {
			return errors.New("kafka.bootstrap_servers is required when kafka is enabled")
		}
		if config.Kafka.Topic == "" {
			return errors.New("kafka.topic is required when kafka is enabled")
		}
	}

	// Port validation
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}

func supportsCompression(format frame.FileFormat, compression string) bool {
	for _, c := range encoder.SupportedCompressions(format) {
		if strings.EqualFold(c, compression) {
			return true
		}
	}
	return false
}
