package dto

import (
	"fmt"
	"time"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Ring          RingConfig          `mapstructure:"ring"`
	Capture       CaptureConfig       `mapstructure:"capture"`
	Executor      ExecutorConfig      `mapstructure:"executor"`
	Burst         BurstConfig         `mapstructure:"burst"`
	Source        SourceConfig        `mapstructure:"source"`
	Storage       StorageConfig       `mapstructure:"storage"`
	FileRotation  FileRotationConfig  `mapstructure:"file_rotation"`
	Processing    ProcessingConfig    `mapstructure:"processing"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// RingConfig sizes the ZSL frame ring.
type RingConfig struct {
	// MaxImages is the number of images the frame source can have open at
	// once. Two are reserved for in-flight frames, so the ring keeps
	// MaxImages-2 unpinned slots.
	MaxImages int `mapstructure:"max_images"`
}

// Capacity returns the number of unpinned slots the ring keeps.
func (c RingConfig) Capacity() int {
	return c.MaxImages - 2
}

// CaptureConfig contains ZSL capture settings
type CaptureConfig struct {
	FlashMode  string `mapstructure:"flash_mode"`
	RequestTag string `mapstructure:"request_tag"`
	// UseConstraints applies the ZSL frame checks to every capture.
	UseConstraints bool `mapstructure:"use_constraints"`
}

// ExecutorConfig sizes the capture callback pool.
type ExecutorConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// BurstConfig contains burst capture settings
type BurstConfig struct {
	MaxImages int    `mapstructure:"max_images"`
	Policy    string `mapstructure:"policy"`
}

// SourceConfig configures the frame simulator.
type SourceConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	FrameIntervalMS int    `mapstructure:"frame_interval_ms"`
	MaxJitterMS     int    `mapstructure:"max_jitter_ms"`
	Width           int    `mapstructure:"width"`
	Height          int    `mapstructure:"height"`
	Format          string `mapstructure:"format"`
	PayloadBytes    int    `mapstructure:"payload_bytes"`
}

// FrameInterval returns the frame period.
func (c SourceConfig) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMS) * time.Millisecond
}

// MaxJitter returns the delivery jitter bound.
func (c SourceConfig) MaxJitter() time.Duration {
	return time.Duration(c.MaxJitterMS) * time.Millisecond
}

// StorageConfig contains storage backend configuration
type StorageConfig struct {
	Backend     string      `mapstructure:"backend"`
	Format      string      `mapstructure:"format"`
	Compression string      `mapstructure:"compression"`
	S3          S3Config    `mapstructure:"s3"`
	Azure       AzureConfig `mapstructure:"azure"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	File        FileConfig  `mapstructure:"file"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	BasePath     string `mapstructure:"base_path"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	BasePath             string `mapstructure:"base_path"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	Endpoint             string `mapstructure:"endpoint"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// FileRotationConfig contains file rotation settings
type FileRotationConfig struct {
	MaxFileSizeMB      int64 `mapstructure:"max_file_size_mb"`
	MaxRecordsPerFile  int   `mapstructure:"max_records_per_file"`
	MaxDurationSeconds int   `mapstructure:"max_duration_seconds"`
}

// ProcessingConfig contains persistence settings
type ProcessingConfig struct {
	BufferSizeMB           int `mapstructure:"buffer_size_mb"`
	BufferFlushIntervalSec int `mapstructure:"buffer_flush_interval_seconds"`
	QueueSize              int `mapstructure:"queue_size"`
	MaxImageBytes          int `mapstructure:"max_image_bytes"`
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	Enabled          bool      `mapstructure:"enabled"`
	BootstrapServers []string  `mapstructure:"bootstrap_servers"`
	Topic            string    `mapstructure:"topic"`
	ClientID         string    `mapstructure:"client_id"`
	SecurityProtocol string    `mapstructure:"security_protocol"`
	SASLMechanism    string    `mapstructure:"sasl_mechanism"`
	SASLUsername     string    `mapstructure:"sasl_username"`
	SASLPassword     string    `mapstructure:"sasl_password"`
	AWSRegion        string    `mapstructure:"aws_region"`
	TLS              TLSConfig `mapstructure:"tls"`
	DLQ              DLQConfig `mapstructure:"dlq"`
}

// TLSConfig contains broker TLS settings
type TLSConfig struct {
	CACertFile         string `mapstructure:"ca_cert_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// DLQConfig contains dead letter queue configuration
type DLQConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TopicSuffix string `mapstructure:"topic_suffix"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	AddSource bool   `mapstructure:"add_source"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port          int    `mapstructure:"port"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
}

// GracePeriod returns the shutdown grace period.
func (c ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if c.Ring.Capacity() < 1 {
		return fmt.Errorf("ring max images must be at least 3")
	}
	if c.Burst.MaxImages < 2 {
		return fmt.Errorf("burst max images must be at least 2")
	}
	if c.Storage.Backend == "" {
		return fmt.Errorf("storage backend is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.BootstrapServers) == 0 {
		return fmt.Errorf("kafka bootstrap servers are required")
	}
	return nil
}

// Validate validates S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// Validate validates Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.Container == "" {
		return fmt.Errorf("azure container is required")
	}
	return nil
}

// Validate validates GCS configuration.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket is required")
	}
	return nil
}

// Validate validates file configuration.
func (c *FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("file base path is required")
	}
	return nil
}
