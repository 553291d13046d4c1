// Package kafka publishes capture lifecycle events to Kafka as CloudEvents.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ event.Publisher = (*Publisher)(nil)

// Config contains publisher configuration.
type Config struct {
	BootstrapServers []string
	Topic            string
	ClientID         string
	Security         SecurityConfig
	DLQ              DLQConfig
}

// DLQConfig routes failure events to a dead letter topic named
// Topic + TopicSuffix.
type DLQConfig struct {
	Enabled     bool
	TopicSuffix string
}

// MetricsCollector defines metrics operations for the publisher.
type MetricsCollector interface {
	IncEventsPublished(eventType, status string)
	ObservePublishDuration(eventType string, duration float64)
}

// Publisher sends lifecycle events through a sarama sync producer.
type Publisher struct {
	producer sarama.SyncProducer
	config   Config
	logger   *slog.Logger
	metrics  MetricsCollector
	mu       sync.RWMutex
	closed   bool
}

// NewPublisher connects a sync producer to the configured brokers.
func NewPublisher(config Config, logger *slog.Logger, metrics MetricsCollector) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1
	if config.ClientID != "" {
		saramaConfig.ClientID = config.ClientID
	}

	if err := configureSecurity(saramaConfig, config.Security); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	producer, err := sarama.NewSyncProducer(config.BootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("kafka publisher created",
		"bootstrap_servers", config.BootstrapServers,
		"topic", config.Topic,
		"security_protocol", config.Security.Protocol,
	)

	return NewPublisherWithProducer(producer, config, logger, metrics), nil
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, config Config, logger *slog.Logger, metrics MetricsCollector) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		producer: producer,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

// NewEvent builds a CloudEvent carrying data as JSON.
func NewEvent(eventType, subject string, data any) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetSpecVersion(cloudevents.VersionV1)
	ce.SetID(uuid.New().String())
	ce.SetType(eventType)
	ce.SetSource(event.Source)
	ce.SetSubject(subject)
	ce.SetTime(time.Now().UTC())
	if err := ce.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return ce, fmt.Errorf("failed to set event data: %w", err)
	}
	return ce, nil
}

// Topic returns the topic events of eventType are sent to.
func (p *Publisher) Topic(eventType string) string {
	if eventType == event.TypeCaptureFailed && p.config.DLQ.Enabled {
		return p.config.Topic + p.config.DLQ.TopicSuffix
	}
	return p.config.Topic
}

// Publish sends data as a CloudEvent keyed by subject.
func (p *Publisher) Publish(ctx context.Context, eventType, subject string, data any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ErrPublisherClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	ce, err := NewEvent(eventType, subject, data)
	if err != nil {
		p.inc(eventType, "error")
		return err
	}
	body, err := json.Marshal(ce)
	if err != nil {
		p.inc(eventType, "error")
		return fmt.Errorf("failed to marshal CloudEvent: %w", err)
	}

	topic := p.Topic(eventType)
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(subject),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("ce_specversion"), Value: []byte(ce.SpecVersion())},
			{Key: []byte("ce_type"), Value: []byte(ce.Type())},
			{Key: []byte("ce_source"), Value: []byte(ce.Source())},
			{Key: []byte("ce_id"), Value: []byte(ce.ID())},
			{Key: []byte("content-type"), Value: []byte(event.ContentTypeJSON)},
		},
		Timestamp: ce.Time(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if p.metrics != nil {
		p.metrics.ObservePublishDuration(eventType, time.Since(start).Seconds())
	}
	if err != nil {
		p.inc(eventType, "error")
		p.logger.Error("failed to publish event",
			"error", err,
			"topic", topic,
			"event_id", ce.ID(),
			"event_type", eventType,
		)
		return fmt.Errorf("failed to send event %s: %w", ce.ID(), err)
	}

	p.inc(eventType, "success")
	p.logger.Debug("published event",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"event_id", ce.ID(),
		"event_type", eventType,
		"subject", subject,
	)
	return nil
}

// Close closes the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.logger.Info("closing kafka publisher")

	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Error("error closing producer", "error", err)
			return err
		}
	}
	return nil
}

func (p *Publisher) inc(eventType, status string) {
	if p.metrics != nil {
		p.metrics.IncEventsPublished(eventType, status)
	}
}
