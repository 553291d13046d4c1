package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. It satisfies the MetricsCollector
// interface of every package in the pipeline.
type Metrics struct {
	// Ring buffer metrics
	RingResident  *prometheus.GaugeVec
	RingPinned    *prometheus.GaugeVec
	RingSwaps     *prometheus.CounterVec
	RingEvictions *prometheus.CounterVec

	// Capture metrics
	CaptureRequests    *prometheus.CounterVec
	CaptureLatency     *prometheus.HistogramVec
	OpenImages         prometheus.Gauge
	ExecutorRejections prometheus.Counter
	ExecutorQueueDepth prometheus.Gauge
	FramesGenerated    prometheus.Counter

	// Burst metrics
	BurstFrames *prometheus.CounterVec

	// Persistence metrics
	CapturesPersisted    *prometheus.CounterVec
	BatchRecords         *prometheus.HistogramVec
	FilesWritten         *prometheus.CounterVec
	StorageWriteDuration *prometheus.HistogramVec
	FileSize             *prometheus.HistogramVec
	StorageErrors        *prometheus.CounterVec

	// Publisher metrics
	EventsPublished *prometheus.CounterVec
	PublishDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Ring buffer metrics
		RingResident: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ring_resident_slots",
				Help: "Number of slots resident in the ring buffer",
			},
			[]string{"ring"},
		),
		RingPinned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ring_pinned_slots",
				Help: "Number of outstanding pins on ring buffer slots",
			},
			[]string{"ring"},
		),
		RingSwaps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ring_swaps_total",
				Help: "Total number of ring buffer swap operations by result",
			},
			[]string{"ring", "result"},
		),
		RingEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ring_evictions_total",
				Help: "Total number of slots evicted from the ring buffer",
			},
			[]string{"ring"},
		),

		// Capture metrics
		CaptureRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capture_requests_total",
				Help: "Total number of capture requests by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		CaptureLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capture_delivery_latency_seconds",
				Help:    "Time from capture request to callback delivery",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"mode"},
		),
		OpenImages: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capture_open_images",
				Help: "Images received and not yet released",
			},
		),
		ExecutorRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "executor_rejections_total",
				Help: "Total number of tasks rejected by the capture executor",
			},
		),
		ExecutorQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "executor_queue_depth",
				Help: "Tasks waiting in the capture executor queue",
			},
		),
		FramesGenerated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "source_frames_generated_total",
				Help: "Total number of frames generated by the frame source",
			},
		),

		// Burst metrics
		BurstFrames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burst_frames_total",
				Help: "Total number of burst frames by insert result",
			},
			[]string{"result"},
		),

		// Persistence metrics
		CapturesPersisted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "captures_persisted_total",
				Help: "Total number of captured frames by kind and persistence status",
			},
			[]string{"kind", "status"},
		),
		BatchRecords: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capture_batch_records",
				Help:    "Number of records written per file",
				Buckets: prometheus.ExponentialBuckets(1, 2, 8),
			},
			[]string{"kind"},
		),
		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_written_total",
				Help: "Total number of files written to storage",
			},
			[]string{"kind", "format", "status"},
		),
		StorageWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_write_duration_seconds",
				Help:    "Duration of complete storage write operations including encoding",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_size_bytes",
				Help:    "Size of files written to storage",
				Buckets: prometheus.ExponentialBuckets(64*1024, 2, 12), // 64KB to 128MB
			},
			[]string{"kind", "format"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),

		// Publisher metrics
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_published_total",
				Help: "Total number of lifecycle events published",
			},
			[]string{"type", "status"},
		),
		PublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "event_publish_duration_seconds",
				Help:    "Duration of lifecycle event publishing",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"type"},
		),
	}
}

// SetRingResident sets the resident slot gauge.
func (m *Metrics) SetRingResident(name string, count int) {
	m.RingResident.WithLabelValues(name).Set(float64(count))
}

// SetRingPinned sets the pin gauge.
func (m *Metrics) SetRingPinned(name string, count int) {
	m.RingPinned.WithLabelValues(name).Set(float64(count))
}

// IncRingSwaps increments the swap counter.
func (m *Metrics) IncRingSwaps(name string, result string) {
	m.RingSwaps.WithLabelValues(name, result).Inc()
}

// IncRingEvictions increments the eviction counter.
func (m *Metrics) IncRingEvictions(name string) {
	m.RingEvictions.WithLabelValues(name).Inc()
}

// IncCaptureRequests increments capture requests counter.
func (m *Metrics) IncCaptureRequests(mode, outcome string) {
	m.CaptureRequests.WithLabelValues(mode, outcome).Inc()
}

// ObserveCaptureLatency observes delivery latency.
func (m *Metrics) ObserveCaptureLatency(mode string, seconds float64) {
	m.CaptureLatency.WithLabelValues(mode).Observe(seconds)
}

// SetOpenImages sets the open image gauge.
func (m *Metrics) SetOpenImages(count int) {
	m.OpenImages.Set(float64(count))
}

// IncExecutorRejections increments executor rejections counter.
func (m *Metrics) IncExecutorRejections() {
	m.ExecutorRejections.Inc()
}

// SetExecutorQueueDepth sets the executor queue gauge.
func (m *Metrics) SetExecutorQueueDepth(depth int) {
	m.ExecutorQueueDepth.Set(float64(depth))
}

// IncFramesGenerated increments the generated frames counter.
func (m *Metrics) IncFramesGenerated() {
	m.FramesGenerated.Inc()
}

// IncBurstFrames increments the burst frame counter.
func (m *Metrics) IncBurstFrames(result string) {
	m.BurstFrames.WithLabelValues(result).Inc()
}

// IncCapturesPersisted increments persisted captures counter.
func (m *Metrics) IncCapturesPersisted(kind, status string) {
	m.CapturesPersisted.WithLabelValues(kind, status).Inc()
}

// ObserveBatchRecords observes records per file.
func (m *Metrics) ObserveBatchRecords(kind string, records float64) {
	m.BatchRecords.WithLabelValues(kind).Observe(records)
}

// IncFilesWritten increments files written counter.
func (m *Metrics) IncFilesWritten(kind, format, status string) {
	m.FilesWritten.WithLabelValues(kind, format, status).Inc()
}

// ObserveFileSize observes file size.
func (m *Metrics) ObserveFileSize(kind, format string, size float64) {
	m.FileSize.WithLabelValues(kind, format).Observe(size)
}

// ObserveStorageWriteDuration observes storage write duration.
func (m *Metrics) ObserveStorageWriteDuration(backend string, duration float64) {
	m.StorageWriteDuration.WithLabelValues(backend).Observe(duration)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// IncEventsPublished increments published events counter.
func (m *Metrics) IncEventsPublished(eventType, status string) {
	m.EventsPublished.WithLabelValues(eventType, status).Inc()
}

// ObservePublishDuration observes publish duration.
func (m *Metrics) ObservePublishDuration(eventType string, duration float64) {
	m.PublishDuration.WithLabelValues(eventType).Observe(duration)
}
