// Package saver persists delivered frames.
//
// ZSL captures arrive through Callback, are copied out of the ring buffer
// while the pin is held, and are batched per session and kind until the
// rotation policy asks for a file. Bursts arrive through SaveBurst and are
// written as one file each. Every outcome is announced on the publisher.
package saver

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jittakal/zslring/internal/burst"
	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/internal/validator"
	"github.com/jittakal/zslring/pkg/buffer"
	"github.com/jittakal/zslring/pkg/capture"
	"github.com/jittakal/zslring/pkg/event"
	"github.com/jittakal/zslring/pkg/frame"
	"github.com/jittakal/zslring/pkg/storage"
)

// Ensure Saver can be handed to a burst session.
var _ burst.Sink = (*Saver)(nil)

// Failure stages reported in CaptureFailed events.
const (
	StageValidate = "validate"
	StageQueue    = "queue"
	StageEncode   = "encode"
	StageWrite    = "write"
)

// MetricsCollector defines metrics operations for the saver.
type MetricsCollector interface {
	IncCapturesPersisted(kind, status string)
	ObserveBatchRecords(kind string, records float64)
}

// Config contains saver configuration.
type Config struct {
	// SessionID tags every record. A random UUID is used when empty.
	SessionID string
	Format    frame.FileFormat
	// QueueSize bounds the ZSL captures waiting for Run.
	QueueSize int
	// FlushInterval is how often Run checks buffers for age based rotation.
	FlushInterval time.Duration
}

// Deps are the collaborators a Saver writes through.
type Deps struct {
	Writer    storage.Writer
	Router    storage.Router
	Policy    storage.RotationPolicy
	Buffers   buffer.Manager
	Validator *validator.RecordValidator
	Publisher event.Publisher
}

// Saver copies captured frames into records and writes them to storage.
type Saver struct {
	cfg       Config
	deps      Deps
	sessionID string
	logger    *slog.Logger
	metrics   MetricsCollector
	now       func() time.Time

	queue chan frame.Record
	// dropped carries captures rejected by a full queue to Run, which
	// publishes their failure events.
	dropped chan frame.Record
	seq     atomic.Int64
}

// New creates a saver.
func New(cfg Config, deps Deps, logger *slog.Logger, metrics MetricsCollector) *Saver {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.New().String()
	}
	if cfg.Format == "" {
		cfg.Format = frame.FormatParquet
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if deps.Publisher == nil {
		deps.Publisher = event.Nop{}
	}
	if deps.Validator == nil {
		deps.Validator = validator.NewRecordValidator(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Saver{
		cfg:       cfg,
		deps:      deps,
		sessionID: cfg.SessionID,
		logger:    logger.With("session_id", cfg.SessionID),
		metrics:   metrics,
		now:       time.Now,
		queue:     make(chan frame.Record, cfg.QueueSize),
		dropped:   make(chan frame.Record, cfg.QueueSize),
	}
}

// SessionID returns the session every record is tagged with.
func (s *Saver) SessionID() string {
	return s.sessionID
}

// ZSLName names the n-th ZSL capture of a session.
func ZSLName(n int, ts frame.Timestamp) string {
	return fmt.Sprintf("ZSL_CAPTURE_%d_%d", n, ts)
}

// Callback returns the capture callback for ZSL requests. It copies the
// frame and queues it for Run; it never blocks on storage or the publisher.
func (s *Saver) Callback() capture.Callback {
	return func(slot *frame.Slot) {
		n := int(s.seq.Add(1) - 1)
		rec := s.record(slot, frame.KindZSL, ZSLName(n, slot.Timestamp()), n)

		select {
		case s.queue <- rec:
		default:
			s.logger.Warn("capture queue full, dropping frame",
				"timestamp", rec.Timestamp,
				"name", rec.Name,
			)
			s.inc(rec.Kind, "dropped")
			rec.Image = nil
			select {
			case s.dropped <- rec:
			default:
			}
		}
	}
}

func (s *Saver) reportDropped(ctx context.Context, rec frame.Record) {
	s.fail(ctx, rec, StageQueue, fmt.Errorf("queue of %d captures is full", cap(s.queue)))
}

// record copies slot into a Record. The slot must be pinned or owned.
func (s *Saver) record(slot *frame.Slot, kind frame.Kind, name string, index int) frame.Record {
	rec := frame.Record{
		SessionID:  s.sessionID,
		Kind:       kind,
		Name:       name,
		Index:      index,
		Timestamp:  slot.Timestamp(),
		CapturedAt: s.now(),
	}
	if img := slot.Image(); img != nil {
		rec.Image = bytes.Clone(img.Data())
		rec.Format = img.Format()
		rec.Width = img.Width()
		rec.Height = img.Height()
	}
	if md := slot.Metadata(); md != nil {
		rec.FrameNumber = md.FrameNumber()
		rec.Metadata = md.Strings()
	}
	return rec
}

// Run persists queued captures and flushes aged batches until ctx is done.
// Captures still queued on return are buffered for the next Flush.
func (s *Saver) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drainQueue()
			s.logger.Info("context cancelled, stopping saver")
			return nil
		case rec := <-s.queue:
			s.persist(ctx, rec)
		case rec := <-s.dropped:
			s.reportDropped(ctx, rec)
		case <-ticker.C:
			s.flushDue(ctx)
		}
	}
}

func (s *Saver) drainQueue() {
	for {
		select {
		case rec := <-s.dropped:
			s.reportDropped(context.Background(), rec)
		case rec := <-s.queue:
			if err := s.deps.Validator.Validate(&rec); err != nil {
				s.rejected(context.Background(), rec, err)
				continue
			}
			if err := s.deps.Buffers.GetOrCreate(s.key(rec.Kind)).Add(rec); err != nil {
				s.logger.Warn("dropping queued capture", "name", rec.Name, "error", err)
				s.inc(rec.Kind, "dropped")
			}
		default:
			return
		}
	}
}

// persist validates rec, buffers it and writes the batch if it is due.
func (s *Saver) persist(ctx context.Context, rec frame.Record) {
	if err := s.deps.Validator.Validate(&rec); err != nil {
		s.rejected(ctx, rec, err)
		return
	}

	key := s.key(rec.Kind)
	buf := s.deps.Buffers.GetOrCreate(key)
	if err := buf.Add(rec); err != nil {
		if !stderrors.Is(err, errors.ErrBufferFull) {
			s.logger.Error("failed to buffer capture", "name", rec.Name, "error", err)
			s.inc(rec.Kind, "failed")
			s.fail(ctx, rec, StageWrite, err)
			return
		}
		_ = s.flush(ctx, key, buf)
		if err := buf.Add(rec); err != nil {
			s.inc(rec.Kind, "failed")
			s.fail(ctx, rec, StageWrite, err)
			return
		}
	}

	if s.deps.Policy.ShouldRotate(buf.Stats()) {
		_ = s.flush(ctx, key, buf)
	}
}

func (s *Saver) rejected(ctx context.Context, rec frame.Record, err error) {
	s.logger.Warn("invalid capture record",
		"timestamp", rec.Timestamp,
		"name", rec.Name,
		"error", err,
	)
	s.inc(rec.Kind, "invalid")
	s.fail(ctx, rec, StageValidate, err)
}

func (s *Saver) key(kind frame.Kind) frame.BatchKey {
	return frame.BatchKey{SessionID: s.sessionID, Kind: kind}
}

// flushDue writes every batch the rotation policy considers due.
func (s *Saver) flushDue(ctx context.Context) {
	for _, key := range s.deps.Buffers.Keys() {
		buf := s.deps.Buffers.GetOrCreate(key)
		if s.deps.Policy.ShouldRotate(buf.Stats()) {
			_ = s.flush(ctx, key, buf)
		}
	}
}

// Flush writes every non-empty batch regardless of the rotation policy.
func (s *Saver) Flush(ctx context.Context) error {
	var errs []error
	for _, key := range s.deps.Buffers.Keys() {
		if err := s.flush(ctx, key, s.deps.Buffers.GetOrCreate(key)); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", key, err))
		}
	}
	return stderrors.Join(errs...)
}

func (s *Saver) flush(ctx context.Context, key frame.BatchKey, buf buffer.Buffer) error {
	records := buf.Drain()
	if len(records) == 0 {
		return nil
	}
	if s.metrics != nil {
		s.metrics.ObserveBatchRecords(string(key.Kind), float64(len(records)))
	}

	result, err := s.write(ctx, key, records)
	if err != nil {
		stage := failureStage(err)
		for _, rec := range records {
			s.inc(rec.Kind, "failed")
			s.fail(ctx, rec, stage, err)
		}
		return err
	}

	savedAt := s.now().UTC()
	for _, rec := range records {
		s.inc(rec.Kind, "saved")
		s.publish(ctx, event.TypeCaptureSaved, rec.Kind, rec.Name, event.CaptureSaved{
			SessionID:   rec.SessionID,
			Kind:        string(rec.Kind),
			Name:        rec.Name,
			Timestamp:   int64(rec.Timestamp),
			FrameNumber: rec.FrameNumber,
			Path:        result.Location,
			Format:      string(s.cfg.Format),
			SizeBytes:   result.SizeBytes,
			SavedAt:     savedAt,
		})
	}
	return nil
}

// write routes records by the capture time of the first one.
func (s *Saver) write(ctx context.Context, key frame.BatchKey, records []frame.Record) (*storage.Result, error) {
	path := s.deps.Router.Route(key, records[0].CapturedAt.Unix())
	result, err := s.deps.Writer.Write(ctx, records, path, s.cfg.Format)
	if err != nil {
		s.logger.Error("failed to write to storage",
			"kind", key.Kind,
			"records", len(records),
			"path", path,
			"error", err,
		)
		return nil, err
	}
	s.logger.Info("wrote batch to storage",
		"kind", key.Kind,
		"records", len(records),
		"bytes", result.SizeBytes,
		"location", result.Location,
	)
	return result, nil
}

// SaveBurst writes a finished burst as one file and releases its frames.
func (s *Saver) SaveBurst(ctx context.Context, result *burst.Result) error {
	records := make([]frame.Record, 0, len(result.Frames))
	for i, slot := range result.Frames {
		name := burst.MediaItemName(burst.ArtifactBurst, result.ID, i, slot.Timestamp())
		rec := s.record(slot, frame.KindBurst, name, i)
		if err := slot.Release(); err != nil {
			s.logger.Warn("failed to release burst frame", "timestamp", slot.Timestamp(), "error", err)
		}
		if err := s.deps.Validator.Validate(&rec); err != nil {
			s.rejected(ctx, rec, err)
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return errors.ErrNoFrames
	}
	if s.metrics != nil {
		s.metrics.ObserveBatchRecords(string(frame.KindBurst), float64(len(records)))
	}

	stored, err := s.write(ctx, s.key(frame.KindBurst), records)
	if err != nil {
		stage := failureStage(err)
		for _, rec := range records {
			s.inc(rec.Kind, "failed")
			s.fail(ctx, rec, stage, err)
		}
		return err
	}

	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = rec.Name
		s.inc(rec.Kind, "saved")
	}
	s.publish(ctx, event.TypeBurstSaved, frame.KindBurst, result.Title, event.BurstSaved{
		SessionID: s.sessionID,
		BurstID:   result.ID,
		Title:     result.Title,
		Path:      stored.Location,
		Format:    string(s.cfg.Format),
		Frames:    len(records),
		Names:     names,
		SizeBytes: stored.SizeBytes,
		SavedAt:   s.now().UTC(),
	})
	return nil
}

func failureStage(err error) string {
	var storageErr *errors.StorageError
	if stderrors.As(err, &storageErr) && storageErr.Operation == "encode" {
		return StageEncode
	}
	return StageWrite
}

func (s *Saver) fail(ctx context.Context, rec frame.Record, stage string, err error) {
	s.publish(ctx, event.TypeCaptureFailed, rec.Kind, rec.Name, event.CaptureFailed{
		SessionID: rec.SessionID,
		Kind:      string(rec.Kind),
		Name:      rec.Name,
		Timestamp: int64(rec.Timestamp),
		Stage:     stage,
		Reason:    err.Error(),
		Retryable: errors.IsRetryable(err),
		FailedAt:  s.now().UTC(),
	})
}

func (s *Saver) publish(ctx context.Context, eventType string, kind frame.Kind, name string, data any) {
	subject := event.Subject(s.sessionID, string(kind), name)
	if err := s.deps.Publisher.Publish(ctx, eventType, subject, data); err != nil {
		s.logger.Warn("failed to publish event",
			"event_type", eventType,
			"subject", subject,
			"error", err,
		)
	}
}

func (s *Saver) inc(kind frame.Kind, status string) {
	if s.metrics != nil {
		s.metrics.IncCapturesPersisted(string(kind), status)
	}
}
