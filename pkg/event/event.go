// Package event defines the capture lifecycle events announced after frames
// are persisted, and the publisher contract that carries them.
//
// Events are sent as CloudEvents 1.0 with a JSON data payload.
package event

import (
	"context"
	"fmt"
	"time"
)

// Event type and source constants.
const (
	TypeCaptureSaved  = "io.zslring.capture.saved"
	TypeCaptureFailed = "io.zslring.capture.failed"
	TypeBurstSaved    = "io.zslring.burst.saved"

	Source = "zslring"

	// CloudEvents content type
	ContentTypeJSON = "application/json"
)

// CaptureSaved reports a single ZSL frame written to storage.
type CaptureSaved struct {
	SessionID   string    `json:"sessionId"`
	Kind        string    `json:"kind"`
	Name        string    `json:"name"`
	Timestamp   int64     `json:"timestamp"`
	FrameNumber int64     `json:"frameNumber"`
	Path        string    `json:"path"`
	Format      string    `json:"format"`
	SizeBytes   int64     `json:"sizeBytes"`
	SavedAt     time.Time `json:"savedAt"`
}

// CaptureFailed reports a frame that could not be persisted.
type CaptureFailed struct {
	SessionID string    `json:"sessionId"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Timestamp int64     `json:"timestamp"`
	Stage     string    `json:"stage"` // validate, queue, encode, write
	Reason    string    `json:"reason"`
	Retryable bool      `json:"retryable"`
	FailedAt  time.Time `json:"failedAt"`
}

// BurstSaved reports a burst written to storage as one file.
type BurstSaved struct {
	SessionID string    `json:"sessionId"`
	BurstID   int       `json:"burstId"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	Format    string    `json:"format"`
	Frames    int       `json:"frames"`
	Names     []string  `json:"names"`
	SizeBytes int64     `json:"sizeBytes"`
	SavedAt   time.Time `json:"savedAt"`
}

// Publisher announces lifecycle events.
type Publisher interface {
	// Publish sends data as an event of eventType about subject.
	Publish(ctx context.Context, eventType, subject string, data any) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Subject returns the CloudEvents subject for an item of a session,
// in the form "sessions/<session>/<kind>/<name>".
func Subject(sessionID, kind, name string) string {
	return fmt.Sprintf("sessions/%s/%s/%s", sessionID, kind, name)
}

// Nop is a Publisher that drops every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, string, string, any) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
