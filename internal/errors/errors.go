// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrBufferClosed     = errors.New("ring buffer is closed")
	ErrBufferFull       = errors.New("record buffer is full")
	ErrExecutorRejected = errors.New("executor rejected task")
	ErrExecutorClosed   = errors.New("executor is closed")
	ErrWriterClosed     = errors.New("storage writer is closed")
	ErrPublisherClosed  = errors.New("publisher is closed")
	ErrNoFrames         = errors.New("no frames to save")
	ErrBurstInProgress  = errors.New("burst already in progress")
	ErrNoBurst          = errors.New("no burst in progress")
	ErrConnectionLost   = errors.New("connection lost")
)

// ContractViolation reports a caller bug: a duplicate slot component, an
// eviction policy naming a non-resident victim, or a pin released twice.
// It is raised with panic and never returned as an error value.
type ContractViolation struct {
	Op        string
	Timestamp int64
	Reason    string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("contract violation: op=%s timestamp=%d: %s", e.Op, e.Timestamp, e.Reason)
}

// Violate panics with a ContractViolation.
func Violate(op string, timestamp int64, reason string) {
	panic(&ContractViolation{Op: op, Timestamp: timestamp, Reason: reason})
}

// DeliveryError represents a capture that was resolved but could not be delivered.
type DeliveryError struct {
	Timestamp int64
	Mode      string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery error: timestamp=%d mode=%s: %v", e.Timestamp, e.Mode, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ValidationError represents a capture record validation failure.
type ValidationError struct {
	Timestamp int64
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: timestamp=%d field=%s: %s",
		e.Timestamp, e.Field, e.Reason)
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	// A full executor queue drains on its own; a closed one never does.
	if errors.Is(err, ErrExecutorRejected) || errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create"
}

// IsRetryable determines if a DeliveryError is retryable.
func (e *DeliveryError) IsRetryable() bool {
	return IsRetryable(e.Err)
}
