package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrBufferClosed", ErrBufferClosed},
		{"ErrBufferFull", ErrBufferFull},
		{"ErrExecutorRejected", ErrExecutorRejected},
		{"ErrExecutorClosed", ErrExecutorClosed},
		{"ErrWriterClosed", ErrWriterClosed},
		{"ErrPublisherClosed", ErrPublisherClosed},
		{"ErrNoFrames", ErrNoFrames},
		{"ErrBurstInProgress", ErrBurstInProgress},
		{"ErrNoBurst", ErrNoBurst},
		{"ErrConnectionLost", ErrConnectionLost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Fatalf("%s should not be nil", tt.name)
			}
			if tt.err.Error() == "" {
				t.Errorf("%s should have an error message", tt.name)
			}
		})
	}
}

func TestViolate(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Violate() did not panic")
		}
		cv, ok := r.(*ContractViolation)
		if !ok {
			t.Fatalf("panic value = %T, want *ContractViolation", r)
		}
		if cv.Op != "insert" || cv.Timestamp != 42 {
			t.Errorf("violation = %+v, want op=insert timestamp=42", cv)
		}
		if !strings.Contains(cv.Error(), "image already present") {
			t.Errorf("Error() = %q, want reason included", cv.Error())
		}
	}()

	Violate("insert", 42, "image already present")
}

func TestDeliveryError(t *testing.T) {
	err := &DeliveryError{Timestamp: 7, Mode: "next", Err: ErrExecutorRejected}

	if !errors.Is(err, ErrExecutorRejected) {
		t.Error("DeliveryError should wrap ErrExecutorRejected")
	}
	if !err.IsRetryable() {
		t.Error("rejected delivery should be retryable")
	}

	closed := &DeliveryError{Timestamp: 7, Mode: "next", Err: ErrExecutorClosed}
	if closed.IsRetryable() {
		t.Error("delivery to closed executor should not be retryable")
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Timestamp: 1234,
		Field:     "image",
		Reason:    "empty payload",
	}

	msg := err.Error()
	if !strings.Contains(msg, "timestamp=1234") || !strings.Contains(msg, "field=image") {
		t.Errorf("Error() = %q", msg)
	}
}

func TestStorageError(t *testing.T) {
	baseErr := errors.New("disk full")
	storageErr := &StorageError{
		Operation: "write",
		Path:      "/data/capture.parquet",
		Err:       baseErr,
	}

	if storageErr.Error() == "" {
		t.Error("StorageError should have an error message")
	}
	if !errors.Is(storageErr, baseErr) {
		t.Error("StorageError should wrap base error")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"connection lost", ErrConnectionLost, true},
		{"wrapped connection lost", fmt.Errorf("send: %w", ErrConnectionLost), true},
		{"executor rejected", ErrExecutorRejected, true},
		{"executor closed", ErrExecutorClosed, false},
		{"storage write", &StorageError{Operation: "write", Err: errors.New("x")}, true},
		{"storage upload", &StorageError{Operation: "upload", Err: errors.New("x")}, true},
		{"storage encode", &StorageError{Operation: "encode", Err: errors.New("x")}, false},
		{"wrapped storage", fmt.Errorf("save: %w", &StorageError{Operation: "create", Err: errors.New("x")}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
