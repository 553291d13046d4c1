package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		writeJSON(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
// Readiness probes indicate if the application can handle traffic.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		writeJSON(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}, logger)
	}
}

// ReadySource reports whether a complete frame is available for capture.
type ReadySource interface {
	Ready() bool
}

// ActiveSource reports whether a burst is running.
type ActiveSource interface {
	Active() bool
}

// PipelineChecker derives health from the capture pipeline. The process is
// ready while the orchestrator holds a complete frame and shutdown has not
// begun.
type PipelineChecker struct {
	orchestrator ReadySource
	burst        ActiveSource
	stopping     atomic.Bool
}

// NewPipelineChecker creates a checker. burst may be nil.
func NewPipelineChecker(orchestrator ReadySource, burst ActiveSource) *PipelineChecker {
	return &PipelineChecker{orchestrator: orchestrator, burst: burst}
}

// MarkStopping makes readiness fail from now on.
func (c *PipelineChecker) MarkStopping() {
	c.stopping.Store(true)
}

// Liveness always succeeds.
func (c *PipelineChecker) Liveness() bool {
	return true
}

// Readiness reports whether captures can be served.
func (c *PipelineChecker) Readiness(ctx context.Context) bool {
	return ctx.Err() == nil && c.IsHealthy()
}

// IsHealthy reports readiness without a request context.
func (c *PipelineChecker) IsHealthy() bool {
	return !c.stopping.Load() && c.orchestrator.Ready()
}

// GetStatus returns per-component status.
func (c *PipelineChecker) GetStatus() map[string]string {
	status := map[string]string{
		"orchestrator": "waiting",
	}
	if c.orchestrator.Ready() {
		status["orchestrator"] = "ready"
	}
	if c.stopping.Load() {
		status["shutdown"] = "in_progress"
	}
	if c.burst != nil {
		status["burst"] = "idle"
		if c.burst.Active() {
			status["burst"] = "active"
		}
	}
	return status
}

func writeJSON(w http.ResponseWriter, statusCode int, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
