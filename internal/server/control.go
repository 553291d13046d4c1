package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jittakal/zslring/internal/burst"
	apperrors "github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/capture"
)

// DefaultSaveTimeout bounds saving a stopped burst.
const DefaultSaveTimeout = 30 * time.Second

// Capture modes accepted by POST /capture.
const (
	ModeNext     = "next"
	ModeExisting = "existing"
)

// Capturer resolves capture requests.
type Capturer interface {
	CaptureNextImage(cb capture.Callback, constraints ...capture.Constraint)
	TryCaptureExistingImage(cb capture.Callback, constraints ...capture.Constraint) bool
}

// BurstController starts and stops bursts.
type BurstController interface {
	Start() (int, error)
	Stop(ctx context.Context) (*burst.Result, error)
}

// Control exposes capture and burst commands over HTTP.
type Control struct {
	// Capturer receives capture requests.
	Capturer Capturer
	// Callback is invoked with each captured frame.
	Callback capture.Callback
	// Constraints apply to every capture request.
	Constraints []capture.Constraint
	// Burst is optional. Without it the burst routes are not registered.
	Burst BurstController
	// SaveTimeout bounds saving a stopped burst. Defaults to
	// DefaultSaveTimeout.
	SaveTimeout time.Duration
}

// CaptureResponse is returned by POST /capture.
type CaptureResponse struct {
	Mode   string `json:"mode"`
	Status string `json:"status"`
}

// BurstResponse is returned by the burst routes.
type BurstResponse struct {
	BurstID int    `json:"burst_id"`
	Status  string `json:"status"`
	Title   string `json:"title,omitempty"`
	Frames  int    `json:"frames,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse is returned for rejected requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (c *Control) register(mux *http.ServeMux, logger *slog.Logger) {
	mux.HandleFunc("POST /capture", CaptureHandler(c, logger))
	if c.Burst != nil {
		mux.HandleFunc("POST /burst/start", BurstStartHandler(c.Burst, logger))
		timeout := c.SaveTimeout
		if timeout <= 0 {
			timeout = DefaultSaveTimeout
		}
		mux.HandleFunc("POST /burst/stop", BurstStopHandler(c.Burst, timeout, logger))
	}
}

// CaptureHandler serves POST /capture?mode=next|existing. A next-frame
// request is accepted and resolved later; an existing-frame request
// answers 409 when no resident frame qualifies.
func CaptureHandler(c *Control, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := r.URL.Query().Get("mode")
		if mode == "" {
			mode = ModeNext
		}

		switch mode {
		case ModeNext:
			c.Capturer.CaptureNextImage(c.Callback, c.Constraints...)
			logger.Info("capture requested", "mode", mode)
			writeJSON(w, http.StatusAccepted, CaptureResponse{Mode: mode, Status: "pending"}, logger)
		case ModeExisting:
			if !c.Capturer.TryCaptureExistingImage(c.Callback, c.Constraints...) {
				logger.Info("no frame matched capture request", "mode", mode)
				writeJSON(w, http.StatusConflict, CaptureResponse{Mode: mode, Status: "no_match"}, logger)
				return
			}
			writeJSON(w, http.StatusOK, CaptureResponse{Mode: mode, Status: "captured"}, logger)
		default:
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown capture mode: " + mode}, logger)
		}
	}
}

// BurstStartHandler serves POST /burst/start.
func BurstStartHandler(b BurstController, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := b.Start()
		if err != nil {
			statusCode := http.StatusInternalServerError
			if errors.Is(err, apperrors.ErrBurstInProgress) {
				statusCode = http.StatusConflict
			}
			writeJSON(w, statusCode, ErrorResponse{Error: err.Error()}, logger)
			return
		}
		writeJSON(w, http.StatusOK, BurstResponse{BurstID: id, Status: "started"}, logger)
	}
}

// BurstStopHandler serves POST /burst/stop. A burst whose frames could not
// be saved is still stopped and reported with 500. The save is bounded by
// timeout and outlives a disconnected client.
func BurstStopHandler(b BurstController, timeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
		defer cancel()

		result, err := b.Stop(ctx)
		if result == nil {
			statusCode := http.StatusInternalServerError
			if errors.Is(err, apperrors.ErrNoBurst) {
				statusCode = http.StatusConflict
			}
			writeJSON(w, statusCode, ErrorResponse{Error: errString(err)}, logger)
			return
		}

		resp := BurstResponse{
			BurstID: result.ID,
			Status:  "saved",
			Title:   result.Title,
			Frames:  len(result.Frames),
		}
		statusCode := http.StatusOK
		if err != nil {
			logger.Error("failed to save burst", "burst_id", result.ID, "error", err)
			resp.Status = "failed"
			resp.Error = err.Error()
			statusCode = http.StatusInternalServerError
		}
		writeJSON(w, statusCode, resp, logger)
	}
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
