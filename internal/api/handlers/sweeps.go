package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/application/scheduler"
)

// SweepRunner starts on-demand sweeps.
type SweepRunner interface {
	TriggerNow(ctx context.Context, name string) (int64, error)
	Jobs() []scheduler.Job
}

// SweepsHandler handles on-demand sweep requests.
type SweepsHandler struct {
	*Base
	runner SweepRunner
}

// NewSweepsHandler creates a new sweeps handler.
func NewSweepsHandler(runner SweepRunner, logger *slog.Logger) *SweepsHandler {
	return &SweepsHandler{
		Base:   NewBase(nil, logger),
		runner: runner,
	}
}

// List handles GET /api/sweeps - lists the configured sweep jobs.
func (h *SweepsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.runner.Jobs()

	response := dto.JobListResponse{Jobs: make([]dto.JobResponse, 0, len(jobs))}
	for _, job := range jobs {
		response.Jobs = append(response.Jobs, dto.JobResponse{
			Name:     job.Name,
			Kind:     string(job.Kind),
			Interval: job.Interval.String(),
		})
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Start handles POST /api/sweeps/{job} - starts a sweep in the background.
// Progress is visible through /api/runs/{run_id}.
func (h *SweepsHandler) Start(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	if job == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("job is required"))
		return
	}

	runID, err := h.runner.TriggerNow(r.Context(), job)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("sweep job"))
		return
	case errors.Is(err, scheduler.ErrSweepInProgress):
		h.WriteError(w, http.StatusConflict, dto.NewAPIError(dto.ErrCodeSweepInProgress, err.Error()))
		return
	case errors.Is(err, scheduler.ErrStopped):
		h.WriteError(w, http.StatusServiceUnavailable, dto.NewAPIError(dto.ErrCodeShuttingDown, "server is shutting down"))
		return
	case err != nil:
		h.logger.Error("failed to start sweep", "job", job, "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusAccepted, dto.StartSweepResponse{
		RunID:  runID,
		Job:    job,
		Status: "running",
	})
}
