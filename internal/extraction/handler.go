package extraction

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"takeoff-backend/internal/files"
	"takeoff-backend/internal/jobs"
	"takeoff-backend/internal/shared/server/middleware"
	"takeoff-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the orchestrator.
type Handler struct {
	Orch *Orchestrator
}

// NewHandler constructs a Handler.
func NewHandler(o *Orchestrator) *Handler {
	return &Handler{Orch: o}
}

// RegisterRoutes attaches extraction routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/projects/:id/extractions/start", middleware.RequireIdempotencyKey(), h.start)
	rg.POST("/projects/:id/files/:fileId/retry", middleware.RequireIdempotencyKey(), h.retry)
	rg.GET("/projects/:id/jobs", h.list)
	rg.GET("/projects/:id/files/:fileId/extraction", h.extraction)
	rg.GET("/extractions/jobs/:jobId", h.poll)
}

type startRequest struct {
	FileIDs []string `json:"fileIds"`
}

type retryRequest struct {
	Reason string `json:"reason"`
}

// JobSummary is the submission view of a job.
type JobSummary struct {
	ID        string      `json:"id"`
	FileID    string      `json:"fileId"`
	Status    jobs.Status `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// PollResponse is the polling view of a job for clients without a stream.
type PollResponse struct {
	JobID      string              `json:"jobId"`
	FileID     string              `json:"fileId"`
	Status     jobs.Status         `json:"status"`
	Stage      string              `json:"stage,omitempty"`
	Attempt    int                 `json:"attempt"`
	Message    string              `json:"message,omitempty"`
	Result     *jobs.ResultSummary `json:"result,omitempty"`
	Error      *jobs.JobError      `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
	StartedAt  *time.Time          `json:"startedAt,omitempty"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}

func summarize(job jobs.Job) JobSummary {
	return JobSummary{
		ID:        job.ID,
		FileID:    job.FileID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

func pollView(job jobs.Job) PollResponse {
	out := PollResponse{
		JobID:      job.ID,
		FileID:     job.FileID,
		Status:     job.Status,
		Stage:      job.Stage,
		Attempt:    job.Attempt,
		Result:     job.Result,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
	switch {
	case job.Error != nil:
		out.Message = job.Error.Message
	case job.Status == jobs.StatusQueued:
		out.Message = "waiting for a worker"
	case job.Status == jobs.StatusProcessing && job.Stage != "":
		out.Message = job.Stage
	}
	return out
}

func (h *Handler) start(c *gin.Context) {
	projectID := c.Param("id")
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	list, err := h.Orch.Start(ctx, projectID, req.FileIDs, middleware.IdempotencyKeyFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]JobSummary, 0, len(list))
	for _, job := range list {
		out = append(out, summarize(job))
	}
	respond.JSON(c, http.StatusAccepted, gin.H{"jobs": out})
}

func (h *Handler) retry(c *gin.Context) {
	projectID := c.Param("id")
	var req retryRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if req.Reason != "" && req.Reason != jobs.ReasonScheduleReady {
		respond.Error(c, http.StatusBadRequest, "validation_error", "reason must be empty or schedule_ready", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	job, err := h.Orch.Retry(ctx, projectID, c.Param("fileId"), middleware.IdempotencyKeyFromContext(c), RetryOptions{
		ScheduleReady: req.Reason == jobs.ReasonScheduleReady,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set(middleware.JobIDKey, job.ID)
	respond.JSON(c, http.StatusAccepted, summarize(job))
}

func (h *Handler) list(c *gin.Context) {
	list, err := h.Orch.Jobs.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list jobs", nil)
		return
	}
	out := make([]PollResponse, 0, len(list))
	for _, job := range list {
		out = append(out, pollView(job))
	}
	respond.OK(c, gin.H{"jobs": out})
}

func (h *Handler) poll(c *gin.Context) {
	jobID := c.Param("jobId")
	c.Set(middleware.JobIDKey, jobID)
	job, err := h.Orch.Jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set(middleware.ProjectIDKey, job.ProjectID)
	respond.OK(c, pollView(job))
}

func (h *Handler) extraction(c *gin.Context) {
	view, err := h.Orch.Extraction(c.Request.Context(), c.Param("id"), c.Param("fileId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, view)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobInFlight):
		respond.Error(c, http.StatusConflict, "job_in_flight", err.Error(), nil)
	case errors.Is(err, jobs.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
	case errors.Is(err, files.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "file not found", nil)
	case errors.Is(err, ErrNoFiles):
		respond.Error(c, http.StatusUnprocessableEntity, "no_files", err.Error(), nil)
	case errors.Is(err, jobs.ErrMissingKey):
		respond.Error(c, http.StatusBadRequest, "missing_idempotency_key", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "extraction request failed", nil)
	}
}
