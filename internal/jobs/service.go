package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"takeoff-backend/internal/projectlog"
	"takeoff-backend/internal/shared/metrics"
	"takeoff-backend/internal/shared/telemetry"
)

// Notifier is told when project state visible to clients changed.
type Notifier interface {
	Notify(ctx context.Context, projectID string)
}

// Service wraps the repo so that every transition is logged and published.
type Service struct {
	Repo     Repo
	Logs     *projectlog.Writer
	Notifier Notifier
}

// Submit creates or replays a job for one file.
func (s *Service) Submit(ctx context.Context, p SubmitParams) (Job, bool, error) {
	if strings.TrimSpace(p.FileID) == "" {
		return Job{}, false, errors.New("fileID is required")
	}
	job, created, err := s.Repo.Submit(ctx, p)
	if err != nil {
		return job, false, err
	}
	if !created {
		telemetry.Info("job.submit_replayed", map[string]any{
			"job_id":     job.ID,
			"project_id": job.ProjectID,
			"file_id":    job.FileID,
			"status":     string(job.Status),
		})
		return job, false, nil
	}
	metrics.IncJobsSubmitted()
	telemetry.Info("job.status", map[string]any{
		"job_id":            job.ID,
		"project_id":        job.ProjectID,
		"file_id":           job.FileID,
		"kind":              string(job.FileKind),
		"reason":            job.Reason,
		"status_transition": "-> queued",
	})
	s.Logs.Infof(ctx, job.ProjectID, job.FileID, job.ID, "%s extraction queued (%s)", job.FileKind, job.Reason)
	s.notify(ctx, job.ProjectID)
	return job, true, nil
}

// Transition moves a job along the state machine.
func (s *Service) Transition(ctx context.Context, jobID string, next Status, patch Patch) (Job, error) {
	before, err := s.Repo.Get(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	job, err := s.Repo.Transition(ctx, jobID, next, patch)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			telemetry.Error("job.invalid_transition", map[string]any{
				"job_id": jobID,
				"from":   string(before.Status),
				"to":     string(next),
			})
		}
		return job, err
	}

	fields := map[string]any{
		"job_id":            job.ID,
		"project_id":        job.ProjectID,
		"file_id":           job.FileID,
		"status_transition": fmt.Sprintf("%s -> %s", before.Status, job.Status),
		"stage":             job.Stage,
		"attempt":           job.Attempt,
	}
	switch job.Status {
	case StatusProcessing:
		metrics.IncJobsStarted()
		telemetry.Info("job.status", fields)
		s.Logs.Infof(ctx, job.ProjectID, job.FileID, job.ID, "%s extraction started", job.FileKind)
	case StatusDone:
		metrics.IncJobsCompleted()
		observeDuration(job)
		count := 0
		if job.Result != nil {
			count = job.Result.ItemCount
		}
		fields["item_count"] = count
		telemetry.Info("job.status", fields)
		s.Logs.Infof(ctx, job.ProjectID, job.FileID, job.ID, "%s extraction finished with %d items", job.FileKind, count)
	case StatusFailed:
		metrics.IncJobsFailed()
		observeDuration(job)
		msg := "unknown error"
		if job.Error != nil {
			fields["error_kind"] = string(job.Error.Kind)
			fields["error"] = job.Error.Message
			msg = job.Error.Message
		}
		telemetry.Error("job.status", fields)
		if job.Error != nil && job.Error.Kind == ErrorKindPrecondition {
			s.Logs.Warnf(ctx, job.ProjectID, job.FileID, job.ID, "%s extraction waiting: %s", job.FileKind, msg)
		} else {
			s.Logs.Errorf(ctx, job.ProjectID, job.FileID, job.ID, "%s extraction failed: %s", job.FileKind, msg)
		}
	}
	s.notify(ctx, job.ProjectID)
	return job, nil
}

// SetStage updates the progress label of a non-terminal job.
func (s *Service) SetStage(ctx context.Context, jobID, stage string) (Job, error) {
	job, err := s.Repo.Update(ctx, jobID, StagePatch(stage))
	if err != nil {
		return job, err
	}
	s.Logs.Infof(ctx, job.ProjectID, job.FileID, job.ID, "%s extraction stage: %s", job.FileKind, stage)
	s.notify(ctx, job.ProjectID)
	return job, nil
}

// SetAttempt records the attempt counter of the model call in progress.
func (s *Service) SetAttempt(ctx context.Context, jobID string, attempt int) (Job, error) {
	return s.Repo.Update(ctx, jobID, Patch{Attempt: &attempt})
}

func (s *Service) Get(ctx context.Context, jobID string) (Job, error) {
	return s.Repo.Get(ctx, jobID)
}

func (s *Service) List(ctx context.Context, projectID string) ([]Job, error) {
	return s.Repo.ListByProject(ctx, projectID)
}

func (s *Service) LatestForFile(ctx context.Context, fileID string) (Job, error) {
	return s.Repo.LatestForFile(ctx, fileID)
}

// FileBusy reports whether the file's latest job is queued or processing.
func (s *Service) FileBusy(ctx context.Context, fileID string) (bool, error) {
	job, err := s.Repo.LatestForFile(ctx, fileID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !job.Status.Terminal(), nil
}

func (s *Service) notify(ctx context.Context, projectID string) {
	if s.Notifier != nil {
		s.Notifier.Notify(ctx, projectID)
	}
}

func observeDuration(job Job) {
	if job.StartedAt == nil || job.FinishedAt == nil {
		return
	}
	metrics.ObserveJobDurationMs(float64(job.FinishedAt.Sub(*job.StartedAt).Milliseconds()))
}
