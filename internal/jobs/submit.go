package jobs

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type submitOutcome int

const (
	outcomeCreate submitOutcome = iota
	outcomeReplay
	outcomeReuseInFlight
	outcomeReject
)

// decideSubmit applies the idempotency rules. sameKey is the newest job for
// (file, key); active is the file's non-terminal job, if any.
func decideSubmit(sameKey, active *Job, p SubmitParams) submitOutcome {
	if sameKey != nil && (!sameKey.Status.Terminal() || sameKey.Status == StatusDone) {
		return outcomeReplay
	}
	if active != nil {
		if p.OnInFlight == InFlightReject {
			return outcomeReject
		}
		return outcomeReuseInFlight
	}
	return outcomeCreate
}

func newJob(p SubmitParams, now time.Time) Job {
	reason := strings.TrimSpace(p.Reason)
	if reason == "" {
		reason = ReasonSubmit
	}
	return Job{
		ID:             uuid.NewString(),
		ProjectID:      p.ProjectID,
		FileID:         p.FileID,
		FileKind:       p.FileKind,
		IdempotencyKey: p.IdempotencyKey,
		Status:         StatusQueued,
		Stage:          "queued",
		Reason:         reason,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// applyTransition mutates job for a legal transition and stamps timestamps.
func applyTransition(job *Job, next Status, patch Patch, now time.Time) error {
	if !CanTransition(job.Status, next) {
		return ErrInvalidTransition
	}
	job.Status = next
	patch.apply(job)
	if next == StatusProcessing && job.StartedAt == nil {
		t := now
		job.StartedAt = &t
	}
	if next.Terminal() {
		t := now
		job.FinishedAt = &t
		if next == StatusDone {
			job.Error = nil
		}
	}
	job.UpdatedAt = now
	return nil
}
