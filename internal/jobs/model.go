package jobs

import (
	"time"

	"takeoff-backend/internal/files"
)

// Status is a job's position in the extraction state machine.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

var transitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusDone, StatusFailed},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrorKind groups failures by the action a client should take.
type ErrorKind string

const (
	// ErrorKindTransient means retries were exhausted on a retryable provider error.
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindFatal covers malformed input, auth/config errors and schema violations.
	ErrorKindFatal ErrorKind = "fatal"
	// ErrorKindPrecondition asks the user to complete a prerequisite first.
	ErrorKindPrecondition ErrorKind = "precondition_unmet"
	ErrorKindInternal     ErrorKind = "internal"
)

// JobError is the single terminal error record of a failed job.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ResultSummary is attached to done jobs.
type ResultSummary struct {
	ItemCount int `json:"itemCount"`
}

// Reason values recorded on jobs created by a retry.
const (
	ReasonSubmit        = "submit"
	ReasonManualRetry   = "manual_retry"
	ReasonScheduleReady = "schedule_ready"
)

// Job is one extraction attempt for one file.
type Job struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"projectId"`
	FileID         string         `json:"fileId"`
	FileKind       files.Kind     `json:"fileKind"`
	IdempotencyKey string         `json:"-"`
	Status         Status         `json:"status"`
	Stage          string         `json:"stage,omitempty"`
	Attempt        int            `json:"attempt"`
	Reason         string         `json:"reason,omitempty"`
	Error          *JobError      `json:"error,omitempty"`
	Result         *ResultSummary `json:"result,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	FinishedAt     *time.Time     `json:"finishedAt,omitempty"`
}

// InFlightPolicy decides what Submit does when the file already has a
// non-terminal job under a different idempotency key.
type InFlightPolicy int

const (
	// InFlightReuse returns the in-flight job unchanged.
	InFlightReuse InFlightPolicy = iota
	// InFlightReject fails with ErrJobInFlight.
	InFlightReject
)

// SubmitParams describes a requested job.
type SubmitParams struct {
	ProjectID      string
	FileID         string
	FileKind       files.Kind
	IdempotencyKey string
	Reason         string
	OnInFlight     InFlightPolicy
}

// Patch carries optional field updates applied with a transition or stage update.
type Patch struct {
	Stage   *string
	Attempt *int
	Error   *JobError
	Result  *ResultSummary
}

// StagePatch is shorthand for a patch that only moves the stage label.
func StagePatch(stage string) Patch {
	return Patch{Stage: &stage}
}

func (p Patch) apply(job *Job) {
	if p.Stage != nil {
		job.Stage = *p.Stage
	}
	if p.Attempt != nil {
		job.Attempt = *p.Attempt
	}
	if p.Error != nil {
		e := *p.Error
		job.Error = &e
	}
	if p.Result != nil {
		r := *p.Result
		job.Result = &r
	}
}
