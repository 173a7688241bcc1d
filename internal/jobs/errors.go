package jobs

import "errors"

var (
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition is an invariant violation: the state machine forbids the edge.
	ErrInvalidTransition = errors.New("invalid job transition")
	// ErrJobInFlight guards against concurrent retries of the same file.
	ErrJobInFlight = errors.New("a job for this file is already queued or processing")
	ErrMissingKey  = errors.New("idempotency key is required")
)
