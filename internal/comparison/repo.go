package comparison

import "context"

// RunRepo persists comparison runs. It is the comparison cache.
type RunRepo interface {
	Save(ctx context.Context, run Run) error
	// LatestDone returns the newest successful run for a fingerprint. Failed
	// runs are never returned, so they cannot be served from cache.
	LatestDone(ctx context.Context, projectID, fingerprint string) (Run, error)
	// Latest returns the newest run of the project regardless of status.
	Latest(ctx context.Context, projectID string) (Run, error)
}
