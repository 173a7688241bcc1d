package jobs

import "context"

// Repo is the durable job record. Submit and Transition are the only
// mutation paths, and both are atomic per file.
type Repo interface {
	// Submit returns the job to use and whether it was newly created.
	Submit(ctx context.Context, p SubmitParams) (Job, bool, error)
	Transition(ctx context.Context, jobID string, next Status, patch Patch) (Job, error)
	// Update applies a patch to a non-terminal job without changing status.
	Update(ctx context.Context, jobID string, patch Patch) (Job, error)
	Get(ctx context.Context, jobID string) (Job, error)
	ListByProject(ctx context.Context, projectID string) ([]Job, error)
	LatestForFile(ctx context.Context, fileID string) (Job, error)
}
