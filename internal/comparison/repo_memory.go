package comparison

import (
	"context"
	"sync"
)

// MemoryRepo keeps runs in insertion order and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	runs []Run
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Save(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	run.Results = append([]Result(nil), run.Results...)
	r.mu.Lock()
	r.runs = append(r.runs, run)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepo) LatestDone(ctx context.Context, projectID, fingerprint string) (Run, error) {
	return r.latest(ctx, func(run Run) bool {
		return run.ProjectID == projectID && run.Fingerprint == fingerprint && run.Status == StatusDone
	})
}

func (r *MemoryRepo) Latest(ctx context.Context, projectID string) (Run, error) {
	return r.latest(ctx, func(run Run) bool { return run.ProjectID == projectID })
}

func (r *MemoryRepo) latest(ctx context.Context, match func(Run) bool) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.runs) - 1; i >= 0; i-- {
		if match(r.runs[i]) {
			run := r.runs[i]
			run.Results = append([]Result(nil), run.Results...)
			return run, nil
		}
	}
	return Run{}, ErrNotFound
}
