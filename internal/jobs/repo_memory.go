package jobs

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu     sync.Mutex
	byID   map[string]Job
	byFile map[string][]string
	now    func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[string]Job),
		byFile: make(map[string][]string),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepo) Submit(ctx context.Context, p SubmitParams) (Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, false, err
	}
	if strings.TrimSpace(p.IdempotencyKey) == "" {
		return Job{}, false, ErrMissingKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var sameKey, active *Job
	ids := r.byFile[p.FileID]
	for i := len(ids) - 1; i >= 0; i-- {
		j := r.byID[ids[i]]
		if sameKey == nil && j.IdempotencyKey == p.IdempotencyKey {
			jj := j
			sameKey = &jj
		}
		if active == nil && !j.Status.Terminal() {
			jj := j
			active = &jj
		}
	}

	switch decideSubmit(sameKey, active, p) {
	case outcomeReplay:
		return *sameKey, false, nil
	case outcomeReuseInFlight:
		return *active, false, nil
	case outcomeReject:
		return *active, false, ErrJobInFlight
	}

	job := newJob(p, r.now())
	r.byID[job.ID] = job
	r.byFile[job.FileID] = append(r.byFile[job.FileID], job.ID)
	return job, true, nil
}

func (r *MemoryRepo) Transition(ctx context.Context, jobID string, next Status, patch Patch) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	if err := applyTransition(&job, next, patch, r.now()); err != nil {
		return job, err
	}
	r.byID[jobID] = job
	return job, nil
}

func (r *MemoryRepo) Update(ctx context.Context, jobID string, patch Patch) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	if job.Status.Terminal() {
		return job, ErrInvalidTransition
	}
	patch.apply(&job)
	job.UpdatedAt = r.now()
	r.byID[jobID] = job
	return job, nil
}

func (r *MemoryRepo) Get(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// ListByProject returns jobs newest first.
func (r *MemoryRepo) ListByProject(ctx context.Context, projectID string) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	out := make([]Job, 0)
	for _, ids := range r.byFile {
		for _, id := range ids {
			if j := r.byID[id]; j.ProjectID == projectID {
				out = append(out, j)
			}
		}
	}
	r.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) LatestForFile(ctx context.Context, fileID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.byFile[fileID]
	if len(ids) == 0 {
		return Job{}, ErrNotFound
	}
	return r.byID[ids[len(ids)-1]], nil
}
