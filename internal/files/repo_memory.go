package files

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo stores files in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]File
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]File)}
}

func (r *MemoryRepo) Create(ctx context.Context, file File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[file.ID] = file
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, projectID, fileID string) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byID[fileID]
	if !ok || f.ProjectID != projectID {
		return File{}, ErrNotFound
	}
	return f, nil
}

// ListByProject returns files oldest first.
func (r *MemoryRepo) ListByProject(ctx context.Context, projectID string) ([]File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]File, 0)
	for _, f := range r.byID {
		if f.ProjectID == projectID {
			out = append(out, f)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, projectID, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.byID[fileID]
	if !ok || f.ProjectID != projectID {
		return ErrNotFound
	}
	delete(r.byID, fileID)
	return nil
}
