package items

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"takeoff-backend/internal/files"
)

// MemoryRepo stores items in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu     sync.RWMutex
	byFile map[string][]Item
	raw    map[string]string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byFile: make(map[string][]Item),
		raw:    make(map[string]string),
	}
}

func (r *MemoryRepo) ReplaceForFile(ctx context.Context, ex Extraction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := prepare(ex)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byFile[ex.FileID] = stored
	r.raw[ex.FileID] = ex.RawText
	return nil
}

func (r *MemoryRepo) ListByProject(ctx context.Context, projectID string) ([]Item, error) {
	return r.list(ctx, func(it Item) bool { return it.ProjectID == projectID })
}

func (r *MemoryRepo) ListByFile(ctx context.Context, projectID, fileID string) ([]Item, error) {
	return r.list(ctx, func(it Item) bool { return it.ProjectID == projectID && it.FileID == fileID })
}

func (r *MemoryRepo) ListByKind(ctx context.Context, projectID string, kind files.Kind) ([]Item, error) {
	return r.list(ctx, func(it Item) bool { return it.ProjectID == projectID && it.FileKind == kind })
}

func (r *MemoryRepo) RawText(ctx context.Context, fileID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.raw[fileID], nil
}

func (r *MemoryRepo) DeleteByFile(ctx context.Context, projectID, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.byFile[fileID]
	if len(existing) > 0 && existing[0].ProjectID != projectID {
		return nil
	}
	delete(r.byFile, fileID)
	delete(r.raw, fileID)
	return nil
}

func (r *MemoryRepo) list(ctx context.Context, keep func(Item) bool) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Item, 0)
	for _, fileItems := range r.byFile {
		for _, it := range fileItems {
			if keep(it) {
				out = append(out, it)
			}
		}
	}
	r.mu.RUnlock()
	sortItems(out)
	return out, nil
}

// prepare stamps ownership, ordering and IDs onto extracted items.
func prepare(ex Extraction) []Item {
	now := time.Now().UTC()
	out := make([]Item, len(ex.Items))
	for i, it := range ex.Items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.ProjectID = ex.ProjectID
		it.FileID = ex.FileID
		it.FileKind = ex.FileKind
		it.Position = i
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		out[i] = it
	}
	return out
}

func sortItems(list []Item) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].FileID != list[j].FileID {
			if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
				return list[i].CreatedAt.Before(list[j].CreatedAt)
			}
			return list[i].FileID < list[j].FileID
		}
		return list[i].Position < list[j].Position
	})
}
