package files

import "context"

// Repo defines persistence operations for project files.
type Repo interface {
	Create(ctx context.Context, file File) error
	Get(ctx context.Context, projectID, fileID string) (File, error)
	ListByProject(ctx context.Context, projectID string) ([]File, error)
	Delete(ctx context.Context, projectID, fileID string) error
}
