package items

import (
	"context"

	"takeoff-backend/internal/files"
)

// Repo defines persistence operations for extracted items.
type Repo interface {
	// ReplaceForFile swaps the file's items and raw output in one step.
	ReplaceForFile(ctx context.Context, extraction Extraction) error
	ListByProject(ctx context.Context, projectID string) ([]Item, error)
	ListByFile(ctx context.Context, projectID, fileID string) ([]Item, error)
	ListByKind(ctx context.Context, projectID string, kind files.Kind) ([]Item, error)
	RawText(ctx context.Context, fileID string) (string, error)
	DeleteByFile(ctx context.Context, projectID, fileID string) error
}
