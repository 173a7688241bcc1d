package projectlog

import "context"

// DefaultLimit bounds ListRecent when callers pass no limit.
const DefaultLimit = 50

// Repo defines persistence operations for project logs.
type Repo interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
	// ListRecent returns entries newest first. An empty fileID lists the whole project.
	ListRecent(ctx context.Context, projectID, fileID string, limit int) ([]Entry, error)
}
