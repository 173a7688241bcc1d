package projectlog

import (
	"context"
	"fmt"

	"takeoff-backend/internal/shared/telemetry"
)

// Writer appends entries without failing the caller's operation; a lost audit
// line is logged rather than escalated.
type Writer struct {
	Repo Repo
}

// Write appends a formatted entry.
func (w *Writer) Write(ctx context.Context, entry Entry) {
	if w == nil || w.Repo == nil {
		return
	}
	if _, err := w.Repo.Append(ctx, entry); err != nil {
		telemetry.Error("projectlog.append_failed", map[string]any{
			"project_id": entry.ProjectID,
			"file_id":    entry.FileID,
			"error":      err.Error(),
		})
	}
}

// Infof appends an info entry scoped to the project and optional file/job.
func (w *Writer) Infof(ctx context.Context, projectID, fileID, jobID, format string, args ...any) {
	w.Write(ctx, Entry{ProjectID: projectID, FileID: fileID, JobID: jobID, Level: LevelInfo, Message: fmt.Sprintf(format, args...)})
}

// Warnf appends a warning entry.
func (w *Writer) Warnf(ctx context.Context, projectID, fileID, jobID, format string, args ...any) {
	w.Write(ctx, Entry{ProjectID: projectID, FileID: fileID, JobID: jobID, Level: LevelWarning, Message: fmt.Sprintf(format, args...)})
}

// Errorf appends an error entry.
func (w *Writer) Errorf(ctx context.Context, projectID, fileID, jobID, format string, args ...any) {
	w.Write(ctx, Entry{ProjectID: projectID, FileID: fileID, JobID: jobID, Level: LevelError, Message: fmt.Sprintf(format, args...)})
}
