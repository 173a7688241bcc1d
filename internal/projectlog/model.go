package projectlog

import "time"

// Level is the severity of a project log entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Entry is one append-only line in a project's activity log.
type Entry struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	FileID    string    `json:"fileId,omitempty"`
	JobID     string    `json:"jobId,omitempty"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
