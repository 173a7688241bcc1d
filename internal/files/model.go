package files

import (
	"strings"
	"time"
)

// Kind selects which extractor handles a file.
type Kind string

const (
	KindDrawing  Kind = "drawing"
	KindSchedule Kind = "schedule"
	KindBOQ      Kind = "boq"
)

// ParseKind normalizes user input into a Kind.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "drawing", "drawings":
		return KindDrawing, nil
	case "schedule", "schedules":
		return KindSchedule, nil
	case "boq", "bill-of-quantities", "bill_of_quantities":
		return KindBOQ, nil
	default:
		return "", ErrInvalidKind
	}
}

// File is an uploaded project document.
type File struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	Kind       Kind      `json:"kind"`
	FileName   string    `json:"fileName"`
	MimeType   string    `json:"mimeType"`
	SizeBytes  int64     `json:"sizeBytes"`
	StorageKey string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}
