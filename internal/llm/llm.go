package llm

import (
	"context"

	"takeoff-backend/internal/files"
	"takeoff-backend/internal/items"
)

// Client is the uniform capability over model providers. Implementations must
// return errors that Classify can sort into retryable and fatal.
type Client interface {
	// Upload makes a document available to later Extract calls.
	Upload(ctx context.Context, doc Document) (ArtifactRef, error)
	Extract(ctx context.Context, req ExtractRequest) (Result, error)
	Compare(ctx context.Context, req CompareRequest) (Result, error)
	// Delete releases an uploaded artifact. Failures are logged, never returned.
	Delete(ctx context.Context, ref ArtifactRef)
}

// Document is an uploaded project file handed to the provider.
type Document struct {
	ProjectID string
	FileID    string
	FileName  string
	MimeType  string
	Kind      files.Kind
	Data      []byte
}

// ArtifactRef identifies a provider-side copy of a document.
type ArtifactRef struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// ExtractRequest asks for structured items from one uploaded document.
type ExtractRequest struct {
	Kind     files.Kind
	Artifact ArtifactRef
	// ScheduleCodes restricts drawing extraction to detail rows for known codes.
	ScheduleCodes []string
}

// Task selects the comparison prompt.
type Task string

const (
	TaskCompare Task = "compare"
	TaskSuggest Task = "suggest"
)

// CompareRequest carries one chunk of BOQ items and the detail they are checked against.
type CompareRequest struct {
	Task   Task
	BOQ    []items.Item
	Detail []items.Item
}

// Verdict values of a comparison row.
const (
	VerdictMatched    = "matched"
	VerdictMismatched = "mismatched"
)

// ComparisonRow is one model verdict for a BOQ item code.
type ComparisonRow struct {
	ItemCode   string `json:"itemCode"`
	Result     string `json:"result"`
	Reason     string `json:"reason"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Result is the parsed output of an Extract or Compare call. RawText keeps the
// provider text for audit.
type Result struct {
	Items   []items.Item
	Rows    []ComparisonRow
	RawText string
}
