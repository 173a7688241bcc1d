package comparison

import (
	"time"
)

// Status of a comparison run. Runs are written once, after every chunk finished.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Result is the verdict for one BOQ line.
type Result struct {
	ItemCode    string `json:"itemCode"`
	Description string `json:"description"`
	Result      string `json:"result"`
	Reason      string `json:"reason"`
	Chunk       int    `json:"chunk"`
}

// Stats summarizes a run.
type Stats struct {
	ComparableItems int `json:"comparableItems"`
	// ExcludedItems are BOQ lines whose code only appears on drawings without a schedule reference.
	ExcludedItems int `json:"excludedItems"`
	ScheduleCodes int `json:"scheduleCodes"`
	DrawingItems  int `json:"drawingItems"`
	Chunks        int `json:"chunks"`
	Matched       int `json:"matched"`
	Mismatched    int `json:"mismatched"`
	FailedChunks  int `json:"failedChunks"`
}

// RunError is the single terminal error of a failed run.
type RunError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Chunk   int    `json:"chunk"`
}

// Run is one persisted comparison, keyed by the fingerprint of its inputs.
type Run struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Fingerprint string    `json:"fingerprint"`
	Status      Status    `json:"status"`
	Results     []Result  `json:"results"`
	Stats       Stats     `json:"stats"`
	Error       *RunError `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Suggestion proposes a schedule code for a BOQ line that has none.
type Suggestion struct {
	ItemID        string `json:"itemId"`
	FileID        string `json:"fileId"`
	Position      int    `json:"position"`
	Description   string `json:"description"`
	SuggestedCode string `json:"suggestedCode"`
	Reason        string `json:"reason,omitempty"`
}

// SuggestResult collects suggestions from every chunk that succeeded.
type SuggestResult struct {
	Suggestions  []Suggestion `json:"suggestions"`
	Chunks       int          `json:"chunks"`
	FailedChunks int          `json:"failedChunks"`
	Error        string       `json:"error,omitempty"`
}
