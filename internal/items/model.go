package items

import (
	"sort"
	"strings"
	"time"

	"takeoff-backend/internal/files"
)

// Box is a drawing item's bounding box in page coordinates.
type Box struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Item is one extracted row from a drawing, schedule or BOQ. Kind-specific
// columns live in Fields.
type Item struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"projectId"`
	FileID      string         `json:"fileId"`
	FileKind    files.Kind     `json:"fileKind"`
	Position    int            `json:"position"`
	ItemCode    string         `json:"itemCode"`
	Description string         `json:"description"`
	Notes       string         `json:"notes,omitempty"`
	Box         *Box           `json:"box,omitempty"`
	ThicknessMM *float64       `json:"thickness,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Extraction is the full result attached to a file when its job completes.
type Extraction struct {
	ProjectID string
	FileID    string
	FileKind  files.Kind
	JobID     string
	Items     []Item
	RawText   string
}

// FieldScheduleRef marks a drawing row whose code was a schedule code at
// extraction time.
const FieldScheduleRef = "scheduleRef"

var placeholderRowTypes = map[string]bool{
	"note":        true,
	"notes":       true,
	"heading":     true,
	"header":      true,
	"placeholder": true,
	"subtotal":    true,
}

// IsPlaceholder reports whether a BOQ row carries no comparable quantity:
// note and heading rows, or rows without an item code.
func (it Item) IsPlaceholder() bool {
	if strings.TrimSpace(it.ItemCode) == "" {
		return true
	}
	if rt, ok := it.Fields["rowType"].(string); ok && placeholderRowTypes[strings.ToLower(strings.TrimSpace(rt))] {
		return true
	}
	desc := strings.ToLower(strings.TrimSpace(it.Description))
	return strings.HasPrefix(desc, "note:") || strings.HasPrefix(desc, "note ") || desc == "note"
}

// NormalizeCode canonicalizes an item code for set membership checks.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}

// Codes returns the distinct normalized item codes of list, sorted.
func Codes(list []Item) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, it := range list {
		code := NormalizeCode(it.ItemCode)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
