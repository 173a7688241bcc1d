package llm

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"takeoff-backend/internal/items"
)

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// locateJSON returns the outermost JSON object or array in s, skipping any
// prose the model wrapped around it.
func locateJSON(s string) []byte {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return nil
	}
	return []byte(s[start : end+1])
}

// envelope accepts either {"<key>": [...]} or a bare array and returns the
// object form.
func envelope(raw, key string) ([]byte, bool) {
	payload := locateJSON(StripFences(raw))
	if payload == nil || !json.Valid(payload) {
		return nil, false
	}
	if bytes.HasPrefix(bytes.TrimSpace(payload), []byte("[")) {
		wrapped, err := json.Marshal(map[string]json.RawMessage{key: payload})
		if err != nil {
			return nil, false
		}
		return wrapped, true
	}
	return payload, true
}

type wireItem struct {
	ItemCode    *string        `json:"itemCode"`
	Description *string        `json:"description"`
	Notes       *string        `json:"notes"`
	Thickness   *float64       `json:"thickness"`
	Box         *items.Box     `json:"box"`
	Fields      map[string]any `json:"fields"`
}

// ParseItems turns model text into items. Malformed JSON yields an empty list
// so a chatty answer does not fail the job; a well-formed payload that breaks
// the item schema is a fatal error.
func ParseItems(raw string) ([]items.Item, error) {
	payload, ok := envelope(raw, "items")
	if !ok {
		return []items.Item{}, nil
	}
	if err := validate(func() *jsonschema.Schema { return compiledItems }, payload); err != nil {
		return nil, err
	}
	var decoded struct {
		Items []wireItem `json:"items"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return []items.Item{}, nil
	}
	out := make([]items.Item, 0, len(decoded.Items))
	for _, w := range decoded.Items {
		out = append(out, items.Item{
			ItemCode:    strings.TrimSpace(deref(w.ItemCode)),
			Description: strings.TrimSpace(deref(w.Description)),
			Notes:       strings.TrimSpace(deref(w.Notes)),
			ThicknessMM: w.Thickness,
			Box:         w.Box,
			Fields:      w.Fields,
		})
	}
	return out, nil
}

// ParseRows turns model text into comparison rows with the same tolerance rules
// as ParseItems.
func ParseRows(raw string) ([]ComparisonRow, error) {
	payload, ok := envelope(raw, "results")
	if !ok {
		return []ComparisonRow{}, nil
	}
	if err := validate(func() *jsonschema.Schema { return compiledRows }, payload); err != nil {
		return nil, err
	}
	var decoded struct {
		Results []wireRow `json:"results"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return []ComparisonRow{}, nil
	}
	out := make([]ComparisonRow, 0, len(decoded.Results))
	for _, w := range decoded.Results {
		out = append(out, ComparisonRow{
			ItemCode:   rowKey(w.ItemCode),
			Result:     strings.TrimSpace(w.Result),
			Reason:     deref(w.Reason),
			Suggestion: deref(w.Suggestion),
		})
	}
	return out, nil
}

// wireRow keeps itemCode raw: suggestion prompts key rows by line position,
// which models often return as a number.
type wireRow struct {
	ItemCode   json.RawMessage `json:"itemCode"`
	Result     string          `json:"result"`
	Reason     *string         `json:"reason"`
	Suggestion *string         `json:"suggestion"`
}

func rowKey(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
