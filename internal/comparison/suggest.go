package comparison

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"takeoff-backend/internal/chunk"
	"takeoff-backend/internal/files"
	"takeoff-backend/internal/items"
	"takeoff-backend/internal/llm"
	"takeoff-backend/internal/shared/telemetry"
)

// Suggest asks the model for schedule codes of BOQ lines that have none. The
// lines are renumbered before sending so answers can be mapped back across files.
func (e *Engine) Suggest(ctx context.Context, projectID string) (SuggestResult, error) {
	boq, err := e.Items.ListByKind(ctx, projectID, files.KindBOQ)
	if err != nil {
		return SuggestResult{}, fmt.Errorf("load boq items: %w", err)
	}
	schedule, err := e.Items.ListByKind(ctx, projectID, files.KindSchedule)
	if err != nil {
		return SuggestResult{}, fmt.Errorf("load schedule items: %w", err)
	}
	if len(schedule) == 0 {
		return SuggestResult{}, ErrNoDetail
	}

	uncoded := make([]items.Item, 0)
	for _, it := range boq {
		if strings.TrimSpace(it.ItemCode) != "" || strings.TrimSpace(it.Description) == "" {
			continue
		}
		if rt, _ := it.Fields["rowType"].(string); rt != "" && rt != "item" {
			continue
		}
		uncoded = append(uncoded, it)
	}
	if len(uncoded) == 0 {
		return SuggestResult{Suggestions: []Suggestion{}}, nil
	}

	// The prompt uses the line position as the row key.
	sent := make([]items.Item, len(uncoded))
	for i, it := range uncoded {
		it.Position = i
		sent[i] = it
	}
	chunks := chunk.Split(sent, SuggestChunkSize)
	outcomes := e.fanOut(ctx, projectID, chunks, schedule, llm.TaskSuggest)

	out := SuggestResult{Suggestions: make([]Suggestion, 0, len(uncoded)), Chunks: len(chunks)}
	for i, oc := range outcomes {
		if oc.err != nil {
			out.FailedChunks++
			if out.Error == "" {
				out.Error = sanitizeError(fmt.Sprintf("chunk %d/%d: %s", i+1, len(chunks), oc.err.Error()))
			}
			continue
		}
		for _, row := range oc.rows {
			idx, err := strconv.Atoi(strings.TrimSpace(row.ItemCode))
			if err != nil || idx < 0 || idx >= len(uncoded) {
				continue
			}
			code := strings.TrimSpace(row.Suggestion)
			if code == "" {
				continue
			}
			src := uncoded[idx]
			out.Suggestions = append(out.Suggestions, Suggestion{
				ItemID:        src.ID,
				FileID:        src.FileID,
				Position:      src.Position,
				Description:   src.Description,
				SuggestedCode: code,
				Reason:        strings.TrimSpace(row.Reason),
			})
		}
	}
	telemetry.Info("compare.suggest", map[string]any{
		"project_id":    projectID,
		"lines":         len(uncoded),
		"suggestions":   len(out.Suggestions),
		"failed_chunks": out.FailedChunks,
	})
	return out, nil
}
