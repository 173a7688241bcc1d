package llm

import (
	_ "embed"
	"strings"

	"takeoff-backend/internal/files"
)

var (
	//go:embed prompts/drawing.txt
	promptDrawing string
	//go:embed prompts/schedule.txt
	promptSchedule string
	//go:embed prompts/boq.txt
	promptBOQ string
	//go:embed prompts/compare.txt
	promptCompare string
	//go:embed prompts/suggest.txt
	promptSuggest string
)

// ExtractPrompt returns the system prompt for a file kind and whether the kind was recognized.
func ExtractPrompt(kind files.Kind, scheduleCodes []string) (string, bool) {
	switch kind {
	case files.KindDrawing:
		return strings.ReplaceAll(promptDrawing, "{{SCHEDULE_CODES}}", strings.Join(scheduleCodes, ", ")), true
	case files.KindSchedule:
		return promptSchedule, true
	case files.KindBOQ:
		return promptBOQ, true
	default:
		return "", false
	}
}

// ComparePrompt returns the system prompt for a comparison task.
func ComparePrompt(task Task) string {
	if task == TaskSuggest {
		return promptSuggest
	}
	return promptCompare
}
