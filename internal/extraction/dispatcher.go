package extraction

import (
	"context"
	"fmt"

	"takeoff-backend/internal/files"
	"takeoff-backend/internal/items"
	"takeoff-backend/internal/jobs"
	"takeoff-backend/internal/llm"
)

// Extractor holds the per-kind rules around the model call.
type Extractor interface {
	// Prepare builds the request before any model call. It reports unmet
	// preconditions such as ErrScheduleCodesRequired.
	Prepare(ctx context.Context, job jobs.Job) (llm.ExtractRequest, error)
	// Keep filters the parsed items before they are stored.
	Keep(req llm.ExtractRequest, list []items.Item) []items.Item
}

// Dispatcher routes jobs to the extractor for their file kind.
type Dispatcher struct {
	handlers map[files.Kind]Extractor
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[files.Kind]Extractor)}
}

func (d *Dispatcher) Register(kind files.Kind, e Extractor) {
	d.handlers[kind] = e
}

// For returns the extractor for kind.
func (d *Dispatcher) For(kind files.Kind) (Extractor, error) {
	e, ok := d.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return e, nil
}

// DefaultDispatcher registers the drawing, schedule and BOQ extractors.
func DefaultDispatcher(repo items.Repo) *Dispatcher {
	d := NewDispatcher()
	d.Register(files.KindDrawing, drawingExtractor{items: repo})
	d.Register(files.KindSchedule, scheduleExtractor{})
	d.Register(files.KindBOQ, boqExtractor{})
	return d
}

// scheduleCodes returns the project's normalized schedule item codes.
func scheduleCodes(ctx context.Context, repo items.Repo, projectID string) ([]string, error) {
	list, err := repo.ListByKind(ctx, projectID, files.KindSchedule)
	if err != nil {
		return nil, fmt.Errorf("load schedule items: %w", err)
	}
	return items.Codes(list), nil
}

type drawingExtractor struct {
	items items.Repo
}

func (e drawingExtractor) Prepare(ctx context.Context, job jobs.Job) (llm.ExtractRequest, error) {
	codes, err := scheduleCodes(ctx, e.items, job.ProjectID)
	if err != nil {
		return llm.ExtractRequest{}, err
	}
	if len(codes) == 0 {
		return llm.ExtractRequest{}, ErrScheduleCodesRequired
	}
	return llm.ExtractRequest{Kind: files.KindDrawing, ScheduleCodes: codes}, nil
}

// Keep stores every drawing row and tags whether its code was a schedule code
// when extracted. Untagged codes still matter to comparison, which excludes
// BOQ lines that only drawings know about.
func (drawingExtractor) Keep(req llm.ExtractRequest, list []items.Item) []items.Item {
	known := make(map[string]bool, len(req.ScheduleCodes))
	for _, c := range req.ScheduleCodes {
		known[items.NormalizeCode(c)] = true
	}
	out := make([]items.Item, 0, len(list))
	for _, it := range list {
		fields := make(map[string]any, len(it.Fields)+1)
		for k, v := range it.Fields {
			fields[k] = v
		}
		fields[items.FieldScheduleRef] = known[items.NormalizeCode(it.ItemCode)]
		it.Fields = fields
		out = append(out, it)
	}
	return out
}

type scheduleExtractor struct{}

func (scheduleExtractor) Prepare(context.Context, jobs.Job) (llm.ExtractRequest, error) {
	return llm.ExtractRequest{Kind: files.KindSchedule}, nil
}

// Keep drops schedule rows without a code; they cannot be referenced.
func (scheduleExtractor) Keep(_ llm.ExtractRequest, list []items.Item) []items.Item {
	out := make([]items.Item, 0, len(list))
	for _, it := range list {
		if items.NormalizeCode(it.ItemCode) != "" {
			out = append(out, it)
		}
	}
	return out
}

type boqExtractor struct{}

func (boqExtractor) Prepare(context.Context, jobs.Job) (llm.ExtractRequest, error) {
	return llm.ExtractRequest{Kind: files.KindBOQ}, nil
}

// Keep retains every row; headings and notes keep the document order readable.
func (boqExtractor) Keep(_ llm.ExtractRequest, list []items.Item) []items.Item {
	return list
}
