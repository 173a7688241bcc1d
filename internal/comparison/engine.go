package comparison

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"takeoff-backend/internal/chunk"
	"takeoff-backend/internal/files"
	"takeoff-backend/internal/items"
	"takeoff-backend/internal/llm"
	"takeoff-backend/internal/projectlog"
	"takeoff-backend/internal/shared/metrics"
	"takeoff-backend/internal/shared/telemetry"
	"takeoff-backend/internal/shared/util"
)

// Defaults used when the engine is constructed without explicit sizes.
const (
	DefaultChunkSize   = 40
	DefaultConcurrency = 4
	// SuggestChunkSize keeps suggestion prompts small; each line carries a free-text description.
	SuggestChunkSize = 10
)

const maxErrorMessage = 500

// Notifier is told when a run was stored.
type Notifier interface {
	Notify(ctx context.Context, projectID string)
}

// Engine validates BOQ lines against schedule and drawing detail.
type Engine struct {
	Items       items.Repo
	Runs        RunRepo
	LLM         llm.Client
	Logs        *projectlog.Writer
	Notifier    Notifier
	Policy      llm.Policy
	ChunkSize   int
	Concurrency int
	CallTimeout time.Duration
}

// inputs are the comparable sets of one project.
type inputs struct {
	boq           []items.Item
	excluded      int
	detail        []items.Item
	scheduleCodes map[string]bool
	drawingItems  int
}

// chunkOutcome is written by exactly one goroutine, at its chunk's index.
type chunkOutcome struct {
	rows []llm.ComparisonRow
	err  error
}

// Compare returns the run for the project's current inputs. Without force a
// stored successful run with the same fingerprint is returned with cached=true.
// A run whose chunks partly failed is stored with StatusFailed and returned
// without an error; err is reserved for failures to load or store.
func (e *Engine) Compare(ctx context.Context, projectID string, force bool) (Run, bool, error) {
	in, err := e.load(ctx, projectID)
	if err != nil {
		return Run{}, false, err
	}
	if len(in.boq) == 0 {
		return Run{}, false, ErrNothingToCompare
	}
	if len(in.detail) == 0 {
		return Run{}, false, ErrNoDetail
	}

	fp := Fingerprint(in.boq, in.detail)
	if !force {
		cached, err := e.Runs.LatestDone(ctx, projectID, fp)
		switch {
		case err == nil:
			metrics.IncComparisonCacheHits()
			telemetry.Info("compare.cache_hit", map[string]any{"project_id": projectID, "run_id": cached.ID})
			return cached, true, nil
		case !errors.Is(err, ErrNotFound):
			return Run{}, false, fmt.Errorf("lookup cached run: %w", err)
		}
	}

	start := time.Now()
	chunks := chunk.Split(in.boq, e.chunkSize())
	e.Logs.Infof(ctx, projectID, "", "", "comparison started: %d items in %d chunk(s)", len(in.boq), len(chunks))
	outcomes := e.fanOut(ctx, projectID, chunks, in.detail, llm.TaskCompare)

	run := Run{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Fingerprint: fp,
		Status:      StatusDone,
		Results:     merge(chunks, outcomes),
		CreatedAt:   time.Now().UTC(),
	}
	run.Stats = Stats{
		ComparableItems: len(in.boq),
		ExcludedItems:   in.excluded,
		ScheduleCodes:   len(in.scheduleCodes),
		DrawingItems:    in.drawingItems,
		Chunks:          len(chunks),
	}
	for _, r := range run.Results {
		if r.Result == llm.VerdictMatched {
			run.Stats.Matched++
		} else {
			run.Stats.Mismatched++
		}
	}
	for i, out := range outcomes {
		if out.err == nil {
			continue
		}
		run.Stats.FailedChunks++
		if run.Error == nil {
			run.Status = StatusFailed
			run.Error = &RunError{
				Kind:    errorKind(out.err),
				Message: sanitizeError(fmt.Sprintf("chunk %d/%d: %s", i+1, len(chunks), out.err.Error())),
				Chunk:   i + 1,
			}
		}
	}

	record := context.WithoutCancel(ctx)
	if err := e.Runs.Save(record, run); err != nil {
		return Run{}, false, fmt.Errorf("save comparison run: %w", err)
	}
	metrics.IncComparisonRuns()
	metrics.ObserveComparisonDurationMs(float64(time.Since(start).Milliseconds()))

	fields := map[string]any{
		"project_id":    projectID,
		"run_id":        run.ID,
		"status":        string(run.Status),
		"chunks":        run.Stats.Chunks,
		"failed_chunks": run.Stats.FailedChunks,
		"matched":       run.Stats.Matched,
		"mismatched":    run.Stats.Mismatched,
		"duration_ms":   time.Since(start).Milliseconds(),
	}
	if run.Status == StatusFailed {
		fields["error"] = run.Error.Message
		telemetry.Error("compare.run", fields)
		e.Logs.Errorf(record, projectID, "", "", "comparison failed: %s", run.Error.Message)
	} else {
		telemetry.Info("compare.run", fields)
		e.Logs.Infof(record, projectID, "", "", "comparison finished: %d matched, %d mismatched", run.Stats.Matched, run.Stats.Mismatched)
	}
	if e.Notifier != nil {
		e.Notifier.Notify(record, projectID)
	}
	return run, false, nil
}

// Latest returns the newest stored run of the project.
func (e *Engine) Latest(ctx context.Context, projectID string) (Run, error) {
	return e.Runs.Latest(ctx, projectID)
}

// fanOut runs one model call per chunk with bounded parallelism. A failed
// chunk does not cancel the others.
func (e *Engine) fanOut(ctx context.Context, projectID string, chunks [][]items.Item, detail []items.Item, task llm.Task) []chunkOutcome {
	outcomes := make([]chunkOutcome, len(chunks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())
	for i, group := range chunks {
		g.Go(func() error {
			label := fmt.Sprintf("%d/%d", i+1, len(chunks))
			res, attempts, err := llm.Do(gCtx, e.Policy, func(ctx context.Context, attempt int) (llm.Result, error) {
				callCtx, cancel := e.callContext(ctx)
				defer cancel()
				return e.LLM.Compare(callCtx, llm.CompareRequest{Task: task, BOQ: group, Detail: detail})
			}, func(attempt int, err error) {
				e.Logs.Warnf(gCtx, projectID, "", "", "%s chunk %s attempt %d failed, retrying: %s", task, label, attempt, sanitizeError(err.Error()))
			})
			if err != nil {
				metrics.IncComparisonChunkFailures()
				telemetry.Error("compare.chunk.failed", map[string]any{
					"project_id": projectID,
					"task":       string(task),
					"chunk":      i + 1,
					"chunks":     len(chunks),
					"attempts":   attempts,
					"error":      err.Error(),
				})
				e.Logs.Errorf(gCtx, projectID, "", "", "%s chunk %s failed after %d attempt(s): %s", task, label, attempts, sanitizeError(err.Error()))
				outcomes[i] = chunkOutcome{err: err}
				return nil
			}
			e.Logs.Infof(gCtx, projectID, "", "", "%s chunk %s ok: %d result(s)", task, label, len(res.Rows))
			outcomes[i] = chunkOutcome{rows: res.Rows}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// merge flattens chunk rows in chunk order, keeping only rows for codes that
// were sent in that chunk.
func merge(chunks [][]items.Item, outcomes []chunkOutcome) []Result {
	merged := make([]Result, 0)
	for i, oc := range outcomes {
		if oc.err != nil {
			continue
		}
		sent := make(map[string]items.Item, len(chunks[i]))
		for _, it := range chunks[i] {
			code := items.NormalizeCode(it.ItemCode)
			if _, ok := sent[code]; !ok {
				sent[code] = it
			}
		}
		for _, row := range oc.rows {
			it, ok := sent[items.NormalizeCode(row.ItemCode)]
			if !ok {
				continue
			}
			merged = append(merged, Result{
				ItemCode:    it.ItemCode,
				Description: it.Description,
				Result:      normalizeVerdict(row.Result),
				Reason:      strings.TrimSpace(row.Reason),
				Chunk:       i + 1,
			})
		}
	}
	return merged
}

// load builds the comparable sets. Drawing rows count as detail only when a
// schedule references their code; a BOQ line whose code is known solely from
// such drawings is not comparable.
func (e *Engine) load(ctx context.Context, projectID string) (inputs, error) {
	boq, err := e.Items.ListByKind(ctx, projectID, files.KindBOQ)
	if err != nil {
		return inputs{}, fmt.Errorf("load boq items: %w", err)
	}
	schedule, err := e.Items.ListByKind(ctx, projectID, files.KindSchedule)
	if err != nil {
		return inputs{}, fmt.Errorf("load schedule items: %w", err)
	}
	drawings, err := e.Items.ListByKind(ctx, projectID, files.KindDrawing)
	if err != nil {
		return inputs{}, fmt.Errorf("load drawing items: %w", err)
	}

	in := inputs{scheduleCodes: make(map[string]bool)}
	for _, code := range items.Codes(schedule) {
		in.scheduleCodes[code] = true
	}
	unreferenced := make(map[string]bool)
	in.detail = append(in.detail, schedule...)
	for _, it := range drawings {
		code := items.NormalizeCode(it.ItemCode)
		if in.scheduleCodes[code] {
			in.detail = append(in.detail, it)
			in.drawingItems++
		} else if code != "" {
			unreferenced[code] = true
		}
	}
	for _, it := range boq {
		if it.IsPlaceholder() {
			continue
		}
		if unreferenced[items.NormalizeCode(it.ItemCode)] {
			in.excluded++
			continue
		}
		in.boq = append(in.boq, it)
	}
	return in, nil
}

func (e *Engine) chunkSize() int {
	if e.ChunkSize > 0 {
		return e.ChunkSize
	}
	return DefaultChunkSize
}

func (e *Engine) concurrency() int {
	if e.Concurrency > 0 {
		return e.Concurrency
	}
	return DefaultConcurrency
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.CallTimeout)
}

func normalizeVerdict(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "matched", "match", "ok":
		return llm.VerdictMatched
	default:
		return llm.VerdictMismatched
	}
}

func errorKind(err error) string {
	if llm.Classify(err) == llm.ClassRetryable {
		return "transient"
	}
	return "fatal"
}

func sanitizeError(msg string) string {
	return util.SanitizeMessage(msg, maxErrorMessage)
}
