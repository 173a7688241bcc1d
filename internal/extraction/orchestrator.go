package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"takeoff-backend/internal/files"
	"takeoff-backend/internal/items"
	"takeoff-backend/internal/jobs"
	"takeoff-backend/internal/llm"
	"takeoff-backend/internal/projectlog"
	"takeoff-backend/internal/queue"
	"takeoff-backend/internal/shared/storage/object"
	"takeoff-backend/internal/shared/telemetry"
	"takeoff-backend/internal/shared/util"
)

// Stage labels reported while a job is processing.
const (
	StageUploading  = "uploading"
	StageExtracting = "extracting"
	StageSaving     = "saving"
)

const maxErrorMessage = 500

// Orchestrator turns uploaded files into extraction jobs and drives each job
// to a terminal state.
type Orchestrator struct {
	Files      files.Repo
	Store      object.ObjectStore
	Jobs       *jobs.Service
	Items      items.Repo
	Logs       *projectlog.Writer
	LLM        llm.Client
	Queue      queue.Client
	Dispatcher *Dispatcher
	Policy     llm.Policy
	// CallTimeout bounds each model call; a timeout is retryable.
	CallTimeout time.Duration
}

// FileExtraction is the stored outcome of a file's latest successful job,
// with the provider's raw output kept for audit.
type FileExtraction struct {
	FileID  string       `json:"fileId"`
	Kind    files.Kind   `json:"kind"`
	Items   []items.Item `json:"items"`
	RawText string       `json:"rawText"`
}

// RetryOptions qualifies a manual retry.
type RetryOptions struct {
	// ScheduleReady marks a drawing retry triggered by newly extracted
	// schedule codes. Such retries are accepted while a job is in flight.
	ScheduleReady bool
}

// Start submits one job per file. An empty fileIDs list means every file of
// the project. Files that already have a job in flight keep that job.
func (o *Orchestrator) Start(ctx context.Context, projectID string, fileIDs []string, key string) ([]jobs.Job, error) {
	if strings.TrimSpace(key) == "" {
		return nil, jobs.ErrMissingKey
	}
	targets, err := o.resolveFiles(ctx, projectID, fileIDs)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNoFiles
	}
	// Schedules first so drawing jobs are more likely to find codes.
	slices.SortStableFunc(targets, func(a, b files.File) int {
		return kindOrder(a.Kind) - kindOrder(b.Kind)
	})

	telemetry.Info("extraction.start", map[string]any{
		"project_id": projectID,
		"files":      len(targets),
		"request_id": requestIDFromContext(ctx),
	})
	out := make([]jobs.Job, 0, len(targets))
	for _, f := range targets {
		job, err := o.submit(ctx, f, key, jobs.ReasonSubmit, jobs.InFlightReuse)
		if err != nil {
			return out, err
		}
		out = append(out, job)
	}
	return out, nil
}

// Retry submits a fresh job for one file under a new idempotency key. It
// fails with jobs.ErrJobInFlight while another job for the file is queued or
// processing, unless opts.ScheduleReady applies to a drawing.
func (o *Orchestrator) Retry(ctx context.Context, projectID, fileID, key string, opts RetryOptions) (jobs.Job, error) {
	if strings.TrimSpace(key) == "" {
		return jobs.Job{}, jobs.ErrMissingKey
	}
	f, err := o.Files.Get(ctx, projectID, fileID)
	if err != nil {
		return jobs.Job{}, err
	}
	policy, reason := jobs.InFlightReject, jobs.ReasonManualRetry
	if opts.ScheduleReady && f.Kind == files.KindDrawing {
		policy, reason = jobs.InFlightReuse, jobs.ReasonScheduleReady
	}
	telemetry.Info("extraction.retry", map[string]any{
		"project_id": projectID,
		"file_id":    fileID,
		"reason":     reason,
		"request_id": requestIDFromContext(ctx),
	})
	return o.submit(ctx, f, key, reason, policy)
}

// Process runs one job. Failures are recorded on the job; the returned error
// is non-nil only when the outcome could not be recorded.
func (o *Orchestrator) Process(ctx context.Context, jobID string) (err error) {
	job, err := o.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		telemetry.Info("extraction.skip_terminal", map[string]any{"job_id": job.ID, "status": string(job.Status)})
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("extraction.panic", map[string]any{"job_id": job.ID, "panic": fmt.Sprint(r)})
			err = o.fail(ctx, job.ID, jobs.ErrorKindInternal, fmt.Sprintf("internal error: %v", r))
		}
	}()

	file, err := o.Files.Get(ctx, job.ProjectID, job.FileID)
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			return o.fail(ctx, job.ID, jobs.ErrorKindFatal, "file no longer exists")
		}
		return o.fail(ctx, job.ID, jobs.ErrorKindInternal, "load file: "+err.Error())
	}

	extractor, err := o.dispatcher().For(file.Kind)
	if err != nil {
		return o.fail(ctx, job.ID, jobs.ErrorKindFatal, err.Error())
	}
	req, err := extractor.Prepare(ctx, job)
	if errors.Is(err, ErrScheduleCodesRequired) {
		if err := o.fail(ctx, job.ID, jobs.ErrorKindPrecondition, ErrScheduleCodesRequired.Error()); err != nil {
			return err
		}
		// A schedule may have completed between Prepare and the failure above.
		o.retryIfScheduleReady(ctx, job)
		return nil
	}
	if err != nil {
		return o.fail(ctx, job.ID, jobs.ErrorKindInternal, err.Error())
	}

	if job.Status == jobs.StatusQueued {
		job, err = o.Jobs.Transition(ctx, job.ID, jobs.StatusProcessing, jobs.StagePatch(StageUploading))
	} else {
		telemetry.Warn("extraction.resume", map[string]any{"job_id": job.ID, "stage": job.Stage})
		job, err = o.Jobs.SetStage(ctx, job.ID, StageUploading)
	}
	if err != nil {
		return err
	}

	ex, ref, err := o.run(ctx, job, file, extractor, req)
	if err != nil {
		if llm.IsAuth(err) {
			o.resetClient()
		}
		err = o.fail(ctx, job.ID, errorKind(err), err.Error())
		o.release(ctx, ref)
		return err
	}

	record := context.WithoutCancel(ctx)
	_, err = o.Jobs.Transition(record, job.ID, jobs.StatusDone, jobs.Patch{
		Result: &jobs.ResultSummary{ItemCount: len(ex.Items)},
	})
	o.release(ctx, ref)
	if err != nil {
		return err
	}
	if file.Kind == files.KindSchedule && len(ex.Items) > 0 {
		o.releaseWaitingDrawings(record, job.ProjectID)
	}
	return nil
}

// run uploads, extracts and saves. The returned artifact, if any, is released
// by the caller once the job's terminal state is recorded.
func (o *Orchestrator) run(ctx context.Context, job jobs.Job, file files.File, extractor Extractor, req llm.ExtractRequest) (items.Extraction, llm.ArtifactRef, error) {
	var ref llm.ArtifactRef
	data, err := o.readFile(ctx, file)
	if err != nil {
		return items.Extraction{}, ref, err
	}

	ref, _, err = llm.Do(ctx, o.Policy, func(ctx context.Context, attempt int) (llm.ArtifactRef, error) {
		callCtx, cancel := o.callContext(ctx)
		defer cancel()
		return o.LLM.Upload(callCtx, llm.Document{
			ProjectID: file.ProjectID,
			FileID:    file.ID,
			FileName:  file.FileName,
			MimeType:  file.MimeType,
			Kind:      file.Kind,
			Data:      data,
		})
	}, o.onRetry(ctx, job, "upload"))
	if err != nil {
		return items.Extraction{}, llm.ArtifactRef{}, fmt.Errorf("upload: %w", err)
	}

	if _, err := o.Jobs.SetStage(ctx, job.ID, StageExtracting); err != nil {
		return items.Extraction{}, ref, internalError{err}
	}
	req.Artifact = ref
	res, attempts, err := llm.Do(ctx, o.Policy, func(ctx context.Context, attempt int) (llm.Result, error) {
		if _, err := o.Jobs.SetAttempt(ctx, job.ID, attempt); err != nil {
			return llm.Result{}, internalError{err}
		}
		callCtx, cancel := o.callContext(ctx)
		defer cancel()
		return o.LLM.Extract(callCtx, req)
	}, o.onRetry(ctx, job, "extract"))
	if err != nil {
		return items.Extraction{}, ref, fmt.Errorf("extract failed after %d attempt(s): %w", attempts, err)
	}

	if _, err := o.Jobs.SetStage(ctx, job.ID, StageSaving); err != nil {
		return items.Extraction{}, ref, internalError{err}
	}
	ex := items.Extraction{
		ProjectID: job.ProjectID,
		FileID:    job.FileID,
		FileKind:  file.Kind,
		JobID:     job.ID,
		Items:     extractor.Keep(req, res.Items),
		RawText:   res.RawText,
	}
	if err := o.Items.ReplaceForFile(ctx, ex); err != nil {
		return items.Extraction{}, ref, internalError{fmt.Errorf("save items: %w", err)}
	}
	// A file removed while the model was working must not get its items back.
	if _, err := o.Files.Get(ctx, job.ProjectID, job.FileID); errors.Is(err, files.ErrNotFound) {
		if err := o.Items.DeleteByFile(context.WithoutCancel(ctx), job.ProjectID, job.FileID); err != nil {
			return items.Extraction{}, ref, internalError{fmt.Errorf("purge items of deleted file: %w", err)}
		}
		return items.Extraction{}, ref, llm.Fatal("file was deleted during extraction", nil)
	}
	return ex, ref, nil
}

// Abandon fails jobs whose messages were dropped before any worker ran them,
// so they do not stay queued.
func (o *Orchestrator) Abandon(ctx context.Context, msgs []queue.Message) {
	for _, msg := range msgs {
		job, err := o.Jobs.Get(ctx, msg.JobID)
		if err != nil || job.Status != jobs.StatusQueued {
			continue
		}
		_ = o.fail(ctx, job.ID, jobs.ErrorKindInternal, "service stopped before the job ran")
	}
}

// Extraction returns the stored items and raw output of one file.
func (o *Orchestrator) Extraction(ctx context.Context, projectID, fileID string) (FileExtraction, error) {
	f, err := o.Files.Get(ctx, projectID, fileID)
	if err != nil {
		return FileExtraction{}, err
	}
	list, err := o.Items.ListByFile(ctx, projectID, fileID)
	if err != nil {
		return FileExtraction{}, fmt.Errorf("load items: %w", err)
	}
	raw, err := o.Items.RawText(ctx, fileID)
	if err != nil {
		return FileExtraction{}, fmt.Errorf("load raw output: %w", err)
	}
	return FileExtraction{FileID: f.ID, Kind: f.Kind, Items: list, RawText: raw}, nil
}

func (o *Orchestrator) submit(ctx context.Context, f files.File, key, reason string, policy jobs.InFlightPolicy) (jobs.Job, error) {
	job, created, err := o.Jobs.Submit(ctx, jobs.SubmitParams{
		ProjectID:      f.ProjectID,
		FileID:         f.ID,
		FileKind:       f.Kind,
		IdempotencyKey: key,
		Reason:         reason,
		OnInFlight:     policy,
	})
	if err != nil || !created {
		return job, err
	}
	msg := queue.Message{
		JobID:      job.ID,
		ProjectID:  job.ProjectID,
		RequestID:  requestIDFromContext(ctx),
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    queue.MessageVersion,
	}
	if err := o.Queue.Send(ctx, msg); err != nil {
		_ = o.fail(ctx, job.ID, jobs.ErrorKindInternal, "could not enqueue job")
		return job, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return job, nil
}

// releaseWaitingDrawings retries drawings whose latest job is waiting for
// schedule codes.
func (o *Orchestrator) releaseWaitingDrawings(ctx context.Context, projectID string) {
	list, err := o.Files.ListByProject(ctx, projectID)
	if err != nil {
		telemetry.Error("extraction.release_drawings_failed", map[string]any{"project_id": projectID, "error": err.Error()})
		return
	}
	for _, f := range list {
		if f.Kind != files.KindDrawing {
			continue
		}
		latest, err := o.Jobs.LatestForFile(ctx, f.ID)
		if err != nil || !waitingForSchedule(latest) {
			continue
		}
		o.retryScheduleReady(ctx, latest)
	}
}

func (o *Orchestrator) retryIfScheduleReady(ctx context.Context, failed jobs.Job) {
	record := context.WithoutCancel(ctx)
	codes, err := scheduleCodes(record, o.Items, failed.ProjectID)
	if err != nil || len(codes) == 0 {
		return
	}
	o.retryScheduleReady(record, failed)
}

// retryScheduleReady derives the idempotency key from the waiting job so
// concurrent triggers resolve to the same retry.
func (o *Orchestrator) retryScheduleReady(ctx context.Context, waiting jobs.Job) {
	key := uuid.NewSHA1(uuid.NameSpaceOID, []byte(waiting.ID+":"+jobs.ReasonScheduleReady)).String()
	job, err := o.Retry(ctx, waiting.ProjectID, waiting.FileID, key, RetryOptions{ScheduleReady: true})
	if err != nil {
		telemetry.Error("extraction.schedule_ready_retry_failed", map[string]any{
			"project_id": waiting.ProjectID,
			"file_id":    waiting.FileID,
			"error":      err.Error(),
		})
		return
	}
	o.Logs.Infof(ctx, waiting.ProjectID, waiting.FileID, job.ID, "schedule codes available, drawing extraction retried")
}

func waitingForSchedule(job jobs.Job) bool {
	return job.Status == jobs.StatusFailed && job.Error != nil && job.Error.Kind == jobs.ErrorKindPrecondition
}

// fail records a terminal failure even when ctx was cancelled.
func (o *Orchestrator) fail(ctx context.Context, jobID string, kind jobs.ErrorKind, msg string) error {
	_, err := o.Jobs.Transition(context.WithoutCancel(ctx), jobID, jobs.StatusFailed, jobs.Patch{
		Error: &jobs.JobError{Kind: kind, Message: sanitizeError(msg)},
	})
	if err != nil {
		telemetry.Error("extraction.record_failure_failed", map[string]any{"job_id": jobID, "error": err.Error()})
		return fmt.Errorf("record failure of job %s: %w", jobID, err)
	}
	return nil
}

func (o *Orchestrator) readFile(ctx context.Context, file files.File) ([]byte, error) {
	rc, err := o.Store.Open(ctx, file.StorageKey)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return nil, llm.Fatal("stored file is missing", err)
		}
		return nil, internalError{fmt.Errorf("open stored file: %w", err)}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, internalError{fmt.Errorf("read stored file: %w", err)}
	}
	return data, nil
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.CallTimeout)
}

func (o *Orchestrator) onRetry(ctx context.Context, job jobs.Job, call string) func(int, error) {
	return func(attempt int, err error) {
		o.Logs.Warnf(ctx, job.ProjectID, job.FileID, job.ID, "%s attempt %d failed, retrying: %s", call, attempt, sanitizeError(err.Error()))
	}
}

// release drops the provider copy of a document. Failures are logged by the client.
func (o *Orchestrator) release(ctx context.Context, ref llm.ArtifactRef) {
	if ref.ID == "" {
		return
	}
	o.LLM.Delete(context.WithoutCancel(ctx), ref)
}

func (o *Orchestrator) resetClient() {
	if r, ok := o.LLM.(interface{ Reset() error }); ok {
		_ = r.Reset()
	}
}

func (o *Orchestrator) dispatcher() *Dispatcher {
	if o.Dispatcher != nil {
		return o.Dispatcher
	}
	return DefaultDispatcher(o.Items)
}

func (o *Orchestrator) resolveFiles(ctx context.Context, projectID string, fileIDs []string) ([]files.File, error) {
	if len(fileIDs) == 0 {
		return o.Files.ListByProject(ctx, projectID)
	}
	out := make([]files.File, 0, len(fileIDs))
	seen := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		f, err := o.Files.Get(ctx, projectID, id)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", id, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// internalError marks failures of our own storage rather than the provider.
type internalError struct{ err error }

func (e internalError) Error() string { return e.err.Error() }
func (e internalError) Unwrap() error { return e.err }

func errorKind(err error) jobs.ErrorKind {
	var ie internalError
	if errors.As(err, &ie) {
		return jobs.ErrorKindInternal
	}
	if llm.Classify(err) == llm.ClassRetryable {
		return jobs.ErrorKindTransient
	}
	return jobs.ErrorKindFatal
}

func kindOrder(k files.Kind) int {
	switch k {
	case files.KindSchedule:
		return 0
	case files.KindBOQ:
		return 1
	default:
		return 2
	}
}

func sanitizeError(msg string) string {
	return util.SanitizeMessage(msg, maxErrorMessage)
}
