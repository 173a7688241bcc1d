package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"takeoff-backend/internal/files"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectJob = `
SELECT id, project_id, file_id, file_kind, idempotency_key, status, stage, attempt, reason,
       error_kind, error_message, result, created_at, updated_at, started_at, finished_at
FROM extraction_jobs`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Submit serializes on the file row so concurrent submits resolve to one job.
func (r *PGRepo) Submit(ctx context.Context, p SubmitParams) (Job, bool, error) {
	if strings.TrimSpace(p.IdempotencyKey) == "" {
		return Job{}, false, ErrMissingKey
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Job{}, false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT id FROM project_files WHERE id = $1 FOR UPDATE`, p.FileID); err != nil {
		return Job{}, false, fmt.Errorf("lock file: %w", err)
	}

	sameKey, err := optionalJob(getOne(ctx, tx, selectJob+`
WHERE file_id = $1 AND idempotency_key = $2
ORDER BY created_at DESC
LIMIT 1`, p.FileID, p.IdempotencyKey))
	if err != nil {
		return Job{}, false, err
	}
	active, err := optionalJob(getOne(ctx, tx, selectJob+`
WHERE file_id = $1 AND status IN ('queued', 'processing')
LIMIT 1`, p.FileID))
	if err != nil {
		return Job{}, false, err
	}

	switch decideSubmit(sameKey, active, p) {
	case outcomeReplay:
		return *sameKey, false, tx.Commit()
	case outcomeReuseInFlight:
		return *active, false, tx.Commit()
	case outcomeReject:
		return *active, false, ErrJobInFlight
	}

	job := newJob(p, time.Now().UTC())
	const insert = `
INSERT INTO extraction_jobs (id, project_id, file_id, file_kind, idempotency_key, status, stage, attempt, reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := tx.ExecContext(ctx, insert,
		job.ID, job.ProjectID, job.FileID, string(job.FileKind), job.IdempotencyKey,
		string(job.Status), job.Stage, job.Attempt, job.Reason, job.CreatedAt, job.UpdatedAt,
	); err != nil {
		return Job{}, false, fmt.Errorf("insert job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

func (r *PGRepo) Transition(ctx context.Context, jobID string, next Status, patch Patch) (Job, error) {
	return r.mutate(ctx, jobID, func(job *Job, now time.Time) error {
		return applyTransition(job, next, patch, now)
	})
}

func (r *PGRepo) Update(ctx context.Context, jobID string, patch Patch) (Job, error) {
	return r.mutate(ctx, jobID, func(job *Job, now time.Time) error {
		if job.Status.Terminal() {
			return ErrInvalidTransition
		}
		patch.apply(job)
		job.UpdatedAt = now
		return nil
	})
}

func (r *PGRepo) mutate(ctx context.Context, jobID string, fn func(*Job, time.Time) error) (Job, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Job{}, err
	}
	defer tx.Rollback()

	job, err := getOne(ctx, tx, selectJob+` WHERE id = $1 FOR UPDATE`, jobID)
	if err != nil {
		return Job{}, err
	}
	if err := fn(&job, time.Now().UTC()); err != nil {
		return job, err
	}

	var errKind, errMsg any
	if job.Error != nil {
		errKind, errMsg = string(job.Error.Kind), job.Error.Message
	}
	var result any
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return Job{}, err
		}
		result = string(b)
	}
	const update = `
UPDATE extraction_jobs
SET status = $2, stage = $3, attempt = $4, error_kind = $5, error_message = $6, result = $7,
    updated_at = $8, started_at = $9, finished_at = $10
WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update,
		job.ID, string(job.Status), job.Stage, job.Attempt, errKind, errMsg, result,
		job.UpdatedAt, nullTime(job.StartedAt), nullTime(job.FinishedAt),
	); err != nil {
		return Job{}, fmt.Errorf("update job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (r *PGRepo) Get(ctx context.Context, jobID string) (Job, error) {
	return getOne(ctx, r.DB, selectJob+` WHERE id = $1`, jobID)
}

func (r *PGRepo) ListByProject(ctx context.Context, projectID string) ([]Job, error) {
	rows, err := r.DB.QueryContext(ctx, selectJob+`
WHERE project_id = $1
ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *PGRepo) LatestForFile(ctx context.Context, fileID string) (Job, error) {
	return getOne(ctx, r.DB, selectJob+`
WHERE file_id = $1
ORDER BY created_at DESC
LIMIT 1`, fileID)
}

func getOne(ctx context.Context, q queryer, query string, args ...any) (Job, error) {
	job, err := scanJob(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return job, err
}

func optionalJob(job Job, err error) (*Job, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var kind, status string
	var errKind, errMsg, result sql.NullString
	var startedAt, finishedAt sql.NullTime
	if err := row.Scan(
		&j.ID, &j.ProjectID, &j.FileID, &kind, &j.IdempotencyKey, &status, &j.Stage, &j.Attempt, &j.Reason,
		&errKind, &errMsg, &result, &j.CreatedAt, &j.UpdatedAt, &startedAt, &finishedAt,
	); err != nil {
		return Job{}, err
	}
	j.FileKind = files.Kind(kind)
	j.Status = Status(status)
	if errKind.Valid {
		j.Error = &JobError{Kind: ErrorKind(errKind.String), Message: errMsg.String}
	}
	if result.Valid {
		var rs ResultSummary
		if err := json.Unmarshal([]byte(result.String), &rs); err == nil {
			j.Result = &rs
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		j.FinishedAt = &t
	}
	return j, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
