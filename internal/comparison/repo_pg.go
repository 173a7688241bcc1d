package comparison

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGRepo implements RunRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectRun = `
SELECT id, project_id, fingerprint, status, results, stats, error_kind, error_message, created_at
FROM comparison_runs`

func (r *PGRepo) Save(ctx context.Context, run Run) error {
	results, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	var errKind, errMsg sql.NullString
	if run.Error != nil {
		errKind = sql.NullString{String: run.Error.Kind, Valid: true}
		errMsg = sql.NullString{String: run.Error.Message, Valid: true}
	}
	const query = `
INSERT INTO comparison_runs (id, project_id, fingerprint, status, results, stats, error_kind, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.DB.ExecContext(ctx, query,
		run.ID, run.ProjectID, run.Fingerprint, string(run.Status),
		results, stats, errKind, errMsg, run.CreatedAt,
	)
	return err
}

func (r *PGRepo) LatestDone(ctx context.Context, projectID, fingerprint string) (Run, error) {
	return r.one(ctx, selectRun+`
WHERE project_id = $1 AND fingerprint = $2 AND status = 'done'
ORDER BY created_at DESC
LIMIT 1`, projectID, fingerprint)
}

func (r *PGRepo) Latest(ctx context.Context, projectID string) (Run, error) {
	return r.one(ctx, selectRun+`
WHERE project_id = $1
ORDER BY created_at DESC
LIMIT 1`, projectID)
}

func (r *PGRepo) one(ctx context.Context, query string, args ...any) (Run, error) {
	var (
		run              Run
		status           string
		results, stats   []byte
		errKind, errText sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(
		&run.ID, &run.ProjectID, &run.Fingerprint, &status, &results, &stats, &errKind, &errText, &run.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	run.Status = Status(status)
	if err := json.Unmarshal(results, &run.Results); err != nil {
		return Run{}, fmt.Errorf("decode results: %w", err)
	}
	if err := json.Unmarshal(stats, &run.Stats); err != nil {
		return Run{}, fmt.Errorf("decode stats: %w", err)
	}
	if errKind.Valid {
		run.Error = &RunError{Kind: errKind.String, Message: errText.String}
	}
	return run, nil
}
