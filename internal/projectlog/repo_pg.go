package projectlog

import (
	"context"
	"database/sql"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Append(ctx context.Context, entry Entry) (Entry, error) {
	entry = stamp(entry, func() time.Time { return time.Now().UTC() })
	const query = `
INSERT INTO project_logs (id, project_id, file_id, job_id, level, message, created_at)
VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, query,
		entry.ID, entry.ProjectID, entry.FileID, entry.JobID, string(entry.Level), entry.Message, entry.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (r *PGRepo) ListRecent(ctx context.Context, projectID, fileID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	const query = `
SELECT id, project_id, COALESCE(file_id::text, ''), COALESCE(job_id::text, ''), level, message, created_at
FROM project_logs
WHERE project_id = $1 AND ($2 = '' OR file_id::text = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, query, projectID, fileID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var level string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.FileID, &e.JobID, &level, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Level = Level(level)
		out = append(out, e)
	}
	return out, rows.Err()
}
