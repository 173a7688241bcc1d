package files

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, file File) error {
	const query = `
INSERT INTO project_files (id, project_id, kind, file_name, mime_type, size_bytes, storage_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.DB.ExecContext(ctx, query,
		file.ID,
		file.ProjectID,
		string(file.Kind),
		file.FileName,
		file.MimeType,
		file.SizeBytes,
		file.StorageKey,
		file.CreatedAt,
	)
	return err
}

func (r *PGRepo) Get(ctx context.Context, projectID, fileID string) (File, error) {
	const query = `
SELECT id, project_id, kind, file_name, mime_type, size_bytes, storage_key, created_at
FROM project_files
WHERE id = $1 AND project_id = $2
LIMIT 1`
	f, err := scanFile(r.DB.QueryRowContext(ctx, query, fileID, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return File{}, ErrNotFound
	}
	return f, err
}

func (r *PGRepo) ListByProject(ctx context.Context, projectID string) ([]File, error) {
	const query = `
SELECT id, project_id, kind, file_name, mime_type, size_bytes, storage_key, created_at
FROM project_files
WHERE project_id = $1
ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Delete removes the file row; extracted items and jobs cascade in the schema.
func (r *PGRepo) Delete(ctx context.Context, projectID, fileID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM project_files WHERE id = $1 AND project_id = $2`, fileID, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (File, error) {
	var f File
	var kind string
	if err := row.Scan(&f.ID, &f.ProjectID, &kind, &f.FileName, &f.MimeType, &f.SizeBytes, &f.StorageKey, &f.CreatedAt); err != nil {
		return File{}, err
	}
	f.Kind = Kind(kind)
	return f, nil
}
