package items

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"takeoff-backend/internal/files"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectItems = `
SELECT id, project_id, file_id, file_kind, position, item_code, description, notes, box, thickness_mm, fields, created_at
FROM extracted_items`

// ReplaceForFile deletes the file's previous items and inserts the new set in one transaction.
func (r *PGRepo) ReplaceForFile(ctx context.Context, ex Extraction) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM extracted_items WHERE file_id = $1`, ex.FileID); err != nil {
		return fmt.Errorf("delete previous items: %w", err)
	}

	const insert = `
INSERT INTO extracted_items (id, project_id, file_id, file_kind, position, item_code, description, notes, box, thickness_mm, fields, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	for _, it := range prepare(ex) {
		box, err := marshalJSONB(it.Box)
		if err != nil {
			return err
		}
		fields := it.Fields
		if fields == nil {
			fields = map[string]any{}
		}
		fieldsJSON, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		var thickness any
		if it.ThicknessMM != nil {
			thickness = *it.ThicknessMM
		}
		if _, err := tx.ExecContext(ctx, insert,
			it.ID, it.ProjectID, it.FileID, string(it.FileKind), it.Position,
			it.ItemCode, it.Description, it.Notes, box, thickness, string(fieldsJSON), it.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert item %d: %w", it.Position, err)
		}
	}

	const upsertRaw = `
INSERT INTO extraction_raw_outputs (file_id, job_id, raw_text, created_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (file_id) DO UPDATE SET job_id = EXCLUDED.job_id, raw_text = EXCLUDED.raw_text, created_at = now()`
	if _, err := tx.ExecContext(ctx, upsertRaw, ex.FileID, ex.JobID, ex.RawText); err != nil {
		return fmt.Errorf("store raw output: %w", err)
	}
	return tx.Commit()
}

func (r *PGRepo) ListByProject(ctx context.Context, projectID string) ([]Item, error) {
	return r.query(ctx, selectItems+`
WHERE project_id = $1
ORDER BY created_at ASC, file_id ASC, position ASC`, projectID)
}

func (r *PGRepo) ListByFile(ctx context.Context, projectID, fileID string) ([]Item, error) {
	return r.query(ctx, selectItems+`
WHERE project_id = $1 AND file_id = $2
ORDER BY position ASC`, projectID, fileID)
}

func (r *PGRepo) ListByKind(ctx context.Context, projectID string, kind files.Kind) ([]Item, error) {
	return r.query(ctx, selectItems+`
WHERE project_id = $1 AND file_kind = $2
ORDER BY created_at ASC, file_id ASC, position ASC`, projectID, string(kind))
}

func (r *PGRepo) RawText(ctx context.Context, fileID string) (string, error) {
	var raw string
	err := r.DB.QueryRowContext(ctx, `SELECT raw_text FROM extraction_raw_outputs WHERE file_id = $1`, fileID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return raw, err
}

func (r *PGRepo) DeleteByFile(ctx context.Context, projectID, fileID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM extracted_items WHERE project_id = $1 AND file_id = $2`, projectID, fileID)
	return err
}

func (r *PGRepo) query(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Item, 0)
	for rows.Next() {
		var it Item
		var kind string
		var box sql.NullString
		var thickness sql.NullFloat64
		var fields sql.NullString
		if err := rows.Scan(&it.ID, &it.ProjectID, &it.FileID, &kind, &it.Position, &it.ItemCode,
			&it.Description, &it.Notes, &box, &thickness, &fields, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.FileKind = files.Kind(kind)
		if box.Valid && box.String != "" && box.String != "null" {
			var b Box
			if err := json.Unmarshal([]byte(box.String), &b); err == nil {
				it.Box = &b
			}
		}
		if thickness.Valid {
			v := thickness.Float64
			it.ThicknessMM = &v
		}
		if fields.Valid && fields.String != "" {
			if err := json.Unmarshal([]byte(fields.String), &it.Fields); err != nil {
				it.Fields = nil
			}
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func marshalJSONB(v *Box) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
