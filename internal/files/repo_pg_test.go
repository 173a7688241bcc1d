package files

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM project_files")).
		WithArgs("f1", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := &PGRepo{DB: db}
	if _, err := repo.Get(context.Background(), "p1", "f1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoListByProject(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "project_id", "kind", "file_name", "mime_type", "size_bytes", "storage_key", "created_at"}).
		AddRow("f1", "p1", "schedule", "doors.csv", "text/plain", int64(8), "k1", now).
		AddRow("f2", "p1", "boq", "boq.xlsx", "application/zip", int64(90), "k2", now.Add(time.Second))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE project_id = $1")).
		WithArgs("p1").
		WillReturnRows(rows)

	repo := &PGRepo{DB: db}
	list, err := repo.ListByProject(context.Background(), "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Kind != KindSchedule || list[1].StorageKey != "k2" {
		t.Fatalf("unexpected files: %+v", list)
	}
}

func TestPGRepoDeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM project_files")).
		WithArgs("f1", "p1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := &PGRepo{DB: db}
	if err := repo.Delete(context.Background(), "p1", "f1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
