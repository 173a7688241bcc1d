package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var jobColumns = []string{
	"id", "project_id", "file_id", "file_kind", "idempotency_key", "status", "stage", "attempt", "reason",
	"error_kind", "error_message", "result", "created_at", "updated_at", "started_at", "finished_at",
}

func TestPGRepoSubmitReplaysSameKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT id FROM project_files WHERE id = \\$1 FOR UPDATE").
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM extraction_jobs\\s+WHERE file_id = \\$1 AND idempotency_key = \\$2").
		WithArgs("f1", "k1").
		WillReturnRows(sqlmock.NewRows(jobColumns).AddRow(
			"job-1", "p1", "f1", "boq", "k1", "processing", "extracting", 1, "submit",
			nil, nil, nil, now, now, now, nil,
		))
	mock.ExpectQuery("FROM extraction_jobs\\s+WHERE file_id = \\$1 AND status IN").
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(jobColumns).AddRow(
			"job-1", "p1", "f1", "boq", "k1", "processing", "extracting", 1, "submit",
			nil, nil, nil, now, now, now, nil,
		))
	mock.ExpectCommit()

	job, created, err := repo.Submit(context.Background(), submitParams("f1", "k1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if created || job.ID != "job-1" || job.Status != StatusProcessing {
		t.Fatalf("expected replay of job-1, got created=%v job=%+v", created, job)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSubmitCreatesJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: db}

	mock.ExpectBegin()
	mock.ExpectExec("SELECT id FROM project_files").WithArgs("f1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("idempotency_key = \\$2").WithArgs("f1", "k1").WillReturnRows(sqlmock.NewRows(jobColumns))
	mock.ExpectQuery("status IN").WithArgs("f1").WillReturnRows(sqlmock.NewRows(jobColumns))
	mock.ExpectExec("INSERT INTO extraction_jobs").
		WithArgs(sqlmock.AnyArg(), "p1", "f1", "boq", "k1", "queued", "queued", 0, ReasonSubmit, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	job, created, err := repo.Submit(context.Background(), submitParams("f1", "k1"))
	if err != nil || !created {
		t.Fatalf("Submit: created=%v err=%v", created, err)
	}
	if job.Status != StatusQueued {
		t.Fatalf("expected queued, got %s", job.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoTransitionRejectsIllegalEdge(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("WHERE id = \\$1 FOR UPDATE").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobColumns).AddRow(
			"job-1", "p1", "f1", "boq", "k1", "done", "saving", 1, "submit",
			nil, nil, `{"itemCount":2}`, now, now, now, now,
		))
	mock.ExpectRollback()

	_, err = repo.Transition(context.Background(), "job-1", StatusProcessing, Patch{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoTransitionWritesFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("WHERE id = \\$1 FOR UPDATE").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobColumns).AddRow(
			"job-1", "p1", "f1", "boq", "k1", "processing", "extracting", 3, "submit",
			nil, nil, nil, now, now, now, nil,
		))
	mock.ExpectExec("UPDATE extraction_jobs").
		WithArgs("job-1", "failed", "extracting", 3, "transient", "provider overloaded", nil,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, err := repo.Transition(context.Background(), "job-1", StatusFailed, Patch{Error: &JobError{
		Kind:    ErrorKindTransient,
		Message: "provider overloaded",
	}})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if job.FinishedAt == nil || job.Error == nil {
		t.Fatalf("expected failure fields, got %+v", job)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
