package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	job := Job{
		ID:                 "job-1",
		InputURL:           "https://acme.example",
		PrimaryEntity:      "Acme",
		ComparisonEntities: []string{"Globex"},
		Status:             StatusPending,
		CreatedAt:          time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(
			job.ID,
			job.InputURL,
			job.PrimaryEntity,
			sqlmock.AnyArg(), // comparison_entities
			job.Status,
			sqlmock.AnyArg(), // timeline
			job.CreatedAt,
			job.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDDecodesPayloads(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "input_url", "primary_entity", "comparison_entities", "status", "timeline", "result",
		"error_code", "error_message", "error_retryable", "created_at", "updated_at",
	}).AddRow(
		"job-1", "https://acme.example", "Acme", []byte(`["Globex"]`), StatusFailed,
		[]byte(`[{"stage":"fetching","startedAt":"2026-08-01T12:00:00Z"}]`), nil,
		"FETCH_FAILED", "http status 500", true, now, now,
	)
	mock.ExpectQuery("SELECT id, input_url").WithArgs("job-1").WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != StatusFailed {
		t.Fatalf("unexpected status %s", job.Status)
	}
	if len(job.ComparisonEntities) != 1 || job.ComparisonEntities[0] != "Globex" {
		t.Fatalf("unexpected entities %v", job.ComparisonEntities)
	}
	if len(job.Timeline) != 1 || job.Timeline[0].Stage != StatusFetching {
		t.Fatalf("unexpected timeline %+v", job.Timeline)
	}
	if job.Error == nil || job.Error.Code != ErrorCodeFetch || !job.Error.Retryable {
		t.Fatalf("unexpected error %+v", job.Error)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectQuery("SELECT id, input_url").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoUpdateProgressGuardsTerminalJobs(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", StatusFetching, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM jobs").WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(StatusCompleted))

	err = repo.UpdateProgress(context.Background(), "job-1", StatusFetching, nil)
	if !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSaveReportUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	rep := seedReport()

	mock.ExpectExec("INSERT INTO reports").
		WithArgs("fp-1", "job-1", rep.PrimaryEntity, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.SaveReport(context.Background(), "fp-1", "job-1", rep); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
