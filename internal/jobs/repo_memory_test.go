package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"strategiq-backend/internal/report"
)

func TestMemoryRepoTerminalImmutability(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	if err := repo.Create(ctx, Job{ID: "job-1", InputURL: "https://a.example", Status: StatusPending, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Complete(ctx, "job-1", seedReport(), nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := repo.UpdateProgress(ctx, "job-1", StatusFetching, nil); !errors.Is(err, ErrTerminal) {
		t.Fatalf("progress on terminal job: expected ErrTerminal, got %v", err)
	}
	if err := repo.Fail(ctx, "job-1", JobError{Code: ErrorCodeInternal}, nil); !errors.Is(err, ErrTerminal) {
		t.Fatalf("fail on terminal job: expected ErrTerminal, got %v", err)
	}

	job, err := repo.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusCompleted || job.Result == nil {
		t.Fatalf("terminal job mutated: %+v", job)
	}
}

func TestMemoryRepoReturnsCopies(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	if err := repo.Create(ctx, Job{ID: "job-1", InputURL: "https://a.example", Status: StatusPending, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.UpdateProgress(ctx, "job-1", StatusFetching, []TimelineEntry{
		{Stage: StatusFetching, StartedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("progress: %v", err)
	}

	first, _ := repo.GetByID(ctx, "job-1")
	first.Timeline[0].Stage = "tampered"
	first.Status = "tampered"

	second, _ := repo.GetByID(ctx, "job-1")
	if second.Timeline[0].Stage != StatusFetching || second.Status != StatusFetching {
		t.Fatalf("caller mutation leaked into the repo: %+v", second)
	}
}

func TestMemoryRepoCopiesResult(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	if err := repo.Create(ctx, Job{ID: "job-1", InputURL: "https://a.example", Status: StatusPending, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("create: %v", err)
	}
	stored := seedReport()
	if err := repo.Complete(ctx, "job-1", stored, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Neither the caller's report nor a returned one may alias the stored copy.
	stored.Summary = "tampered after store"

	first, _ := repo.GetByID(ctx, "job-1")
	first.Result.Summary = "tampered via get"
	first.Result.Entries[report.Strength] = nil

	second, _ := repo.GetByID(ctx, "job-1")
	if second.Result.Summary != "seed summary" {
		t.Fatalf("result mutation leaked into the repo: %q", second.Result.Summary)
	}
	if len(second.Result.Entries[report.Strength]) == 0 {
		t.Fatalf("entries mutation leaked into the repo")
	}
}

func TestMemoryRepoCreateRejectsDuplicateID(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	job := Job{ID: "job-1", InputURL: "https://a.example", Status: StatusPending}

	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, job); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}
}
