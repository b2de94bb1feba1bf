package jobs

import (
	"context"

	"strategiq-backend/internal/report"
)

// Repo defines persistence operations for jobs. Every mutation on a terminal
// job returns ErrTerminal.
type Repo interface {
	Create(ctx context.Context, job Job) error
	GetByID(ctx context.Context, jobID string) (Job, error)
	// UpdateProgress persists a non-terminal status transition with the
	// timeline as known at that point.
	UpdateProgress(ctx context.Context, jobID, status string, timeline []TimelineEntry) error
	// Complete records the finalized report and moves the job to completed.
	Complete(ctx context.Context, jobID string, rep *report.Report, timeline []TimelineEntry) error
	// Fail records the structured error and moves the job to failed.
	Fail(ctx context.Context, jobID string, jobErr JobError, timeline []TimelineEntry) error
	// SaveReport upserts the deduplicated report row keyed by fingerprint.
	SaveReport(ctx context.Context, fingerprint, jobID string, rep *report.Report) error
}
