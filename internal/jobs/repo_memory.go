package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"strategiq-backend/internal/report"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu      sync.RWMutex
	byID    map[string]Job
	reports map[string]*report.Report
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:    make(map[string]Job),
		reports: make(map[string]*report.Report),
	}
}

// Create stores the job.
func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	r.byID[job.ID] = cloneJob(job)
	return nil
}

// GetByID returns a job by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return cloneJob(job), nil
}

// UpdateProgress persists a non-terminal status transition.
func (r *MemoryRepo) UpdateProgress(ctx context.Context, jobID, status string, timeline []TimelineEntry) error {
	return r.mutate(ctx, jobID, func(job *Job) {
		job.Status = status
		job.Timeline = cloneTimeline(timeline)
	})
}

// Complete records the result and moves the job to completed.
func (r *MemoryRepo) Complete(ctx context.Context, jobID string, rep *report.Report, timeline []TimelineEntry) error {
	return r.mutate(ctx, jobID, func(job *Job) {
		job.Status = StatusCompleted
		job.Result = cloneReport(rep)
		job.Timeline = cloneTimeline(timeline)
	})
}

// Fail records the error and moves the job to failed.
func (r *MemoryRepo) Fail(ctx context.Context, jobID string, jobErr JobError, timeline []TimelineEntry) error {
	return r.mutate(ctx, jobID, func(job *Job) {
		job.Status = StatusFailed
		job.Error = &jobErr
		job.Timeline = cloneTimeline(timeline)
	})
}

// SaveReport upserts the deduplicated report row.
func (r *MemoryRepo) SaveReport(ctx context.Context, fingerprint, jobID string, rep *report.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[fingerprint] = cloneReport(rep)
	return nil
}

// ReportByFingerprint returns a stored report, for tests.
func (r *MemoryRepo) ReportByFingerprint(fingerprint string) (*report.Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[fingerprint]
	return rep, ok
}

func (r *MemoryRepo) mutate(ctx context.Context, jobID string, apply func(*Job)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	if IsTerminal(job.Status) {
		return ErrTerminal
	}
	apply(&job)
	job.UpdatedAt = time.Now().UTC()
	r.byID[jobID] = job
	return nil
}

func cloneJob(job Job) Job {
	job.Timeline = cloneTimeline(job.Timeline)
	if job.ComparisonEntities != nil {
		job.ComparisonEntities = append([]string(nil), job.ComparisonEntities...)
	}
	if job.Error != nil {
		copied := *job.Error
		job.Error = &copied
	}
	job.Result = cloneReport(job.Result)
	return job
}

func cloneReport(rep *report.Report) *report.Report {
	if rep == nil {
		return nil
	}
	copied := *rep
	if rep.ComparisonEntities != nil {
		copied.ComparisonEntities = append([]string(nil), rep.ComparisonEntities...)
	}
	if rep.Entries != nil {
		copied.Entries = make(map[report.Category][]string, len(rep.Entries))
		for cat, items := range rep.Entries {
			copied.Entries[cat] = append([]string(nil), items...)
		}
	}
	if rep.ToolContext != nil {
		tc := *rep.ToolContext
		if rep.ToolContext.Insights != nil {
			tc.Insights = append([]report.Insight(nil), rep.ToolContext.Insights...)
		}
		copied.ToolContext = &tc
	}
	return &copied
}

func cloneTimeline(timeline []TimelineEntry) []TimelineEntry {
	if timeline == nil {
		return nil
	}
	out := make([]TimelineEntry, len(timeline))
	copy(out, timeline)
	for i := range out {
		if out[i].FinishedAt != nil {
			finished := *out[i].FinishedAt
			out[i].FinishedAt = &finished
		}
	}
	return out
}
