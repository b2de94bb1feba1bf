package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"strategiq-backend/internal/extract"
	"strategiq-backend/internal/fetch"
	"strategiq-backend/internal/generator"
	"strategiq-backend/internal/llm"
	"strategiq-backend/internal/report"
	"strategiq-backend/internal/shared/metrics"
	"strategiq-backend/internal/shared/storage/object"
	"strategiq-backend/internal/shared/telemetry"
)

const defaultPersistAttempts = 3

// Processor runs the analysis pipeline for one job at a time. Safe for
// concurrent use across distinct jobs.
type Processor struct {
	Repo            Repo
	Fetcher         *fetch.Fetcher
	Generator       *generator.Generator
	Store           object.ObjectStore
	PersistAttempts int
}

// ProcessJob drives a pending job through fetch, extract, augment, generate,
// and persist. Redelivered messages for terminal jobs are acknowledged
// without reprocessing.
func (p *Processor) ProcessJob(ctx context.Context, jobID string) (err error) {
	if p.Repo == nil || p.Fetcher == nil || p.Generator == nil {
		return errors.New("processor not configured")
	}

	job, err := p.Repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job lookup id=%s: %w", jobID, err)
	}
	if IsTerminal(job.Status) {
		telemetry.Info("job.redelivery.skipped", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     jobID,
			"status":     job.Status,
		})
		return nil
	}

	run := &pipelineRun{processor: p, job: job, startedAt: time.Now().UTC()}
	defer func() {
		if r := recover(); r != nil {
			run.fail(ctx, "", fmt.Errorf("panic: %v", r))
			err = nil
		}
	}()

	metrics.IncJobsStarted()

	// Fetch
	if err := run.begin(ctx, StatusFetching); err != nil {
		return run.stop(err)
	}
	page, err := p.Fetcher.Fetch(ctx, job.InputURL)
	if err != nil {
		run.fail(ctx, StatusFetching, fmt.Errorf("fetch %s: %w", job.InputURL, err))
		return nil
	}
	run.finish(fmt.Sprintf("%d bytes, %s", len(page.Body), page.ContentType))
	p.snapshot(ctx, jobID, "source", page.ContentType, page.Body)

	// Extract
	if err := run.begin(ctx, StatusExtracting); err != nil {
		return run.stop(err)
	}
	content, err := extract.FromBytes(page.Body, page.ContentType)
	if err != nil {
		run.fail(ctx, StatusExtracting, fmt.Errorf("extract %s: %w", job.InputURL, err))
		return nil
	}
	run.finish(fmt.Sprintf("%d chars", len(content.Text)))
	p.snapshot(ctx, jobID, "extracted.txt", "text/plain", []byte(content.Excerpt()))

	// Augment. Tool failures degrade to generation without tool context.
	if err := run.begin(ctx, StatusAugmenting); err != nil {
		return run.stop(err)
	}
	toolCtx := p.Generator.Augment(ctx, jobID, job.PrimaryEntity, content)
	if toolCtx == nil {
		run.finish("skipped")
	} else {
		run.finish(fmt.Sprintf("%d insights", len(toolCtx.Insights)))
	}

	// Generate
	if err := run.begin(ctx, StatusGenerating); err != nil {
		return run.stop(err)
	}
	rep, err := p.Generator.Generate(ctx, generator.Request{
		JobID:              jobID,
		PrimaryEntity:      job.PrimaryEntity,
		ComparisonEntities: job.ComparisonEntities,
		Content:            content,
		Tool:               toolCtx,
	})
	if err != nil {
		run.fail(ctx, StatusGenerating, fmt.Errorf("generate: %w", err))
		return nil
	}
	run.finish(entryCounts(rep))

	// Persist
	if err := run.begin(ctx, StatusPersisting); err != nil {
		return run.stop(err)
	}
	fingerprint := report.Fingerprint(rep)
	if err := p.persist(ctx, jobID, fingerprint, rep, run); err != nil {
		run.fail(ctx, StatusPersisting, fmt.Errorf("persist result: %w", err))
		return nil
	}

	completedAt := time.Now().UTC()
	metrics.IncJobsCompleted()
	metrics.ObserveJobDurationMs(float64(completedAt.Sub(run.startedAt).Microseconds()) / 1000.0)
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"job_id":            jobID,
		"status":            StatusCompleted,
		"status_transition": StatusPersisting + "->" + StatusCompleted,
		"fingerprint":       fingerprint,
		"duration_ms":       completedAt.Sub(run.startedAt).Milliseconds(),
	})
	return nil
}

// persist writes the report row and the terminal transition with a bounded
// retry, then closes the persisting timeline entry.
func (p *Processor) persist(ctx context.Context, jobID, fingerprint string, rep *report.Report, run *pipelineRun) error {
	attempts := p.PersistAttempts
	if attempts <= 0 {
		attempts = defaultPersistAttempts
	}

	if err := withAttempts(ctx, attempts, func() error {
		return p.Repo.SaveReport(ctx, fingerprint, jobID, rep)
	}); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	run.finish("fingerprint " + fingerprint[:12])
	return withAttempts(ctx, attempts, func() error {
		return p.Repo.Complete(ctx, jobID, rep, run.timeline())
	})
}

func (p *Processor) snapshot(ctx context.Context, jobID, name, contentType string, data []byte) {
	if p.Store == nil || len(data) == 0 {
		return
	}
	key := "jobs/" + jobID + "/" + name
	if _, err := p.Store.SaveWithKey(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		telemetry.Debug("job.snapshot.failed", map[string]any{
			"job_id": jobID,
			"key":    key,
			"error":  err.Error(),
		})
	}
}

// pipelineRun tracks the in-flight job state between stage transitions.
type pipelineRun struct {
	processor *Processor
	job       Job
	startedAt time.Time
	entries   []TimelineEntry
}

// begin appends a timeline entry for the stage and persists the transition
// before any stage work runs, so pollers see progress as it happens.
func (r *pipelineRun) begin(ctx context.Context, status string) error {
	from := r.job.Status
	r.job.Status = status
	r.entries = append(r.entries, TimelineEntry{Stage: status, StartedAt: time.Now().UTC()})
	if err := r.processor.Repo.UpdateProgress(ctx, r.job.ID, status, r.timeline()); err != nil {
		return fmt.Errorf("set %s failed: %w", status, err)
	}
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"job_id":            r.job.ID,
		"status":            status,
		"status_transition": from + "->" + status,
	})
	return nil
}

// finish closes the current timeline entry.
func (r *pipelineRun) finish(detail string) {
	if len(r.entries) == 0 {
		return
	}
	now := time.Now().UTC()
	last := &r.entries[len(r.entries)-1]
	last.FinishedAt = &now
	last.Detail = detail
}

func (r *pipelineRun) timeline() []TimelineEntry {
	return append(r.job.Timeline[:len(r.job.Timeline):len(r.job.Timeline)], r.entries...)
}

// stop handles errors from the transition write itself. A terminal job means
// another worker finished it; anything else fails the job.
func (r *pipelineRun) stop(err error) error {
	if errors.Is(err, ErrTerminal) {
		return nil
	}
	r.fail(context.Background(), r.job.Status, err)
	return nil
}

// fail records the structured failure and closes the open timeline entry.
func (r *pipelineRun) fail(ctx context.Context, stage string, cause error) {
	code, retryable := classifyFailure(stage, cause)
	r.finish("error: " + sanitizeError(cause))

	jobErr := JobError{Code: code, Message: sanitizeError(cause), Retryable: retryable}
	if err := r.processor.Repo.Fail(context.Background(), r.job.ID, jobErr, r.timeline()); err != nil {
		telemetry.Error("job.fail.update_failed", map[string]any{
			"job_id": r.job.ID,
			"error":  err.Error(),
			"cause":  sanitizeError(cause),
		})
	}
	metrics.IncJobsFailed()
	metrics.ObserveJobDurationMs(float64(time.Now().UTC().Sub(r.startedAt).Microseconds()) / 1000.0)
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"job_id":            r.job.ID,
		"status":            StatusFailed,
		"status_transition": stage + "->" + StatusFailed,
		"error_code":        code,
		"retryable":         retryable,
	})
}

func withAttempts(ctx context.Context, attempts int, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrTerminal) || errors.Is(lastErr, ErrNotFound) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// classifyFailure maps a stage failure to an error code and retryability.
func classifyFailure(stage string, err error) (string, bool) {
	switch stage {
	case StatusFetching:
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 && statusErr.StatusCode != 429 {
			return ErrorCodeFetch, false
		}
		return ErrorCodeFetch, true
	case StatusExtracting:
		return ErrorCodeExtract, false
	case StatusGenerating:
		return ErrorCodeGeneration, llm.IsTransient(err)
	case StatusPersisting:
		return ErrorCodePersist, true
	}
	return ErrorCodeInternal, false
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

func entryCounts(rep *report.Report) string {
	var parts []string
	for _, cat := range report.Categories {
		parts = append(parts, fmt.Sprintf("%s=%d", cat, len(rep.Entries[cat])))
	}
	return strings.Join(parts, " ")
}
