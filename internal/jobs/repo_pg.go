package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"strategiq-backend/internal/report"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new job.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO jobs (id, input_url, primary_entity, comparison_entities, status, timeline, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	entities, err := marshalJSONB(job.ComparisonEntities)
	if err != nil {
		return err
	}
	timeline, err := marshalTimeline(job.Timeline)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		job.ID,
		job.InputURL,
		job.PrimaryEntity,
		entities,
		job.Status,
		timeline,
		job.CreatedAt,
		job.CreatedAt,
	)
	return err
}

// GetByID returns a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	const query = `
SELECT id, input_url, primary_entity, comparison_entities, status, timeline, result,
       error_code, error_message, error_retryable, created_at, updated_at
FROM jobs
WHERE id = $1
LIMIT 1`

	var (
		job          Job
		entitiesRaw  []byte
		timelineRaw  []byte
		resultRaw    []byte
		errorCode    sql.NullString
		errorMessage sql.NullString
		errRetryable sql.NullBool
	)
	err := r.DB.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID,
		&job.InputURL,
		&job.PrimaryEntity,
		&entitiesRaw,
		&job.Status,
		&timelineRaw,
		&resultRaw,
		&errorCode,
		&errorMessage,
		&errRetryable,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}

	if len(entitiesRaw) > 0 {
		if err := json.Unmarshal(entitiesRaw, &job.ComparisonEntities); err != nil {
			return Job{}, fmt.Errorf("decode comparison entities: %w", err)
		}
	}
	if len(timelineRaw) > 0 {
		if err := json.Unmarshal(timelineRaw, &job.Timeline); err != nil {
			return Job{}, fmt.Errorf("decode timeline: %w", err)
		}
	}
	if len(resultRaw) > 0 {
		var rep report.Report
		if err := json.Unmarshal(resultRaw, &rep); err != nil {
			return Job{}, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &rep
	}
	if errorCode.Valid {
		job.Error = &JobError{
			Code:      errorCode.String,
			Message:   errorMessage.String,
			Retryable: errRetryable.Bool,
		}
	}
	return job, nil
}

// UpdateProgress persists a non-terminal status transition.
func (r *PGRepo) UpdateProgress(ctx context.Context, jobID, status string, timeline []TimelineEntry) error {
	const query = `
UPDATE jobs
SET status = $2, timeline = $3, updated_at = $4
WHERE id = $1 AND status NOT IN ('completed', 'failed')`

	payload, err := marshalTimeline(timeline)
	if err != nil {
		return err
	}
	return r.guardedExec(ctx, jobID, query, jobID, status, payload, time.Now().UTC())
}

// Complete records the result and moves the job to completed.
func (r *PGRepo) Complete(ctx context.Context, jobID string, rep *report.Report, timeline []TimelineEntry) error {
	const query = `
UPDATE jobs
SET status = 'completed', result = $2, timeline = $3, updated_at = $4
WHERE id = $1 AND status NOT IN ('completed', 'failed')`

	resultPayload, err := marshalJSONB(rep)
	if err != nil {
		return err
	}
	timelinePayload, err := marshalTimeline(timeline)
	if err != nil {
		return err
	}
	return r.guardedExec(ctx, jobID, query, jobID, resultPayload, timelinePayload, time.Now().UTC())
}

// Fail records the error and moves the job to failed.
func (r *PGRepo) Fail(ctx context.Context, jobID string, jobErr JobError, timeline []TimelineEntry) error {
	const query = `
UPDATE jobs
SET status = 'failed', error_code = $2, error_message = $3, error_retryable = $4, timeline = $5, updated_at = $6
WHERE id = $1 AND status NOT IN ('completed', 'failed')`

	payload, err := marshalTimeline(timeline)
	if err != nil {
		return err
	}
	return r.guardedExec(ctx, jobID, query, jobID, jobErr.Code, jobErr.Message, jobErr.Retryable, payload, time.Now().UTC())
}

// SaveReport upserts the deduplicated report row keyed by fingerprint.
func (r *PGRepo) SaveReport(ctx context.Context, fingerprint, jobID string, rep *report.Report) error {
	const query = `
INSERT INTO reports (fingerprint, job_id, primary_entity, payload, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (fingerprint) DO NOTHING`

	payload, err := marshalJSONB(rep)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query, fingerprint, jobID, rep.PrimaryEntity, payload, time.Now().UTC())
	return err
}

// guardedExec runs a terminal-guarded update and maps a zero row count to the
// reason: missing job or terminal job.
func (r *PGRepo) guardedExec(ctx context.Context, jobID, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var status string
	err = r.DB.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if IsTerminal(status) {
		return ErrTerminal
	}
	return fmt.Errorf("update job %s: no rows affected", jobID)
}

func marshalJSONB(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return payload, nil
}

func marshalTimeline(timeline []TimelineEntry) ([]byte, error) {
	if timeline == nil {
		timeline = []TimelineEntry{}
	}
	return json.Marshal(timeline)
}
