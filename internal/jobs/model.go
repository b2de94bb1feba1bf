package jobs

import (
	"time"

	"strategiq-backend/internal/report"
)

const (
	StatusPending    = "pending"
	StatusFetching   = "fetching"
	StatusExtracting = "extracting"
	StatusAugmenting = "augmenting"
	StatusGenerating = "generating"
	StatusPersisting = "persisting"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// TimelineEntry records one pipeline stage the job passed through.
type TimelineEntry struct {
	Stage      string     `json:"stage"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Detail     string     `json:"detail,omitempty"`
}

// JobError is the structured failure recorded on a failed job.
type JobError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Job is an asynchronous analysis request and its lifecycle record.
type Job struct {
	ID                 string
	InputURL           string
	PrimaryEntity      string
	ComparisonEntities []string
	Status             string
	Timeline           []TimelineEntry
	Result             *report.Report
	Error              *JobError
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
