package jobs

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"strategiq-backend/internal/polling"
	"strategiq-backend/internal/queue"
	"strategiq-backend/internal/shared/metrics"
	"strategiq-backend/internal/shared/telemetry"
)

// SubmitInput is a new analysis request.
type SubmitInput struct {
	URL                string
	PrimaryEntity      string
	ComparisonEntities []string
}

const (
	maxPrimaryEntityLength      = 500
	maxComparisonEntitiesCount  = 10
	maxComparisonEntitiesLength = 2000
)

// Service contains business logic for jobs: submission, polling, and the
// status-endpoint backoff hints.
type Service struct {
	Repo      Repo
	Queue     queue.Client
	Processor *Processor
	Schedule  polling.Schedule

	limiter *pollLimiter

	mu       sync.Mutex
	sessions map[string]*pollSession
}

// pollSession pairs a cadence session with its last use so abandoned
// jobs can be swept.
type pollSession struct {
	session  *polling.Session
	lastSeen time.Time
}

// NewService constructs a Service. When queueClient is nil the processor runs
// in-process on submission.
func NewService(repo Repo, queueClient queue.Client, processor *Processor, schedule polling.Schedule) *Service {
	return &Service{
		Repo:      repo,
		Queue:     queueClient,
		Processor: processor,
		Schedule:  schedule,
		limiter:   newPollLimiter(0, nil),
		sessions:  make(map[string]*pollSession),
	}
}

// Submit validates the request, persists a pending job, and hands it to the
// worker tier.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Job, error) {
	inputURL, err := validateURL(input.URL)
	if err != nil {
		return Job{}, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	primary := strings.TrimSpace(input.PrimaryEntity)
	entities := cleanEntities(input.ComparisonEntities)
	if err := validateEntities(primary, entities); err != nil {
		return Job{}, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	job := Job{
		ID:                 uuid.NewString(),
		InputURL:           inputURL,
		PrimaryEntity:      primary,
		ComparisonEntities: entities,
		Status:             StatusPending,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	metrics.IncJobsSubmitted()

	// A fresh submission restarts the polling cadence for its job.
	s.mu.Lock()
	s.sessions[job.ID] = &pollSession{session: polling.NewSession(s.Schedule), lastSeen: time.Now()}
	s.mu.Unlock()

	if err := s.dispatch(ctx, job.ID); err != nil {
		// The pending row must not linger with no worker coming for it.
		s.ForgetPollSession(job.ID)
		jobErr := JobError{
			Code:      ErrorCodeInternal,
			Message:   sanitizeError(err),
			Retryable: true,
		}
		if failErr := s.Repo.Fail(backgroundWithRequestID(ctx), job.ID, jobErr, nil); failErr != nil {
			telemetry.Error("job.dispatch.orphan", map[string]any{
				"job_id": job.ID,
				"error":  failErr.Error(),
			})
		}
		return Job{}, err
	}

	telemetry.Info("job.submitted", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"job_id":     job.ID,
		"url":        inputURL,
	})
	return job, nil
}

func (s *Service) dispatch(ctx context.Context, jobID string) error {
	if s.Queue != nil {
		msg := queue.Message{
			JobID:      jobID,
			RequestID:  requestIDFromContext(ctx),
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    1,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			return fmt.Errorf("enqueue job: %w", err)
		}
		return nil
	}

	if s.Processor == nil {
		return fmt.Errorf("no queue or processor configured")
	}
	go func(ctx context.Context) {
		if err := s.Processor.ProcessJob(ctx, jobID); err != nil {
			telemetry.Error("job.process.failed", map[string]any{
				"job_id": jobID,
				"error":  err.Error(),
			})
		}
	}(backgroundWithRequestID(ctx))
	return nil
}

// Get returns a job by ID.
func (s *Service) Get(ctx context.Context, jobID string) (Job, error) {
	if jobID == "" {
		return Job{}, fmt.Errorf("%w: job id is required", ErrInvalidInput)
	}
	return s.Repo.GetByID(ctx, jobID)
}

// AllowPoll enforces the hard per-job minimum between status polls.
func (s *Service) AllowPoll(jobID string) bool {
	return s.limiter.Allow(jobID)
}

// PollRetryAfterSeconds is the Retry-After value for rejected polls.
func (s *Service) PollRetryAfterSeconds() int {
	return s.limiter.RetryAfterSeconds()
}

// NextPollDelay advances the job's polling session and returns the suggested
// wait before the next status request.
func (s *Service) NextPollDelay(jobID string) time.Duration {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) >= pollSweepThreshold {
		for id, ps := range s.sessions {
			if now.Sub(ps.lastSeen) > pollStateTTL {
				delete(s.sessions, id)
			}
		}
	}
	ps, ok := s.sessions[jobID]
	if !ok {
		ps = &pollSession{session: polling.NewSession(s.Schedule)}
		s.sessions[jobID] = ps
	}
	ps.lastSeen = now
	return ps.session.NextDelay()
}

// ForgetPollSession drops cadence state once a job turns terminal.
func (s *Service) ForgetPollSession(jobID string) {
	s.limiter.Forget(jobID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, jobID)
}

func validateURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("url is not parseable")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("url scheme must be http or https")
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("url must be absolute")
	}
	return parsed.String(), nil
}

func validateEntities(primary string, entities []string) error {
	if len(primary) > maxPrimaryEntityLength {
		return fmt.Errorf("primary entity exceeds %d characters", maxPrimaryEntityLength)
	}
	if len(entities) > maxComparisonEntitiesCount {
		return fmt.Errorf("at most %d comparison entities are allowed", maxComparisonEntitiesCount)
	}
	total := 0
	for _, e := range entities {
		total += len(e)
	}
	if total > maxComparisonEntitiesLength {
		return fmt.Errorf("comparison entities exceed %d characters combined", maxComparisonEntitiesLength)
	}
	return nil
}

func cleanEntities(entities []string) []string {
	var out []string
	for _, e := range entities {
		if trimmed := strings.TrimSpace(e); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
