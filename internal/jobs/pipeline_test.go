package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"strategiq-backend/internal/fetch"
	"strategiq-backend/internal/generator"
	"strategiq-backend/internal/llm"
	"strategiq-backend/internal/reddit"
	"strategiq-backend/internal/report"
)

const testSummary = "Acme combines a strong brand with a diversified product line, but faces pricing pressure from aggressive competitors entering its core market."

func swotJSON() string {
	payload := map[string]any{
		"primaryEntity": "Acme",
		"strengths":     []string{"strong brand", "diversified products"},
		"weaknesses":    []string{"high costs", "slow releases"},
		"opportunities": []string{"new markets", "partnerships"},
		"threats":       []string{"competition", "regulation"},
		"summary":       testSummary,
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

type stubModel struct {
	response string
	err      error
	calls    int
}

func (m *stubModel) Name() string { return "stub" }

func (m *stubModel) GenerateSWOT(_ context.Context, _ llm.GenerateInput) (json.RawMessage, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return json.RawMessage(m.response), nil
}

type stubSearcher struct {
	posts []reddit.Post
	err   error
}

func (s *stubSearcher) Search(_ context.Context, _ string) ([]reddit.Post, error) {
	return s.posts, s.err
}

func newProcessor(repo Repo, model llm.Client, searcher generator.Searcher) *Processor {
	return &Processor{
		Repo:      repo,
		Fetcher:   fetch.New(2*time.Second, 1),
		Generator: generator.New(model, searcher),
	}
}

func createPendingJob(t *testing.T, repo Repo, inputURL string) Job {
	t.Helper()
	job := Job{
		ID:            "job-1",
		InputURL:      inputURL,
		PrimaryEntity: "Acme",
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestProcessJobHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>Acme</title></head><body><h1>About Acme</h1><p>Acme builds widgets.</p></body></html>")
	}))
	defer srv.Close()

	repo := NewMemoryRepo()
	searcher := &stubSearcher{posts: []reddit.Post{{Title: "Acme thread", URL: "https://reddit.com/1"}}}
	p := newProcessor(repo, &stubModel{response: swotJSON()}, searcher)
	createPendingJob(t, repo, srv.URL)

	if err := p.ProcessJob(context.Background(), "job-1"); err != nil {
		t.Fatalf("ProcessJob returned error: %v", err)
	}

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (error %+v)", job.Status, job.Error)
	}
	if job.Result == nil || job.Result.PrimaryEntity != "Acme" {
		t.Fatalf("expected result, got %+v", job.Result)
	}
	if job.Result.ToolContext == nil || len(job.Result.ToolContext.Insights) != 1 {
		t.Fatalf("expected tool context with 1 insight, got %+v", job.Result.ToolContext)
	}

	wantStages := []string{StatusFetching, StatusExtracting, StatusAugmenting, StatusGenerating, StatusPersisting}
	if len(job.Timeline) != len(wantStages) {
		t.Fatalf("expected %d timeline entries, got %d: %+v", len(wantStages), len(job.Timeline), job.Timeline)
	}
	for i, stage := range wantStages {
		entry := job.Timeline[i]
		if entry.Stage != stage {
			t.Fatalf("timeline[%d]: expected stage %s, got %s", i, stage, entry.Stage)
		}
		if entry.FinishedAt == nil {
			t.Fatalf("timeline[%d] (%s): not finished", i, stage)
		}
		if entry.FinishedAt.Before(entry.StartedAt) {
			t.Fatalf("timeline[%d] (%s): finished before started", i, stage)
		}
	}

	fingerprint := report.Fingerprint(job.Result)
	if _, ok := repo.ReportByFingerprint(fingerprint); !ok {
		t.Fatalf("expected report row for fingerprint %s", fingerprint)
	}
}

func TestProcessJobFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	repo := NewMemoryRepo()
	p := newProcessor(repo, &stubModel{response: swotJSON()}, nil)
	createPendingJob(t, repo, srv.URL)

	if err := p.ProcessJob(context.Background(), "job-1"); err != nil {
		t.Fatalf("ProcessJob returned error: %v", err)
	}

	job, _ := repo.GetByID(context.Background(), "job-1")
	if job.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.Error == nil || job.Error.Code != ErrorCodeFetch {
		t.Fatalf("expected %s, got %+v", ErrorCodeFetch, job.Error)
	}
	if !job.Error.Retryable {
		t.Fatalf("5xx fetch failures should be retryable")
	}
	if len(job.Timeline) != 1 || job.Timeline[0].Stage != StatusFetching {
		t.Fatalf("expected single fetching entry, got %+v", job.Timeline)
	}
}

func TestProcessJobNotFoundFetchNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	repo := NewMemoryRepo()
	p := newProcessor(repo, &stubModel{response: swotJSON()}, nil)
	createPendingJob(t, repo, srv.URL)

	_ = p.ProcessJob(context.Background(), "job-1")

	job, _ := repo.GetByID(context.Background(), "job-1")
	if job.Error == nil || job.Error.Retryable {
		t.Fatalf("404 fetch failures should not be retryable, got %+v", job.Error)
	}
}

func TestProcessJobToolFailureStillCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>Acme builds widgets.</p></body></html>")
	}))
	defer srv.Close()

	repo := NewMemoryRepo()
	searcher := &stubSearcher{err: errors.New("reddit unavailable")}
	p := newProcessor(repo, &stubModel{response: swotJSON()}, searcher)
	createPendingJob(t, repo, srv.URL)

	if err := p.ProcessJob(context.Background(), "job-1"); err != nil {
		t.Fatalf("ProcessJob returned error: %v", err)
	}

	job, _ := repo.GetByID(context.Background(), "job-1")
	if job.Status != StatusCompleted {
		t.Fatalf("tool failure must not fail the job, got %s (%+v)", job.Status, job.Error)
	}
	if job.Result.ToolContext != nil {
		t.Fatalf("expected nil tool context, got %+v", job.Result.ToolContext)
	}
	if job.Timeline[2].Detail != "skipped" {
		t.Fatalf("expected augmenting entry marked skipped, got %+v", job.Timeline[2])
	}
}

func TestProcessJobGenerationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>Acme builds widgets.</p></body></html>")
	}))
	defer srv.Close()

	repo := NewMemoryRepo()
	model := &stubModel{err: &llm.ProviderError{Provider: "stub", Kind: llm.KindTransient, Message: "overloaded"}}
	p := newProcessor(repo, model, nil)
	createPendingJob(t, repo, srv.URL)

	_ = p.ProcessJob(context.Background(), "job-1")

	job, _ := repo.GetByID(context.Background(), "job-1")
	if job.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.Error.Code != ErrorCodeGeneration || !job.Error.Retryable {
		t.Fatalf("expected retryable %s, got %+v", ErrorCodeGeneration, job.Error)
	}
}

func TestProcessJobSkipsTerminalJob(t *testing.T) {
	repo := NewMemoryRepo()
	p := newProcessor(repo, &stubModel{response: swotJSON()}, nil)
	createPendingJob(t, repo, "http://localhost:1")
	if err := repo.Fail(context.Background(), "job-1", JobError{Code: ErrorCodeInternal}, nil); err != nil {
		t.Fatalf("fail job: %v", err)
	}

	if err := p.ProcessJob(context.Background(), "job-1"); err != nil {
		t.Fatalf("redelivery of terminal job must be acknowledged, got %v", err)
	}

	job, _ := repo.GetByID(context.Background(), "job-1")
	if len(job.Timeline) != 0 {
		t.Fatalf("terminal job must not be reprocessed, got timeline %+v", job.Timeline)
	}
}
