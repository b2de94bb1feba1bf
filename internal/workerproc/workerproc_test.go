package workerproc

import (
	"context"
	"errors"
	"testing"

	"strategiq-backend/internal/queue"
)

type fakeProcessor struct {
	jobIDs []string
	err    error
}

func (p *fakeProcessor) ProcessJob(_ context.Context, jobID string) error {
	p.jobIDs = append(p.jobIDs, jobID)
	return p.err
}

func encodedBody(t *testing.T, msg queue.Message) string {
	t.Helper()
	payload, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	return string(payload)
}

func TestParseMessageEmptyBody(t *testing.T) {
	_, _, err := ParseMessage("   ")
	var emptyErr ErrEmptyBody
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
}

func TestParseMessageBadJSON(t *testing.T) {
	_, meta, err := ParseMessage("{broken")
	var decodeErr ErrDecode
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if meta.BodyLen != len("{broken") {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestParseMessageMissingJobID(t *testing.T) {
	body := encodedBody(t, queue.Message{RequestID: "req-1", Version: 1})
	_, _, err := ParseMessage(body)
	var missingErr ErrMissingJobID
	if !errors.As(err, &missingErr) {
		t.Fatalf("expected ErrMissingJobID, got %v", err)
	}
	if missingErr.RequestID != "req-1" {
		t.Fatalf("expected request id preserved, got %q", missingErr.RequestID)
	}
}

func TestHandleMessageProcessesJob(t *testing.T) {
	processor := &fakeProcessor{}
	body := encodedBody(t, queue.Message{JobID: "job-1", RequestID: "req-1", Version: 1})

	if err := HandleMessage(context.Background(), processor, body); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(processor.jobIDs) != 1 || processor.jobIDs[0] != "job-1" {
		t.Fatalf("unexpected processed jobs: %v", processor.jobIDs)
	}
}

func TestHandleMessageWrapsProcessError(t *testing.T) {
	processor := &fakeProcessor{err: errors.New("pipeline broke")}
	body := encodedBody(t, queue.Message{JobID: "job-1", Version: 1})

	err := HandleMessage(context.Background(), processor, body)
	var processErr ErrProcess
	if !errors.As(err, &processErr) {
		t.Fatalf("expected ErrProcess, got %v", err)
	}
	if processErr.JobID != "job-1" {
		t.Fatalf("unexpected job id %q", processErr.JobID)
	}
}

func TestHandleMessageUsesParsedMessageFromContext(t *testing.T) {
	processor := &fakeProcessor{}
	ctx := WithParsedMessage(context.Background(), queue.Message{JobID: "job-ctx"})

	if err := HandleMessage(ctx, processor, "ignored"); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(processor.jobIDs) != 1 || processor.jobIDs[0] != "job-ctx" {
		t.Fatalf("expected context message to win, got %v", processor.jobIDs)
	}
}
