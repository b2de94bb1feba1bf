package queue

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		JobID:      "job-123",
		RequestID:  "request-456",
		EnqueuedAt: "2026-08-01T22:00:00Z",
		Version:    1,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestMemoryClientSendReceive(t *testing.T) {
	client := NewMemoryClient(2)
	msg := Message{JobID: "job-1", Version: 1}

	if err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	got, err := client.Receive(context.Background())
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got.JobID != "job-1" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestMemoryClientFailsWhenFull(t *testing.T) {
	client := NewMemoryClient(1)
	if err := client.Send(context.Background(), Message{JobID: "a"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := client.Send(context.Background(), Message{JobID: "b"}); err == nil {
		t.Fatalf("expected error when buffer is full")
	}
}

func TestMemoryClientReceiveHonorsContext(t *testing.T) {
	client := NewMemoryClient(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := client.Receive(ctx); err == nil {
		t.Fatalf("expected context error on empty queue")
	}
}
