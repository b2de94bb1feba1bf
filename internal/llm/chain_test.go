package llm

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type scriptedProvider struct {
	name  string
	calls int
	fn    func(call int) (json.RawMessage, error)
}

func (s *scriptedProvider) Name() string { return s.name }

func (s *scriptedProvider) GenerateSWOT(ctx context.Context, input GenerateInput) (json.RawMessage, error) {
	s.calls++
	return s.fn(s.calls)
}

func newTestChain(providers ...Client) *Chain {
	c := NewChain(providers...)
	c.baseDelay = time.Millisecond
	return c
}

func TestChainRetriesTransientThenSucceeds(t *testing.T) {
	primary := &scriptedProvider{name: "primary", fn: func(call int) (json.RawMessage, error) {
		if call < 3 {
			return nil, &ProviderError{Provider: "primary", Kind: KindTransient, Message: "429"}
		}
		return json.RawMessage(`{"ok":true}`), nil
	}}

	chain := newTestChain(primary)
	raw, err := chain.GenerateSWOT(context.Background(), GenerateInput{})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Fatalf("unexpected output: %s", raw)
	}
	if primary.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", primary.calls)
	}
}

func TestChainFallsOverToSecondary(t *testing.T) {
	primary := &scriptedProvider{name: "primary", fn: func(int) (json.RawMessage, error) {
		return nil, &ProviderError{Provider: "primary", Kind: KindTransient, Message: "unavailable"}
	}}
	secondary := &scriptedProvider{name: "secondary", fn: func(int) (json.RawMessage, error) {
		return json.RawMessage(`{"from":"secondary"}`), nil
	}}

	chain := newTestChain(primary, secondary)
	raw, err := chain.GenerateSWOT(context.Background(), GenerateInput{})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if string(raw) != `{"from":"secondary"}` {
		t.Fatalf("expected secondary output, got %s", raw)
	}
	if primary.calls != 3 {
		t.Fatalf("primary should exhaust its retry budget, got %d calls", primary.calls)
	}
	if secondary.calls != 1 {
		t.Fatalf("secondary should be called once, got %d", secondary.calls)
	}
}

func TestChainPermanentErrorSkipsRetries(t *testing.T) {
	primary := &scriptedProvider{name: "primary", fn: func(int) (json.RawMessage, error) {
		return nil, &ProviderError{Provider: "primary", Kind: KindPermanent, Message: "invalid credentials"}
	}}
	secondary := &scriptedProvider{name: "secondary", fn: func(int) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}}

	chain := newTestChain(primary, secondary)
	if _, err := chain.GenerateSWOT(context.Background(), GenerateInput{}); err != nil {
		t.Fatalf("chain: %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("permanent failure must not be retried, got %d calls", primary.calls)
	}
}

func TestChainAllProvidersFail(t *testing.T) {
	failing := func(name string) *scriptedProvider {
		return &scriptedProvider{name: name, fn: func(int) (json.RawMessage, error) {
			return nil, &ProviderError{Provider: name, Kind: KindPermanent, Message: "broken"}
		}}
	}

	chain := newTestChain(failing("a"), failing("b"))
	_, err := chain.GenerateSWOT(context.Background(), GenerateInput{})
	if err == nil {
		t.Fatalf("expected failure when all providers fail")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(&ProviderError{Kind: KindTransient}) {
		t.Fatalf("transient provider error must be retryable")
	}
	if IsTransient(&ProviderError{Kind: KindPermanent}) {
		t.Fatalf("permanent provider error must not be retryable")
	}
	if IsTransient(context.Canceled) {
		t.Fatalf("cancellation must not be retried")
	}
}
