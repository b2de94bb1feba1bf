package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Client abstracts reasoning-service providers behind a fixed contract:
// structured prompt in, raw JSON SWOT payload out.
type Client interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	GenerateSWOT(ctx context.Context, input GenerateInput) (json.RawMessage, error)
}

// GenerateInput captures the inputs for SWOT generation.
type GenerateInput struct {
	PrimaryEntity      string
	ComparisonEntities []string
	Content            string
	// ToolContext is a pre-formatted competitive-intelligence block; empty
	// when augmentation was skipped or failed.
	ToolContext string
	// RepairInstructions carries quality issues from a rejected previous
	// answer; the provider asks the model to address them.
	RepairInstructions []string
}

// FailureKind classifies provider failures for retry decisions.
type FailureKind string

const (
	KindTransient FailureKind = "transient"
	KindPermanent FailureKind = "permanent"
)

// ProviderError is a typed provider-level failure.
type ProviderError struct {
	Provider   string
	Kind       FailureKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (http status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether the error is a retryable provider failure.
// Unclassified errors are treated as transient so network-level surprises
// get the benefit of the retry budget.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Kind == KindTransient
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

type fixJSONKey struct{}

// WithFixJSON returns a context signaling a fix-JSON retry with the given raw output.
func WithFixJSON(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, fixJSONKey{}, raw)
}

// FixJSONFromContext returns the raw JSON to repair, if any.
func FixJSONFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(fixJSONKey{})
	raw, ok := val.(string)
	return raw, ok
}
