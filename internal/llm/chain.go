package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"strategiq-backend/internal/shared/metrics"
	"strategiq-backend/internal/shared/telemetry"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = 300 * time.Millisecond
)

// ErrAllProvidersFailed is returned when every provider in the chain is exhausted.
var ErrAllProvidersFailed = errors.New("all reasoning providers failed")

// Chain tries an ordered list of providers. Transient failures are retried
// per provider with exponential delay; permanent failures skip straight to
// the next provider.
type Chain struct {
	providers []Client
	attempts  int
	baseDelay time.Duration
}

// NewChain constructs a provider chain. Nil providers are dropped.
func NewChain(providers ...Client) *Chain {
	kept := make([]Client, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			kept = append(kept, p)
		}
	}
	return &Chain{
		providers: kept,
		attempts:  defaultAttempts,
		baseDelay: defaultBaseDelay,
	}
}

// Name lists the chained providers.
func (c *Chain) Name() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// GenerateSWOT walks the provider order until one succeeds.
func (c *Chain) GenerateSWOT(ctx context.Context, input GenerateInput) (json.RawMessage, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("no reasoning providers configured")
	}

	var lastErr error
	for idx, provider := range c.providers {
		raw, err := c.generateWithRetry(ctx, provider, input)
		if err == nil {
			if idx > 0 {
				metrics.IncProviderFallback()
			}
			return raw, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		telemetry.Info("llm.provider.fallback", map[string]any{
			"provider": provider.Name(),
			"error":    err.Error(),
		})
	}
	return nil, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}

func (c *Chain) generateWithRetry(ctx context.Context, provider Client, input GenerateInput) (json.RawMessage, error) {
	delay := c.baseDelay
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		raw, err := provider.GenerateSWOT(ctx, input)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == c.attempts {
			break
		}
		telemetry.Debug("llm.provider.retry", map[string]any{
			"provider": provider.Name(),
			"attempt":  attempt,
			"error":    err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	return nil, lastErr
}

var _ Client = (*Chain)(nil)
