package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultAttempts    = 2
	retryDelay         = 500 * time.Millisecond
	maxBodyBytes       = 8 << 20
	defaultUserAgent   = "StrategIQ-Analyzer/1.0"
	acceptedMediaTypes = "text/html, application/xhtml+xml, application/pdf, text/plain;q=0.8, */*;q=0.5"
)

// Page is the raw content retrieved for a submitted URL.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
}

// Fetcher retrieves raw page content with bounded timeouts and retries.
type Fetcher struct {
	client   *http.Client
	attempts int
}

// New constructs a Fetcher. Zero values fall back to defaults.
func New(timeout time.Duration, attempts int) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: timeout,
			},
		},
		attempts: attempts,
	}
}

// Fetch retrieves the URL, retrying transient failures up to the configured
// attempt budget. Non-2xx responses and exhausted retries surface as errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		page, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !isTransient(err) || attempt == f.attempts {
			break
		}
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}
	return Page{}, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request url=%s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", acceptedMediaTypes)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return Page{}, fmt.Errorf("fetch timeout url=%s: %w", rawURL, err)
		}
		return Page{}, fmt.Errorf("fetch url=%s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{}, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read body url=%s: %w", rawURL, err)
	}

	return Page{
		URL:         rawURL,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch url=%s: http status %d", e.URL, e.StatusCode)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "eof")
}
