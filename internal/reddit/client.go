package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"strategiq-backend/internal/shared/telemetry"
)

const (
	defaultBaseURL   = "https://www.reddit.com"
	defaultUserAgent = "StrategIQ-Analyzer/1.0"
	searchLimit      = 10
	requestTimeout   = 10 * time.Second
	searchAttempts   = 2
	retryDelay       = 250 * time.Millisecond
)

// Post is a single search result from a subreddit.
type Post struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Body      string `json:"body,omitempty"`
	Subreddit string `json:"subreddit"`
}

// Client searches subreddits through Reddit's public JSON listing API.
// It is read-only and requires no credentials.
type Client struct {
	baseURL    string
	subreddits []string
	httpClient *http.Client
}

// NewClient constructs a Client searching the given subreddits.
func NewClient(subreddits []string) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		subreddits: subreddits,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Search queries every configured subreddit concurrently and merges the
// results. Individual subreddit failures degrade to partial results; Search
// errors only when every subreddit fails.
func (c *Client) Search(ctx context.Context, query string) ([]Post, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if len(c.subreddits) == 0 {
		return nil, fmt.Errorf("no subreddits configured")
	}

	var mu sync.Mutex
	var posts []Post
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range c.subreddits {
		name := name
		g.Go(func() error {
			found, err := c.searchSubreddit(gctx, name, query)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				telemetry.Info("reddit.subreddit.failed", map[string]any{
					"subreddit": name,
					"error":     err.Error(),
				})
				return nil
			}
			posts = append(posts, found...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(posts) == 0 && failures == len(c.subreddits) {
		return nil, fmt.Errorf("all %d subreddit searches failed", failures)
	}
	return posts, nil
}

func (c *Client) searchSubreddit(ctx context.Context, subreddit, query string) ([]Post, error) {
	var lastErr error
	for attempt := 1; attempt <= searchAttempts; attempt++ {
		posts, err := c.searchOnce(ctx, subreddit, query)
		if err == nil {
			return posts, nil
		}
		lastErr = err
		if attempt == searchAttempts {
			break
		}
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Data struct {
				Title     string `json:"title"`
				URL       string `json:"url"`
				SelfText  string `json:"selftext"`
				Subreddit string `json:"subreddit"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (c *Client) searchOnce(ctx context.Context, subreddit, query string) ([]Post, error) {
	endpoint := fmt.Sprintf("%s/r/%s/search.json?q=%s&limit=%d&restrict_sr=1&sort=relevance",
		c.baseURL, url.PathEscape(subreddit), url.QueryEscape(query), searchLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search r/%s: %w", subreddit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search r/%s: http status %d", subreddit, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search r/%s: read body: %w", subreddit, err)
	}

	var listing listingResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("search r/%s: parse listing: %w", subreddit, err)
	}

	posts := make([]Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, Post{
			Title:     child.Data.Title,
			URL:       child.Data.URL,
			Body:      truncate(child.Data.SelfText, 2000),
			Subreddit: child.Data.Subreddit,
		})
	}
	return posts, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
