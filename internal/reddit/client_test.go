package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func listingJSON(titles ...string) string {
	var children []string
	for _, t := range titles {
		children = append(children, fmt.Sprintf(
			`{"data":{"title":%q,"url":"https://reddit.com/post","selftext":"body","subreddit":"golang"}}`, t))
	}
	return `{"data":{"children":[` + strings.Join(children, ",") + `]}}`
}

func newTestClient(baseURL string, subreddits []string) *Client {
	c := NewClient(subreddits)
	c.baseURL = baseURL
	return c
}

func TestSearchMergesSubreddits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/r/golang/") {
			fmt.Fprint(w, listingJSON("go post"))
			return
		}
		fmt.Fprint(w, listingJSON("biz post one", "biz post two"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, []string{"golang", "business"})
	posts, err := c.Search(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(posts))
	}
}

func TestSearchToleratesPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/r/broken/") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, listingJSON("good post"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, []string{"broken", "golang"})
	posts, err := c.Search(context.Background(), "acme")
	if err != nil {
		t.Fatalf("expected partial results, got error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	if posts[0].Title != "good post" {
		t.Fatalf("unexpected post title %q", posts[0].Title)
	}
}

func TestSearchFailsWhenAllSubredditsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, []string{"a", "b"})
	if _, err := c.Search(context.Background(), "acme"); err == nil {
		t.Fatalf("expected error when every subreddit fails")
	}
}

func TestSearchRetriesOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, listingJSON("retried post"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, []string{"golang"})
	posts, err := c.Search(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
	if len(posts) != 1 || posts[0].Title != "retried post" {
		t.Fatalf("unexpected posts: %+v", posts)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	c := NewClient([]string{"golang"})
	if _, err := c.Search(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty query")
	}
}
