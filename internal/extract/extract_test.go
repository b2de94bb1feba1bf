package extract

import (
	"errors"
	"strings"
	"testing"
)

const sampleHTML = `<!DOCTYPE html>
<html>
<head><title>Acme Widgets — Home</title><style>body{color:red}</style></head>
<body>
<h1>Acme Widgets</h1>
<h2>Pricing</h2>
<script>console.log("noise")</script>
<p>We sell the best widgets in the world.</p>
</body>
</html>`

func TestFromBytesHTML(t *testing.T) {
	content, err := FromBytes([]byte(sampleHTML), "text/html; charset=utf-8")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if content.Title != "Acme Widgets — Home" {
		t.Fatalf("unexpected title: %q", content.Title)
	}
	if len(content.Headings) != 2 {
		t.Fatalf("expected 2 headings, got %v", content.Headings)
	}
	if !strings.Contains(content.Text, "best widgets") {
		t.Fatalf("body text missing: %q", content.Text)
	}
	if strings.Contains(content.Text, "console.log") {
		t.Fatalf("script content leaked into text: %q", content.Text)
	}
}

func TestFromBytesSniffsHTMLWithoutContentType(t *testing.T) {
	content, err := FromBytes([]byte(sampleHTML), "")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if content.Title == "" {
		t.Fatalf("expected sniffed html to be parsed structurally")
	}
}

func TestFromBytesEmpty(t *testing.T) {
	if _, err := FromBytes([]byte("   \n\t "), "text/html"); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestFromBytesPlainText(t *testing.T) {
	content, err := FromBytes([]byte("plain  text\n\ncontent"), "text/plain")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if content.Text != "plain text content" {
		t.Fatalf("whitespace not collapsed: %q", content.Text)
	}
}

func TestExcerptBounded(t *testing.T) {
	content := Content{Text: strings.Repeat("x", maxExcerptChars*2)}
	if got := len(content.Excerpt()); got > maxExcerptChars {
		t.Fatalf("excerpt length %d exceeds cap", got)
	}
}
