package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

const (
	mimeHTML = "text/html"
	mimePDF  = "application/pdf"

	maxExcerptChars = 20000
)

// ErrEmptyContent indicates the page yielded no usable text.
var ErrEmptyContent = errors.New("no extractable content")

// Content is the structural signal derived from a fetched page.
type Content struct {
	Title    string
	Headings []string
	Text     string
}

// Excerpt returns a bounded plain-text view of the content, suitable as
// generation input and audit record.
func (c Content) Excerpt() string {
	var b strings.Builder
	if c.Title != "" {
		b.WriteString(c.Title)
		b.WriteString("\n\n")
	}
	for _, h := range c.Headings {
		b.WriteString(h)
		b.WriteString("\n")
	}
	if len(c.Headings) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(c.Text)

	out := b.String()
	if len(out) > maxExcerptChars {
		out = out[:maxExcerptChars]
	}
	return out
}

// FromBytes derives clean text from raw page bytes based on the content type.
// HTML is parsed structurally; PDF URLs (whitepapers, reports) are supported
// via text extraction. Anything else is treated as plain text.
func FromBytes(data []byte, contentType string) (Content, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Content{}, ErrEmptyContent
	}

	switch normalizeMimeType(contentType, data) {
	case mimePDF:
		return fromPDF(data)
	case mimeHTML:
		return fromHTML(data)
	default:
		text := collapseWhitespace(string(data))
		if text == "" {
			return Content{}, ErrEmptyContent
		}
		return Content{Text: text}, nil
	}
}

func fromHTML(data []byte) (Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return Content{}, fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript, iframe, svg").Remove()

	title := collapseWhitespace(doc.Find("title").First().Text())
	if title == "" {
		title = collapseWhitespace(doc.Find("h1").First().Text())
	}

	var headings []string
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if h := collapseWhitespace(s.Text()); h != "" {
			headings = append(headings, h)
		}
	})

	body := doc.Find("body")
	var text string
	if body.Length() > 0 {
		text = collapseWhitespace(body.Text())
	} else {
		text = collapseWhitespace(doc.Text())
	}
	if text == "" && title == "" {
		return Content{}, ErrEmptyContent
	}

	return Content{Title: title, Headings: headings, Text: text}, nil
}

func fromPDF(data []byte) (Content, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Content{}, fmt.Errorf("parse pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return Content{}, fmt.Errorf("pdf plain text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return Content{}, fmt.Errorf("pdf read: %w", err)
	}
	text := collapseWhitespace(buf.String())
	if text == "" {
		return Content{}, ErrEmptyContent
	}
	return Content{Text: text}, nil
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(raw string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(raw, " "))
}

func normalizeMimeType(contentType string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch clean {
	case mimePDF, mimeHTML, "application/xhtml+xml":
		if clean == "application/xhtml+xml" {
			return mimeHTML
		}
		return clean
	}
	// Sniff when the server lied or omitted the header.
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("%PDF-")) {
		return mimePDF
	}
	lower := bytes.ToLower(trimmed)
	if bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html")) {
		return mimeHTML
	}
	if clean == "" {
		return "text/plain"
	}
	return clean
}
