package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Category is one of the four SWOT quadrants.
type Category string

const (
	Strength    Category = "strength"
	Weakness    Category = "weakness"
	Opportunity Category = "opportunity"
	Threat      Category = "threat"
)

// Categories lists the quadrants in display order.
var Categories = []Category{Strength, Weakness, Opportunity, Threat}

// Insight is a single item returned by the knowledge-retrieval tool.
type Insight struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Body  string `json:"body,omitempty"`
}

// ToolContext carries competitive-intelligence data gathered before generation.
type ToolContext struct {
	Query    string    `json:"query"`
	Insights []Insight `json:"insights"`
}

// Report is the finalized SWOT analysis owned by a completed job.
type Report struct {
	PrimaryEntity      string                `json:"primaryEntity"`
	ComparisonEntities []string              `json:"comparisonEntities,omitempty"`
	Entries            map[Category][]string `json:"entries"`
	Summary            string                `json:"summary"`
	SourceExcerpts     string                `json:"sourceExcerpts,omitempty"`
	ToolContext        *ToolContext          `json:"toolContext,omitempty"`
}

// Validate checks the structural contract: every category key present,
// item lists non-nil (they may be empty).
func Validate(r *Report) error {
	if r == nil {
		return fmt.Errorf("report is nil")
	}
	if r.Entries == nil {
		return fmt.Errorf("report entries missing")
	}
	for _, cat := range Categories {
		if _, ok := r.Entries[cat]; !ok {
			return fmt.Errorf("report missing category %q", cat)
		}
	}
	return nil
}

// QualityIssues returns human-readable completeness problems used to ask the
// reasoning service for a better answer. An empty slice means the report
// passes the quality gate.
func QualityIssues(r *Report) []string {
	const minItems = 2
	const minSummaryLen = 100

	var issues []string
	for _, cat := range Categories {
		if count := len(r.Entries[cat]); count < minItems {
			issues = append(issues, fmt.Sprintf("%s should have at least %d points, got %d", cat, minItems, count))
		}
	}
	if len(r.Summary) < minSummaryLen {
		issues = append(issues, fmt.Sprintf("summary should have at least %d characters, got %d", minSummaryLen, len(r.Summary)))
	}
	return issues
}

// Fingerprint computes a deterministic hash over the report's semantic
// content. Two jobs producing identical reports share one fingerprint;
// job ids and timestamps are deliberately excluded.
func Fingerprint(r *Report) string {
	var b strings.Builder
	b.WriteString(r.PrimaryEntity)
	b.WriteString("\x00")
	for _, entity := range r.ComparisonEntities {
		b.WriteString(entity)
		b.WriteString("\x1f")
	}
	b.WriteString("\x00")
	for _, cat := range Categories {
		b.WriteString(string(cat))
		b.WriteString(":")
		for _, item := range r.Entries[cat] {
			b.WriteString(item)
			b.WriteString("\x1f")
		}
		b.WriteString("\x00")
	}
	b.WriteString(r.Summary)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
