package report

import (
	"strings"
	"testing"
)

func fullReport() *Report {
	return &Report{
		PrimaryEntity: "https://example.com",
		Entries: map[Category][]string{
			Strength:    {"strong brand", "loyal users"},
			Weakness:    {"small team", "single market"},
			Opportunity: {"new segment", "partnerships"},
			Threat:      {"incumbents", "regulation"},
		},
		Summary: strings.Repeat("Executive summary of the analyzed entity. ", 4),
	}
}

func TestValidateRequiresAllCategories(t *testing.T) {
	r := fullReport()
	if err := Validate(r); err != nil {
		t.Fatalf("valid report rejected: %v", err)
	}

	delete(r.Entries, Threat)
	if err := Validate(r); err == nil {
		t.Fatalf("expected error for missing category")
	}
}

func TestValidateAllowsEmptyCategoryList(t *testing.T) {
	r := fullReport()
	r.Entries[Weakness] = []string{}
	if err := Validate(r); err != nil {
		t.Fatalf("empty category list should be structurally valid: %v", err)
	}
}

func TestQualityIssues(t *testing.T) {
	r := fullReport()
	if issues := QualityIssues(r); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}

	r.Entries[Strength] = []string{"only one"}
	r.Summary = "too short"
	issues := QualityIssues(r)
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %v", issues)
	}
}

func TestFingerprintStableAndContentSensitive(t *testing.T) {
	a := fullReport()
	b := fullReport()
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("identical reports must share a fingerprint")
	}

	b.Entries[Threat] = append(b.Entries[Threat], "new threat")
	if Fingerprint(a) == Fingerprint(b) {
		t.Fatalf("different content must change the fingerprint")
	}
}

func TestFingerprintIgnoresToolContext(t *testing.T) {
	a := fullReport()
	b := fullReport()
	b.ToolContext = &ToolContext{Query: "example", Insights: []Insight{{Title: "t"}}}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("tool context must not affect the fingerprint")
	}
}
