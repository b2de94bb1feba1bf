package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"strategiq-backend/internal/extract"
	"strategiq-backend/internal/llm"
	"strategiq-backend/internal/reddit"
	"strategiq-backend/internal/report"
	"strategiq-backend/internal/shared/metrics"
	"strategiq-backend/internal/shared/telemetry"
)

const maxInsights = 8

// Searcher is the knowledge-retrieval tool used during augmentation.
type Searcher interface {
	Search(ctx context.Context, query string) ([]reddit.Post, error)
}

// Generator turns extracted page content into a validated SWOT report.
type Generator struct {
	model    llm.Client
	searcher Searcher
}

// New constructs a Generator. searcher may be nil, in which case the
// augmentation stage is a no-op.
func New(model llm.Client, searcher Searcher) *Generator {
	return &Generator{model: model, searcher: searcher}
}

// Request carries everything a generation run needs.
type Request struct {
	JobID              string
	PrimaryEntity      string
	ComparisonEntities []string
	Content            extract.Content
	Tool               *report.ToolContext
}

// Augment runs the knowledge-retrieval tool for the entity under analysis.
// Failures here never fail the job: a nil ToolContext means generation
// proceeds on page content alone.
func (g *Generator) Augment(ctx context.Context, jobID, primaryEntity string, content extract.Content) *report.ToolContext {
	if g.searcher == nil {
		return nil
	}

	query := deriveQuery(primaryEntity, content)
	if query == "" {
		return nil
	}

	posts, err := g.searcher.Search(ctx, query)
	if err != nil {
		metrics.IncAugmentSkipped()
		telemetry.Info("generator.augment.skipped", map[string]any{
			"job_id": jobID,
			"query":  query,
			"error":  err.Error(),
		})
		return nil
	}
	if len(posts) == 0 {
		return nil
	}
	if len(posts) > maxInsights {
		posts = posts[:maxInsights]
	}

	insights := make([]report.Insight, 0, len(posts))
	for _, p := range posts {
		insights = append(insights, report.Insight{Title: p.Title, URL: p.URL, Body: p.Body})
	}
	telemetry.Info("generator.augment.done", map[string]any{
		"job_id":   jobID,
		"query":    query,
		"insights": len(insights),
	})
	return &report.ToolContext{Query: query, Insights: insights}
}

// swotPayload is the JSON shape the reasoning service is instructed to emit.
type swotPayload struct {
	PrimaryEntity      string   `json:"primaryEntity"`
	ComparisonEntities []string `json:"comparisonEntities"`
	Strengths          []string `json:"strengths"`
	Weaknesses         []string `json:"weaknesses"`
	Opportunities      []string `json:"opportunities"`
	Threats            []string `json:"threats"`
	Summary            string   `json:"summary"`
}

// Generate produces a validated report. A structurally broken answer gets one
// fix-JSON retry; an answer failing the quality gate gets one repair round
// with explicit instructions. Remaining quality issues after the repair round
// are accepted and logged.
func (g *Generator) Generate(ctx context.Context, req Request) (*report.Report, error) {
	input := llm.GenerateInput{
		PrimaryEntity:      req.PrimaryEntity,
		ComparisonEntities: req.ComparisonEntities,
		Content:            req.Content.Excerpt(),
		ToolContext:        formatToolContext(req.Tool),
	}

	rep, err := g.generateOnce(ctx, req.JobID, input)
	if err != nil {
		return nil, err
	}

	if issues := report.QualityIssues(rep); len(issues) > 0 {
		telemetry.Info("generator.quality.retry", map[string]any{
			"job_id": req.JobID,
			"issues": issues,
		})
		repairInput := input
		repairInput.RepairInstructions = issues
		repaired, repairErr := g.generateOnce(ctx, req.JobID, repairInput)
		if repairErr == nil {
			if remaining := report.QualityIssues(repaired); len(remaining) > 0 {
				telemetry.Info("generator.quality.accepted", map[string]any{
					"job_id": req.JobID,
					"issues": remaining,
				})
			}
			rep = repaired
		} else {
			telemetry.Error("generator.quality.repair_failed", map[string]any{
				"job_id": req.JobID,
				"error":  repairErr.Error(),
			})
		}
	}

	rep.ToolContext = req.Tool
	rep.SourceExcerpts = req.Content.Excerpt()
	return rep, nil
}

func (g *Generator) generateOnce(ctx context.Context, jobID string, input llm.GenerateInput) (*report.Report, error) {
	raw, err := g.model.GenerateSWOT(ctx, input)
	if err != nil {
		return nil, err
	}

	rep, parseErr := parsePayload(input, raw)
	if parseErr == nil {
		return rep, nil
	}

	// One repair attempt: hand the broken output back to the provider.
	telemetry.Info("generator.fix_json.retry", map[string]any{
		"job_id": jobID,
		"error":  parseErr.Error(),
	})
	raw, err = g.model.GenerateSWOT(llm.WithFixJSON(ctx, string(raw)), input)
	if err != nil {
		return nil, err
	}
	rep, parseErr = parsePayload(input, raw)
	if parseErr != nil {
		return nil, fmt.Errorf("model output invalid after repair: %w", parseErr)
	}
	return rep, nil
}

func parsePayload(input llm.GenerateInput, raw json.RawMessage) (*report.Report, error) {
	var payload swotPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode swot payload: %w", err)
	}

	rep := &report.Report{
		PrimaryEntity:      strings.TrimSpace(payload.PrimaryEntity),
		ComparisonEntities: cleanList(payload.ComparisonEntities),
		Entries: map[report.Category][]string{
			report.Strength:    cleanList(payload.Strengths),
			report.Weakness:    cleanList(payload.Weaknesses),
			report.Opportunity: cleanList(payload.Opportunities),
			report.Threat:      cleanList(payload.Threats),
		},
		Summary: strings.TrimSpace(payload.Summary),
	}
	if rep.PrimaryEntity == "" {
		rep.PrimaryEntity = input.PrimaryEntity
	}
	if len(rep.ComparisonEntities) == 0 {
		rep.ComparisonEntities = input.ComparisonEntities
	}
	if err := report.Validate(rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// cleanList trims entries and drops empties, always returning a non-nil slice
// so the structural contract holds.
func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// deriveQuery picks the search phrase for the knowledge-retrieval tool,
// preferring the submitted entity name over the page title.
func deriveQuery(primaryEntity string, content extract.Content) string {
	if q := strings.TrimSpace(primaryEntity); q != "" {
		return q
	}
	title := strings.TrimSpace(content.Title)
	if title == "" {
		return ""
	}
	// Page titles carry site suffixes like "Acme | Home"; keep the lead segment.
	for _, sep := range []string{"|", " - ", "–"} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = title[:idx]
			break
		}
	}
	return strings.TrimSpace(title)
}

func formatToolContext(tc *report.ToolContext) string {
	if tc == nil || len(tc.Insights) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Community discussion found for %q:\n", tc.Query)
	for _, ins := range tc.Insights {
		fmt.Fprintf(&b, "- %s (%s)", ins.Title, ins.URL)
		if ins.Body != "" {
			fmt.Fprintf(&b, ": %s", ins.Body)
		}
		b.WriteString("\n")
	}
	return b.String()
}
