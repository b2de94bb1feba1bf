package llm

import (
	"fmt"
	"strings"
)

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string
	Content string
}

const systemPrompt = `You are an advanced AI assistant specializing in comprehensive SWOT analyses.
You are given extracted website content and, when available, competitive
intelligence gathered from community discussions. Ground every point in the
provided material.

SWOT Categories:
1. Strengths: internal advantages of the primary entity.
2. Weaknesses: internal disadvantages.
3. Opportunities: external factors the entity can leverage.
4. Threats: external risks, including competitive pressure.

Respond with a single JSON object of this exact shape:
{
  "primaryEntity": string,
  "comparisonEntities": [string],
  "strengths": [string],
  "weaknesses": [string],
  "opportunities": [string],
  "threats": [string],
  "summary": string
}
Deliver at least 3 points per category, each backed by specific evidence.
The summary must be a substantive executive summary of 150+ characters.`

// BuildMessages assembles the chat prompt for a generation request.
func BuildMessages(input GenerateInput) []Message {
	var user strings.Builder
	if len(input.ComparisonEntities) > 0 {
		fmt.Fprintf(&user, "Perform a comparative SWOT analysis.\nPrimary entity: %s\nCompare against: %s\n",
			input.PrimaryEntity, strings.Join(input.ComparisonEntities, ", "))
		user.WriteString("The SWOT must centre on the primary entity but explicitly contrast it with each competitor in every category.\n")
	} else {
		fmt.Fprintf(&user, "Perform a comprehensive SWOT analysis for: %s\n", input.PrimaryEntity)
	}

	user.WriteString("\n--- EXTRACTED WEBSITE CONTENT ---\n")
	user.WriteString(input.Content)

	if input.ToolContext != "" {
		user.WriteString("\n\n--- COMMUNITY INTELLIGENCE ---\n")
		user.WriteString(input.ToolContext)
	}

	if len(input.RepairInstructions) > 0 {
		user.WriteString("\n\nYour previous answer was incomplete. Address the following issues:\n")
		for _, issue := range input.RepairInstructions {
			user.WriteString("- ")
			user.WriteString(issue)
			user.WriteString("\n")
		}
	}

	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user.String()},
	}
}

// BuildFixMessages asks the model to repair malformed JSON from a previous turn.
func BuildFixMessages(raw string) []Message {
	return []Message{
		{Role: "system", Content: "You repair malformed JSON. Return only a valid JSON object with the same content, no commentary."},
		{Role: "user", Content: raw},
	}
}
