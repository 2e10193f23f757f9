package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"prospector/internal/logging"
	"prospector/internal/types"
)

const researchSystemPrompt = `You are a deep research assistant conducting comprehensive prospect research for a sales team. Be specific and actionable in pain points, opportunities, and talking points. Use "unknown" for fields you cannot determine.`

const researchSchema = `{
  "type": "object",
  "properties": {
    "company_overview": {"type": "string"},
    "founded_year": {"type": "integer"},
    "headquarters": {"type": "string"},
    "employee_count": {"type": "string"},
    "annual_revenue": {"type": "string"},
    "website": {"type": "string"},
    "recent_news": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "summary": {"type": "string"},
          "date": {"type": "string"},
          "source": {"type": "string"},
          "url": {"type": "string"}
        }
      }
    },
    "decision_makers": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "title": {"type": "string"},
          "background": {"type": "string"},
          "linkedin_url": {"type": "string"}
        }
      }
    },
    "pain_points": {"type": "array", "items": {"type": "string"}},
    "opportunities": {"type": "array", "items": {"type": "string"}},
    "digital_maturity": {"type": "string", "enum": ["nascent", "developing", "maturing", "advanced", "leading"]},
    "ai_footprint": {"type": "string"},
    "ai_adoption_stage": {"type": "string", "enum": ["exploring", "experimenting", "implementing", "scaling", "optimizing"]},
    "strategic_goals": {"type": "array", "items": {"type": "string"}},
    "key_initiatives": {"type": "array", "items": {"type": "string"}},
    "talking_points": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["company_overview", "pain_points", "opportunities", "talking_points"]
}`

// runDeepResearch produces the structured research report. Prior
// findings from the memory store and inherited iteration context are
// folded into the prompt when available.
func runDeepResearch(ctx context.Context, sc *StageContext) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Conduct thorough prospect research on the following client:\n")
	fmt.Fprintf(&b, "- Client Name: %s\n", sc.Job.ClientName)
	history := sc.Job.SalesHistory
	if history == "" {
		history = "No sales history provided"
	}
	fmt.Fprintf(&b, "- Past Sales History: %s\n", history)
	if sc.Job.Prompt != "" {
		fmt.Fprintf(&b, "- Additional focus: %s\n", sc.Job.Prompt)
	}

	b.WriteString(inheritedContextBlock(sc.Inherited))
	b.WriteString(memoryBlock(ctx, sc))

	b.WriteString("\nInclude 3-5 items for each list field where possible.")

	raw, err := sc.Gateway.CompleteWithSchema(ctx, researchSystemPrompt, b.String(), researchSchema)
	if err != nil {
		return err
	}

	var report types.Report
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return types.NewStageError(StageDeepResearch, types.KindPermanent,
			fmt.Errorf("failed to parse research report: %w", err))
	}
	sc.Report = &report
	logging.Stage("deep_research: report for %q (%d pain points, %d opportunities)",
		sc.Job.ClientName, len(report.PainPoints), len(report.Opportunities))
	return nil
}

// memoryBlock renders the top prior findings for the client as a
// prompt section. Lookup failures are swallowed; memory is advisory.
// Research runs before classification, so the job usually carries no
// vertical yet and the query spans all of them.
func memoryBlock(ctx context.Context, sc *StageContext) string {
	if sc.Memory == nil {
		return ""
	}
	hits, err := sc.Memory.Query(ctx, sc.Job.Vertical, sc.Job.ClientName, 5)
	if err != nil {
		logging.MemoryWarn("deep_research: memory lookup failed: %v", err)
		return ""
	}
	if len(hits) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nPrior research findings on file:\n")
	for _, hit := range hits {
		fmt.Fprintf(&b, "- (%s) %s\n", hit.Kind, hit.Content)
	}
	return b.String()
}
