package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"prospector/internal/logging"
	"prospector/internal/types"
)

const gapSystemPrompt = `You are a sales strategy analyst. Analyze the sales history and company information to identify technology, capability, and process gaps. Be specific about business impact and prioritize by value and feasibility.`

const gapSchema = `{
  "type": "object",
  "properties": {
    "technology_gaps": {"type": "array", "items": {"type": "string"}},
    "capability_gaps": {"type": "array", "items": {"type": "string"}},
    "process_gaps": {"type": "array", "items": {"type": "string"}},
    "recommendations": {"type": "array", "items": {"type": "string"}},
    "priority_areas": {"type": "array", "items": {"type": "string"}},
    "confidence_score": {"type": "number"},
    "analysis_notes": {"type": "string"}
  },
  "required": ["technology_gaps", "capability_gaps", "process_gaps", "recommendations"]
}`

// runGapAnalysis identifies technology, capability and process gaps
// from the sales history and the research report.
func runGapAnalysis(ctx context.Context, sc *StageContext) error {
	overview := "Not available"
	if sc.Report != nil && sc.Report.CompanyOverview != "" {
		overview = sc.Report.CompanyOverview
	}
	history := sc.Job.SalesHistory
	if history == "" {
		history = "No sales history provided"
	}
	vertical := sc.Vertical
	if vertical == "" {
		vertical = types.VerticalOther
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Target Company: %s\n", sc.Job.ClientName)
	fmt.Fprintf(&b, "Industry Vertical: %s\n", vertical)
	fmt.Fprintf(&b, "Company Overview: %s\n\n", overview)
	fmt.Fprintf(&b, "Sales History:\n%s\n\n", history)
	b.WriteString("Include 3-5 items per gap category. confidence_score is 0.0-1.0 " +
		"based on how much information was available. If sales history is minimal, " +
		"focus on industry-typical gaps.")

	raw, err := sc.Gateway.CompleteWithSchema(ctx, gapSystemPrompt, b.String(), gapSchema)
	if err != nil {
		return err
	}

	var gaps types.GapAnalysis
	if err := json.Unmarshal([]byte(raw), &gaps); err != nil {
		return types.NewStageError(StageGapAnalysis, types.KindPermanent,
			fmt.Errorf("failed to parse gap analysis: %w", err))
	}
	sc.Gaps = &gaps
	logging.Stage("gap_analysis: %d recommendations for %q", len(gaps.Recommendations), sc.Job.ClientName)
	return nil
}
