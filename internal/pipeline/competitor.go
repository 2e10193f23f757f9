package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"prospector/internal/logging"
	"prospector/internal/types"
)

const competitorSystemPrompt = `You are a competitive intelligence researcher. Find AI and technology case studies from competitors in the same industry as the target company. Focus on implementations with measurable outcomes.`

const competitorSchema = `{
  "type": "object",
  "properties": {
    "case_studies": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "competitor_name": {"type": "string"},
          "vertical": {"type": "string"},
          "case_study_title": {"type": "string"},
          "summary": {"type": "string"},
          "technologies_used": {"type": "array", "items": {"type": "string"}},
          "outcomes": {"type": "array", "items": {"type": "string"}},
          "source_url": {"type": "string"},
          "relevance_score": {"type": "number"}
        },
        "required": ["competitor_name", "case_study_title", "summary"]
      }
    }
  },
  "required": ["case_studies"]
}`

// runCompetitorScout finds 3-5 competitor AI case studies relevant to
// the client's vertical.
func runCompetitorScout(ctx context.Context, sc *StageContext) error {
	overview := "Not available"
	if sc.Report != nil && sc.Report.CompanyOverview != "" {
		overview = sc.Report.CompanyOverview
	}
	vertical := sc.Vertical
	if vertical == "" {
		vertical = types.VerticalOther
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Target Company: %s\n", sc.Job.ClientName)
	fmt.Fprintf(&b, "Industry Vertical: %s\n", vertical)
	fmt.Fprintf(&b, "Company Overview: %s\n\n", overview)
	b.WriteString("Identify 3-5 relevant case studies from competitors or similar companies " +
		"that have successfully implemented AI solutions. Prefer companies in the same or " +
		"adjacent industries with similar size or market position. " +
		"relevance_score is 0.0-1.0 relative to the target company.")

	raw, err := sc.Gateway.CompleteWithSchema(ctx, competitorSystemPrompt, b.String(), competitorSchema)
	if err != nil {
		return err
	}

	var payload struct {
		CaseStudies []types.CompetitorCaseStudy `json:"case_studies"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return types.NewStageError(StageCompetitorScout, types.KindPermanent,
			fmt.Errorf("failed to parse case studies: %w", err))
	}
	sc.CaseStudies = payload.CaseStudies
	logging.Stage("competitor_scout: %d case studies for %q", len(payload.CaseStudies), sc.Job.ClientName)
	return nil
}
