package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"prospector/internal/logging"
	"prospector/internal/types"
)

const internalOpsSystemPrompt = `You are a business intelligence analyst specializing in organizational research. Analyze publicly available information about a company to gather internal operations intelligence: employee sentiment, LinkedIn presence, social media discussion, job postings, and news sentiment.`

const internalOpsSchema = `{
  "type": "object",
  "properties": {
    "employee_sentiment": {
      "type": "object",
      "properties": {
        "overall": {"type": "string"},
        "score": {"type": "number"},
        "themes": {"type": "array", "items": {"type": "string"}}
      }
    },
    "linkedin_presence": {
      "type": "object",
      "properties": {
        "followers": {"type": "string"},
        "activity_level": {"type": "string"},
        "recent_posts": {
          "type": "array",
          "items": {"type": "object", "additionalProperties": {"type": "string"}}
        }
      }
    },
    "social_media_mentions": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "platform": {"type": "string"},
          "summary": {"type": "string"},
          "sentiment": {"type": "string"},
          "date": {"type": "string"}
        }
      }
    },
    "job_postings": {
      "type": "object",
      "properties": {
        "total": {"type": "string"},
        "categories": {"type": "object", "additionalProperties": {"type": "integer"}},
        "hiring_signals": {"type": "array", "items": {"type": "string"}}
      }
    },
    "news_sentiment": {
      "type": "object",
      "properties": {
        "overall": {"type": "string"},
        "themes": {"type": "array", "items": {"type": "string"}}
      }
    },
    "key_insights": {"type": "array", "items": {"type": "string"}},
    "confidence_score": {"type": "number"},
    "data_freshness": {"type": "string"},
    "analysis_notes": {"type": "string"}
  },
  "required": ["key_insights"]
}`

// runInternalOps gathers organizational intelligence. Runs only when
// enabled in the pipeline config.
func runInternalOps(ctx context.Context, sc *StageContext) error {
	overview := "Not available"
	website := "Not available"
	if sc.Report != nil {
		if sc.Report.CompanyOverview != "" {
			overview = sc.Report.CompanyOverview
		}
		if sc.Report.Website != "" {
			website = sc.Report.Website
		}
	}
	vertical := sc.Vertical
	if vertical == "" {
		vertical = types.VerticalOther
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Target Company: %s\n", sc.Job.ClientName)
	fmt.Fprintf(&b, "Industry Vertical: %s\n", vertical)
	fmt.Fprintf(&b, "Company Website: %s\n", website)
	fmt.Fprintf(&b, "Company Overview: %s\n\n", overview)
	b.WriteString("Summarize what this intelligence reveals about the company's current " +
		"state and what it means for a sales team. confidence_score is 0.0-1.0.")

	raw, err := sc.Gateway.CompleteWithSchema(ctx, internalOpsSystemPrompt, b.String(), internalOpsSchema)
	if err != nil {
		return err
	}

	var intel types.InternalOpsIntel
	if err := json.Unmarshal([]byte(raw), &intel); err != nil {
		return types.NewStageError(StageInternalOps, types.KindPermanent,
			fmt.Errorf("failed to parse internal ops intel: %w", err))
	}
	sc.InternalOps = &intel
	logging.Stage("internal_ops: %d key insights for %q", len(intel.KeyInsights), sc.Job.ClientName)
	return nil
}
