// Package pipeline runs the multi-stage research state machine: an
// ordered table of stage strategies executed by the Runner under a
// worker slot, with per-stage retry of transient provider errors.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"prospector/internal/config"
	"prospector/internal/gateway"
	"prospector/internal/memory"
	"prospector/internal/types"
)

// Stage names, in pipeline order.
const (
	StageValidate        = "validate"
	StageDeepResearch    = "deep_research"
	StageClassify        = "classify"
	StageCompetitorScout = "competitor_scout"
	StageGapAnalysis     = "gap_analysis"
	StageInternalOps     = "internal_ops"
	StageFinalize        = "finalize"
)

// StageContext carries the job inputs and the partial results merged so
// far. Stages read earlier results and write their own; the Runner
// persists after each stage completes.
type StageContext struct {
	Job       *types.Job
	Inherited *types.InheritedContext

	Gateway gateway.Gateway
	Memory  *memory.Store // optional; nil disables memory lookups
	Config  *config.Config

	// Partial results, filled in stage order.
	Report      *types.Report
	Vertical    types.Vertical
	CaseStudies []types.CompetitorCaseStudy
	Gaps        *types.GapAnalysis
	InternalOps *types.InternalOpsIntel
}

// StageDescriptor is one entry in the ordered stage table.
// Required stages abort the job on failure; best-effort stages record a
// warning and let the run continue.
type StageDescriptor struct {
	Name     string
	Required bool
	Enabled  func(*config.PipelineConfig) bool
	Run      func(ctx context.Context, sc *StageContext) error
}

func always(*config.PipelineConfig) bool { return true }

// Stages returns the pipeline's stage table in execution order.
func Stages() []StageDescriptor {
	return []StageDescriptor{
		{Name: StageValidate, Required: true, Enabled: always, Run: runValidate},
		{Name: StageDeepResearch, Required: true, Enabled: always, Run: runDeepResearch},
		{Name: StageClassify, Required: false, Enabled: always, Run: runClassify},
		{Name: StageCompetitorScout, Required: false, Enabled: always, Run: runCompetitorScout},
		{Name: StageGapAnalysis, Required: false, Enabled: always, Run: runGapAnalysis},
		{Name: StageInternalOps, Required: false, Enabled: func(p *config.PipelineConfig) bool { return p.InternalOps }, Run: runInternalOps},
		{Name: StageFinalize, Required: true, Enabled: always, Run: runFinalize},
	}
}

// inheritedContextBlock renders inherited context as a prompt section.
// Empty context renders nothing.
func inheritedContextBlock(ic *types.InheritedContext) string {
	if ic.IsEmpty() {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nContext from previous research iterations:\n")
	writeList := func(header string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", header)
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	writeList("Known pain points", ic.PainPoints)
	writeList("Known opportunities", ic.Opportunities)
	writeList("Proven talking points", ic.TalkingPoints)

	if len(ic.StarredProducts) > 0 {
		b.WriteString("Keeper work products:\n")
		for _, sp := range ic.StarredProducts {
			fmt.Fprintf(&b, "- %s: %s\n", sp.Title, sp.Summary)
		}
	}
	if len(ic.UseCases) > 0 {
		b.WriteString("Prioritized use cases:\n")
		for _, uc := range ic.UseCases {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", uc.Priority, uc.Title, uc.Description)
		}
	}
	return b.String()
}
