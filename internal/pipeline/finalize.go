package pipeline

import (
	"context"

	"prospector/internal/logging"
	"prospector/internal/memory"
	"prospector/internal/types"
)

// runFinalize closes out the run. Missing optional results never fail
// it: the vertical defaults to other and whatever partials exist stand.
// Key findings are captured into the shared memory store so later jobs
// in the same vertical benefit; capture failures are logged and
// swallowed.
func runFinalize(ctx context.Context, sc *StageContext) error {
	if sc.Vertical == "" {
		sc.Vertical = types.VerticalOther
	}

	if sc.Memory != nil && sc.Report != nil {
		captureFindings(ctx, sc)
	}
	logging.Stage("finalize: job %s complete (vertical=%s)", sc.Job.ID, sc.Vertical)
	return nil
}

func captureFindings(ctx context.Context, sc *StageContext) {
	write := func(kind, content string) {
		if content == "" {
			return
		}
		err := sc.Memory.Write(ctx, memory.Entry{
			Vertical: sc.Vertical,
			Kind:     kind,
			Content:  content,
			Metadata: map[string]interface{}{
				"client": sc.Job.ClientName,
				"job_id": sc.Job.ID,
			},
		})
		if err != nil {
			logging.MemoryWarn("finalize: memory capture failed: %v", err)
		}
	}

	for _, p := range sc.Report.PainPoints {
		write(memory.KindPainPoint, p)
	}
	for _, o := range sc.Report.Opportunities {
		write(memory.KindFinding, o)
	}
	for _, tp := range sc.Report.TalkingPoints {
		write(memory.KindTalkTrack, tp)
	}
	for _, cs := range sc.CaseStudies {
		write(memory.KindCaseStudy, cs.CaseStudyTitle+": "+cs.Summary)
	}
}
