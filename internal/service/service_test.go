package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"prospector/internal/config"
	"prospector/internal/pipeline"
	"prospector/internal/store"
	"prospector/internal/types"
)

// gateGateway returns canned structured payloads; an optional gate
// blocks research calls until released so tests can observe the
// running state.
type gateGateway struct {
	gate      chan struct{}
	overview  string
	painPoint string

	// last research prompt seen; read only after runner.Wait()
	researchPrompt string
}

func (g *gateGateway) Complete(ctx context.Context, _, _ string) (string, error) {
	return "technology", nil
}

func (g *gateGateway) CompleteWithSchema(ctx context.Context, _, userPrompt, schema string) (string, error) {
	switch {
	case strings.Contains(schema, "company_overview"):
		g.researchPrompt = userPrompt
		if g.gate != nil {
			select {
			case <-g.gate:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return `{
			"company_overview": "` + g.overview + `",
			"pain_points": ["` + g.painPoint + `"],
			"opportunities": ["Automate reporting"],
			"talking_points": ["Quarter-end crunch"]
		}`, nil
	case strings.Contains(schema, "case_studies"):
		return `{"case_studies": []}`, nil
	case strings.Contains(schema, "technology_gaps"):
		return `{"technology_gaps": [], "capability_gaps": [], "process_gaps": [], "recommendations": []}`, nil
	}
	return `{"key_insights": []}`, nil
}

func newTestService(t *testing.T, gw *gateGateway) (*Service, *pipeline.Runner) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "test-key"
	cfg.Pipeline.RetryBackoff = "1ms"

	st, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	runner := pipeline.NewRunner(st, gw, nil, cfg)
	t.Cleanup(runner.Shutdown)
	return New(st, runner, cfg), runner
}

func TestStartJobAsyncCompletion(t *testing.T) {
	gw := &gateGateway{overview: "Initech sells software", painPoint: "TPS report overhead"}
	svc, runner := newTestService(t, gw)
	ctx := context.Background()

	jobID, err := svc.StartJob(ctx, "Initech", "one prior deal", "")
	if err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}
	runner.Wait()

	job, err := svc.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != types.StatusCompleted {
		t.Fatalf("Status = %s (error=%q), want completed", job.Status, job.Error)
	}
	if job.Report == nil || job.Report.PainPoints[0] != "TPS report overhead" {
		t.Errorf("Report = %+v", job.Report)
	}
}

func TestIterationContextFlowsForward(t *testing.T) {
	gw := &gateGateway{overview: "Initech sells software", painPoint: "TPS report overhead"}
	svc, runner := newTestService(t, gw)
	ctx := context.Background()

	project, err := svc.CreateProject(ctx, "Initech pursuit", "Initech", "", types.ContextAccumulate)
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	it1, err := svc.StartIteration(ctx, project.ID, IterationRequest{})
	if err != nil {
		t.Fatalf("StartIteration 1 failed: %v", err)
	}
	if it1.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", it1.Sequence)
	}
	if !it1.InheritedContext.IsEmpty() {
		t.Errorf("first iteration has inherited context: %+v", it1.InheritedContext)
	}
	runner.Wait()

	got1, _ := svc.store.GetIteration(project.ID, 1)
	if got1.Status != types.StatusCompleted {
		t.Fatalf("iteration 1 status = %s, want completed (mirrored)", got1.Status)
	}

	it2, err := svc.StartIteration(ctx, project.ID, IterationRequest{})
	if err != nil {
		t.Fatalf("StartIteration 2 failed: %v", err)
	}
	if it2.Sequence != 2 {
		t.Errorf("Sequence = %d, want 2", it2.Sequence)
	}
	if it2.InheritedContext.IsEmpty() {
		t.Fatal("second iteration missing inherited context")
	}
	if it2.InheritedContext.PainPoints[0] != "TPS report overhead" {
		t.Errorf("inherited pain points = %v", it2.InheritedContext.PainPoints)
	}
	runner.Wait()

	cmpResult, err := svc.Compare(ctx, project.ID, 1, 2)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(cmpResult.PainPoints.Unchanged) != 1 {
		t.Errorf("Unchanged pain points = %v", cmpResult.PainPoints)
	}
}

func TestStartIterationIdempotentWhileRunning(t *testing.T) {
	gate := make(chan struct{})
	gw := &gateGateway{gate: gate, overview: "Initech", painPoint: "p"}
	svc, runner := newTestService(t, gw)
	ctx := context.Background()

	project, _ := svc.CreateProject(ctx, "proj", "Initech", "", types.ContextAccumulate)

	it1, err := svc.StartIteration(ctx, project.ID, IterationRequest{})
	if err != nil {
		t.Fatalf("StartIteration failed: %v", err)
	}

	again, err := svc.StartIteration(ctx, project.ID, IterationRequest{})
	if err != nil {
		t.Fatalf("repeat StartIteration failed: %v", err)
	}
	if again.ID != it1.ID || again.JobID != it1.JobID {
		t.Errorf("repeat returned different handle: %s/%s vs %s/%s",
			again.ID, again.JobID, it1.ID, it1.JobID)
	}

	close(gate)
	runner.Wait()

	its, _ := svc.ListIterations(ctx, project.ID)
	if len(its) != 1 {
		t.Errorf("iterations = %d, want 1", len(its))
	}
}

func TestStartIterationCarriesInputs(t *testing.T) {
	gw := &gateGateway{overview: "Acme", painPoint: "p"}
	svc, runner := newTestService(t, gw)
	ctx := context.Background()

	project, _ := svc.CreateProject(ctx, "proj", "Acme", "", types.ContextAccumulate)

	it, err := svc.StartIteration(ctx, project.ID, IterationRequest{
		SalesHistory:   "Acme bought X",
		PromptOverride: "focus on logistics",
	})
	if err != nil {
		t.Fatalf("StartIteration failed: %v", err)
	}
	if it.SalesHistory != "Acme bought X" || it.PromptOverride != "focus on logistics" {
		t.Errorf("iteration inputs = %q/%q", it.SalesHistory, it.PromptOverride)
	}
	runner.Wait()

	job, err := svc.GetJob(ctx, it.JobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.SalesHistory != "Acme bought X" {
		t.Errorf("job SalesHistory = %q, want the iteration's", job.SalesHistory)
	}
	if job.Prompt != "focus on logistics" {
		t.Errorf("job Prompt = %q, want the iteration's override", job.Prompt)
	}
	if !strings.Contains(gw.researchPrompt, "Acme bought X") {
		t.Errorf("research prompt missing sales history:\n%s", gw.researchPrompt)
	}
	if !strings.Contains(gw.researchPrompt, "focus on logistics") {
		t.Errorf("research prompt missing override:\n%s", gw.researchPrompt)
	}

	stored, err := svc.store.GetIteration(project.ID, 1)
	if err != nil {
		t.Fatalf("GetIteration failed: %v", err)
	}
	if stored.SalesHistory != "Acme bought X" || stored.PromptOverride != "focus on logistics" {
		t.Errorf("persisted inputs = %q/%q", stored.SalesHistory, stored.PromptOverride)
	}
}

func TestStartIterationPinnedSequenceIdempotent(t *testing.T) {
	gw := &gateGateway{overview: "Acme", painPoint: "p"}
	svc, runner := newTestService(t, gw)
	ctx := context.Background()

	project, _ := svc.CreateProject(ctx, "proj", "Acme", "", types.ContextAccumulate)

	it1, err := svc.StartIteration(ctx, project.ID, IterationRequest{Sequence: 1})
	if err != nil {
		t.Fatalf("StartIteration failed: %v", err)
	}
	runner.Wait()

	// Re-invoking with the same sequence returns the finished iteration
	// instead of starting another run.
	again, err := svc.StartIteration(ctx, project.ID, IterationRequest{Sequence: 1})
	if err != nil {
		t.Fatalf("repeat StartIteration failed: %v", err)
	}
	if again.ID != it1.ID || again.JobID != it1.JobID {
		t.Errorf("repeat returned different handle: %s/%s vs %s/%s",
			again.ID, again.JobID, it1.ID, it1.JobID)
	}

	its, _ := svc.ListIterations(ctx, project.ID)
	if len(its) != 1 {
		t.Errorf("iterations = %d, want 1", len(its))
	}
}

func TestCompareNotComparableBubbles(t *testing.T) {
	gate := make(chan struct{})
	gw := &gateGateway{gate: gate, overview: "Initech", painPoint: "p"}
	svc, runner := newTestService(t, gw)
	ctx := context.Background()

	project, _ := svc.CreateProject(ctx, "proj", "Initech", "", types.ContextFresh)
	if _, err := svc.StartIteration(ctx, project.ID, IterationRequest{}); err != nil {
		t.Fatalf("StartIteration failed: %v", err)
	}

	// iteration 1 is still running behind the gate
	_, err := svc.Compare(ctx, project.ID, 1, 1)
	if !errors.Is(err, types.ErrNotComparable) {
		t.Errorf("Compare error = %v, want ErrNotComparable", err)
	}

	close(gate)
	runner.Wait()
}

func TestFreshModeNoInheritedContext(t *testing.T) {
	gw := &gateGateway{overview: "Initech", painPoint: "p"}
	svc, runner := newTestService(t, gw)
	ctx := context.Background()

	project, _ := svc.CreateProject(ctx, "proj", "Initech", "", types.ContextFresh)

	if _, err := svc.StartIteration(ctx, project.ID, IterationRequest{}); err != nil {
		t.Fatalf("StartIteration 1 failed: %v", err)
	}
	runner.Wait()

	it2, err := svc.StartIteration(ctx, project.ID, IterationRequest{})
	if err != nil {
		t.Fatalf("StartIteration 2 failed: %v", err)
	}
	if !it2.InheritedContext.IsEmpty() {
		t.Errorf("fresh mode iteration carries context: %+v", it2.InheritedContext)
	}
	runner.Wait()
}
