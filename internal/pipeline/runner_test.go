package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"prospector/internal/config"
	"prospector/internal/gateway"
	"prospector/internal/store"
	"prospector/internal/types"
)

const testReportJSON = `{
	"company_overview": "Acme manufactures industrial widgets",
	"pain_points": ["Manual QA on the line"],
	"opportunities": ["Predictive maintenance"],
	"talking_points": ["Downtime costs per shift"]
}`

const testCaseStudiesJSON = `{"case_studies": [{
	"competitor_name": "Globex",
	"case_study_title": "Vision QA rollout",
	"summary": "Automated defect detection on assembly lines.",
	"relevance_score": 0.8
}]}`

const testGapsJSON = `{
	"technology_gaps": ["No sensor telemetry"],
	"capability_gaps": ["No in-house data team"],
	"process_gaps": ["Paper-based inspections"],
	"recommendations": ["Pilot a CV-based QA cell"],
	"confidence_score": 0.7
}`

// stubGateway fakes the LLM provider. schemaFn routes structured calls
// by schema content; calls counts every request.
type stubGateway struct {
	mu           sync.Mutex
	completeText string
	completeErr  error
	schemaFn     func(schema string) (string, error)
	calls        int64
}

func (g *stubGateway) Complete(ctx context.Context, _, _ string) (string, error) {
	atomic.AddInt64(&g.calls, 1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.completeText, g.completeErr
}

func (g *stubGateway) CompleteWithSchema(ctx context.Context, _, _, schema string) (string, error) {
	atomic.AddInt64(&g.calls, 1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	fn := g.schemaFn
	g.mu.Unlock()
	if fn != nil {
		return fn(schema)
	}
	return routeBySchema(schema)
}

// routeBySchema returns a canned valid payload for each stage schema.
func routeBySchema(schema string) (string, error) {
	switch {
	case strings.Contains(schema, "company_overview"):
		return testReportJSON, nil
	case strings.Contains(schema, "case_studies"):
		return testCaseStudiesJSON, nil
	case strings.Contains(schema, "technology_gaps"):
		return testGapsJSON, nil
	case strings.Contains(schema, "key_insights"):
		return `{"key_insights": ["Hiring freeze in ops"]}`, nil
	}
	return "", errors.New("unrecognized schema")
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "test-key"
	cfg.Pipeline.RetryBackoff = "1ms"
	cfg.Pipeline.JobTimeout = "5s"
	return cfg
}

func newTestRunner(t *testing.T, gw gateway.Gateway, cfg *config.Config) (*Runner, *store.LocalStore) {
	t.Helper()
	st, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	r := NewRunner(st, gw, nil, cfg)
	t.Cleanup(r.Shutdown)
	return r, st
}

func TestRunnerCompletesPipeline(t *testing.T) {
	gw := &stubGateway{}
	r, st := newTestRunner(t, gw, testConfig())

	// Snapshot taken after setup so pre-existing goroutines (sql
	// connection opener, library init workers) are not counted; job
	// goroutines spawned below still are. Shutdown is explicit because
	// t.Cleanup runs only after deferred verification.
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	defer r.Shutdown()

	job, err := st.CreateJob("Acme Corp", "two prior deals", "")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	snap, err := r.Start(job.ID, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if snap.Status != types.StatusRunning {
		t.Errorf("Start snapshot status = %s, want running", snap.Status)
	}
	r.Wait()

	got, err := st.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != types.StatusCompleted {
		t.Fatalf("Status = %s (error=%q), want completed", got.Status, got.Error)
	}
	if got.Report == nil || got.Report.CompanyOverview == "" {
		t.Error("Report missing after completed run")
	}
	if got.Vertical != types.VerticalManufacturing {
		t.Errorf("Vertical = %s, want manufacturing", got.Vertical)
	}
	if len(got.CaseStudies) != 1 {
		t.Errorf("CaseStudies = %d, want 1", len(got.CaseStudies))
	}
	if got.GapAnalysis == nil {
		t.Error("GapAnalysis missing")
	}
	if got.InternalOps != nil {
		t.Error("InternalOps present but stage is disabled by default")
	}
	if len(got.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", got.Warnings)
	}
}

func TestRunnerInternalOpsWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.InternalOps = true
	r, st := newTestRunner(t, &stubGateway{}, cfg)

	job, _ := st.CreateJob("Acme Corp", "", "")
	if _, err := r.Start(job.ID, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.Wait()

	got, _ := st.GetJob(job.ID)
	if got.Status != types.StatusCompleted {
		t.Fatalf("Status = %s (error=%q)", got.Status, got.Error)
	}
	if got.InternalOps == nil || len(got.InternalOps.KeyInsights) == 0 {
		t.Errorf("InternalOps = %+v, want key insights", got.InternalOps)
	}
}

func TestRunnerStartIdempotent(t *testing.T) {
	gw := &stubGateway{}
	r, st := newTestRunner(t, gw, testConfig())

	job, _ := st.CreateJob("Acme Corp", "", "")
	if _, err := r.Start(job.ID, nil); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	r.Wait()
	callsAfterFirst := atomic.LoadInt64(&gw.calls)

	snap, err := r.Start(job.ID, nil)
	if err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if snap.Status != types.StatusCompleted {
		t.Errorf("second Start status = %s, want completed snapshot", snap.Status)
	}
	r.Wait()

	if got := atomic.LoadInt64(&gw.calls); got != callsAfterFirst {
		t.Errorf("re-Start made %d extra gateway calls", got-callsAfterFirst)
	}
}

func TestRunnerBestEffortFailureWarns(t *testing.T) {
	gw := &stubGateway{schemaFn: func(schema string) (string, error) {
		if strings.Contains(schema, "case_studies") {
			return "", gateway.ErrSchemaInvalid
		}
		return routeBySchema(schema)
	}}
	r, st := newTestRunner(t, gw, testConfig())

	job, _ := st.CreateJob("Acme Corp", "", "")
	r.Start(job.ID, nil)
	r.Wait()

	got, _ := st.GetJob(job.ID)
	if got.Status != types.StatusCompleted {
		t.Fatalf("Status = %s (error=%q), want completed", got.Status, got.Error)
	}
	if len(got.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want exactly one", got.Warnings)
	}
	if !strings.HasPrefix(got.Warnings[0], "competitor_scout: ") {
		t.Errorf("Warning = %q, want competitor_scout prefix", got.Warnings[0])
	}
	if got.GapAnalysis == nil {
		t.Error("later stages did not run after best-effort failure")
	}
}

func TestRunnerRequiredFailureFailsJob(t *testing.T) {
	gw := &stubGateway{schemaFn: func(schema string) (string, error) {
		if strings.Contains(schema, "company_overview") {
			return "", gateway.ErrSchemaInvalid
		}
		return routeBySchema(schema)
	}}
	r, st := newTestRunner(t, gw, testConfig())

	job, _ := st.CreateJob("Acme Corp", "", "")
	r.Start(job.ID, nil)
	r.Wait()

	got, _ := st.GetJob(job.ID)
	if got.Status != types.StatusFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
	if !strings.HasPrefix(got.Error, "deep_research: ") {
		t.Errorf("Error = %q, want deep_research prefix", got.Error)
	}
}

func TestRunnerValidationFailureNoGatewayCall(t *testing.T) {
	gw := &stubGateway{}
	r, st := newTestRunner(t, gw, testConfig())

	job, _ := st.CreateJob("   ", "", "")
	r.Start(job.ID, nil)
	r.Wait()

	got, _ := st.GetJob(job.ID)
	if got.Status != types.StatusFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
	if !strings.HasPrefix(got.Error, "validate: ") {
		t.Errorf("Error = %q, want validate prefix", got.Error)
	}
	if atomic.LoadInt64(&gw.calls) != 0 {
		t.Errorf("gateway called %d times on validation failure", gw.calls)
	}
}

func TestRunnerRetriesTransientErrors(t *testing.T) {
	var attempts int64
	gw := &stubGateway{schemaFn: func(schema string) (string, error) {
		if strings.Contains(schema, "company_overview") {
			if atomic.AddInt64(&attempts, 1) <= 2 {
				return "", gateway.ErrRateLimited
			}
		}
		return routeBySchema(schema)
	}}
	r, st := newTestRunner(t, gw, testConfig())

	job, _ := st.CreateJob("Acme Corp", "", "")
	r.Start(job.ID, nil)
	r.Wait()

	got, _ := st.GetJob(job.ID)
	if got.Status != types.StatusCompleted {
		t.Fatalf("Status = %s (error=%q), want completed after retries", got.Status, got.Error)
	}
	if n := atomic.LoadInt64(&attempts); n != 3 {
		t.Errorf("research attempts = %d, want 3", n)
	}
}

func TestRunnerPermanentErrorNotRetried(t *testing.T) {
	var attempts int64
	gw := &stubGateway{schemaFn: func(schema string) (string, error) {
		if strings.Contains(schema, "company_overview") {
			atomic.AddInt64(&attempts, 1)
			return "", gateway.ErrSchemaInvalid
		}
		return routeBySchema(schema)
	}}
	r, st := newTestRunner(t, gw, testConfig())

	job, _ := st.CreateJob("Acme Corp", "", "")
	r.Start(job.ID, nil)
	r.Wait()

	if n := atomic.LoadInt64(&attempts); n != 1 {
		t.Errorf("permanent error attempted %d times, want 1", n)
	}
}

func TestRunnerJobTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.JobTimeout = "50ms"
	cfg.Pipeline.RetryMax = 0

	gw := &stubGateway{schemaFn: func(schema string) (string, error) {
		time.Sleep(100 * time.Millisecond)
		return "", gateway.ErrTimeout
	}}
	r, st := newTestRunner(t, gw, cfg)

	job, _ := st.CreateJob("Acme Corp", "", "")
	r.Start(job.ID, nil)
	r.Wait()

	got, _ := st.GetJob(job.ID)
	if got.Status != types.StatusFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "timed out") {
		t.Errorf("Error = %q, want timeout message", got.Error)
	}
}

func TestRunnerDiscardsResultAfterTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.JobTimeout = "50ms"
	cfg.Pipeline.RetryMax = 0

	// The provider call outlives the deadline but still returns a valid
	// report. The run must fail on timeout without persisting it.
	gw := &stubGateway{schemaFn: func(schema string) (string, error) {
		time.Sleep(100 * time.Millisecond)
		return routeBySchema(schema)
	}}
	r, st := newTestRunner(t, gw, cfg)

	job, _ := st.CreateJob("Acme Corp", "", "")
	r.Start(job.ID, nil)
	r.Wait()

	got, _ := st.GetJob(job.ID)
	if got.Status != types.StatusFailed {
		t.Fatalf("Status = %s (error=%q), want failed", got.Status, got.Error)
	}
	if !strings.Contains(got.Error, "timed out") {
		t.Errorf("Error = %q, want timeout message", got.Error)
	}
	if got.Report != nil {
		t.Errorf("Report persisted from a call that finished after cancellation: %+v", got.Report)
	}
}

func TestRunnerConcurrencyBounded(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.MaxConcurrentJobs = 1

	var active, maxActive int64
	gw := &stubGateway{schemaFn: func(schema string) (string, error) {
		cur := atomic.AddInt64(&active, 1)
		for {
			old := atomic.LoadInt64(&maxActive)
			if cur <= old || atomic.CompareAndSwapInt64(&maxActive, old, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return routeBySchema(schema)
	}}
	r, st := newTestRunner(t, gw, cfg)

	for i := 0; i < 3; i++ {
		job, _ := st.CreateJob("Acme Corp", "", "")
		if _, err := r.Start(job.ID, nil); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	}
	r.Wait()

	if got := atomic.LoadInt64(&maxActive); got != 1 {
		t.Errorf("max concurrent gateway calls = %d, want 1", got)
	}
	if m := r.Metrics(); m.TotalRuns != 3 {
		t.Errorf("TotalRuns = %d, want 3", m.TotalRuns)
	}
}

func TestRunnerPanicFailsJobOnly(t *testing.T) {
	gw := &stubGateway{schemaFn: func(schema string) (string, error) {
		if strings.Contains(schema, "company_overview") {
			panic("prompt template blew up")
		}
		return routeBySchema(schema)
	}}
	r, st := newTestRunner(t, gw, testConfig())

	job, _ := st.CreateJob("Acme Corp", "", "")
	r.Start(job.ID, nil)
	r.Wait()

	got, _ := st.GetJob(job.ID)
	if got.Status != types.StatusFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "internal error") {
		t.Errorf("Error = %q, want internal error message", got.Error)
	}
}

func TestRunnerCompletionHook(t *testing.T) {
	gw := &stubGateway{}
	r, st := newTestRunner(t, gw, testConfig())

	var mu sync.Mutex
	var seen []types.JobStatus
	r.SetCompletionHook(func(j *types.Job) {
		mu.Lock()
		seen = append(seen, j.Status)
		mu.Unlock()
	})

	job, _ := st.CreateJob("Acme Corp", "", "")
	r.Start(job.ID, nil)
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != types.StatusCompleted {
		t.Errorf("hook calls = %v, want one completed", seen)
	}
}
