package iterate

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"prospector/internal/types"
)

func completedIteration(seq int, report *types.Report) (*types.Iteration, *types.Job) {
	jobID := fmt.Sprintf("job-%d", seq)
	it := &types.Iteration{
		ID:        fmt.Sprintf("it-%d", seq),
		ProjectID: "proj-1",
		Sequence:  seq,
		Status:    types.StatusCompleted,
		JobID:     jobID,
	}
	job := &types.Job{
		ID:     jobID,
		Status: types.StatusCompleted,
		Report: report,
	}
	return it, job
}

func lookupsFor(jobs map[string]*types.Job) Lookups {
	return Lookups{
		JobForIteration: func(it *types.Iteration) (*types.Job, error) {
			if j, ok := jobs[it.JobID]; ok {
				return j, nil
			}
			return nil, fmt.Errorf("no job for %s", it.ID)
		},
	}
}

func TestAccumulateFreshModeEmpty(t *testing.T) {
	project := &types.Project{ID: "proj-1", ContextMode: types.ContextFresh}
	it, job := completedIteration(1, &types.Report{PainPoints: []string{"Slow onboarding"}})

	ic, err := Accumulate(project, []*types.Iteration{it}, lookupsFor(map[string]*types.Job{job.ID: job}), DefaultListCap)
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	if !ic.IsEmpty() {
		t.Errorf("fresh mode context not empty: %+v", ic)
	}
}

func TestAccumulateNoPriorEmpty(t *testing.T) {
	project := &types.Project{ID: "proj-1", ContextMode: types.ContextAccumulate}

	ic, err := Accumulate(project, nil, Lookups{}, DefaultListCap)
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	if !ic.IsEmpty() {
		t.Errorf("first iteration context not empty: %+v", ic)
	}
}

func TestAccumulateDedupeByNormalizedText(t *testing.T) {
	project := &types.Project{ID: "proj-1", ContextMode: types.ContextAccumulate}
	it1, job1 := completedIteration(1, &types.Report{PainPoints: []string{"Slow onboarding"}})
	it2, job2 := completedIteration(2, &types.Report{PainPoints: []string{"slow onboarding ", "Legacy ERP"}})

	ic, err := Accumulate(project, []*types.Iteration{it1, it2},
		lookupsFor(map[string]*types.Job{job1.ID: job1, job2.ID: job2}), DefaultListCap)
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}

	want := []string{"Slow onboarding", "Legacy ERP"}
	if diff := cmp.Diff(want, ic.PainPoints); diff != "" {
		t.Errorf("PainPoints mismatch (-want +got):\n%s", diff)
	}
	if ic.IterationCount != 2 {
		t.Errorf("IterationCount = %d, want 2", ic.IterationCount)
	}
}

func TestAccumulateCapKeepsLastDistinct(t *testing.T) {
	project := &types.Project{ID: "proj-1", ContextMode: types.ContextAccumulate}

	var points []string
	for i := 1; i <= 12; i++ {
		points = append(points, fmt.Sprintf("Pain point %d", i))
	}
	it, job := completedIteration(1, &types.Report{PainPoints: points})

	ic, err := Accumulate(project, []*types.Iteration{it},
		lookupsFor(map[string]*types.Job{job.ID: job}), DefaultListCap)
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	if len(ic.PainPoints) != DefaultListCap {
		t.Fatalf("len = %d, want %d", len(ic.PainPoints), DefaultListCap)
	}
	// the two oldest distinct entries fall off; order stays first-seen
	if ic.PainPoints[0] != "Pain point 3" {
		t.Errorf("first kept = %q, want Pain point 3", ic.PainPoints[0])
	}
	if ic.PainPoints[9] != "Pain point 12" {
		t.Errorf("last kept = %q, want Pain point 12", ic.PainPoints[9])
	}
}

func TestAccumulateDeterministic(t *testing.T) {
	project := &types.Project{ID: "proj-1", ContextMode: types.ContextAccumulate}
	it1, job1 := completedIteration(1, &types.Report{
		PainPoints:    []string{"A", "B"},
		Opportunities: []string{"X"},
		TalkingPoints: []string{"T1", "T2"},
	})
	it2, job2 := completedIteration(2, &types.Report{
		PainPoints:    []string{"C", "a"},
		Opportunities: []string{"Y"},
		TalkingPoints: []string{"T3"},
	})
	lk := lookupsFor(map[string]*types.Job{job1.ID: job1, job2.ID: job2})

	first, err := Accumulate(project, []*types.Iteration{it1, it2}, lk, DefaultListCap)
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Accumulate(project, []*types.Iteration{it2, it1}, lk, DefaultListCap)
		if err != nil {
			t.Fatalf("Accumulate failed: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestAccumulateSkipsIncompleteIterations(t *testing.T) {
	project := &types.Project{ID: "proj-1", ContextMode: types.ContextAccumulate}
	it1, job1 := completedIteration(1, &types.Report{PainPoints: []string{"Keep me"}})
	it2, job2 := completedIteration(2, &types.Report{PainPoints: []string{"Drop me"}})
	it2.Status = types.StatusFailed
	job2.Status = types.StatusFailed

	ic, err := Accumulate(project, []*types.Iteration{it1, it2},
		lookupsFor(map[string]*types.Job{job1.ID: job1, job2.ID: job2}), DefaultListCap)
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	if diff := cmp.Diff([]string{"Keep me"}, ic.PainPoints); diff != "" {
		t.Errorf("PainPoints mismatch (-want +got):\n%s", diff)
	}
	if ic.IterationCount != 1 {
		t.Errorf("IterationCount = %d, want 1", ic.IterationCount)
	}
}

func TestAccumulateStarredVerbatimUncapped(t *testing.T) {
	project := &types.Project{ID: "proj-1", ContextMode: types.ContextAccumulate}
	it, job := completedIteration(1, &types.Report{})

	var wps []*types.WorkProduct
	for i := 0; i < 15; i++ {
		wps = append(wps, &types.WorkProduct{
			Title:   fmt.Sprintf("Play %d", i),
			Summary: fmt.Sprintf("  Summary %d with   odd spacing ", i),
			Starred: true,
		})
	}

	lk := lookupsFor(map[string]*types.Job{job.ID: job})
	lk.StarredProducts = func(string) ([]*types.WorkProduct, error) { return wps, nil }

	ic, err := Accumulate(project, []*types.Iteration{it}, lk, DefaultListCap)
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	if len(ic.StarredProducts) != 15 {
		t.Fatalf("starred = %d, want 15 (uncapped)", len(ic.StarredProducts))
	}
	if ic.StarredProducts[0].Summary != "  Summary 0 with   odd spacing " {
		t.Errorf("starred summary not verbatim: %q", ic.StarredProducts[0].Summary)
	}
}

func TestAccumulateTopUseCases(t *testing.T) {
	project := &types.Project{ID: "proj-1", ContextMode: types.ContextAccumulate}
	it, job := completedIteration(1, &types.Report{})

	ucs := []*types.UseCase{
		{Title: "low-a", Priority: types.PriorityLow, ImpactScore: 9},
		{Title: "high-a", Priority: types.PriorityHigh, ImpactScore: 5},
		{Title: "med-a", Priority: types.PriorityMedium, ImpactScore: 8},
		{Title: "high-b", Priority: types.PriorityHigh, ImpactScore: 7},
		{Title: "med-b", Priority: types.PriorityMedium, ImpactScore: 8},
		{Title: "low-b", Priority: types.PriorityLow, ImpactScore: 1},
	}

	lk := lookupsFor(map[string]*types.Job{job.ID: job})
	lk.UseCasesForJob = func(string) ([]*types.UseCase, error) { return ucs, nil }

	ic, err := Accumulate(project, []*types.Iteration{it}, lk, DefaultListCap)
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}

	var titles []string
	for _, uc := range ic.UseCases {
		titles = append(titles, uc.Title)
	}
	// high priority first (impact desc), then medium (stable on equal
	// impact), top 5 overall
	want := []string{"high-b", "high-a", "med-a", "med-b", "low-a"}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Errorf("use case order mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Slow onboarding", "slow onboarding"},
		{"slow onboarding ", "slow onboarding"},
		{"  SLOW   ONBOARDING  ", "slow onboarding"},
		{"\tslow\nonboarding", "slow onboarding"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
