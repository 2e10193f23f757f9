package iterate

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"prospector/internal/types"
)

func comparisonSides() (Side, Side) {
	itA, jobA := completedIteration(1, &types.Report{
		PainPoints:    []string{"x", "y"},
		Opportunities: []string{"Expand west"},
		TalkingPoints: []string{"Cost story"},
	})
	itB, jobB := completedIteration(2, &types.Report{
		PainPoints:    []string{"y", "z"},
		Opportunities: []string{"Expand west"},
		TalkingPoints: []string{"ROI story"},
	})
	return Side{Iteration: itA, Job: jobA}, Side{Iteration: itB, Job: jobB}
}

func TestCompareBuckets(t *testing.T) {
	a, b := comparisonSides()

	got, err := Compare(a, b)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	want := DiffBuckets{
		Added:     []string{"z"},
		Removed:   []string{"x"},
		Unchanged: []string{"y"},
	}
	if diff := cmp.Diff(want, got.PainPoints); diff != "" {
		t.Errorf("PainPoints mismatch (-want +got):\n%s", diff)
	}
	if len(got.Opportunities.Unchanged) != 1 || len(got.Opportunities.Added) != 0 {
		t.Errorf("Opportunities = %+v", got.Opportunities)
	}
	if got.A.Sequence != 1 || got.B.Sequence != 2 {
		t.Errorf("summaries = %+v / %+v", got.A, got.B)
	}
}

func TestCompareNormalizedMembership(t *testing.T) {
	itA, jobA := completedIteration(1, &types.Report{PainPoints: []string{"Slow onboarding"}})
	itB, jobB := completedIteration(2, &types.Report{PainPoints: []string{"slow onboarding "}})

	got, err := Compare(Side{Iteration: itA, Job: jobA}, Side{Iteration: itB, Job: jobB})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(got.PainPoints.Added) != 0 || len(got.PainPoints.Removed) != 0 {
		t.Errorf("normalized-equal entries bucketed as changed: %+v", got.PainPoints)
	}
	// unchanged carries side A's original text
	if diff := cmp.Diff([]string{"Slow onboarding"}, got.PainPoints.Unchanged); diff != "" {
		t.Errorf("Unchanged mismatch (-want +got):\n%s", diff)
	}
}

func TestCompareBucketOrdering(t *testing.T) {
	itA, jobA := completedIteration(1, &types.Report{
		PainPoints: []string{"r2", "u1", "r1", "u2"},
	})
	itB, jobB := completedIteration(2, &types.Report{
		PainPoints: []string{"a2", "u2", "a1", "u1"},
	})

	got, err := Compare(Side{Iteration: itA, Job: jobA}, Side{Iteration: itB, Job: jobB})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	// removed and unchanged keep A's order; added keeps B's order
	if diff := cmp.Diff([]string{"r2", "r1"}, got.PainPoints.Removed); diff != "" {
		t.Errorf("Removed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"u1", "u2"}, got.PainPoints.Unchanged); diff != "" {
		t.Errorf("Unchanged mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a2", "a1"}, got.PainPoints.Added); diff != "" {
		t.Errorf("Added mismatch (-want +got):\n%s", diff)
	}
}

func TestCompareNotComparable(t *testing.T) {
	a, b := comparisonSides()

	t.Run("incomplete side", func(t *testing.T) {
		bad := b
		bad.Job = &types.Job{Status: types.StatusRunning, Report: b.Job.Report}
		_, err := Compare(a, bad)
		if !errors.Is(err, types.ErrNotComparable) {
			t.Errorf("error = %v, want ErrNotComparable", err)
		}
	})

	t.Run("iteration not completed despite finished job", func(t *testing.T) {
		// status mirroring can lag or fail; the iteration's own state
		// gates comparison too
		bad := b
		bad.Iteration = &types.Iteration{Sequence: 2, Status: types.StatusRunning, JobID: b.Job.ID}
		_, err := Compare(a, bad)
		if !errors.Is(err, types.ErrNotComparable) {
			t.Errorf("error = %v, want ErrNotComparable", err)
		}
	})

	t.Run("missing report", func(t *testing.T) {
		bad := a
		bad.Job = &types.Job{Status: types.StatusCompleted}
		_, err := Compare(bad, b)
		if !errors.Is(err, types.ErrNotComparable) {
			t.Errorf("error = %v, want ErrNotComparable", err)
		}
	})

	t.Run("nil side", func(t *testing.T) {
		_, err := Compare(a, Side{})
		if !errors.Is(err, types.ErrNotComparable) {
			t.Errorf("error = %v, want ErrNotComparable", err)
		}
	})
}
