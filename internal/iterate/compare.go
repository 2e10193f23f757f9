package iterate

import (
	"fmt"

	"prospector/internal/types"
)

// Side pairs an iteration with its backing job for comparison.
type Side struct {
	Iteration *types.Iteration
	Job       *types.Job
}

// SideSummary describes one side of a comparison.
type SideSummary struct {
	Sequence      int             `json:"sequence"`
	Status        types.JobStatus `json:"status"`
	Vertical      types.Vertical  `json:"vertical,omitempty"`
	PainPoints    int             `json:"pain_points"`
	Opportunities int             `json:"opportunities"`
	TalkingPoints int             `json:"talking_points"`
}

// DiffBuckets holds one tracked field's diff. Added entries keep side
// B's order, removed and unchanged keep side A's.
type DiffBuckets struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged []string `json:"unchanged"`
}

// Comparison is the full diff between two iterations of a project.
type Comparison struct {
	A SideSummary `json:"a"`
	B SideSummary `json:"b"`

	PainPoints    DiffBuckets `json:"pain_points"`
	Opportunities DiffBuckets `json:"opportunities"`
	TalkingPoints DiffBuckets `json:"talking_points"`
}

// Compare diffs the tracked report fields of two iterations. Both
// sides must be completed and carry a report; otherwise the error
// wraps ErrNotComparable and names the side at fault.
func Compare(a, b Side) (*Comparison, error) {
	if err := checkComparable(a, "iteration A"); err != nil {
		return nil, err
	}
	if err := checkComparable(b, "iteration B"); err != nil {
		return nil, err
	}

	cmp := &Comparison{
		A: summarize(a),
		B: summarize(b),
	}
	cmp.PainPoints = diff(a.Job.Report.PainPoints, b.Job.Report.PainPoints)
	cmp.Opportunities = diff(a.Job.Report.Opportunities, b.Job.Report.Opportunities)
	cmp.TalkingPoints = diff(a.Job.Report.TalkingPoints, b.Job.Report.TalkingPoints)
	return cmp, nil
}

func checkComparable(s Side, label string) error {
	if s.Iteration == nil || s.Job == nil {
		return fmt.Errorf("%s is missing: %w", label, types.ErrNotComparable)
	}
	// both the iteration's own status and the job's must be completed;
	// they can diverge when status mirroring lags or fails
	if s.Iteration.Status != types.StatusCompleted {
		return fmt.Errorf("%s is %s, not completed: %w", label, s.Iteration.Status, types.ErrNotComparable)
	}
	if s.Job.Status != types.StatusCompleted {
		return fmt.Errorf("%s job is %s, not completed: %w", label, s.Job.Status, types.ErrNotComparable)
	}
	if s.Job.Report == nil {
		return fmt.Errorf("%s has no report: %w", label, types.ErrNotComparable)
	}
	return nil
}

func summarize(s Side) SideSummary {
	return SideSummary{
		Sequence:      s.Iteration.Sequence,
		Status:        s.Job.Status,
		Vertical:      s.Job.Vertical,
		PainPoints:    len(s.Job.Report.PainPoints),
		Opportunities: len(s.Job.Report.Opportunities),
		TalkingPoints: len(s.Job.Report.TalkingPoints),
	}
}

// diff buckets entries by normalized-set membership. Duplicates within
// one side collapse to their first occurrence.
func diff(aItems, bItems []string) DiffBuckets {
	aSet := normalizedSet(aItems)
	bSet := normalizedSet(bItems)

	var d DiffBuckets
	seen := make(map[string]bool)
	for _, item := range aItems {
		key := Normalize(item)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if bSet[key] {
			d.Unchanged = append(d.Unchanged, item)
		} else {
			d.Removed = append(d.Removed, item)
		}
	}
	seen = make(map[string]bool)
	for _, item := range bItems {
		key := Normalize(item)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if !aSet[key] {
			d.Added = append(d.Added, item)
		}
	}
	return d
}

func normalizedSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if key := Normalize(item); key != "" {
			set[key] = true
		}
	}
	return set
}
