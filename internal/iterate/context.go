// Package iterate builds inherited context for successive research
// iterations and computes diffs between them. Everything here is pure
// aggregation over already-persisted results; no gateway access.
package iterate

import (
	"sort"
	"strings"

	"prospector/internal/logging"
	"prospector/internal/types"
)

// DefaultListCap bounds each tracked list in inherited context.
const DefaultListCap = 10

// useCaseLimit bounds the use cases carried forward.
const useCaseLimit = 5

// Lookups are the optional cross-entity reads the accumulator may
// perform. A nil function behaves as if the entity were absent.
type Lookups struct {
	// JobForIteration resolves the job backing an iteration.
	JobForIteration func(it *types.Iteration) (*types.Job, error)
	// StarredProducts lists the project's starred work products.
	StarredProducts func(projectID string) ([]*types.WorkProduct, error)
	// UseCasesForJob lists the use cases attached to a job.
	UseCasesForJob func(jobID string) ([]*types.UseCase, error)
}

// Accumulate aggregates prior completed iterations into the context
// seeded to the next one. Deterministic: same inputs, same output.
// Fresh-mode projects and first iterations get an empty context.
func Accumulate(project *types.Project, prior []*types.Iteration, lk Lookups, listCap int) (*types.InheritedContext, error) {
	if listCap <= 0 {
		listCap = DefaultListCap
	}
	ic := &types.InheritedContext{}
	if project.ContextMode == types.ContextFresh || len(prior) == 0 {
		return ic, nil
	}

	ordered := make([]*types.Iteration, len(prior))
	copy(ordered, prior)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Sequence < ordered[j].Sequence
	})

	pains := newDedupeList()
	opps := newDedupeList()
	talks := newDedupeList()
	var useCases []types.UseCase

	for _, it := range ordered {
		if it.Status != types.StatusCompleted {
			continue
		}
		job := resolveJob(lk, it)
		if job == nil || job.Report == nil {
			continue
		}
		ic.IterationCount++

		pains.addAll(job.Report.PainPoints)
		opps.addAll(job.Report.Opportunities)
		talks.addAll(job.Report.TalkingPoints)

		if lk.UseCasesForJob != nil && it.JobID != "" {
			ucs, err := lk.UseCasesForJob(it.JobID)
			if err != nil {
				logging.IterateDebug("use case lookup failed for job %s: %v", it.JobID, err)
			}
			for _, uc := range ucs {
				useCases = append(useCases, *uc)
			}
		}
	}

	ic.PainPoints = pains.capped(listCap)
	ic.Opportunities = opps.capped(listCap)
	ic.TalkingPoints = talks.capped(listCap)
	ic.UseCases = topUseCases(useCases, useCaseLimit)
	ic.StarredProducts = starred(lk, project.ID)

	logging.Iterate("accumulated context for project %s: %d iterations, %d/%d/%d tracked, %d starred, %d use cases",
		project.ID, ic.IterationCount, len(ic.PainPoints), len(ic.Opportunities),
		len(ic.TalkingPoints), len(ic.StarredProducts), len(ic.UseCases))
	return ic, nil
}

func resolveJob(lk Lookups, it *types.Iteration) *types.Job {
	if lk.JobForIteration == nil {
		return nil
	}
	job, err := lk.JobForIteration(it)
	if err != nil {
		logging.IterateDebug("job lookup failed for iteration %s: %v", it.ID, err)
		return nil
	}
	return job
}

func starred(lk Lookups, projectID string) []types.StarredProduct {
	if lk.StarredProducts == nil {
		return nil
	}
	wps, err := lk.StarredProducts(projectID)
	if err != nil {
		logging.IterateDebug("starred lookup failed for project %s: %v", projectID, err)
		return nil
	}
	var out []types.StarredProduct
	for _, wp := range wps {
		out = append(out, types.StarredProduct{Title: wp.Title, Summary: wp.Summary})
	}
	return out
}

// topUseCases keeps the highest-priority use cases: priority rank
// first, impact score descending second, original order for the rest.
func topUseCases(ucs []types.UseCase, limit int) []types.UseCase {
	if len(ucs) == 0 {
		return nil
	}
	sorted := make([]types.UseCase, len(ucs))
	copy(sorted, ucs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if ri, rj := sorted[i].Priority.Rank(), sorted[j].Priority.Rank(); ri != rj {
			return ri < rj
		}
		return sorted[i].ImpactScore > sorted[j].ImpactScore
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// Normalize produces the comparison key for tracked list entries:
// lowercase with runs of whitespace collapsed to single spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// dedupeList keeps entries distinct by normalized text in first-seen
// order, preserving each entry's first-seen original form.
type dedupeList struct {
	seen  map[string]bool
	items []string
}

func newDedupeList() *dedupeList {
	return &dedupeList{seen: make(map[string]bool)}
}

func (d *dedupeList) addAll(items []string) {
	for _, item := range items {
		key := Normalize(item)
		if key == "" || d.seen[key] {
			continue
		}
		d.seen[key] = true
		d.items = append(d.items, item)
	}
}

// capped returns the last n distinct entries, still in first-seen
// order. Older entries fall off first once the cap is hit.
func (d *dedupeList) capped(n int) []string {
	if len(d.items) <= n {
		return d.items
	}
	return d.items[len(d.items)-n:]
}
