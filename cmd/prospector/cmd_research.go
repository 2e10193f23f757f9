package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prospector/internal/types"
)

var (
	salesHistory string
	promptExtra  string
	noWait       bool
)

var researchCmd = &cobra.Command{
	Use:   "research [client name]",
	Short: "Start a research job for a prospect",
	Long: `Starts the full research pipeline for a client and polls until it
finishes (or --no-wait to return the job id immediately).

Example:
  prospector research "Acme Corp" --history "Two prior deals in 2024"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().StringVar(&salesHistory, "history", "", "past sales history to ground the research")
	researchCmd.Flags().StringVar(&promptExtra, "prompt", "", "additional research focus")
	researchCmd.Flags().BoolVar(&noWait, "no-wait", false, "return the job id without waiting for completion")
}

func runResearch(cmd *cobra.Command, args []string) error {
	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	clientName := strings.Join(args, " ")
	ctx := cmd.Context()

	jobID, err := a.service.StartJob(ctx, clientName, salesHistory, promptExtra)
	if err != nil {
		return err
	}
	logger.Info("research job started", zap.String("job_id", jobID), zap.String("client", clientName))
	fmt.Printf("Job %s started for %q\n", jobID, clientName)

	if noWait {
		return nil
	}

	job, err := pollJob(ctx, a, jobID)
	if err != nil {
		return err
	}
	printJob(job)
	if job.Status == types.StatusFailed {
		return fmt.Errorf("job failed: %s", job.Error)
	}
	return nil
}

// pollJob waits for the job to reach a terminal state, reporting stage
// progress as sub-results appear.
func pollJob(ctx context.Context, a *app, jobID string) (*types.Job, error) {
	deadline := time.Now().Add(waitFor)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	reported := make(map[string]bool)
	for {
		job, err := a.service.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		progress(job, reported)
		if job.Status.IsTerminal() {
			return job, nil
		}
		if time.Now().After(deadline) {
			return job, fmt.Errorf("gave up waiting after %v (job still %s)", waitFor, job.Status)
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func progress(job *types.Job, reported map[string]bool) {
	note := func(key, msg string) {
		if !reported[key] {
			reported[key] = true
			fmt.Println(msg)
		}
	}
	if job.Report != nil {
		note("report", "  ✓ deep research complete")
	}
	if job.Vertical != "" {
		note("vertical", fmt.Sprintf("  ✓ classified as %s", job.Vertical))
	}
	if len(job.CaseStudies) > 0 {
		note("cases", fmt.Sprintf("  ✓ %d competitor case studies", len(job.CaseStudies)))
	}
	if job.GapAnalysis != nil {
		note("gaps", "  ✓ gap analysis complete")
	}
}

func printJob(job *types.Job) {
	fmt.Printf("\nJob %s: %s\n", job.ID, job.Status)
	if job.Error != "" {
		fmt.Printf("Error: %s\n", job.Error)
	}
	for _, w := range job.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	if job.Report == nil {
		return
	}

	fmt.Printf("\n%s (%s)\n", job.ClientName, job.Vertical)
	fmt.Println(job.Report.CompanyOverview)
	printList("Pain points", job.Report.PainPoints)
	printList("Opportunities", job.Report.Opportunities)
	printList("Talking points", job.Report.TalkingPoints)
	if len(job.CaseStudies) > 0 {
		fmt.Println("\nCompetitor case studies:")
		for _, cs := range job.CaseStudies {
			fmt.Printf("  - %s: %s\n", cs.CompetitorName, cs.CaseStudyTitle)
		}
	}
	if job.GapAnalysis != nil {
		printList("Recommendations", job.GapAnalysis.Recommendations)
	}
}

func printList(header string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", header)
	for _, item := range items {
		fmt.Printf("  - %s\n", item)
	}
}
