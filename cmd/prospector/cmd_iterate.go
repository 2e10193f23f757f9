package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prospector/internal/service"
	"prospector/internal/types"
)

var (
	projectClient string
	projectDesc   string
	projectFresh  bool
	iterSequence  int
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage research projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a project for iterative research",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectCreate,
}

var projectShowCmd = &cobra.Command{
	Use:   "show [project-id]",
	Short: "Show a project and its iterations",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectShow,
}

var iterateCmd = &cobra.Command{
	Use:   "iterate [project-id]",
	Short: "Start the next research iteration in a project",
	Long: `Starts iteration N+1 for the project. In accumulate mode the new run
inherits deduplicated findings and starred work products from completed
prior iterations. Returns the running iteration if one is already in
flight.`,
	Args: cobra.ExactArgs(1),
	RunE: runIterate,
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectClient, "client", "", "client company name (required)")
	projectCreateCmd.Flags().StringVar(&projectDesc, "description", "", "project description")
	projectCreateCmd.Flags().BoolVar(&projectFresh, "fresh", false, "fresh mode: iterations do not inherit context")
	iterateCmd.Flags().BoolVar(&noWait, "no-wait", false, "return the iteration without waiting for completion")
	iterateCmd.Flags().StringVar(&salesHistory, "history", "", "sales history for this iteration's research")
	iterateCmd.Flags().StringVar(&promptExtra, "prompt", "", "prompt override for this iteration")
	iterateCmd.Flags().IntVar(&iterSequence, "sequence", 0, "pin the iteration number (idempotent re-invocation)")
	projectCmd.AddCommand(projectCreateCmd, projectShowCmd)
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	if projectClient == "" {
		return fmt.Errorf("--client is required")
	}
	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	mode := types.ContextAccumulate
	if projectFresh {
		mode = types.ContextFresh
	}
	project, err := a.service.CreateProject(cmd.Context(), args[0], projectClient, projectDesc, mode)
	if err != nil {
		return err
	}
	fmt.Printf("Project %s created (%s mode)\n", project.ID, project.ContextMode)
	return nil
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	project, err := a.service.GetProject(ctx, args[0])
	if err != nil {
		return err
	}
	iterations, err := a.service.ListIterations(ctx, project.ID)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s, %s mode)\n", project.Name, project.ClientName, project.ContextMode)
	if project.Description != "" {
		fmt.Println(project.Description)
	}
	if len(iterations) == 0 {
		fmt.Println("No iterations yet.")
		return nil
	}
	for _, it := range iterations {
		fmt.Printf("  #%d  %-9s  job %s\n", it.Sequence, it.Status, it.JobID)
	}
	return nil
}

func runIterate(cmd *cobra.Command, args []string) error {
	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	it, err := a.service.StartIteration(ctx, args[0], service.IterationRequest{
		SalesHistory:   salesHistory,
		PromptOverride: promptExtra,
		Sequence:       iterSequence,
	})
	if err != nil {
		return err
	}
	logger.Info("iteration started",
		zap.String("project_id", it.ProjectID),
		zap.Int("sequence", it.Sequence),
		zap.String("job_id", it.JobID))
	fmt.Printf("Iteration #%d started (job %s)\n", it.Sequence, it.JobID)
	if ic := it.InheritedContext; !ic.IsEmpty() {
		fmt.Printf("Inherited context from %d prior iteration(s): %d pain points, %d opportunities, %d starred products\n",
			ic.IterationCount, len(ic.PainPoints), len(ic.Opportunities), len(ic.StarredProducts))
	}

	if noWait {
		return nil
	}
	job, err := pollJob(ctx, a, it.JobID)
	if err != nil {
		return err
	}
	printJob(job)
	if job.Status == types.StatusFailed {
		return fmt.Errorf("iteration failed: %s", job.Error)
	}
	return nil
}
