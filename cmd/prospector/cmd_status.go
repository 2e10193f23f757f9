package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"prospector/internal/iterate"
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show a job's status and any sub-results produced so far",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var compareCmd = &cobra.Command{
	Use:   "compare [project-id] [seqA] [seqB]",
	Short: "Diff the findings of two completed iterations",
	Args:  cobra.ExactArgs(3),
	RunE:  runCompare,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	job, err := a.service.GetJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printJob(job)
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	seqA, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid sequence %q", args[1])
	}
	seqB, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid sequence %q", args[2])
	}

	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	cmp, err := a.service.Compare(cmd.Context(), args[0], seqA, seqB)
	if err != nil {
		return err
	}

	fmt.Printf("Iteration #%d vs #%d\n", cmp.A.Sequence, cmp.B.Sequence)
	printBuckets("Pain points", cmp.PainPoints)
	printBuckets("Opportunities", cmp.Opportunities)
	printBuckets("Talking points", cmp.TalkingPoints)
	return nil
}

func printBuckets(header string, d iterate.DiffBuckets) {
	fmt.Printf("\n%s (+%d / -%d / =%d):\n", header, len(d.Added), len(d.Removed), len(d.Unchanged))
	for _, s := range d.Added {
		fmt.Printf("  + %s\n", s)
	}
	for _, s := range d.Removed {
		fmt.Printf("  - %s\n", s)
	}
	for _, s := range d.Unchanged {
		fmt.Printf("  = %s\n", s)
	}
}
