package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/specforge/specforge/internal/core"
)

var runPhaseOnly bool

var runCmd = &cobra.Command{
	Use:   "run <workflow-id>",
	Short: "Execute a workflow's phases",
	Long: `Execute the remaining steps of a workflow. Progress is persisted per
step, so an interrupted run resumes from the first incomplete step.

By default run drives the workflow phase by phase until it completes or
fails. With --phase-only it stops after the current phase's approval.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runPhaseOnly, "phase-only", false,
		"stop after the current phase instead of running to completion")
}

func runRun(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	executor, err := d.buildExecutor(ctx)
	if err != nil {
		return err
	}

	id := core.WorkflowID(args[0])
	var wf *core.Workflow
	if runPhaseOnly {
		wf, err = executor.RunPhase(ctx, id)
	} else {
		wf, err = executor.Run(ctx, id)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Workflow %s: %s (%s)\n", wf.ID, wf.Status, wf.CurrentPhase)
	if wf.Status == core.WorkflowStatusFailed {
		fmt.Printf("  error: %s\n", wf.Error)
	}
	return nil
}
