package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specforge/specforge/internal/core"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage feature workflows",
}

var (
	workflowType   string
	workflowAgent  string
	workflowIssue  int
	workflowStatus string
)

var workflowCreateCmd = &cobra.Command{
	Use:   "create <description>",
	Short: "Create a workflow and start its first phase",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWorkflowCreate,
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	Args:  cobra.NoArgs,
	RunE:  runWorkflowList,
}

var workflowShowCmd = &cobra.Command{
	Use:   "show <workflow-id>",
	Short: "Show a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowShow,
}

var workflowHistoryCmd = &cobra.Command{
	Use:   "history <workflow-id>",
	Short: "Show a workflow's transition history",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowHistory,
}

var workflowAdvanceCmd = &cobra.Command{
	Use:   "advance <workflow-id> <trigger>",
	Short: "Apply a trigger to a workflow",
	Long: `Apply a state machine trigger to a workflow manually.

Triggers: start, agent_complete, human_approved, human_rejected, error.
Normally the executor drives these; advance is for recovery and testing.`,
	Args: cobra.ExactArgs(2),
	RunE: runWorkflowAdvance,
}

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowCreateCmd)
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowShowCmd)
	workflowCmd.AddCommand(workflowHistoryCmd)
	workflowCmd.AddCommand(workflowAdvanceCmd)

	workflowCreateCmd.Flags().StringVarP(&workflowType, "type", "t", "specify",
		"workflow type (specify, plan, tasks, implement)")
	workflowCreateCmd.Flags().StringVar(&workflowAgent, "agent", "",
		"agent CLI to dispatch (default: configured agent)")
	workflowCreateCmd.Flags().IntVar(&workflowIssue, "issue", 0,
		"existing tracking issue to bind (tasks/implement workflows)")

	workflowListCmd.Flags().StringVar(&workflowStatus, "status", "",
		"filter by status (pending, in_progress, waiting_approval, completed, failed)")
}

func runWorkflowCreate(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	wfContext := map[string]interface{}{}
	if workflowAgent != "" {
		wfContext["agent"] = workflowAgent
	}
	if workflowIssue > 0 {
		wfContext["issue_number"] = workflowIssue
	}

	wf, err := d.engine.Create(cmd.Context(), core.WorkflowType(workflowType),
		strings.Join(args, " "), wfContext)
	if err != nil {
		return err
	}

	fmt.Printf("Created workflow %s\n", wf.ID)
	fmt.Printf("  feature: %s\n", wf.FeatureID)
	fmt.Printf("  type:    %s\n", wf.Type)
	fmt.Printf("  status:  %s (%s)\n", wf.Status, wf.CurrentPhase)
	fmt.Printf("\nRun it with: specforge run %s\n", wf.ID)
	return nil
}

func runWorkflowList(cmd *cobra.Command, _ []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	workflows, err := d.engine.List(cmd.Context())
	if err != nil {
		return err
	}
	if workflowStatus != "" {
		filtered := workflows[:0]
		for _, wf := range workflows {
			if wf.Status == core.WorkflowStatus(workflowStatus) {
				filtered = append(filtered, wf)
			}
		}
		workflows = filtered
	}
	if len(workflows) == 0 {
		fmt.Println("No workflows.")
		return nil
	}

	fmt.Printf("%-36s  %-24s  %-9s  %-16s  %s\n", "ID", "FEATURE", "TYPE", "STATUS", "PHASE")
	for _, wf := range workflows {
		fmt.Printf("%-36s  %-24s  %-9s  %-16s  %s\n",
			wf.ID, wf.FeatureID, wf.Type, wf.Status, wf.CurrentPhase)
	}
	return nil
}

func runWorkflowShow(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	wf, err := d.engine.Get(cmd.Context(), core.WorkflowID(args[0]))
	if err != nil {
		return err
	}
	return printJSON(wf)
}

func runWorkflowHistory(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	history, err := d.engine.History(cmd.Context(), core.WorkflowID(args[0]))
	if err != nil {
		return err
	}
	for _, entry := range history {
		fmt.Printf("%s  %-16s -> %-16s  (%s)\n",
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.FromStatus, entry.ToStatus, entry.Trigger)
	}
	return nil
}

func runWorkflowAdvance(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	wf, err := d.engine.Advance(cmd.Context(), core.WorkflowID(args[0]), core.Trigger(args[1]), nil)
	if err != nil {
		return err
	}
	fmt.Printf("Workflow %s is now %s (%s)\n", wf.ID, wf.Status, wf.CurrentPhase)
	return nil
}
