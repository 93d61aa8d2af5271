package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/hub"
)

var escalationCmd = &cobra.Command{
	Use:   "escalation",
	Short: "Review and resolve escalated questions",
}

var (
	escalationStatus    string
	escalationAction    string
	escalationResponder string
	escalationPayload   string
)

var escalationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List escalations",
	Args:  cobra.NoArgs,
	RunE:  runEscalationList,
}

var escalationShowCmd = &cobra.Command{
	Use:   "show <escalation-id>",
	Short: "Show an escalation",
	Args:  cobra.ExactArgs(1),
	RunE:  runEscalationShow,
}

var escalationResolveCmd = &cobra.Command{
	Use:   "resolve <escalation-id>",
	Short: "Resolve an escalation with a human decision",
	Long: `Resolve a pending escalation.

Actions:
  confirm      accept the tentative answer as final
  correct      replace the answer (--payload carries the correction)
  add_context  augment the question and re-ask (--payload carries the context)`,
	Args: cobra.ExactArgs(1),
	RunE: runEscalationResolve,
}

func init() {
	rootCmd.AddCommand(escalationCmd)
	escalationCmd.AddCommand(escalationListCmd)
	escalationCmd.AddCommand(escalationShowCmd)
	escalationCmd.AddCommand(escalationResolveCmd)

	escalationListCmd.Flags().StringVar(&escalationStatus, "status", "pending",
		"filter by status (pending, resolved, all)")

	escalationResolveCmd.Flags().StringVar(&escalationAction, "action", "",
		"resolution action (confirm, correct, add_context)")
	escalationResolveCmd.Flags().StringVar(&escalationResponder, "responder", "",
		"name of the human resolving")
	escalationResolveCmd.Flags().StringVar(&escalationPayload, "payload", "",
		"corrected answer or additional context")
	_ = escalationResolveCmd.MarkFlagRequired("action")
	_ = escalationResolveCmd.MarkFlagRequired("responder")
}

func runEscalationList(cmd *cobra.Command, _ []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	h, err := d.buildHub()
	if err != nil {
		return err
	}

	status := core.EscalationStatus(escalationStatus)
	if escalationStatus == "all" {
		status = ""
	}
	escalations, err := h.ListEscalations(cmd.Context(), status)
	if err != nil {
		return err
	}
	if len(escalations) == 0 {
		fmt.Println("No escalations.")
		return nil
	}

	for _, esc := range escalations {
		fmt.Printf("%s  [%s]  %s: %s\n", esc.ID, esc.Status, esc.Question.Topic, esc.Question.Text)
		if esc.Status == core.EscalationStatusPending && esc.TentativeAnswer.Text != "" {
			fmt.Printf("    tentative (confidence %d, threshold %d): %s\n",
				esc.TentativeAnswer.Confidence, esc.ThresholdUsed, esc.TentativeAnswer.Text)
		}
	}
	return nil
}

func runEscalationShow(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	h, err := d.buildHub()
	if err != nil {
		return err
	}

	esc, err := h.CheckEscalation(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(esc)
}

func runEscalationResolve(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	h, err := d.buildHub()
	if err != nil {
		return err
	}

	result, err := h.ResolveEscalation(cmd.Context(), hub.ResolveRequest{
		EscalationID: args[0],
		Action:       escalationAction,
		Responder:    escalationResponder,
		Payload:      escalationPayload,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Escalation %s resolved (%s).\n", result.Escalation.ID, result.Escalation.HumanAction)
	if result.FinalAnswer != nil {
		fmt.Printf("  final answer: %s\n", result.FinalAnswer.Text)
	}
	if result.NeedsReroute {
		fmt.Println("  the question needs re-asking with the added context:")
		fmt.Printf("  specforge ask --topic %s --feature %s %q\n",
			result.RerouteQuestion.Topic, result.RerouteQuestion.FeatureID, result.RerouteQuestion.Text)
	}
	return nil
}
