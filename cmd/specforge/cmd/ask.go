package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specforge/specforge/internal/hub"
)

var (
	askTopic   string
	askFeature string
	askContext string
	askSession string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask an expert agent a question",
	Long: `Route a question to the expert agent responsible for its topic. Answers
below the topic's confidence threshold escalate to a human reviewer;
resolve them with 'specforge escalation resolve'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVarP(&askTopic, "topic", "t", "general",
		"question topic for expert routing")
	askCmd.Flags().StringVarP(&askFeature, "feature", "f", "",
		"feature id the question belongs to (required)")
	askCmd.Flags().StringVar(&askContext, "context", "",
		"additional context for the expert")
	askCmd.Flags().StringVar(&askSession, "session", "",
		"continue an existing session")
	_ = askCmd.MarkFlagRequired("feature")
}

func runAsk(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	h, err := d.buildHub()
	if err != nil {
		return err
	}

	res, err := h.AskExpert(cmd.Context(), hub.AskRequest{
		Topic:     askTopic,
		Question:  strings.Join(args, " "),
		Context:   askContext,
		FeatureID: askFeature,
		SessionID: askSession,
	})
	if err != nil {
		return err
	}

	switch {
	case res.Status == hub.AskStatusResolved:
		fmt.Printf("%s\n\n", res.Answer.Text)
		fmt.Printf("  agent:      %s (%s)\n", res.AgentID, res.Answer.ModelUsed)
		fmt.Printf("  confidence: %d (threshold %d)\n", res.Answer.Confidence, res.Threshold)
		fmt.Printf("  rationale:  %s\n", res.Answer.Rationale)
	case res.Answer != nil:
		fmt.Printf("Pending human review: confidence %d below threshold %d.\n",
			res.Answer.Confidence, res.Threshold)
		fmt.Printf("  tentative:  %s\n", res.Answer.Text)
		fmt.Printf("  escalation: %s\n", res.EscalationID)
		fmt.Printf("\nResolve with: specforge escalation resolve %s --action confirm --responder <you>\n",
			res.EscalationID)
	default:
		fmt.Printf("Topic %q routes directly to a human reviewer.\n", askTopic)
		fmt.Printf("  escalation: %s\n", res.EscalationID)
	}
	fmt.Printf("  session:    %s\n", res.SessionID)
	return nil
}
