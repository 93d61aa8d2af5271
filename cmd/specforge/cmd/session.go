package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect hub conversation sessions",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionClose,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionCloseCmd)
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	h, err := d.buildHub()
	if err != nil {
		return err
	}

	sess, err := h.GetSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Session %s (%s, agent %s, feature %s)\n\n",
		sess.ID, sess.Status, sess.AgentID, sess.FeatureID)
	for _, msg := range sess.Messages {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
	}
	return nil
}

func runSessionClose(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	h, err := d.buildHub()
	if err != nil {
		return err
	}

	sess, err := h.CloseSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Session %s closed.\n", sess.ID)
	return nil
}
