package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the question/answer audit trail",
}

var auditShowCmd = &cobra.Command{
	Use:   "show <feature-id>",
	Short: "Show a feature's audit partition",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditShow,
}

var auditChainCmd = &cobra.Command{
	Use:   "chain <feature-id> <record-id>",
	Short: "Walk a record's escalation chain root-first",
	Args:  cobra.ExactArgs(2),
	RunE:  runAuditChain,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditChainCmd)
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	records, err := d.sink.List(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("No audit records for %s.\n", args[0])
		return nil
	}

	for _, rec := range records {
		fmt.Printf("%s  %s  [%s/%s]  %s\n",
			rec.Timestamp.Format("2006-01-02 15:04:05"), rec.ID, rec.Topic, rec.Status, rec.Question)
		if rec.Answer != "" {
			fmt.Printf("    answer (confidence %d): %s\n", rec.Confidence, rec.Answer)
		}
	}
	return nil
}

func runAuditChain(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	chain, err := d.sink.Chain(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	return printJSON(chain)
}
