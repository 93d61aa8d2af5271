package cmd

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check system dependencies",
	Long:  "Verify that the external tools specforge drives are installed and configured.",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	checks := []struct {
		name     string
		command  string
		args     []string
		required bool
	}{
		{"git", "git", []string{"--version"}, true},
		{"gh", "gh", []string{"--version"}, true},
		{"claude", "claude", []string{"--version"}, false},
		{"gemini", "gemini", []string{"--version"}, false},
	}

	fmt.Println("Checking dependencies...")
	fmt.Println()

	requiredOk := true
	for _, check := range checks {
		ok := checkCommand(check.command, check.args)
		icon := "✓"
		suffix := ""
		if !ok {
			if check.required {
				icon = "✗"
				requiredOk = false
			} else {
				icon = "○"
				suffix = " (optional)"
			}
		}
		fmt.Printf("  %s %s%s\n", icon, check.name, suffix)
	}
	fmt.Println()

	// gh must also be authenticated for issue operations.
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	board, err := d.buildBoard(cmd.Context())
	if err != nil {
		fmt.Printf("  ⚠ issue board: %v\n", err)
		requiredOk = false
	} else if err := board.VerifyAuth(cmd.Context()); err != nil {
		fmt.Printf("  ⚠ gh authentication: %v\n", err)
		requiredOk = false
	} else {
		fmt.Println("  ✓ gh authenticated")
	}

	if !requiredOk {
		return fmt.Errorf("required dependencies missing")
	}
	fmt.Println("\nAll required dependencies are available.")
	return nil
}

func checkCommand(name string, args []string) bool {
	cmd := exec.Command(name, args...)
	return cmd.Run() == nil
}
