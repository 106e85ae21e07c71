package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// newDashCmd creates the "chorus dash" subcommand.
func newDashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Launch interactive dashboard",
		Long:  "Opens the chorus dashboard TUI for monitoring active bots and lifecycle events.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dashCmd := exec.CommandContext(cmd.Context(), "chorus-dash")
			dashCmd.Stdin = os.Stdin
			dashCmd.Stdout = os.Stdout
			dashCmd.Stderr = os.Stderr

			if err := dashCmd.Run(); err != nil {
				return fmt.Errorf("run chorus-dash: %w", err)
			}
			return nil
		},
	}
}
