package main

import (
	"fmt"

	"chorus/internal/version"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root chorus command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chorus",
		Short:         "Chorus music-bot farm coordinator",
		Long:          "chorus runs a farm of music bots on a voice-chat server.\nThe master waits for pokes and provisions one worker bot per requesting channel.",
		Version:       fmt.Sprintf("chorus %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newGenIDCmd(),
		newDashCmd(),
	)

	return cmd
}
