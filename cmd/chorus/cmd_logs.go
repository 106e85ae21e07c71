package main

import (
	"fmt"

	"chorus/pkg/eventlog"

	"github.com/spf13/cobra"
)

// newLogsCmd creates the "chorus logs" subcommand.
func newLogsCmd() *cobra.Command {
	var (
		limit int
		botN  string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent lifecycle events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}

			log, err := eventlog.Open(paths.EventLogPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Close() }()

			var entries []eventlog.Entry
			if botN != "" {
				entries, err = log.ByBot(cmd.Context(), botN, limit)
			} else {
				entries, err = log.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for i := len(entries) - 1; i >= 0; i-- { // oldest first
				e := entries[i]
				line := fmt.Sprintf("%s  %-18s %s", e.CreatedAt, e.Type, e.Source)
				if e.Bot != "" && e.Bot != e.Source {
					line += "  bot=" + e.Bot
				}
				if e.Channel != "" {
					line += "  channel=" + e.Channel
				}
				if e.Payload != "" {
					line += "  " + e.Payload
				}
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum events to show")
	cmd.Flags().StringVarP(&botN, "bot", "b", "", "only events for this bot name")
	return cmd
}
