package main

import (
	"fmt"

	"chorus/pkg/eventlog"

	"github.com/spf13/cobra"
)

// newStatusCmd creates the "chorus status" subcommand. It reads the event
// log rather than talking to the master, so it works even while the farm
// is down.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show master daemon state and active bots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			w := cmd.OutOrStdout()

			pid, err := ReadPIDFile(paths.PIDPath)
			switch {
			case err != nil:
				fmt.Fprintln(w, "master: not running")
			case IsProcessAlive(pid):
				fmt.Fprintf(w, "master: running (PID %d)\n", pid)
			default:
				fmt.Fprintf(w, "master: stale PID file (PID %d is dead)\n", pid)
			}

			log, err := eventlog.Open(paths.EventLogPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Close() }()

			runID, err := log.LatestRun(cmd.Context())
			if err != nil {
				return err
			}
			if runID == "" {
				fmt.Fprintln(w, "no runs recorded")
				return nil
			}

			bots, err := log.ActiveBots(cmd.Context(), runID)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "run %s: %d active bot(s)\n", runID, len(bots))
			for _, name := range bots {
				fmt.Fprintf(w, "  %s\n", name)
			}
			return nil
		},
	}
}
