package main

import (
	"fmt"

	"chorus/pkg/config"

	"github.com/spf13/cobra"
)

// newGenIDCmd creates the "chorus genid" subcommand. Worker identities are
// provisioned ahead of time; this writes a fresh roster the config can
// point at via ids_file.
func newGenIDCmd() *cobra.Command {
	var (
		count  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "genid",
		Short: "Generate an identity roster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return fmt.Errorf("genid: count must be at least 1, got %d", count)
			}
			ids, err := config.GenerateRoster(count)
			if err != nil {
				return err
			}
			if err := config.SaveRoster(output, ids); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d identities to %s\n", count, output)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 8, "number of identities to generate")
	cmd.Flags().StringVarP(&output, "output", "o", "roster.yaml", "roster file to write")
	return cmd
}
