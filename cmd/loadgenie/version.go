package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loadgenie/loadgenie/internal/runner"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the loadgenie version and the k6 it would run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "loadgenie %s\n", Version)

		k6Version, err := runner.CheckInstallation(cmd.Context(), cfg.Runner.Binary)
		if err != nil {
			fmt.Fprintf(out, "k6: not available (%v)\n", err)
			return nil
		}
		fmt.Fprintf(out, "k6: %s\n", k6Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
