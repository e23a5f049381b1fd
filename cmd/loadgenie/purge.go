package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var purgeOlderThan int

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete stored runs older than a number of days",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if purgeOlderThan < 1 {
			return fmt.Errorf("--older-than-days must be at least 1, got %d", purgeOlderThan)
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.store.Purge(cmd.Context(), purgeOlderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d run(s) older than %d days\n", n, purgeOlderThan)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().IntVar(&purgeOlderThan, "older-than-days", 90, "age threshold in days")
}
