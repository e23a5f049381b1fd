package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loadgenie/loadgenie/internal/k6"
	"github.com/loadgenie/loadgenie/internal/storage"
)

var (
	runVUs        int
	runDuration   string
	runIterations int
	runJSON       bool
)

var runCmd = &cobra.Command{
	Use:   "run <script.js>",
	Short: "Run a k6 script and analyse the result",
	Example: `  # Run with the options the script declares
  loadgenie run smoke.js

  # Override virtual users and duration
  loadgenie run -u 20 -d 1m smoke.js

  # Print the full record as JSON
  loadgenie run --json smoke.js`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runVUs, "vus", "u", 0, "virtual users (overrides the script)")
	runCmd.Flags().StringVarP(&runDuration, "duration", "d", "", "test duration, e.g. 30s (overrides the script)")
	runCmd.Flags().IntVarP(&runIterations, "iterations", "i", 0, "total iterations (overrides the script)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full record as JSON")
}

func runScript(cmd *cobra.Command, args []string) error {
	src, err := readScript(args[0])
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	opts := k6.Options{VUs: runVUs, Duration: runDuration, Iterations: runIterations}
	if err := opts.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.runner.Run(ctx, src, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	printRecord(out, rec)
	return nil
}

func printRecord(w io.Writer, rec *storage.Record) {
	m := rec.Metrics
	fmt.Fprintf(w, "Test %s finished in %.1fs\n", rec.TestID, rec.ExecutionTime)
	fmt.Fprintf(w, "  requests:      %d (%.2f/s)\n", m.TotalRequests, m.RequestsPerSecond)
	fmt.Fprintf(w, "  error rate:    %.2f%%\n", m.ErrorRate)
	fmt.Fprintf(w, "  response time: avg %.0fms, p95 %.0fms\n", m.ResponseTimeAvg, m.ResponseTimeP95)
	fmt.Fprintf(w, "  virtual users: %d\n", m.VirtualUsers)

	r := rec.AnomalyReport
	if r == nil {
		return
	}
	fmt.Fprintf(w, "Analysis (%s, confidence %.2f): severity %s\n", r.Source, r.Confidence, r.Severity)
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "  ! %s\n", issue)
	}
	if len(r.Recommendations) > 0 {
		fmt.Fprintf(w, "Recommendations:\n  - %s\n", strings.Join(r.Recommendations, "\n  - "))
	}
}
