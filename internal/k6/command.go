package k6

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

// Options are the per-run overrides passed to the tool. Each field is
// optional; zero values are not forwarded.
type Options struct {
	VUs        int    `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration   string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Iterations int    `json:"iterations,omitempty" yaml:"iterations,omitempty"`
}

// Validate checks the option ranges accepted by the service.
func (o Options) Validate() error {
	if o.VUs < 0 || o.VUs > 1000 {
		return fmt.Errorf("vus must be between 1 and 1000, got %d", o.VUs)
	}
	if o.Iterations < 0 {
		return fmt.Errorf("iterations must be positive, got %d", o.Iterations)
	}
	if o.Duration != "" {
		d, err := time.ParseDuration(o.Duration)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", o.Duration, err)
		}
		if d <= 0 {
			return fmt.Errorf("duration must be positive, got %q", o.Duration)
		}
	}
	return nil
}

// RunFiles are the run-scoped paths the tool reads and writes.
type RunFiles struct {
	Script  string
	Stream  string
	Summary string
}

// FilesFor returns the run-scoped file set for testID inside dir.
func FilesFor(dir, testID string) RunFiles {
	stem := "test_" + testID
	return RunFiles{
		Script:  filepath.Join(dir, stem+".js"),
		Stream:  filepath.Join(dir, stem+"_metrics.json"),
		Summary: filepath.Join(dir, stem+"_summary.json"),
	}
}

// Command builds the argument vector for one run. The binary is args[0].
func Command(binary string, files RunFiles, opts Options) []string {
	args := []string{binary, "run",
		"--out", "json=" + files.Stream,
		"--summary-export", files.Summary,
	}
	if opts.VUs > 0 {
		args = append(args, "--vus", strconv.Itoa(opts.VUs))
	}
	if opts.Duration != "" {
		args = append(args, "--duration", opts.Duration)
	}
	if opts.Iterations > 0 {
		args = append(args, "--iterations", strconv.Itoa(opts.Iterations))
	}
	return append(args, files.Script)
}
