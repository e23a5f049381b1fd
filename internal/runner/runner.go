// Package runner executes k6 scripts: it writes the script to a scratch file,
// runs the tool under a timeout, extracts metrics from the summary export,
// analyses them and persists the resulting record.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loadgenie/loadgenie/internal/anomaly"
	"github.com/loadgenie/loadgenie/internal/k6"
	"github.com/loadgenie/loadgenie/internal/metrics"
	"github.com/loadgenie/loadgenie/internal/storage"
)

// Store is the persistence the runner needs.
type Store interface {
	HistoricalMetrics(ctx context.Context, days, limit int) ([]k6.Metrics, error)
	Save(ctx context.Context, r *storage.Record) (int64, error)
}

// Analyzer judges the metrics of a run. It must not fail.
type Analyzer interface {
	Analyze(ctx context.Context, current k6.Metrics, history []k6.Metrics) *anomaly.Report
}

// Config configures the runner.
type Config struct {
	Binary       string
	ResultsDir   string
	Timeout      time.Duration
	HistoryDays  int
	HistoryLimit int
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = "k6"
	}
	if c.ResultsDir == "" {
		c.ResultsDir = filepath.Join(os.TempDir(), "k6_results")
	}
	if c.Timeout <= 0 {
		c.Timeout = 300 * time.Second
	}
	if c.HistoryDays <= 0 {
		c.HistoryDays = 30
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10
	}
	return c
}

// killGrace bounds how long Wait blocks on output pipes after the process
// has been killed.
const killGrace = 5 * time.Second

// Runner executes test runs. Each run owns its scratch files, so concurrent
// runs share nothing but the store.
type Runner struct {
	cfg      Config
	store    Store
	analyzer Analyzer
	metrics  *metrics.Metrics
	newID    func() string
}

// New creates the results directory if needed.
func New(cfg Config, store Store, analyzer Analyzer, met *metrics.Metrics) (*Runner, error) {
	cfg = cfg.withDefaults()
	// The tool runs inside ResultsDir, so the paths handed to it must not be
	// relative to the caller's working directory.
	dir, err := filepath.Abs(cfg.ResultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve results directory: %w", err)
	}
	cfg.ResultsDir = dir
	if err := os.MkdirAll(cfg.ResultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &Runner{
		cfg:      cfg,
		store:    store,
		analyzer: analyzer,
		metrics:  met,
		newID:    uuid.NewString,
	}, nil
}

// run tracks the lifecycle of one execution.
type run struct {
	id    string
	state State
}

func (r *run) transition(to State) {
	slog.Debug("Test run state change", "test_id", r.id, "from", r.state, "to", to)
	r.state = to
}

func (r *run) fail(op string, output string, err error) *ExecutionError {
	terminal := StateFailed
	if errors.Is(err, ErrTimeout) {
		terminal = StateTimedOut
	}
	r.transition(terminal)
	return &ExecutionError{TestID: r.id, State: terminal, Op: op, Output: output, Err: err}
}

// Run executes script with opts. Any failure before a scored result is an
// *ExecutionError; analysis and persistence failures are logged only.
func (rn *Runner) Run(ctx context.Context, script string, opts k6.Options) (*storage.Record, error) {
	start := time.Now()
	r := &run{id: rn.newID(), state: StateCreated}
	files := k6.FilesFor(rn.cfg.ResultsDir, r.id)

	rn.metrics.RunStarted()
	defer func() {
		status := metrics.StatusCompleted
		switch r.state {
		case StateFailed:
			status = metrics.StatusFailed
		case StateTimedOut:
			status = metrics.StatusTimedOut
		}
		rn.metrics.RunFinished(status, time.Since(start))
	}()
	defer rn.cleanup(r.id, files)

	if err := os.WriteFile(files.Script, []byte(script), 0o644); err != nil {
		return nil, r.fail("write script", "", err)
	}
	r.transition(StateScriptWritten)

	args := k6.Command(rn.cfg.Binary, files, opts)
	r.transition(StateCommandBuilt)

	slog.Info("Running k6 test", "test_id", r.id, "command", strings.Join(args, " "))
	r.transition(StateRunning)

	output, err := rn.execute(ctx, args)
	if err != nil {
		return nil, r.fail("execute", output, err)
	}

	data, err := os.ReadFile(files.Summary)
	if errors.Is(err, os.ErrNotExist) {
		return nil, r.fail("read summary", output, ErrSummaryMissing)
	}
	if err != nil {
		return nil, r.fail("read summary", output, err)
	}
	summary, err := k6.ParseSummary(data)
	if err != nil {
		return nil, r.fail("parse summary", output, err)
	}
	current := summary.Metrics()

	history, err := rn.store.HistoricalMetrics(ctx, rn.cfg.HistoryDays, rn.cfg.HistoryLimit)
	if err != nil {
		slog.Warn("Historical metrics unavailable, analysing without baseline", "test_id", r.id, "error", err)
		history = nil
	}

	report := rn.analyzer.Analyze(ctx, current, history)

	rec := &storage.Record{
		TestID:        r.id,
		Timestamp:     start.UTC(),
		ExecutionTime: time.Since(start).Seconds(),
		ScriptContent: script,
		Options:       opts,
		Metrics:       current,
		AnomalyReport: report,
		RawOutput:     summary.Raw,
		ConsoleOutput: output,
	}
	r.transition(StateCompleted)

	if _, err := rn.store.Save(ctx, rec); err != nil {
		slog.Error("Failed to persist test record", "test_id", r.id, "error", err)
	}

	slog.Info("Test run completed",
		"test_id", r.id,
		"execution_time", rec.ExecutionTime,
		"anomalies_detected", report.AnomaliesDetected,
		"severity", report.Severity,
	)
	return rec, nil
}

// execute runs the tool and returns its combined output.
func (rn *Runner) execute(parent context.Context, args []string) (string, error) {
	ctx, cancel := context.WithTimeout(parent, rn.cfg.Timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = rn.cfg.ResultsDir
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = killGrace
	configureProcess(cmd)

	err := cmd.Run()
	output := out.String()

	if parent.Err() != nil {
		return output, parent.Err()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return output, fmt.Errorf("%w after %s", ErrTimeout, rn.cfg.Timeout)
	}
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return output, fmt.Errorf("%w: %v", ErrToolUnavailable, err)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, fmt.Errorf("k6 exited with code %d: %w", exitErr.ExitCode(), err)
		}
		return output, err
	}
	return output, nil
}

// cleanup removes the run's scratch files. Failures are logged only. Only
// the tool's own outputs are matched, so a backup document kept in the same
// directory survives.
func (rn *Runner) cleanup(testID string, files k6.RunFiles) {
	paths := []string{files.Script, files.Stream, files.Summary}
	if extra, err := filepath.Glob(filepath.Join(rn.cfg.ResultsDir, "test_"+testID+"_*.txt")); err == nil {
		paths = append(paths, extra...)
	}

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove scratch file", "test_id", testID, "file", p, "error", err)
		}
	}
}

// CheckInstallation runs "<binary> version" and returns its output.
func CheckInstallation(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CheckInstallation checks the runner's configured binary.
func (rn *Runner) CheckInstallation(ctx context.Context) (string, error) {
	return CheckInstallation(ctx, rn.cfg.Binary)
}
