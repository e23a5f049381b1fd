package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/loadgenie/loadgenie/internal/ai"
	"github.com/loadgenie/loadgenie/internal/anomaly"
	"github.com/loadgenie/loadgenie/internal/config"
	"github.com/loadgenie/loadgenie/internal/metrics"
	"github.com/loadgenie/loadgenie/internal/runner"
	"github.com/loadgenie/loadgenie/internal/storage"
)

// app holds the wired components shared by the commands.
type app struct {
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	db        *storage.DB
	store     *storage.Store
	generator *ai.Generator
	detector  *anomaly.Detector
	runner    *runner.Runner
}

// newApp wires storage, the model client, the detector and the runner.
// A database or model that cannot be reached degrades the app instead of
// failing it: runs are then kept in the backup tier only, and analysis
// falls back to the rules.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	var repo storage.Repository
	if cfg.DatabaseURL != "" {
		dbCfg := storage.DefaultConfig()
		dbCfg.URL = cfg.DatabaseURL
		db, err := storage.New(ctx, dbCfg)
		if err != nil {
			slog.Warn("Database unavailable, keeping runs in the backup store only", "error", err)
		} else {
			pg := storage.NewPostgresRepository(db)
			if err := pg.Migrate(ctx); err != nil {
				db.Close()
				return nil, err
			}
			a.db = db
			repo = pg
		}
	}

	backup, err := storage.NewBackup(ctx, storage.BackupConfig{
		Backend:         storage.BackupBackend(cfg.Backup.Backend),
		LocalPath:       cfg.Backup.LocalPath,
		Endpoint:        cfg.Backup.Endpoint,
		Region:          cfg.Backup.Region,
		Bucket:          cfg.Backup.Bucket,
		AccessKeyID:     cfg.Backup.AccessKeyID,
		SecretAccessKey: cfg.Backup.SecretAccessKey,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = storage.NewStore(repo, backup, a.metrics)

	client, err := ai.NewOpenAI(ctx, aiConfig(cfg), a.metrics)
	switch {
	case errors.Is(err, ai.ErrDisabled):
		slog.Info("No AI API key configured, script generation disabled and analysis uses rules only")
	case err != nil:
		slog.Warn("AI client unavailable, analysis uses rules only", "error", err)
		client = nil
	}

	// A nil *Client must not become a non-nil Judge.
	var judge anomaly.Judge
	if client != nil {
		judge = client
	}
	a.generator = ai.NewGenerator(client)
	a.detector = anomaly.NewDetector(judge, a.metrics)

	a.runner, err = runner.New(runner.Config{
		Binary:       cfg.Runner.Binary,
		ResultsDir:   cfg.Runner.ResultsDir,
		Timeout:      cfg.Runner.Timeout(),
		HistoryDays:  cfg.Runner.HistoryDays,
		HistoryLimit: cfg.Runner.HistoryLimit,
	}, a.store, a.detector, a.metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the database pool.
func (a *app) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

func aiConfig(cfg *config.Config) ai.Config {
	return ai.Config{
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout(),
		MaxRetries:  cfg.AI.MaxRetries,
		Workers:     cfg.AI.Workers,
	}
}
