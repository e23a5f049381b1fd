package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loadgenie/loadgenie/internal/k6"
	"github.com/loadgenie/loadgenie/internal/metrics"
)

// Store combines the relational repository with the backup tier. The backup
// is always written; relational failures are logged and absorbed.
//
// Listing, statistics, search and purge read the repository only, so a run
// whose relational write failed is retrievable by id but invisible to them.
type Store struct {
	repo    Repository
	backup  Backup
	metrics *metrics.Metrics
}

// NewStore wires the tiers. repo may be nil, in which case only the backup
// is used.
func NewStore(repo Repository, backup Backup, met *metrics.Metrics) *Store {
	return &Store{repo: repo, backup: backup, metrics: met}
}

// Save writes the backup and then the repository. It fails only when both
// tiers fail.
func (s *Store) Save(ctx context.Context, r *Record) (int64, error) {
	backupErr := s.backup.Write(ctx, r)
	if backupErr != nil {
		s.metrics.PersistenceFailure(metrics.BackendBackup)
		slog.Error("Failed to write record backup", "test_id", r.TestID, "error", backupErr)
	}

	if s.repo == nil {
		return 0, backupErr
	}

	id, err := s.repo.Save(ctx, r)
	if err != nil {
		s.metrics.PersistenceFailure(metrics.BackendRelational)
		slog.Error("Failed to save record to database, backup only",
			"test_id", r.TestID,
			"backup_ok", backupErr == nil,
			"error", err,
		)
		if backupErr != nil {
			return 0, errors.Join(err, backupErr)
		}
		return 0, nil
	}

	slog.Info("Saved test record", "test_id", r.TestID, "id", id)
	return id, nil
}

// Get reads the repository first and the backup on a miss.
func (s *Store) Get(ctx context.Context, testID string) (*Record, error) {
	if s.repo != nil {
		r, err := s.repo.Get(ctx, testID)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("Database read failed, trying backup", "test_id", testID, "error", err)
		}
	}

	r, err := s.backup.Read(ctx, testID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}
	return r, nil
}

// History lists runs newest first, falling back to the backup listing when
// the repository fails or has nothing.
func (s *Store) History(ctx context.Context, limit, offset int) ([]RunSummary, error) {
	if s.repo != nil {
		runs, err := s.repo.History(ctx, limit, offset)
		if err == nil && len(runs) > 0 {
			return runs, nil
		}
		if err != nil {
			slog.Warn("Database history failed, listing backups", "error", err)
		}
	}
	return s.backup.List(ctx, limit, offset)
}

// HistoricalMetrics returns nil without a repository.
func (s *Store) HistoricalMetrics(ctx context.Context, days, limit int) ([]k6.Metrics, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.HistoricalMetrics(ctx, days, limit)
}

func (s *Store) Statistics(ctx context.Context, days int) (*Statistics, error) {
	if s.repo == nil {
		return newStatistics(days, 0, 0), nil
	}
	return s.repo.Statistics(ctx, days)
}

func (s *Store) Search(ctx context.Context, q SearchQuery) ([]RunSummary, error) {
	if s.repo == nil {
		return []RunSummary{}, nil
	}
	return s.repo.Search(ctx, q)
}

// Purge deletes old relational rows. Backups are kept.
func (s *Store) Purge(ctx context.Context, olderThanDays int) (int64, error) {
	if s.repo == nil {
		return 0, nil
	}
	n, err := s.repo.Purge(ctx, olderThanDays)
	if err != nil {
		return 0, err
	}
	slog.Info("Purged old test runs", "older_than_days", olderThanDays, "deleted", n)
	return n, nil
}

// Ping checks the repository. A store without one is always ready.
func (s *Store) Ping(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.Ping(ctx)
}
