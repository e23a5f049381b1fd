// Package storage persists test execution records: a PostgreSQL repository as
// the primary backend and one JSON document per run as the backup.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "github.com/lib/pq"
)

// Config tunes the pool behind the test_runs repository. URL is a lib/pq
// connection string.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig sizes the pool for one service instance; runs write one row
// each, so a handful of connections is plenty.
func DefaultConfig() *Config {
	return &Config{
		URL:             "postgres://localhost:5432/loadgenie?sslmode=disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// DB is the pool shared by PostgresRepository.
type DB struct {
	*sql.DB
	config *Config
}

// New opens the pool and verifies it with a ping.
func New(ctx context.Context, config *Config) (*DB, error) {
	if config == nil {
		config = DefaultConfig()
	}

	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Connected to test run database", "url", maskConnectionString(config.URL))

	return &DB{DB: db, config: config}, nil
}

// Close drains the pool at shutdown.
func (db *DB) Close() error {
	slog.Info("Closing test run database pool")
	return db.DB.Close()
}

// maskConnectionString hides credentials for logging.
func maskConnectionString(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "postgres://***"
	}
	if u.User != nil {
		u.User = url.UserPassword("***", "***")
	}
	return u.Redacted()
}
