package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loadgenie/loadgenie/internal/anomaly"
	"github.com/loadgenie/loadgenie/internal/k6"
)

const schema = `
CREATE TABLE IF NOT EXISTS test_runs (
	id                  BIGSERIAL PRIMARY KEY,
	test_id             TEXT NOT NULL UNIQUE,
	timestamp           TIMESTAMPTZ NOT NULL,
	execution_time      DOUBLE PRECISION,
	script_content      TEXT NOT NULL,
	options             TEXT,
	response_time_avg   DOUBLE PRECISION,
	response_time_p95   DOUBLE PRECISION,
	error_rate          DOUBLE PRECISION,
	requests_per_second DOUBLE PRECISION,
	virtual_users       INTEGER,
	total_requests      INTEGER,
	duration_ms         DOUBLE PRECISION,
	anomalies_detected  BOOLEAN NOT NULL DEFAULT FALSE,
	severity            TEXT,
	issues              TEXT,
	recommendations     TEXT,
	confidence          DOUBLE PRECISION,
	anomaly_source      TEXT,
	raw_output          TEXT,
	console_output      TEXT
);
CREATE INDEX IF NOT EXISTS idx_test_runs_timestamp ON test_runs (timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_test_runs_anomaly ON test_runs (anomalies_detected, severity);
`

const summaryColumns = `test_id, timestamp, execution_time,
	response_time_avg, response_time_p95, error_rate, requests_per_second,
	virtual_users, total_requests, duration_ms,
	anomalies_detected, severity, issues, recommendations, confidence, anomaly_source`

// PostgresRepository stores records in the test_runs table.
type PostgresRepository struct {
	db *DB
}

func NewPostgresRepository(db *DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the table and indexes if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Save inserts rec and returns its surrogate id.
func (r *PostgresRepository) Save(ctx context.Context, rec *Record) (int64, error) {
	options, err := json.Marshal(rec.Options)
	if err != nil {
		return 0, fmt.Errorf("failed to encode options: %w", err)
	}

	report := rec.AnomalyReport
	if report == nil {
		report = &anomaly.Report{Severity: anomaly.SeverityLow}
	}
	issues, err := json.Marshal(nonNil(report.Issues))
	if err != nil {
		return 0, fmt.Errorf("failed to encode issues: %w", err)
	}
	recommendations, err := json.Marshal(nonNil(report.Recommendations))
	if err != nil {
		return 0, fmt.Errorf("failed to encode recommendations: %w", err)
	}

	query := `
		INSERT INTO test_runs (
			test_id, timestamp, execution_time, script_content, options,
			response_time_avg, response_time_p95, error_rate, requests_per_second,
			virtual_users, total_requests, duration_ms,
			anomalies_detected, severity, issues, recommendations, confidence, anomaly_source,
			raw_output, console_output
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id
	`

	m := rec.Metrics
	var id int64
	err = r.db.QueryRowContext(ctx, query,
		rec.TestID, rec.Timestamp, rec.ExecutionTime, rec.ScriptContent, string(options),
		m.ResponseTimeAvg, m.ResponseTimeP95, m.ErrorRate, m.RequestsPerSecond,
		m.VirtualUsers, m.TotalRequests, m.DurationMS,
		report.AnomaliesDetected, string(report.Severity), string(issues), string(recommendations),
		report.Confidence, report.Source,
		string(rec.RawOutput), rec.ConsoleOutput,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert test run: %w", err)
	}
	return id, nil
}

// Get returns ErrNotFound when no row matches testID.
func (r *PostgresRepository) Get(ctx context.Context, testID string) (*Record, error) {
	query := `SELECT ` + summaryColumns + `, script_content, options, raw_output, console_output
		FROM test_runs
		WHERE test_id = $1`

	var (
		rec                         Record
		options, rawOutput, console sql.NullString
	)
	sum, err := scanSummary(r.db.QueryRowContext(ctx, query, testID), &rec.ScriptContent, &options, &rawOutput, &console)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test run: %w", err)
	}

	rec.TestID = sum.TestID
	rec.Timestamp = sum.Timestamp
	rec.ExecutionTime = sum.ExecutionTime
	rec.Metrics = sum.Metrics
	rec.AnomalyReport = sum.AnomalyReport
	rec.ConsoleOutput = console.String
	if options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &rec.Options); err != nil {
			return nil, fmt.Errorf("failed to decode options: %w", err)
		}
	}
	if rawOutput.String != "" {
		rec.RawOutput = json.RawMessage(rawOutput.String)
	}
	return &rec, nil
}

// History lists runs newest first.
func (r *PostgresRepository) History(ctx context.Context, limit, offset int) ([]RunSummary, error) {
	query := `SELECT ` + summaryColumns + `
		FROM test_runs
		ORDER BY timestamp DESC
		LIMIT $1 OFFSET $2`

	return r.querySummaries(ctx, query, limit, offset)
}

// HistoricalMetrics returns the metrics of the most recent runs within days.
func (r *PostgresRepository) HistoricalMetrics(ctx context.Context, days, limit int) ([]k6.Metrics, error) {
	query := `
		SELECT response_time_avg, response_time_p95, error_rate, requests_per_second,
		       virtual_users, total_requests, duration_ms
		FROM test_runs
		WHERE timestamp >= $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff(days), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query historical metrics: %w", err)
	}
	defer rows.Close()

	var out []k6.Metrics
	for rows.Next() {
		var m nullMetrics
		if err := rows.Scan(m.dest()...); err != nil {
			return nil, fmt.Errorf("failed to scan historical metrics: %w", err)
		}
		out = append(out, m.metrics())
	}
	return out, rows.Err()
}

// Statistics summarises runs newer than days.
func (r *PostgresRepository) Statistics(ctx context.Context, days int) (*Statistics, error) {
	since := cutoff(days)

	var total, anomalous int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE anomalies_detected)
		FROM test_runs
		WHERE timestamp >= $1
	`, since).Scan(&total, &anomalous)
	if err != nil {
		return nil, fmt.Errorf("failed to count test runs: %w", err)
	}

	stats := newStatistics(days, total, anomalous)
	if anomalous == 0 {
		return stats, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT severity, COUNT(*)
		FROM test_runs
		WHERE timestamp >= $1 AND anomalies_detected
		GROUP BY severity
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query severity breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity sql.NullString
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity breakdown: %w", err)
		}
		stats.SeverityBreakdown[severity.String] = count
	}
	return stats, rows.Err()
}

// Search filters runs newest first.
func (r *PostgresRepository) Search(ctx context.Context, q SearchQuery) ([]RunSummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM test_runs WHERE TRUE`
	var args []any

	if q.AnomaliesOnly {
		query += ` AND anomalies_detected`
	}
	if q.MinErrorRate != nil {
		args = append(args, *q.MinErrorRate)
		query += fmt.Sprintf(` AND error_rate >= $%d`, len(args))
	}
	if q.MaxResponseTime != nil {
		args = append(args, *q.MaxResponseTime)
		query += fmt.Sprintf(` AND response_time_avg <= $%d`, len(args))
	}
	args = append(args, q.Limit)
	query += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT $%d`, len(args))

	return r.querySummaries(ctx, query, args...)
}

// Purge deletes runs older than olderThanDays and returns the count.
func (r *PostgresRepository) Purge(ctx context.Context, olderThanDays int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM test_runs WHERE timestamp < $1`, cutoff(olderThanDays))
	if err != nil {
		return 0, fmt.Errorf("failed to purge test runs: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) querySummaries(ctx context.Context, query string, args ...any) ([]RunSummary, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query test runs: %w", err)
	}
	defer rows.Close()

	out := []RunSummary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test run: %w", err)
		}
		out = append(out, *sum)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// nullMetrics scans the nullable metric columns.
type nullMetrics struct {
	avg, p95, errorRate, rps sql.NullFloat64
	vus, requests            sql.NullInt64
	duration                 sql.NullFloat64
}

func (n *nullMetrics) dest() []any {
	return []any{&n.avg, &n.p95, &n.errorRate, &n.rps, &n.vus, &n.requests, &n.duration}
}

func (n *nullMetrics) metrics() k6.Metrics {
	return k6.Metrics{
		ResponseTimeAvg:   n.avg.Float64,
		ResponseTimeP95:   n.p95.Float64,
		ErrorRate:         n.errorRate.Float64,
		RequestsPerSecond: n.rps.Float64,
		VirtualUsers:      int(n.vus.Int64),
		TotalRequests:     int(n.requests.Int64),
		DurationMS:        n.duration.Float64,
	}
}

// scanSummary scans summaryColumns followed by any extra destinations.
func scanSummary(s scanner, extra ...any) (*RunSummary, error) {
	var (
		sum                            RunSummary
		executionTime, confidence      sql.NullFloat64
		m                              nullMetrics
		detected                       bool
		severity, issues, recs, source sql.NullString
	)

	dest := []any{&sum.TestID, &sum.Timestamp, &executionTime}
	dest = append(dest, m.dest()...)
	dest = append(dest, &detected, &severity, &issues, &recs, &confidence, &source)
	dest = append(dest, extra...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	sum.ExecutionTime = executionTime.Float64
	sum.Metrics = m.metrics()
	report := &anomaly.Report{
		AnomaliesDetected: detected,
		Severity:          anomaly.Severity(severity.String),
		Issues:            []string{},
		Recommendations:   []string{},
		Confidence:        confidence.Float64,
		Source:            source.String,
	}
	if err := decodeList(issues, &report.Issues); err != nil {
		return nil, fmt.Errorf("issues: %w", err)
	}
	if err := decodeList(recs, &report.Recommendations); err != nil {
		return nil, fmt.Errorf("recommendations: %w", err)
	}
	sum.AnomalyReport = report
	sum.Timestamp = sum.Timestamp.UTC()
	return &sum, nil
}

func decodeList(s sql.NullString, out *[]string) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ Repository = (*PostgresRepository)(nil)
