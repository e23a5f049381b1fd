package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/loadgenie/loadgenie/internal/anomaly"
	"github.com/loadgenie/loadgenie/internal/k6"
)

// ErrNotFound is returned when no record exists for a test ID.
var ErrNotFound = errors.New("test record not found")

// Record is the immutable result of one run.
type Record struct {
	TestID        string          `json:"test_id"`
	Timestamp     time.Time       `json:"timestamp"`
	ExecutionTime float64         `json:"execution_time"`
	ScriptContent string          `json:"script_content"`
	Options       k6.Options      `json:"options"`
	Metrics       k6.Metrics      `json:"metrics"`
	AnomalyReport *anomaly.Report `json:"anomaly_report"`
	RawOutput     json.RawMessage `json:"raw_output,omitempty"`
	ConsoleOutput string          `json:"console_output"`
}

// RunSummary is the listing view of a record.
type RunSummary struct {
	TestID        string          `json:"test_id"`
	Timestamp     time.Time       `json:"timestamp"`
	ExecutionTime float64         `json:"execution_time"`
	Metrics       k6.Metrics      `json:"metrics"`
	AnomalyReport *anomaly.Report `json:"anomaly_report"`
}

func (r *Record) Summary() RunSummary {
	return RunSummary{
		TestID:        r.TestID,
		Timestamp:     r.Timestamp,
		ExecutionTime: r.ExecutionTime,
		Metrics:       r.Metrics,
		AnomalyReport: r.AnomalyReport,
	}
}

// Statistics aggregates runs over a trailing window. AnomalyRate is a
// percentage; SeverityBreakdown counts anomalous runs only.
type Statistics struct {
	PeriodDays        int            `json:"period_days"`
	TotalTests        int            `json:"total_tests"`
	AnomalyTests      int            `json:"anomaly_tests"`
	AnomalyRate       float64        `json:"anomaly_rate"`
	SeverityBreakdown map[string]int `json:"severity_breakdown"`
}

func newStatistics(days, total, anomalous int) *Statistics {
	s := &Statistics{
		PeriodDays:        days,
		TotalTests:        total,
		AnomalyTests:      anomalous,
		SeverityBreakdown: map[string]int{},
	}
	if total > 0 {
		s.AnomalyRate = float64(anomalous) / float64(total) * 100
	}
	return s
}

// SearchQuery filters records. Nil pointers disable a filter.
type SearchQuery struct {
	AnomaliesOnly   bool
	MinErrorRate    *float64
	MaxResponseTime *float64
	Limit           int
}

// Repository is the relational backend.
type Repository interface {
	Save(ctx context.Context, r *Record) (int64, error)
	Get(ctx context.Context, testID string) (*Record, error)
	History(ctx context.Context, limit, offset int) ([]RunSummary, error)
	HistoricalMetrics(ctx context.Context, days, limit int) ([]k6.Metrics, error)
	Statistics(ctx context.Context, days int) (*Statistics, error)
	Search(ctx context.Context, q SearchQuery) ([]RunSummary, error)
	Purge(ctx context.Context, olderThanDays int) (int64, error)
	Ping(ctx context.Context) error
}

// Backup is the flat-file backend holding one document per run.
type Backup interface {
	Write(ctx context.Context, r *Record) error
	Read(ctx context.Context, testID string) (*Record, error)
	// List returns summaries newest first.
	List(ctx context.Context, limit, offset int) ([]RunSummary, error)
}

func cutoff(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -days)
}
