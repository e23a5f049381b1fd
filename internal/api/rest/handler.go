package rest

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loadgenie/loadgenie/internal/k6"
	"github.com/loadgenie/loadgenie/internal/script"
	"github.com/loadgenie/loadgenie/internal/storage"
)

// Runner executes test runs
type Runner interface {
	Run(ctx context.Context, script string, opts k6.Options) (*storage.Record, error)
	CheckInstallation(ctx context.Context) (string, error)
}

// Store is the read side of run persistence
type Store interface {
	Get(ctx context.Context, testID string) (*storage.Record, error)
	History(ctx context.Context, limit, offset int) ([]storage.RunSummary, error)
	Statistics(ctx context.Context, days int) (*storage.Statistics, error)
	Search(ctx context.Context, q storage.SearchQuery) ([]storage.RunSummary, error)
	Purge(ctx context.Context, olderThanDays int) (int64, error)
	Ping(ctx context.Context) error
}

// Generator produces scripts from descriptions
type Generator interface {
	Generate(ctx context.Context, description string) (string, error)
	GenerateEnhanced(ctx context.Context, description string) (*script.Result, error)
}

// Handler serves the REST API. Generator may be nil when no model is
// configured; the generation endpoints then answer 503.
type Handler struct {
	runner    Runner
	store     Store
	generator Generator
	limiter   *RateLimiter
	gatherer  prometheus.Gatherer
}

// Deps are the collaborators of a Handler
type Deps struct {
	Runner    Runner
	Store     Store
	Generator Generator
	// Limiter throttles run submissions. Nil disables throttling.
	Limiter *RateLimiter
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// NewHandler creates a handler
func NewHandler(d Deps) *Handler {
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		runner:    d.Runner,
		store:     d.Store,
		generator: d.Generator,
		limiter:   d.Limiter,
		gatherer:  d.Gatherer,
	}
}
