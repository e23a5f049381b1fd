package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadgenie/loadgenie/internal/ai"
	"github.com/loadgenie/loadgenie/internal/anomaly"
	"github.com/loadgenie/loadgenie/internal/k6"
	"github.com/loadgenie/loadgenie/internal/metrics"
	"github.com/loadgenie/loadgenie/internal/runner"
	"github.com/loadgenie/loadgenie/internal/script"
	"github.com/loadgenie/loadgenie/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	rec      *storage.Record
	err      error
	gotOpts  k6.Options
	version  string
	toolErr  error
	runCalls int
}

func (f *fakeRunner) Run(_ context.Context, src string, opts k6.Options) (*storage.Record, error) {
	f.runCalls++
	f.gotOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	rec := *f.rec
	rec.ScriptContent = src
	rec.Options = opts
	return &rec, nil
}

func (f *fakeRunner) CheckInstallation(context.Context) (string, error) {
	return f.version, f.toolErr
}

type fakeStore struct {
	records  map[string]*storage.Record
	history  []storage.RunSummary
	stats    *storage.Statistics
	gotQuery storage.SearchQuery
	gotLimit int
	gotOff   int
	purged   int
	pingErr  error
	err      error
}

func (f *fakeStore) Get(_ context.Context, id string) (*storage.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) History(_ context.Context, limit, offset int) ([]storage.RunSummary, error) {
	f.gotLimit, f.gotOff = limit, offset
	return f.history, f.err
}

func (f *fakeStore) Statistics(_ context.Context, days int) (*storage.Statistics, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := *f.stats
	s.PeriodDays = days
	return &s, nil
}

func (f *fakeStore) Search(_ context.Context, q storage.SearchQuery) ([]storage.RunSummary, error) {
	f.gotQuery = q
	return f.history, f.err
}

func (f *fakeStore) Purge(_ context.Context, days int) (int64, error) {
	f.purged = days
	return 3, f.err
}

func (f *fakeStore) Ping(context.Context) error {
	return f.pingErr
}

type fakeGenerator struct {
	src string
	err error
}

func (f *fakeGenerator) Generate(_ context.Context, desc string) (string, error) {
	if _, err := script.CheckDescription(desc); err != nil {
		return "", err
	}
	return f.src, f.err
}

func (f *fakeGenerator) GenerateEnhanced(ctx context.Context, desc string) (*script.Result, error) {
	src, err := f.Generate(ctx, desc)
	if err != nil {
		return nil, err
	}
	return script.ValidateAndImprove(src), nil
}

const goodScript = `import http from 'k6/http';
import { check, sleep } from 'k6';

export const options = { vus: 1, duration: '10s' };

export default function () {
  const res = http.get('https://test.k6.io');
  check(res, { 'status is 200': (r) => r.status === 200 });
  sleep(1);
}
`

func sampleRecord() *storage.Record {
	return &storage.Record{
		TestID:        "run-1",
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ExecutionTime: 12.5,
		Metrics:       k6.Metrics{ResponseTimeAvg: 120, ErrorRate: 0.5, RequestsPerSecond: 40, VirtualUsers: 5},
		AnomalyReport: &anomaly.Report{Severity: anomaly.SeverityLow, Confidence: 0.8, Source: anomaly.SourceRules},
	}
}

type testEnv struct {
	router    *gin.Engine
	runner    *fakeRunner
	store     *fakeStore
	generator *fakeGenerator
}

func setupRouter(t *testing.T, limiter *RateLimiter) *testEnv {
	t.Helper()
	env := &testEnv{
		runner: &fakeRunner{rec: sampleRecord(), version: "k6 v0.49.0"},
		store: &fakeStore{
			records: map[string]*storage.Record{"run-1": sampleRecord()},
			history: []storage.RunSummary{sampleRecord().Summary()},
			stats:   &storage.Statistics{TotalTests: 4, AnomalyTests: 1, AnomalyRate: 25, SeverityBreakdown: map[string]int{"high": 1}},
		},
		generator: &fakeGenerator{src: goodScript},
	}
	reg := prometheus.NewRegistry()
	metrics.New(reg).RunStarted()

	h := NewHandler(Deps{
		Runner:    env.runner,
		Store:     env.store,
		Generator: env.generator,
		Limiter:   limiter,
		Gatherer:  reg,
	})
	env.router = gin.New()
	RegisterRoutes(env.router, h)
	return env
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthzHandler(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do("GET", "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, w)["status"])
}

func TestReadyzHandler(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do("GET", "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, w)["status"])

	env.store.pingErr = errors.New("connection refused")
	w = env.do("GET", "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do("GET", "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "loadgenie_runs_in_flight")
}

func TestGenerateScript(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do("POST", "/api/v1/scripts/generate", GenerateRequest{Description: "Load test the login endpoint"})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[GenerateResponse](t, w)
	assert.Equal(t, goodScript, resp.Script)
	assert.Equal(t, "Load test the login endpoint", resp.Description)
}

func TestGenerateScriptErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		genErr  error
		noGen   bool
		status  int
		errCode string
	}{
		{"missing body field", map[string]string{}, nil, false, http.StatusBadRequest, "BAD_REQUEST"},
		{"short description", GenerateRequest{Description: "  hi  "}, nil, false, http.StatusBadRequest, "INVALID_DESCRIPTION"},
		{"model failure", GenerateRequest{Description: "Load test the login endpoint"}, fmt.Errorf("generate script: %w", ai.ErrPermanent), false, http.StatusBadGateway, "GENERATION_FAILED"},
		{"disabled", GenerateRequest{Description: "Load test the login endpoint"}, ai.ErrDisabled, false, http.StatusServiceUnavailable, "AI_DISABLED"},
		{"no generator", GenerateRequest{Description: "Load test the login endpoint"}, nil, true, http.StatusServiceUnavailable, "AI_DISABLED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupRouter(t, nil)
			env.generator.err = tt.genErr
			if tt.noGen {
				env.router = gin.New()
				RegisterRoutes(env.router, NewHandler(Deps{Runner: env.runner, Store: env.store}))
			}

			w := env.do("POST", "/api/v1/scripts/generate", tt.body)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.errCode, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestGenerateEnhancedScript(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do("POST", "/api/v1/scripts/generate-enhanced", GenerateRequest{Description: "Load test the login endpoint"})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[EnhancedResponse](t, w)
	require.NotNil(t, resp.Quality)
	assert.True(t, resp.Quality.IsValid)
	assert.Equal(t, resp.Quality.Score >= 80, resp.ProductionReady)
	assert.Contains(t, resp.Script, "export default function")
}

func TestValidateScript(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do("POST", "/api/v1/scripts/validate", ValidateRequest{Script: "console.log('no default export here')"})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string]any](t, w)
	assert.Equal(t, false, resp["is_valid"])
	assert.Equal(t, false, resp["production_ready"])
	assert.NotEmpty(t, resp["errors"])
}

func TestRunTest(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do("POST", "/api/v1/test/run", map[string]any{
		"script":   goodScript,
		"vus":      10,
		"duration": "30s",
	})

	require.Equal(t, http.StatusOK, w.Code)
	rec := decode[storage.Record](t, w)
	assert.Equal(t, "run-1", rec.TestID)
	assert.Equal(t, k6.Options{VUs: 10, Duration: "30s"}, env.runner.gotOpts)
	require.NotNil(t, rec.AnomalyReport)
	assert.Equal(t, anomaly.SeverityLow, rec.AnomalyReport.Severity)
}

func TestRunTestRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"script too short", map[string]any{"script": "short"}},
		{"missing script", map[string]any{"vus": 5}},
		{"zero vus", map[string]any{"script": goodScript, "vus": 0}},
		{"too many vus", map[string]any{"script": goodScript, "vus": 1001}},
		{"zero iterations", map[string]any{"script": goodScript, "iterations": 0}},
		{"bad duration", map[string]any{"script": goodScript, "duration": "forever"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupRouter(t, nil)

			w := env.do("POST", "/api/v1/test/run", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Zero(t, env.runner.runCalls)
		})
	}
}

func TestRunTestExecutionErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			"non-zero exit",
			&runner.ExecutionError{TestID: "t1", State: runner.StateFailed, Op: "execute", Output: "SyntaxError", Err: errors.New("k6 exited with code 107")},
			http.StatusUnprocessableEntity, "EXECUTION_FAILED",
		},
		{
			"timeout",
			&runner.ExecutionError{TestID: "t2", State: runner.StateTimedOut, Op: "execute", Err: runner.ErrTimeout},
			http.StatusUnprocessableEntity, "EXECUTION_TIMED_OUT",
		},
		{
			"tool missing",
			&runner.ExecutionError{TestID: "t3", State: runner.StateFailed, Op: "execute", Err: fmt.Errorf("%w: exec: not found", runner.ErrToolUnavailable)},
			http.StatusServiceUnavailable, "TOOL_UNAVAILABLE",
		},
		{
			"unexpected",
			errors.New("boom"),
			http.StatusInternalServerError, "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupRouter(t, nil)
			env.runner.err = tt.err

			w := env.do("POST", "/api/v1/test/run", map[string]any{"script": goodScript})

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Code)
		})
	}

	env := setupRouter(t, nil)
	env.runner.err = tests[0].err
	w := env.do("POST", "/api/v1/test/run", map[string]any{"script": goodScript})
	resp := decode[RunErrorResponse](t, w)
	assert.Equal(t, "t1", resp.TestID)
	assert.Equal(t, "failed", resp.State)
	assert.Equal(t, "SyntaxError", resp.Details)
}

func TestRunTestRateLimited(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	defer limiter.Stop()
	env := setupRouter(t, limiter)

	body := map[string]any{"script": goodScript}
	assert.Equal(t, http.StatusOK, env.do("POST", "/api/v1/test/run", body).Code)
	assert.Equal(t, http.StatusOK, env.do("POST", "/api/v1/test/run", body).Code)

	w := env.do("POST", "/api/v1/test/run", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decode[ErrorResponse](t, w).Code)
	assert.Equal(t, 2, env.runner.runCalls)

	// Reads are not throttled.
	assert.Equal(t, http.StatusOK, env.do("GET", "/api/v1/test/history", nil).Code)
}

func TestListHistory(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do("GET", "/api/v1/test/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HistoryResponse](t, w)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 20, resp.Limit)
	assert.Equal(t, 20, env.store.gotLimit)

	w = env.do("GET", "/api/v1/test/history?limit=5&offset=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, env.store.gotLimit)
	assert.Equal(t, 10, env.store.gotOff)

	assert.Equal(t, http.StatusBadRequest, env.do("GET", "/api/v1/test/history?limit=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do("GET", "/api/v1/test/history?limit=abc", nil).Code)
}

func TestListHistoryEmpty(t *testing.T) {
	env := setupRouter(t, nil)
	env.store.history = nil

	w := env.do("GET", "/api/v1/test/history", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tests":[]`)
}

func TestGetResult(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do("GET", "/api/v1/test/results/run-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-1", decode[storage.Record](t, w).TestID)

	w = env.do("GET", "/api/v1/test/results/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[ErrorResponse](t, w).Code)

	env.store.err = errors.New("disk on fire")
	w = env.do("GET", "/api/v1/test/results/run-1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetStatistics(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do("GET", "/api/v1/test/statistics?days=30", nil)

	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[storage.Statistics](t, w)
	assert.Equal(t, 30, stats.PeriodDays)
	assert.Equal(t, 25.0, stats.AnomalyRate)
	assert.Equal(t, map[string]int{"high": 1}, stats.SeverityBreakdown)

	assert.Equal(t, 7, decode[storage.Statistics](t, env.do("GET", "/api/v1/test/statistics", nil)).PeriodDays)
	assert.Equal(t, http.StatusBadRequest, env.do("GET", "/api/v1/test/statistics?days=0", nil).Code)
}

func TestSearchTests(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do("GET", "/api/v1/test/search?anomalies_only=true&min_error_rate=5&limit=10", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[SearchResponse](t, w).Count)
	q := env.store.gotQuery
	assert.True(t, q.AnomaliesOnly)
	require.NotNil(t, q.MinErrorRate)
	assert.Equal(t, 5.0, *q.MinErrorRate)
	assert.Nil(t, q.MaxResponseTime)
	assert.Equal(t, 10, q.Limit)

	assert.Equal(t, http.StatusBadRequest, env.do("GET", "/api/v1/test/search?min_error_rate=150", nil).Code)
}

func TestPurgeHistory(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do("DELETE", "/api/v1/test/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, PurgeResponse{Deleted: 3, OlderThanDays: 90}, decode[PurgeResponse](t, w))
	assert.Equal(t, 90, env.store.purged)

	w = env.do("DELETE", "/api/v1/test/history?older_than_days=14", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 14, env.store.purged)
}

func TestToolHealth(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do("GET", "/api/v1/test/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ToolHealthResponse](t, w)
	assert.True(t, resp.Installed)
	assert.Equal(t, "k6 v0.49.0", resp.Version)

	env.runner.toolErr = runner.ErrToolUnavailable
	w = env.do("GET", "/api/v1/test/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, decode[ToolHealthResponse](t, w).Installed)
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Stop()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "clients have separate buckets")

	var disabled *RateLimiter
	assert.Nil(t, NewRateLimiter(0, 5))
	assert.True(t, disabled.Allow("anyone"))
	disabled.Stop()
}
