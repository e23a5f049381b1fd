package rest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loadgenie/loadgenie/internal/k6"
	"github.com/loadgenie/loadgenie/internal/runner"
	"github.com/loadgenie/loadgenie/internal/storage"
)

type historyQuery struct {
	Limit  int `form:"limit,default=20" binding:"min=1,max=100"`
	Offset int `form:"offset,default=0" binding:"min=0"`
}

type statisticsQuery struct {
	Days int `form:"days,default=7" binding:"min=1,max=365"`
}

type searchQuery struct {
	AnomaliesOnly   bool     `form:"anomalies_only"`
	MinErrorRate    *float64 `form:"min_error_rate" binding:"omitempty,min=0,max=100"`
	MaxResponseTime *float64 `form:"max_response_time" binding:"omitempty,min=0"`
	Limit           int      `form:"limit,default=50" binding:"min=1,max=500"`
}

type purgeQuery struct {
	OlderThanDays int `form:"older_than_days,default=90" binding:"min=1"`
}

func badQuery(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid query parameters",
		Code:    "BAD_REQUEST",
		Details: err.Error(),
	})
}

func internalError(c *gin.Context, msg string, err error) {
	slog.Error(msg, "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: msg,
		Code:  "INTERNAL_ERROR",
	})
}

// runTest executes a script and returns the full record
func (h *Handler) runTest(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "BAD_REQUEST",
			Details: err.Error(),
		})
		return
	}

	opts := k6.Options{Duration: req.Duration}
	if req.VUs != nil {
		opts.VUs = *req.VUs
	}
	if req.Iterations != nil {
		opts.Iterations = *req.Iterations
	}
	if err := opts.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid test options",
			Code:    "BAD_REQUEST",
			Details: err.Error(),
		})
		return
	}

	rec, err := h.runner.Run(c.Request.Context(), req.Script, opts)
	if err != nil {
		runError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func runError(c *gin.Context, err error) {
	var execErr *runner.ExecutionError
	if !errors.As(err, &execErr) {
		internalError(c, "Test execution failed", err)
		return
	}

	status, code := http.StatusUnprocessableEntity, "EXECUTION_FAILED"
	switch {
	case errors.Is(err, runner.ErrToolUnavailable):
		status, code = http.StatusServiceUnavailable, "TOOL_UNAVAILABLE"
	case execErr.State == runner.StateTimedOut:
		code = "EXECUTION_TIMED_OUT"
	}

	slog.Warn("Test run did not complete",
		"test_id", execErr.TestID,
		"state", execErr.State,
		"op", execErr.Op,
		"error", execErr.Err,
	)
	c.JSON(status, RunErrorResponse{
		ErrorResponse: ErrorResponse{
			Error:   execErr.Err.Error(),
			Code:    code,
			Details: execErr.Output,
		},
		TestID: execErr.TestID,
		State:  string(execErr.State),
	})
}

// listHistory returns run summaries, newest first
func (h *Handler) listHistory(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badQuery(c, err)
		return
	}

	tests, err := h.store.History(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		internalError(c, "Failed to load test history", err)
		return
	}
	if tests == nil {
		tests = []storage.RunSummary{}
	}
	c.JSON(http.StatusOK, HistoryResponse{
		Tests:  tests,
		Limit:  q.Limit,
		Offset: q.Offset,
		Count:  len(tests),
	})
}

// getResult returns one full record
func (h *Handler) getResult(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.store.Get(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Test result not found",
			Code:  "NOT_FOUND",
		})
		return
	}
	if err != nil {
		internalError(c, "Failed to load test result", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// getStatistics aggregates runs over the trailing window
func (h *Handler) getStatistics(c *gin.Context) {
	var q statisticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badQuery(c, err)
		return
	}

	stats, err := h.store.Statistics(c.Request.Context(), q.Days)
	if err != nil {
		internalError(c, "Failed to compute statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// searchTests filters runs by anomaly flag, error rate and latency
func (h *Handler) searchTests(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badQuery(c, err)
		return
	}

	tests, err := h.store.Search(c.Request.Context(), storage.SearchQuery{
		AnomaliesOnly:   q.AnomaliesOnly,
		MinErrorRate:    q.MinErrorRate,
		MaxResponseTime: q.MaxResponseTime,
		Limit:           q.Limit,
	})
	if err != nil {
		internalError(c, "Failed to search test runs", err)
		return
	}
	if tests == nil {
		tests = []storage.RunSummary{}
	}
	c.JSON(http.StatusOK, SearchResponse{Tests: tests, Count: len(tests)})
}

// purgeHistory deletes runs older than the given age
func (h *Handler) purgeHistory(c *gin.Context) {
	var q purgeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badQuery(c, err)
		return
	}

	n, err := h.store.Purge(c.Request.Context(), q.OlderThanDays)
	if err != nil {
		internalError(c, "Failed to purge test history", err)
		return
	}
	c.JSON(http.StatusOK, PurgeResponse{Deleted: n, OlderThanDays: q.OlderThanDays})
}
