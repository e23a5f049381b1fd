// Package rest provides REST API handlers
package rest

import (
	"github.com/loadgenie/loadgenie/internal/script"
	"github.com/loadgenie/loadgenie/internal/storage"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// GenerateRequest asks for a script from a plain-language description
type GenerateRequest struct {
	Description string `json:"description" binding:"required"`
}

// GenerateResponse carries a generated script
type GenerateResponse struct {
	Script      string `json:"script"`
	Description string `json:"description"`
}

// EnhancedResponse carries a generated script with its quality assessment
type EnhancedResponse struct {
	Script          string         `json:"script"`
	Description     string         `json:"description"`
	Quality         *script.Report `json:"quality"`
	ProductionReady bool           `json:"production_ready"`
	Repaired        bool           `json:"repaired"`
	Enhanced        bool           `json:"enhanced"`
}

// ValidateRequest submits a script for quality validation
type ValidateRequest struct {
	Script string `json:"script" binding:"required"`
}

// ValidateResponse is the quality report of a submitted script
type ValidateResponse struct {
	*script.Report
	ProductionReady bool `json:"production_ready"`
}

// RunRequest submits a script for execution. Unset options fall back to
// whatever the script itself declares.
type RunRequest struct {
	Script     string `json:"script" binding:"required,min=10"`
	VUs        *int   `json:"vus" binding:"omitempty,min=1,max=1000"`
	Duration   string `json:"duration"`
	Iterations *int   `json:"iterations" binding:"omitempty,min=1"`
}

// HistoryResponse is a page of run summaries
type HistoryResponse struct {
	Tests  []storage.RunSummary `json:"tests"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
	Count  int                  `json:"count"`
}

// SearchResponse lists runs matching a search
type SearchResponse struct {
	Tests []storage.RunSummary `json:"tests"`
	Count int                  `json:"count"`
}

// PurgeResponse reports how many runs were deleted
type PurgeResponse struct {
	Deleted       int64 `json:"deleted"`
	OlderThanDays int   `json:"older_than_days"`
}

// ToolHealthResponse reports the load-testing tool installation
type ToolHealthResponse struct {
	Status    string `json:"status"`
	Installed bool   `json:"k6_installed"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunErrorResponse describes a run that produced no scored result
type RunErrorResponse struct {
	ErrorResponse
	TestID string `json:"test_id"`
	State  string `json:"state"`
}
