// Package script scores generated k6 scripts against a fixed rubric and
// applies best-effort structural repairs.
package script

import "regexp"

// Check is one weighted rubric entry.
type Check struct {
	Name        string
	Pattern     *regexp.Regexp
	Description string
	Points      int
}

// CriticalChecks must all match for a script to be valid. Order is the
// order errors are reported in.
var CriticalChecks = []Check{
	{
		Name:        "http_import",
		Pattern:     regexp.MustCompile(`import\s+(\*\s+as\s+)?http\s+from\s+['"]k6/http['"]`),
		Description: "Missing HTTP module import (import http from 'k6/http')",
		Points:      10,
	},
	{
		Name:        "sleep_import",
		Pattern:     regexp.MustCompile(`import\s*\{[^}]*\bsleep\b[^}]*\}\s*from\s*['"]k6['"]`),
		Description: "Missing sleep import from 'k6'",
		Points:      10,
	},
	{
		Name:        "check_import",
		Pattern:     regexp.MustCompile(`import\s*\{[^}]*\bcheck\b[^}]*\}\s*from\s*['"]k6['"]`),
		Description: "Missing check import from 'k6'",
		Points:      10,
	},
	{
		Name:        "default_function",
		Pattern:     regexp.MustCompile(`export\s+default\s+(async\s+)?function`),
		Description: "Missing default function export (export default function)",
		Points:      10,
	},
	{
		Name:        "options_export",
		Pattern:     regexp.MustCompile(`export\s+(const|let|var)\s+options\b`),
		Description: "Missing options export (export const options)",
		Points:      10,
	},
	{
		Name:        "think_time",
		Pattern:     regexp.MustCompile(`\bsleep\s*\(`),
		Description: "Missing think time between iterations (sleep())",
		Points:      10,
	},
	{
		Name:        "response_check",
		Pattern:     regexp.MustCompile(`\bcheck\s*\(`),
		Description: "Missing response validation (check())",
		Points:      10,
	},
}

// QualityChecks add points when present and a warning when absent.
var QualityChecks = []Check{
	{
		Name:        "error_handling",
		Pattern:     regexp.MustCompile(`\btry\s*\{`),
		Description: "Consider wrapping requests in try/catch for error handling",
		Points:      5,
	},
	{
		Name:        "logging",
		Pattern:     regexp.MustCompile(`console\.(log|error|warn|info)\s*\(`),
		Description: "Consider logging failures with console.error for debugging",
		Points:      3,
	},
	{
		Name:        "retry_logic",
		Pattern:     retryPattern,
		Description: "Consider adding retry logic for transient failures",
		Points:      5,
	},
	{
		Name:        "thresholds",
		Pattern:     regexp.MustCompile(`thresholds\s*:`),
		Description: "Consider defining realistic thresholds (e.g. http_req_duration p(95))",
		Points:      5,
	},
	{
		Name:        "status_validation",
		Pattern:     regexp.MustCompile(`\.status\s*(===|==|!==|!=|<|>)`),
		Description: "Consider validating response status codes explicitly",
		Points:      3,
	},
	{
		Name:        "custom_metrics",
		Pattern:     regexp.MustCompile(`['"]k6/metrics['"]`),
		Description: "Consider tracking custom metrics with k6/metrics",
		Points:      3,
	},
	{
		Name:        "authentication",
		Pattern:     regexp.MustCompile(`(?i)(authorization|bearer\s|api[_-]?key|access_token)`),
		Description: "Consider handling authentication headers if the target requires them",
		Points:      3,
	},
	{
		Name:        "endpoint_discovery",
		Pattern:     regexp.MustCompile(`__ENV\.|BASE_URL`),
		Description: "Consider reading the target endpoint from __ENV instead of hardcoding it",
		Points:      3,
	},
	{
		Name:        "defensive_programming",
		Pattern:     regexp.MustCompile(`\?\.|\btypeof\s|\|\|\s*(\{\}|\[\]|'')`),
		Description: "Consider defensive access to response data (optional chaining, defaults)",
		Points:      3,
	},
	{
		Name:        "adaptive_pacing",
		Pattern:     regexp.MustCompile(`Math\.random\s*\(`),
		Description: "Consider randomized think time to avoid synchronized virtual users",
		Points:      2,
	},
	{
		Name:        "request_grouping",
		Pattern:     regexp.MustCompile(`\bgroup\s*\(`),
		Description: "Consider organizing requests with group()",
		Points:      2,
	},
	{
		Name:        "safe_json_parsing",
		Pattern:     regexp.MustCompile(`\.json\s*\(`),
		Description: "Consider parsing response bodies with res.json() inside a guard",
		Points:      2,
	},
	{
		Name:        "request_tags",
		Pattern:     regexp.MustCompile(`tags\s*:`),
		Description: "Consider tagging requests for per-endpoint analysis",
		Points:      2,
	},
}

var retryPattern = regexp.MustCompile(`(?i)\bretr(y|ies)\b|maxAttempts|attempts?\s*<`)

// Anti-pattern suggestions.
var (
	zeroSleepPattern    = regexp.MustCompile(`\bsleep\s*\(\s*0(\.0+)?\s*\)`)
	infiniteLoopPattern = regexp.MustCompile(`while\s*\(\s*(true|1)\s*\)|for\s*\(\s*;\s*;\s*\)`)
)

const (
	// MinScriptLength is the syntax gate threshold in characters.
	MinScriptLength = 20
	// MaxScriptLines is the size above which a script is flagged as monolithic.
	MaxScriptLines = 300
	// EnhanceBelowScore triggers the enhancement pass.
	EnhanceBelowScore = 70
)

// MaxCriticalScore is the score of a script that matches every critical check
// and no quality check.
func MaxCriticalScore() int {
	total := 0
	for _, c := range CriticalChecks {
		total += c.Points
	}
	return total
}
