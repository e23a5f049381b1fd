package script

import (
	"fmt"
	"log/slog"
	"strings"
)

// Rating is the coarse quality band of a script.
type Rating string

const (
	RatingExcellent Rating = "Excellent"
	RatingGood      Rating = "Good"
	RatingFair      Rating = "Fair"
	RatingPoor      Rating = "Poor"
)

// RatingFor maps a capped score onto a rating band.
func RatingFor(score int) Rating {
	switch {
	case score >= 80:
		return RatingExcellent
	case score >= 60:
		return RatingGood
	case score >= 40:
		return RatingFair
	default:
		return RatingPoor
	}
}

// Report is the outcome of validating one script.
type Report struct {
	IsValid bool `json:"is_valid"`
	// Score is the capped score in [0, 100].
	Score int `json:"quality_score"`
	// RawScore is the uncapped sum of matched points.
	RawScore    int      `json:"raw_score"`
	Rating      Rating   `json:"quality_rating"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// ProductionReady reports whether the script is valid and rated Excellent.
func (r *Report) ProductionReady() bool {
	return r.IsValid && r.Score >= 80
}

func (r *Report) finish() *Report {
	r.Score = r.RawScore
	if r.Score > 100 {
		r.Score = 100
	}
	r.Rating = RatingFor(r.Score)
	return r
}

// Validate runs the syntax gate and, when it passes, the rubric.
func Validate(src string) *Report {
	r := &Report{
		IsValid:     true,
		Errors:      []string{},
		Warnings:    []string{},
		Suggestions: []string{},
	}

	syntaxGate(src, r)
	if len(r.Errors) > 0 {
		r.IsValid = false
		return r.finish()
	}

	for _, c := range CriticalChecks {
		if c.Pattern.MatchString(src) {
			r.RawScore += c.Points
			continue
		}
		r.Errors = append(r.Errors, c.Description)
		r.IsValid = false
	}
	if len(r.Errors) > 0 {
		return r.finish()
	}

	for _, c := range QualityChecks {
		if c.Pattern.MatchString(src) {
			r.RawScore += c.Points
			continue
		}
		r.Warnings = append(r.Warnings, c.Description)
	}

	suggest(src, r)
	return r.finish()
}

// syntaxGate only rejects scripts that are too short to be a script at all.
// Structural problems are reported as warnings because generated code often
// contains constructs this checker cannot parse.
func syntaxGate(src string, r *Report) {
	if len(strings.TrimSpace(src)) < MinScriptLength {
		r.Errors = append(r.Errors, "Script is too short to be a valid k6 script")
		return
	}

	if open, closed := strings.Count(src, "{"), strings.Count(src, "}"); open != closed {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Unbalanced braces: %d opening vs %d closing", open, closed))
	}
	if open, closed := strings.Count(src, "("), strings.Count(src, ")"); open != closed {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Unbalanced parentheses: %d opening vs %d closing", open, closed))
	}
	if strings.Count(stripComments(src), "'")%2 != 0 {
		r.Warnings = append(r.Warnings, "Possibly unterminated single-quoted string")
	}
	if strings.Count(stripComments(src), `"`)%2 != 0 {
		r.Warnings = append(r.Warnings, "Possibly unterminated double-quoted string")
	}
	if !strings.Contains(src, "import ") {
		r.Warnings = append(r.Warnings, "No import statements found")
	}
	if !strings.Contains(src, "export ") {
		r.Warnings = append(r.Warnings, "No export statements found")
	}
}

func suggest(src string, r *Report) {
	if zeroSleepPattern.MatchString(src) {
		r.Suggestions = append(r.Suggestions, "Avoid sleep(0); use a realistic think time of at least a second")
	}
	if infiniteLoopPattern.MatchString(src) {
		r.Suggestions = append(r.Suggestions, "Avoid unconditional infinite loops; k6 already iterates the default function")
	}
	if lines := strings.Count(src, "\n") + 1; lines > MaxScriptLines {
		r.Suggestions = append(r.Suggestions, fmt.Sprintf("Script has %d lines; consider splitting it into modules", lines))
	}
}

// stripComments drops the part of each line after a line comment marker.
func stripComments(src string) string {
	var b strings.Builder
	for _, line := range strings.Split(src, "\n") {
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Result is the outcome of ValidateAndImprove.
type Result struct {
	Report   *Report `json:"report"`
	Script   string  `json:"script"`
	Repaired bool    `json:"repaired"`
	Enhanced bool    `json:"enhanced"`
}

// ValidateAndImprove validates src, repairs it when invalid and prepends the
// retry helper to low-scoring scripts. The returned script is the one that
// should be executed; residual warnings do not block execution.
func ValidateAndImprove(src string) *Result {
	res := &Result{Script: src, Report: Validate(src)}

	if !res.Report.IsValid {
		if fixed, changed := Repair(src); changed {
			res.Script = fixed
			res.Repaired = true
			res.Report = Validate(fixed)
			slog.Info("Repaired generated script",
				"valid", res.Report.IsValid,
				"score", res.Report.Score,
			)
		}
	}

	passedGate := len(strings.TrimSpace(res.Script)) >= MinScriptLength
	if passedGate && res.Report.Score < EnhanceBelowScore {
		if enhanced, ok := Enhance(res.Script); ok {
			res.Script = enhanced
			res.Enhanced = true
			res.Report = Validate(enhanced)
		}
	}

	return res
}
