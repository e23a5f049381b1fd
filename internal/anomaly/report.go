// Package anomaly judges whether the metrics of a run are anomalous, asking
// an AI model first and falling back to deterministic threshold rules.
package anomaly

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Severity is the coarse grading of a report.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Report sources.
const (
	SourceAI    = "ai"
	SourceRules = "rules"
)

// Report is the outcome of one analysis.
type Report struct {
	AnomaliesDetected bool     `json:"anomalies_detected"`
	Severity          Severity `json:"severity"`
	Issues            []string `json:"issues"`
	Recommendations   []string `json:"recommendations"`
	Confidence        float64  `json:"confidence"`
	Source            string   `json:"source,omitempty"`
}

// Raise sets the severity to s unless the report is already more severe.
func (r *Report) Raise(s Severity) {
	if !r.Severity.Valid() || !r.Severity.AtLeast(s) {
		r.Severity = s
	}
}

// UnmarshalJSON accepts anomalies_detected as a JSON boolean, a 0/1 number
// or a string, since older backup files stored it as an integer.
func (r *Report) UnmarshalJSON(data []byte) error {
	type plain Report
	var aux struct {
		plain
		AnomaliesDetected json.RawMessage `json:"anomalies_detected"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Report(aux.plain)

	detected, err := parseFlexibleBool(aux.AnomaliesDetected)
	if err != nil {
		return fmt.Errorf("anomalies_detected: %w", err)
	}
	r.AnomaliesDetected = detected
	return nil
}

func parseFlexibleBool(raw json.RawMessage) (bool, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return false, nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no", "":
		return false, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0, nil
	}
	return false, fmt.Errorf("cannot interpret %s as a boolean", s)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
