package anomaly

import (
	"fmt"

	"github.com/loadgenie/loadgenie/internal/k6"
)

// Rule thresholds.
const (
	HighErrorRate        = 10.0
	ElevatedErrorRate    = 5.0
	SlowAvgResponseMS    = 3000.0
	ElevatedAvgResponse  = 2000.0
	SlowP95ResponseMS    = 5000.0
	MinRPSPerVirtualUser = 0.1

	// RulesConfidence is the fixed confidence of a rule-based report.
	RulesConfidence = 0.8
)

const (
	recommendErrors  = "Investigate error responses and server logs"
	recommendLatency = "Optimize server performance or increase resources"
	recommendNone    = "Test results look good - no immediate concerns"
)

// Rules evaluates the deterministic thresholds in a fixed order. Severity
// only ever rises while the rules run.
func Rules(m k6.Metrics) *Report {
	r := &Report{
		Severity:        SeverityLow,
		Issues:          []string{},
		Recommendations: []string{},
		Confidence:      RulesConfidence,
		Source:          SourceRules,
	}

	switch {
	case m.ErrorRate > HighErrorRate:
		r.Issues = append(r.Issues, fmt.Sprintf("High error rate: %.1f%%", m.ErrorRate))
		r.Raise(SeverityHigh)
	case m.ErrorRate > ElevatedErrorRate:
		r.Issues = append(r.Issues, fmt.Sprintf("Elevated error rate: %.1f%%", m.ErrorRate))
		r.Raise(SeverityMedium)
	}

	switch {
	case m.ResponseTimeAvg > SlowAvgResponseMS:
		r.Issues = append(r.Issues, fmt.Sprintf("Slow average response time: %.0fms", m.ResponseTimeAvg))
		r.Raise(SeverityHigh)
	case m.ResponseTimeAvg > ElevatedAvgResponse:
		r.Issues = append(r.Issues, fmt.Sprintf("Elevated average response time: %.0fms", m.ResponseTimeAvg))
		r.Raise(SeverityMedium)
	}

	if m.ResponseTimeP95 > SlowP95ResponseMS {
		r.Issues = append(r.Issues, fmt.Sprintf("Very slow P95 response time: %.0fms", m.ResponseTimeP95))
		r.Raise(SeverityHigh)
	}

	if m.VirtualUsers > 0 {
		if perVU := m.RequestsPerSecond / float64(m.VirtualUsers); perVU < MinRPSPerVirtualUser {
			r.Issues = append(r.Issues, fmt.Sprintf("Low throughput efficiency: %.3f RPS per VU", perVU))
			r.Raise(SeverityMedium)
		}
	}

	r.AnomaliesDetected = len(r.Issues) > 0

	if m.ErrorRate > ElevatedErrorRate {
		r.Recommendations = append(r.Recommendations, recommendErrors)
	}
	if m.ResponseTimeAvg > ElevatedAvgResponse || m.ResponseTimeP95 > SlowP95ResponseMS {
		r.Recommendations = append(r.Recommendations, recommendLatency)
	}
	if !r.AnomaliesDetected {
		r.Recommendations = []string{recommendNone}
	}
	return r
}
