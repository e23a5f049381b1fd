package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loadgenie/loadgenie/internal/k6"
	"github.com/loadgenie/loadgenie/internal/metrics"
)

// Judge answers a prompt with a JSON object matching a schema.
// *ai.Client implements it.
type Judge interface {
	CompleteJSON(ctx context.Context, system, prompt, jsonSchema string) (json.RawMessage, error)
}

// Baseline is the per-metric arithmetic mean over a history window.
type Baseline struct {
	ResponseTimeAvg   float64 `json:"avg_response_time"`
	ResponseTimeP95   float64 `json:"avg_p95_response_time"`
	ErrorRate         float64 `json:"avg_error_rate"`
	RequestsPerSecond float64 `json:"avg_requests_per_second"`
	Samples           int     `json:"samples"`
}

// HistoricalAverages returns nil for an empty history.
func HistoricalAverages(history []k6.Metrics) *Baseline {
	if len(history) == 0 {
		return nil
	}
	b := &Baseline{Samples: len(history)}
	for _, m := range history {
		b.ResponseTimeAvg += m.ResponseTimeAvg
		b.ResponseTimeP95 += m.ResponseTimeP95
		b.ErrorRate += m.ErrorRate
		b.RequestsPerSecond += m.RequestsPerSecond
	}
	n := float64(len(history))
	b.ResponseTimeAvg /= n
	b.ResponseTimeP95 /= n
	b.ErrorRate /= n
	b.RequestsPerSecond /= n
	return b
}

const analysisSystemPrompt = `You are a performance engineer analysing k6 load test results.
Decide whether the current run shows anomalies, either in absolute terms or compared
with the historical baseline when one is given. Grade severity as low, medium, high
or critical. List concrete issues and actionable recommendations. Report your
confidence as a number between 0 and 1.`

const reportSchema = `{
  "type": "object",
  "properties": {
    "anomalies_detected": {"type": "boolean"},
    "severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
    "issues": {"type": "array", "items": {"type": "string"}},
    "recommendations": {"type": "array", "items": {"type": "string"}},
    "confidence": {"type": "number"}
  },
  "required": ["anomalies_detected", "severity", "issues", "recommendations", "confidence"]
}`

// Detector produces anomaly reports. A Detector without a Judge uses the
// rules only.
type Detector struct {
	judge   Judge
	metrics *metrics.Metrics
}

func NewDetector(j Judge, met *metrics.Metrics) *Detector {
	return &Detector{judge: j, metrics: met}
}

// Analyze never fails: any error from the AI path is logged and the rules
// decide instead.
func (d *Detector) Analyze(ctx context.Context, current k6.Metrics, history []k6.Metrics) *Report {
	baseline := HistoricalAverages(history)

	var report *Report
	if d.judge != nil {
		r, err := d.judgeReport(ctx, current, baseline)
		if err != nil {
			slog.Warn("AI anomaly analysis failed, using rule-based fallback", "error", err)
		} else {
			report = r
		}
	}
	if report == nil {
		report = Rules(current)
	}

	d.metrics.AnomalyReport(string(report.Severity), report.Source)
	return report
}

func (d *Detector) judgeReport(ctx context.Context, current k6.Metrics, baseline *Baseline) (*Report, error) {
	prompt, err := buildPrompt(current, baseline)
	if err != nil {
		return nil, err
	}

	raw, err := d.judge.CompleteJSON(ctx, analysisSystemPrompt, prompt, reportSchema)
	if err != nil {
		return nil, err
	}

	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if !r.Severity.Valid() {
		return nil, fmt.Errorf("unknown severity %q", r.Severity)
	}
	if r.Issues == nil {
		r.Issues = []string{}
	}
	if len(r.Recommendations) == 0 && !r.AnomaliesDetected {
		r.Recommendations = []string{recommendNone}
	}
	if r.Recommendations == nil {
		r.Recommendations = []string{}
	}
	r.Confidence = clamp01(r.Confidence)
	r.Source = SourceAI
	return &r, nil
}

func buildPrompt(current k6.Metrics, baseline *Baseline) (string, error) {
	var b strings.Builder

	cur, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return "", err
	}
	b.WriteString("Current test metrics:\n")
	b.Write(cur)

	if baseline != nil {
		hist, err := json.MarshalIndent(baseline, "", "  ")
		if err != nil {
			return "", err
		}
		b.WriteString("\n\nHistorical averages:\n")
		b.Write(hist)
	} else {
		b.WriteString("\n\nNo historical data is available for comparison.")
	}
	return b.String(), nil
}
