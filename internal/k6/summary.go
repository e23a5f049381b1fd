// Package k6 models the k6 command-line contract: the summary-export document
// it writes and the flags used to invoke it.
package k6

import (
	"encoding/json"
	"fmt"
)

// Metric names used in the summary-export document.
const (
	MetricIterationDuration = "iteration_duration"
	MetricHTTPReqs          = "http_reqs"
	MetricHTTPReqFailed     = "http_req_failed"
	MetricHTTPReqDuration   = "http_req_duration"
	MetricVUs               = "vus"
)

// Aggregate is the per-metric sub-document of a summary export. Every field is
// optional; Value returns zero for an absent key.
type Aggregate struct {
	Avg   *float64 `json:"avg,omitempty"`
	Rate  *float64 `json:"rate,omitempty"`
	Count *float64 `json:"count,omitempty"`
	P95   *float64 `json:"p(95),omitempty"`
	Max   *float64 `json:"max,omitempty"`
	// Value carries rate metrics in the summary-export format.
	Value *float64 `json:"value,omitempty"`
}

func value(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// Summary is a parsed summary-export document. Raw keeps the document exactly
// as the tool produced it for audit.
type Summary struct {
	Aggregates map[string]Aggregate
	Raw        json.RawMessage
}

// ParseSummary decodes a summary-export document. Metric entries that do not
// decode as an aggregate are ignored rather than rejected.
func ParseSummary(data []byte) (*Summary, error) {
	var doc struct {
		Metrics map[string]json.RawMessage `json:"metrics"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode summary export: %w", err)
	}

	s := &Summary{
		Aggregates: make(map[string]Aggregate, len(doc.Metrics)),
		Raw:        append(json.RawMessage(nil), data...),
	}
	for name, raw := range doc.Metrics {
		var agg Aggregate
		if err := json.Unmarshal(raw, &agg); err != nil {
			continue
		}
		s.Aggregates[name] = agg
	}
	return s, nil
}

func (s *Summary) aggregate(name string) Aggregate {
	if s == nil || s.Aggregates == nil {
		return Aggregate{}
	}
	return s.Aggregates[name]
}

// DurationMS is the mean iteration duration.
func (s *Summary) DurationMS() float64 {
	return value(s.aggregate(MetricIterationDuration).Avg)
}

// RequestsPerSecond is the request throughput.
func (s *Summary) RequestsPerSecond() float64 {
	return value(s.aggregate(MetricHTTPReqs).Rate)
}

// ErrorRate is the request failure rate as a percentage.
func (s *Summary) ErrorRate() float64 {
	failed := s.aggregate(MetricHTTPReqFailed)
	if failed.Rate == nil {
		return value(failed.Value) * 100
	}
	return *failed.Rate * 100
}

// ResponseTimeP95 is the 95th percentile request duration in milliseconds.
func (s *Summary) ResponseTimeP95() float64 {
	return value(s.aggregate(MetricHTTPReqDuration).P95)
}

// ResponseTimeAvg is the mean request duration in milliseconds.
func (s *Summary) ResponseTimeAvg() float64 {
	return value(s.aggregate(MetricHTTPReqDuration).Avg)
}

// VirtualUsers is the peak virtual-user count.
func (s *Summary) VirtualUsers() int {
	return int(value(s.aggregate(MetricVUs).Max))
}

// TotalRequests is the number of requests issued.
func (s *Summary) TotalRequests() int {
	return int(value(s.aggregate(MetricHTTPReqs).Count))
}

// Metrics is the derived set of performance indicators for one run.
type Metrics struct {
	ResponseTimeAvg   float64 `json:"response_time_avg"`
	ResponseTimeP95   float64 `json:"response_time_p95"`
	ErrorRate         float64 `json:"error_rate"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	VirtualUsers      int     `json:"virtual_users"`
	TotalRequests     int     `json:"total_requests"`
	DurationMS        float64 `json:"duration_ms"`
}

// Metrics builds the derived indicator set.
func (s *Summary) Metrics() Metrics {
	return Metrics{
		ResponseTimeAvg:   s.ResponseTimeAvg(),
		ResponseTimeP95:   s.ResponseTimeP95(),
		ErrorRate:         s.ErrorRate(),
		RequestsPerSecond: s.RequestsPerSecond(),
		VirtualUsers:      s.VirtualUsers(),
		TotalRequests:     s.TotalRequests(),
		DurationMS:        s.DurationMS(),
	}
}
