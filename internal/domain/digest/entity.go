package digest

import (
	"encoding/json"
	"time"

	"daybrief/internal/domain/budget"
)

// Data is the unit of payload exchanged between collectors and analyzers
type Data map[string]any

// ApproxSize returns the JSON-encoded byte length of d, used for cost
// estimation. Encoding failures count as zero.
func (d Data) ApproxSize() int {
	if len(d) == 0 {
		return 0
	}
	b, err := json.Marshal(d)
	if err != nil {
		return 0
	}
	return len(b)
}

// Summary extracts the analyzer summary field, empty if absent
func (d Data) Summary() string {
	if s, ok := d["summary"].(string); ok {
		return s
	}
	return ""
}

// CollectionResult is the outcome of one source fetch. Payload and Err are
// mutually exclusive; both nil means the source ran and returned nothing.
type CollectionResult struct {
	Source  string `json:"source"`
	Payload Data   `json:"payload,omitempty"`
	Err     string `json:"error,omitempty"`
}

// AnalysisResult is the outcome of one analyzer invocation. Same
// exclusivity rule as CollectionResult.
type AnalysisResult struct {
	Analyzer string `json:"analyzer"`
	Payload  Data   `json:"payload,omitempty"`
	Err      string `json:"error,omitempty"`
}

// SourceStatus classifies a source after collection
type SourceStatus string

const (
	SourceSuccess        SourceStatus = "success"
	SourceNoData         SourceStatus = "no_data"
	SourceError          SourceStatus = "error"
	SourceNotInitialized SourceStatus = "not_initialized"
)

// Status of a completed run
type Status string

const (
	StatusComplete Status = "complete"
	StatusDegraded Status = "degraded"
	StatusFallback Status = "fallback"
)

// Section is one block of the final digest
type Section struct {
	Title    string   `json:"title"`
	Priority string   `json:"priority"`
	Content  string   `json:"content"`
	Details  []string `json:"details,omitempty"`
}

// Document is the synthesized digest content
type Document struct {
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generated_at"`
	Sections    []Section `json:"sections"`
}

// Envelope is the immutable result of one orchestrator run
type Envelope struct {
	RunID       string                      `json:"run_id"`
	Status      Status                      `json:"status"`
	Digest      Document                    `json:"digest"`
	Analyses    map[string]AnalysisResult   `json:"analyses"`
	Sources     map[string]SourceStatus     `json:"sources"`
	Collections map[string]CollectionResult `json:"collections"`
	StartedAt   time.Time                   `json:"started_at"`
	FinishedAt  time.Time                   `json:"finished_at"`
	Duration    time.Duration               `json:"duration_ns"`
	Window      time.Duration               `json:"window_ns"`
	Budget      budget.Snapshot             `json:"budget"`
}

// Health of a probed unit or layer
type Health string

const (
	Healthy   Health = "healthy"
	Degraded  Health = "degraded"
	Unhealthy Health = "unhealthy"
)

// ProbeResult is the outcome of one health probe
type ProbeResult struct {
	Status Health `json:"status"`
	Err    string `json:"error,omitempty"`
}

// HealthReport covers both layers plus the combined verdict
type HealthReport struct {
	Timestamp        time.Time              `json:"timestamp"`
	Overall          Health                 `json:"overall"`
	Collectors       map[string]ProbeResult `json:"collectors"`
	Analyzers        map[string]ProbeResult `json:"analyzers"`
	CollectorsStatus Health                 `json:"collectors_status"`
	AnalyzersStatus  Health                 `json:"analyzers_status"`
}
