package faults

import "time"

// Severity of a recorded failure
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Kind classifies a failure for escalation and reporting
type Kind string

const (
	KindNotInitialized Kind = "not_initialized"
	KindNoData         Kind = "no_data"
	KindTransient      Kind = "transient"
	KindTimeout        Kind = "timeout"
	KindBudgetRejected Kind = "budget_rejected"
	KindFatal          Kind = "fatal"
)

// Event represents a single recorded failure
type Event struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Component  string         `json:"component"`
	Kind       Kind           `json:"kind"`
	Message    string         `json:"message"`
	Severity   Severity       `json:"severity"`
	Context    map[string]any `json:"context,omitempty"`
	RetryCount int            `json:"retry_count"`
	Resolved   bool           `json:"resolved"`
}

// Key identifies a recurring failure class within the retained window
func (e Event) Key() string {
	return e.Component + ":" + string(e.Kind)
}

// Summary aggregates recent events for reporting
type Summary struct {
	TotalErrors       int                       `json:"total_errors"`
	PeriodHours       int                       `json:"period_hours"`
	SeverityBreakdown map[Severity]int          `json:"severity_breakdown"`
	ComponentErrors   map[string]ComponentStats `json:"component_breakdown"`
}

// ComponentStats rolls up events for one component
type ComponentStats struct {
	Count      int          `json:"count"`
	Kinds      map[Kind]int `json:"kinds"`
	LastError  string       `json:"last_error"`
	LastSeenAt time.Time    `json:"last_seen_at"`
}
