package budget

import "time"

// State tracks consumption against rolling quotas. DailyUsed and HourlyUsed
// are target invariants: a reservation already granted may sit at the limit,
// the ledger only blocks future requests.
type State struct {
	DailyLimit      int    `json:"daily_limit"`
	HourlyLimit     int    `json:"hourly_limit"`
	PerRequestLimit int    `json:"per_request_limit"`
	DailyUsed       int    `json:"daily_used"`
	HourlyUsed      int    `json:"hourly_used"`
	LastResetDate   string `json:"last_reset_date"` // YYYY-MM-DD
	LastResetHour   int    `json:"last_reset_hour"`
}

// Snapshot is the read-only view embedded in digest envelopes and reports
type Snapshot struct {
	DailyUsed       int `json:"daily_used"`
	DailyLimit      int `json:"daily_limit"`
	DailyRemaining  int `json:"daily_remaining"`
	HourlyUsed      int `json:"hourly_used"`
	HourlyLimit     int `json:"hourly_limit"`
	HourlyRemaining int `json:"hourly_remaining"`
	PerRequestLimit int `json:"per_request_limit"`
}

// UsageRecord is one entry in the append-only usage history
type UsageRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	Component string        `json:"component"`
	Operation string        `json:"operation"`
	Cost      int           `json:"cost"`
	Duration  time.Duration `json:"duration_ns"`
}

// UsageSummary aggregates usage over a reporting period
type UsageSummary struct {
	PeriodDays     int                       `json:"period_days"`
	TotalCost      int                       `json:"total_cost"`
	TotalRequests  int                       `json:"total_requests"`
	ComponentCosts map[string]ComponentUsage `json:"component_breakdown"`
	Budget         Snapshot                  `json:"budget_status"`
}

// ComponentUsage rolls up usage for one component
type ComponentUsage struct {
	TotalCost    int `json:"total_cost"`
	RequestCount int `json:"request_count"`
}
