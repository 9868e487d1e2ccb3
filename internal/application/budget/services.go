package budget

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"daybrief/internal/application"
	domain "daybrief/internal/domain/budget"
)

// Limits configures the rolling quotas for a fresh ledger
type Limits struct {
	Daily      int
	Hourly     int
	PerRequest int
}

// Ledger gates budgeted work against rolling daily/hourly/per-request
// quotas. Reservation is pessimistic: usage is charged before the gated
// work executes and is never reconciled against actual cost afterward.
// Safe for concurrent use.
type Ledger struct {
	store  domain.StateStore
	usage  domain.UsageStore
	clock  application.Clock
	logger *slog.Logger

	mu    sync.Mutex
	state *domain.State
}

// NewLedger loads persisted state or starts a fresh one from limits
func NewLedger(limits Limits, store domain.StateStore, usage domain.UsageStore, clock application.Clock, logger *slog.Logger) (*Ledger, error) {
	state, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load budget state: %w", err)
	}
	if state == nil {
		now := clock.Now()
		state = &domain.State{
			DailyLimit:      limits.Daily,
			HourlyLimit:     limits.Hourly,
			PerRequestLimit: limits.PerRequest,
			LastResetDate:   now.Format("2006-01-02"),
			LastResetHour:   now.Hour(),
		}
		if err := store.Save(state); err != nil {
			return nil, fmt.Errorf("save initial budget state: %w", err)
		}
	}
	return &Ledger{
		store:  store,
		usage:  usage,
		clock:  clock,
		logger: logger,
		state:  state,
	}, nil
}

// CheckAndReserve rolls over expired counters, then either reserves cost
// units (incrementing usage before the gated work runs) or rejects with a
// reason. Rejection has no side effects.
func (l *Ledger) CheckAndReserve(cost int) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover()

	if cost > l.state.PerRequestLimit {
		return false, fmt.Sprintf("exceeds per-request limit (%d > %d)", cost, l.state.PerRequestLimit)
	}
	if l.state.DailyUsed+cost > l.state.DailyLimit {
		return false, fmt.Sprintf("exceeds daily limit (remaining %d, requested %d)", l.state.DailyLimit-l.state.DailyUsed, cost)
	}
	if l.state.HourlyUsed+cost > l.state.HourlyLimit {
		return false, fmt.Sprintf("exceeds hourly limit (remaining %d, requested %d)", l.state.HourlyLimit-l.state.HourlyUsed, cost)
	}

	l.state.DailyUsed += cost
	l.state.HourlyUsed += cost
	if err := l.store.Save(l.state); err != nil {
		l.logger.Error("persist budget state failed", "error", err)
	}
	return true, "within budget"
}

// rollover lazily resets counters when the wall-clock period boundary has
// passed. Caller holds l.mu.
func (l *Ledger) rollover() {
	now := l.clock.Now()
	today := now.Format("2006-01-02")
	if l.state.LastResetDate != today {
		l.state.DailyUsed = 0
		l.state.LastResetDate = today
	}
	if l.state.LastResetHour != now.Hour() {
		l.state.HourlyUsed = 0
		l.state.LastResetHour = now.Hour()
	}
}

// Snapshot returns the current counters without mutating them
func (l *Ledger) Snapshot() domain.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.Snapshot{
		DailyUsed:       l.state.DailyUsed,
		DailyLimit:      l.state.DailyLimit,
		DailyRemaining:  l.state.DailyLimit - l.state.DailyUsed,
		HourlyUsed:      l.state.HourlyUsed,
		HourlyLimit:     l.state.HourlyLimit,
		HourlyRemaining: l.state.HourlyLimit - l.state.HourlyUsed,
		PerRequestLimit: l.state.PerRequestLimit,
	}
}

// RecordUsage appends one entry to the usage history. Persistence failures
// are logged, never raised.
func (l *Ledger) RecordUsage(component, operation string, cost int, duration time.Duration) {
	rec := domain.UsageRecord{
		Timestamp: l.clock.Now(),
		Component: component,
		Operation: operation,
		Cost:      cost,
		Duration:  duration,
	}
	if err := l.usage.Append(rec); err != nil {
		l.logger.Error("persist usage record failed", "component", component, "error", err)
	}
}

// UsageSummary aggregates recorded usage over the last days
func (l *Ledger) UsageSummary(days int) domain.UsageSummary {
	if days <= 0 {
		days = 1
	}
	cutoff := l.clock.Now().AddDate(0, 0, -days)

	summary := domain.UsageSummary{
		PeriodDays:     days,
		ComponentCosts: make(map[string]domain.ComponentUsage),
		Budget:         l.Snapshot(),
	}

	records, err := l.usage.Recent(0)
	if err != nil {
		l.logger.Warn("load usage history failed", "error", err)
		return summary
	}
	for _, rec := range records {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		summary.TotalCost += rec.Cost
		summary.TotalRequests++
		cu := summary.ComponentCosts[rec.Component]
		cu.TotalCost += rec.Cost
		cu.RequestCount++
		summary.ComponentCosts[rec.Component] = cu
	}
	return summary
}

// ResetDaily zeroes the daily counter immediately (operator action)
func (l *Ledger) ResetDaily() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.DailyUsed = 0
	l.state.LastResetDate = l.clock.Now().Format("2006-01-02")
	if err := l.store.Save(l.state); err != nil {
		l.logger.Error("persist budget state failed", "error", err)
	}
	l.logger.Info("daily budget reset")
}
