package faults

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"daybrief/internal/application"
	domain "daybrief/internal/domain/faults"
)

const (
	defaultMaxRecent   = 100
	defaultCooldown    = 30 * time.Minute
	defaultBackoffUnit = time.Second
	recurrenceToNotify = 3
	maxBackoffUnits    = 10
)

// Options tunes the registry; zero values fall back to defaults
type Options struct {
	MaxRecent   int
	Cooldown    time.Duration
	BackoffUnit time.Duration
}

// Registry records structured failure events, decides escalation, and
// provides retry-with-backoff wrappers. Recording never fails: store and
// notifier problems are absorbed. Safe for concurrent use.
type Registry struct {
	store    domain.EventStore
	notifier domain.Notifier
	clock    application.Clock
	logger   *slog.Logger

	maxRecent   int
	cooldown    time.Duration
	backoffUnit time.Duration

	mu         sync.Mutex
	recent     []domain.Event
	counts     map[string]int
	lastNotify time.Time
}

// NewRegistry builds a registry. notifier may be nil (escalations are then
// logged and dropped).
func NewRegistry(store domain.EventStore, notifier domain.Notifier, clock application.Clock, logger *slog.Logger, opts Options) *Registry {
	if opts.MaxRecent <= 0 {
		opts.MaxRecent = defaultMaxRecent
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = defaultCooldown
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = defaultBackoffUnit
	}
	return &Registry{
		store:       store,
		notifier:    notifier,
		clock:       clock,
		logger:      logger,
		maxRecent:   opts.MaxRecent,
		cooldown:    opts.Cooldown,
		backoffUnit: opts.BackoffUnit,
		counts:      make(map[string]int),
	}
}

// Record captures one failure and returns the event ID. The failure kind is
// derived from the error chain. Always succeeds.
func (r *Registry) Record(component string, err error, sev domain.Severity, evctx map[string]any) string {
	return r.record(component, KindOf(err), err, sev, evctx, 0, true)
}

func (r *Registry) record(component string, kind domain.Kind, err error, sev domain.Severity, evctx map[string]any, retryCount int, allowNotify bool) string {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	event := domain.Event{
		ID:         uuid.New().String(),
		Timestamp:  r.clock.Now(),
		Component:  component,
		Kind:       kind,
		Message:    msg,
		Severity:   sev,
		Context:    evctx,
		RetryCount: retryCount,
	}

	r.logEvent(event)

	r.mu.Lock()
	r.recent = append(r.recent, event)
	if len(r.recent) > r.maxRecent {
		r.recent = r.recent[len(r.recent)-r.maxRecent:]
	}
	r.counts[event.Key()]++
	notify := allowNotify && r.shouldNotifyLocked(event)
	recentCount := len(r.recent)
	r.mu.Unlock()

	if serr := r.store.Append(event); serr != nil {
		r.logger.Error("persist error event failed", "event_id", event.ID, "error", serr)
	}

	if notify {
		r.dispatch(event, recentCount)
	}
	return event.ID
}

// shouldNotifyLocked applies the escalation policy. Caller holds r.mu.
func (r *Registry) shouldNotifyLocked(e domain.Event) bool {
	if e.Severity == domain.SeverityCritical {
		return true
	}
	if !r.lastNotify.IsZero() && r.clock.Now().Sub(r.lastNotify) < r.cooldown {
		return false
	}
	if e.Severity == domain.SeverityHigh {
		return true
	}
	return r.counts[e.Key()] >= recurrenceToNotify
}

// dispatch hands the event to the notifier. Notifier failure must not reach
// the recording call site.
func (r *Registry) dispatch(e domain.Event, recentCount int) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("notifier panicked", "event_id", e.ID, "panic", p)
		}
	}()
	if r.notifier == nil {
		r.logger.Warn("no notifier configured, dropping escalation", "event_id", e.ID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if r.notifier.Notify(ctx, e, recentCount) {
		r.mu.Lock()
		r.lastNotify = r.clock.Now()
		r.mu.Unlock()
	} else {
		r.logger.Error("notification delivery failed", "event_id", e.ID)
	}
}

func (r *Registry) logEvent(e domain.Event) {
	attrs := []any{"component", e.Component, "kind", string(e.Kind), "error", e.Message}
	switch e.Severity {
	case domain.SeverityCritical, domain.SeverityHigh:
		r.logger.Error("failure recorded", attrs...)
	case domain.SeverityMedium:
		r.logger.Warn("failure recorded", attrs...)
	default:
		r.logger.Info("failure recorded", attrs...)
	}
}

// Summary aggregates events recorded within the last hoursBack hours
func (r *Registry) Summary(hoursBack int) domain.Summary {
	if hoursBack <= 0 {
		hoursBack = 24
	}
	cutoff := r.clock.Now().Add(-time.Duration(hoursBack) * time.Hour)

	r.mu.Lock()
	defer r.mu.Unlock()

	summary := domain.Summary{
		PeriodHours:       hoursBack,
		SeverityBreakdown: make(map[domain.Severity]int),
		ComponentErrors:   make(map[string]domain.ComponentStats),
	}
	for _, e := range r.recent {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		summary.TotalErrors++
		summary.SeverityBreakdown[e.Severity]++
		cs := summary.ComponentErrors[e.Component]
		if cs.Kinds == nil {
			cs.Kinds = make(map[domain.Kind]int)
		}
		cs.Count++
		cs.Kinds[e.Kind]++
		if !e.Timestamp.Before(cs.LastSeenAt) {
			cs.LastError = e.Message
			cs.LastSeenAt = e.Timestamp
		}
		summary.ComponentErrors[e.Component] = cs
	}
	return summary
}

// Resolve marks all retained events for a (component, kind) pair as resolved
// and returns how many were touched
func (r *Registry) Resolve(component string, kind domain.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	resolved := 0
	for i := range r.recent {
		if r.recent[i].Component == component && r.recent[i].Kind == kind && !r.recent[i].Resolved {
			r.recent[i].Resolved = true
			resolved++
		}
	}
	return resolved
}

// KindOf classifies an error chain for recording
func KindOf(err error) domain.Kind {
	switch {
	case err == nil:
		return domain.KindTransient
	case errors.Is(err, context.DeadlineExceeded), os.IsTimeout(err):
		return domain.KindTimeout
	case isNetError(err):
		return domain.KindTransient
	default:
		var k interface{ FaultKind() domain.Kind }
		if errors.As(err, &k) {
			return k.FaultKind()
		}
		return domain.KindTransient
	}
}

func isNetError(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr)
}
