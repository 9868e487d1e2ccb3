package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"daybrief/internal/application"
	appbudget "daybrief/internal/application/budget"
	appfaults "daybrief/internal/application/faults"
	domainbudget "daybrief/internal/domain/budget"
	"daybrief/internal/domain/digest"
	domainfaults "daybrief/internal/domain/faults"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

var _ application.Clock = (*fakeClock)(nil)

type memStateStore struct {
	mu    sync.Mutex
	state *domainbudget.State
}

func (s *memStateStore) Load() (*domainbudget.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *memStateStore) Save(st *domainbudget.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.state = &cp
	return nil
}

type memUsageStore struct {
	mu   sync.Mutex
	recs []domainbudget.UsageRecord
}

func (s *memUsageStore) Append(u domainbudget.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, u)
	return nil
}

func (s *memUsageStore) Recent(limit int) ([]domainbudget.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domainbudget.UsageRecord(nil), s.recs...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memUsageStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

type memEventStore struct {
	mu     sync.Mutex
	events []domainfaults.Event
}

func (s *memEventStore) Append(e domainfaults.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memEventStore) Recent(limit int) ([]domainfaults.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domainfaults.Event(nil), s.events...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memEventStore) all() []domainfaults.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domainfaults.Event(nil), s.events...)
}

// collectorFunc adapts a closure to digest.Collector
type collectorFunc func(ctx context.Context, window time.Duration) (digest.Data, error)

func (f collectorFunc) Fetch(ctx context.Context, window time.Duration) (digest.Data, error) {
	return f(ctx, window)
}

// analyzerFunc adapts a closure to digest.Analyzer
type analyzerFunc func(ctx context.Context, data digest.Data, runCtx digest.Data) (digest.Data, error)

func (f analyzerFunc) Analyze(ctx context.Context, data digest.Data, runCtx digest.Data) (digest.Data, error) {
	return f(ctx, data, runCtx)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)}
}

func newTestRegistry(clock application.Clock) (*appfaults.Registry, *memEventStore) {
	store := &memEventStore{}
	r := appfaults.NewRegistry(store, nil, clock, testLogger(), appfaults.Options{BackoffUnit: time.Microsecond})
	return r, store
}

func newTestLedger(t *testing.T, clock application.Clock, limits appbudget.Limits) (*appbudget.Ledger, *memUsageStore) {
	t.Helper()
	usage := &memUsageStore{}
	l, err := appbudget.NewLedger(limits, &memStateStore{}, usage, clock, testLogger())
	require.NoError(t, err)
	return l, usage
}

func roomyLimits() appbudget.Limits {
	return appbudget.Limits{Daily: 1_000_000, Hourly: 500_000, PerRequest: 100_000}
}
