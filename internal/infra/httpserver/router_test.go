package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appbudget "daybrief/internal/application/budget"
	appfaults "daybrief/internal/application/faults"
	"daybrief/internal/application/pipeline"
	domainbudget "daybrief/internal/domain/budget"
	"daybrief/internal/domain/digest"
	domainfaults "daybrief/internal/domain/faults"
)

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
	return append([]domainbudget.UsageRecord(nil), s.recs...), nil
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
	return append([]domainfaults.Event(nil), s.events...), nil
}

type collectorFunc func(ctx context.Context, window time.Duration) (digest.Data, error)

func (f collectorFunc) Fetch(ctx context.Context, window time.Duration) (digest.Data, error) {
	return f(ctx, window)
}

type analyzerFunc func(ctx context.Context, data digest.Data, runCtx digest.Data) (digest.Data, error)

func (f analyzerFunc) Analyze(ctx context.Context, data digest.Data, runCtx digest.Data) (digest.Data, error) {
	return f(ctx, data, runCtx)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func newTestServer(t *testing.T) (http.Handler, *appfaults.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := systemClock{}

	registry := appfaults.NewRegistry(&memEventStore{}, nil, clock, logger, appfaults.Options{BackoffUnit: time.Microsecond})
	ledger, err := appbudget.NewLedger(appbudget.Limits{Daily: 1_000_000, Hourly: 500_000, PerRequest: 100_000}, &memStateStore{}, &memUsageStore{}, clock, logger)
	require.NoError(t, err)

	collection := pipeline.NewCollectionStage(map[string]digest.Collector{
		"news": collectorFunc(func(ctx context.Context, window time.Duration) (digest.Data, error) {
			return digest.Data{"items": []any{"a"}}, nil
		}),
	}, registry, time.Second, logger)
	analysis := pipeline.NewAnalysisStage([]pipeline.AnalyzerSpec{
		{Name: "news", Source: "news", BaseCost: 800, Impl: analyzerFunc(func(ctx context.Context, data digest.Data, runCtx digest.Data) (digest.Data, error) {
			return digest.Data{"summary": "headlines"}, nil
		})},
	}, ledger, registry, clock, time.Second, logger)
	synth := pipeline.NewSynthesizer(analyzerFunc(func(ctx context.Context, data digest.Data, runCtx digest.Data) (digest.Data, error) {
		return digest.Data{"summary": "the digest"}, nil
	}), 1200, ledger, registry, clock, time.Second, logger)
	orch := pipeline.NewOrchestrator(collection, analysis, synth, ledger, registry, clock, logger, pipeline.Options{})

	return NewRouter(orch, ledger, registry, nil, nil), registry
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var report digest.HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, digest.Healthy, report.Overall)
}

func TestRunEndpointWaited(t *testing.T) {
	h, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/digest/run?wait=true&window_hours=6", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var env digest.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, digest.StatusComplete, env.Status)
	assert.Equal(t, 6*time.Hour, env.Window)

	// The envelope is now retrievable without re-running
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/digest/last", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRunEndpointRejectsBadWindow(t *testing.T) {
	h, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/digest/run?wait=true&window_hours=999", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLastEndpointBeforeAnyRun(t *testing.T) {
	h, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/digest/last", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestEndpointWithoutRepository(t *testing.T) {
	h, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/digest/latest", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestBudgetEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/budget", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var snap domainbudget.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 1_000_000, snap.DailyLimit)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/budget/usage?days=7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sum domainbudget.UsageSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 7, sum.PeriodDays)
}

func TestErrorEndpoints(t *testing.T) {
	h, registry := newTestServer(t)
	registry.Record("collector.news", errors.New("down"), domainfaults.SeverityMedium, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/errors?hours=24", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sum domainfaults.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.TotalErrors)

	body := strings.NewReader(`{"component":"collector.news","kind":"transient"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/errors/resolve", body)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, out["resolved"])
}

func TestResolveSanitizesInput(t *testing.T) {
	h, registry := newTestServer(t)
	registry.Record("collector.news", errors.New("down"), domainfaults.SeverityMedium, nil)

	body := strings.NewReader(`{"component":"  collector.news\u0000","kind":"transient "}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/errors/resolve", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, out["resolved"])
}
