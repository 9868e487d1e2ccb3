package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daybrief/internal/domain/digest"
)

type fixture struct {
	collectors  map[string]digest.Collector
	specs       []AnalyzerSpec
	coordinator digest.Analyzer
	opts        Options
}

func buildOrchestrator(t *testing.T, fx fixture) (*Orchestrator, *memEventStore) {
	t.Helper()
	clock := testClock()
	registry, events := newTestRegistry(clock)
	ledger, _ := newTestLedger(t, clock, roomyLimits())

	collection := NewCollectionStage(fx.collectors, registry, time.Second, testLogger())
	analysis := NewAnalysisStage(fx.specs, ledger, registry, clock, time.Second, testLogger())
	synth := NewSynthesizer(fx.coordinator, 1200, ledger, registry, clock, time.Second, testLogger())

	return NewOrchestrator(collection, analysis, synth, ledger, registry, clock, testLogger(), fx.opts), events
}

func staticCollector(data digest.Data) collectorFunc {
	return func(ctx context.Context, window time.Duration) (digest.Data, error) {
		return data, nil
	}
}

func failingCollector(err error) collectorFunc {
	return func(ctx context.Context, window time.Duration) (digest.Data, error) {
		return nil, err
	}
}

func structuredCoordinator() analyzerFunc {
	return func(ctx context.Context, data digest.Data, runCtx digest.Data) (digest.Data, error) {
		return digest.Data{
			"title": "Morning Digest",
			"sections": []any{
				map[string]any{"title": "News", "priority": "high", "content": "calm day"},
			},
		}, nil
	}
}

func TestRunCompleteDespiteCollectionFailure(t *testing.T) {
	orch, _ := buildOrchestrator(t, fixture{
		collectors: map[string]digest.Collector{
			"news":     staticCollector(digest.Data{"items": []any{"a"}}),
			"calendar": failingCollector(errors.New("gateway down")),
			"weather":  staticCollector(digest.Data{"temp_c": 3.0}),
		},
		specs: []AnalyzerSpec{
			{Name: "news", Source: "news", BaseCost: 800, Impl: okAnalyzer(digest.Data{"summary": "headlines"})},
			{Name: "calendar", Source: "calendar", BaseCost: 400, Impl: okAnalyzer(digest.Data{"summary": "unused"})},
		},
		coordinator: structuredCoordinator(),
	})

	env, err := orch.Run(context.Background(), 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, digest.StatusComplete, env.Status, "collection failure alone does not demote the run")
	assert.Equal(t, digest.SourceSuccess, env.Sources["news"])
	assert.Equal(t, digest.SourceError, env.Sources["calendar"])
	assert.Equal(t, digest.SourceSuccess, env.Sources["weather"])

	require.Contains(t, env.Analyses, "news")
	assert.NotContains(t, env.Analyses, "calendar", "no payload, no analysis unit")
	assert.Equal(t, "Morning Digest", env.Digest.Title)
	assert.NotEmpty(t, env.RunID)
	assert.Equal(t, 24*time.Hour, env.Window)
	assert.NotZero(t, env.Budget.DailyUsed, "analysis and synthesis were charged")
}

func TestRunDegradedWhenAnalysisUnitFails(t *testing.T) {
	orch, _ := buildOrchestrator(t, fixture{
		collectors: map[string]digest.Collector{
			"news":     staticCollector(digest.Data{"items": []any{"a"}}),
			"articles": staticCollector(digest.Data{"items": []any{"b"}}),
		},
		specs: []AnalyzerSpec{
			{Name: "news", Source: "news", BaseCost: 800, Impl: okAnalyzer(digest.Data{"summary": "headlines"})},
			{Name: "tech", Source: "articles", BaseCost: 600, Impl: analyzerFunc(func(ctx context.Context, data digest.Data, runCtx digest.Data) (digest.Data, error) {
				return nil, errors.New("model overloaded")
			})},
		},
		coordinator: structuredCoordinator(),
	})

	env, err := orch.Run(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, digest.StatusDegraded, env.Status)
}

func TestRunFallbackWhenCoordinatorUnavailable(t *testing.T) {
	orch, _ := buildOrchestrator(t, fixture{
		collectors: map[string]digest.Collector{
			"news": staticCollector(digest.Data{"items": []any{"a"}}),
		},
		specs: []AnalyzerSpec{
			{Name: "news", Source: "news", BaseCost: 800, Impl: okAnalyzer(digest.Data{"summary": "headlines"})},
		},
		coordinator: nil,
	})

	env, err := orch.Run(context.Background(), 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, digest.StatusFallback, env.Status)
	require.Len(t, env.Digest.Sections, 1)
	assert.Equal(t, "News", env.Digest.Sections[0].Title)
}

func TestRunRejectsNonPositiveWindow(t *testing.T) {
	orch, _ := buildOrchestrator(t, fixture{
		collectors:  map[string]digest.Collector{},
		coordinator: structuredCoordinator(),
	})

	_, err := orch.Run(context.Background(), 0)
	assert.Error(t, err)
	_, err = orch.Run(context.Background(), -time.Hour)
	assert.Error(t, err)
}

func TestRunMarksUninitializedAndEmptySources(t *testing.T) {
	orch, _ := buildOrchestrator(t, fixture{
		collectors: map[string]digest.Collector{
			"inbox":   nil,
			"weather": staticCollector(nil),
		},
		coordinator: structuredCoordinator(),
	})

	env, err := orch.Run(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, digest.SourceNotInitialized, env.Sources["inbox"])
	assert.Equal(t, digest.SourceNoData, env.Sources["weather"])
}

type memRepo struct {
	mu    sync.Mutex
	saved []*digest.Envelope
	err   error
}

func (r *memRepo) Save(ctx context.Context, e *digest.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, e)
	return nil
}

func (r *memRepo) Latest(ctx context.Context, limit int) ([]*digest.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*digest.Envelope(nil), r.saved...), nil
}

func TestRunPersistsThroughRepository(t *testing.T) {
	repo := &memRepo{}
	orch, _ := buildOrchestrator(t, fixture{
		collectors: map[string]digest.Collector{
			"news": staticCollector(digest.Data{"items": []any{"a"}}),
		},
		specs: []AnalyzerSpec{
			{Name: "news", Source: "news", BaseCost: 800, Impl: okAnalyzer(digest.Data{"summary": "headlines"})},
		},
		coordinator: structuredCoordinator(),
		opts:        Options{Repository: repo},
	})

	env, err := orch.Run(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, repo.saved, 1)
	assert.Equal(t, env.RunID, repo.saved[0].RunID)
}

func TestRunAbsorbsRepositoryFailure(t *testing.T) {
	repo := &memRepo{err: errors.New("db gone")}
	orch, events := buildOrchestrator(t, fixture{
		collectors: map[string]digest.Collector{
			"news": staticCollector(digest.Data{"items": []any{"a"}}),
		},
		specs: []AnalyzerSpec{
			{Name: "news", Source: "news", BaseCost: 800, Impl: okAnalyzer(digest.Data{"summary": "headlines"})},
		},
		coordinator: structuredCoordinator(),
		opts:        Options{Repository: repo},
	})

	env, err := orch.Run(context.Background(), 24*time.Hour)
	require.NoError(t, err, "persistence failure never fails the run")
	assert.Equal(t, digest.StatusComplete, env.Status)

	found := false
	for _, e := range events.all() {
		if e.Component == "orchestrator" {
			found = true
		}
	}
	assert.True(t, found, "repository failure is recorded")
}
