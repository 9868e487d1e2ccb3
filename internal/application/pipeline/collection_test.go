package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daybrief/internal/domain/digest"
	"daybrief/internal/domain/faults"
)

func TestCollectOneFailureDoesNotAbortSiblings(t *testing.T) {
	registry, events := newTestRegistry(testClock())
	stage := NewCollectionStage(map[string]digest.Collector{
		"news": collectorFunc(func(ctx context.Context, window time.Duration) (digest.Data, error) {
			return digest.Data{"items": []any{"a"}}, nil
		}),
		"calendar": collectorFunc(func(ctx context.Context, window time.Duration) (digest.Data, error) {
			return nil, errors.New("gateway unreachable")
		}),
		"weather": collectorFunc(func(ctx context.Context, window time.Duration) (digest.Data, error) {
			return digest.Data{"temp_c": 4.5}, nil
		}),
	}, registry, time.Second, testLogger())

	out := stage.Collect(context.Background(), 24*time.Hour)

	require.Len(t, out, 3)
	assert.Empty(t, out["news"].Err)
	assert.NotNil(t, out["news"].Payload)
	assert.Equal(t, "gateway unreachable", out["calendar"].Err)
	assert.Nil(t, out["calendar"].Payload)
	assert.Empty(t, out["weather"].Err)

	recorded := events.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, "collector.calendar", recorded[0].Component)
	assert.Equal(t, faults.SeverityMedium, recorded[0].Severity)
}

func TestProbeRecordsNoEvents(t *testing.T) {
	registry, events := newTestRegistry(testClock())
	stage := NewCollectionStage(map[string]digest.Collector{
		"news": collectorFunc(func(ctx context.Context, window time.Duration) (digest.Data, error) {
			return nil, errors.New("gateway unreachable")
		}),
		"weather": collectorFunc(func(ctx context.Context, window time.Duration) (digest.Data, error) {
			panic("bad feed")
		}),
	}, registry, time.Second, testLogger())

	out := stage.Probe(context.Background(), time.Hour)

	require.Len(t, out, 2)
	assert.Equal(t, "gateway unreachable", out["news"].Err)
	assert.Contains(t, out["weather"].Err, "collector panic")
	assert.Empty(t, events.all(), "probing leaves the fault log untouched")
}

func TestCollectSkipsUninitializedCollectors(t *testing.T) {
	registry, events := newTestRegistry(testClock())
	stage := NewCollectionStage(map[string]digest.Collector{
		"news": collectorFunc(func(ctx context.Context, window time.Duration) (digest.Data, error) {
			return digest.Data{"items": []any{"a"}}, nil
		}),
		"inbox": nil,
	}, registry, time.Second, testLogger())

	out := stage.Collect(context.Background(), 24*time.Hour)

	require.Len(t, out, 1)
	_, present := out["inbox"]
	assert.False(t, present, "uninitialized source yields no result at all")
	assert.Empty(t, events.all(), "skipping is not an error")

	configured := stage.Configured()
	assert.True(t, configured["news"])
	assert.False(t, configured["inbox"])
}

func TestCollectEmptySourceIsNotAnError(t *testing.T) {
	registry, events := newTestRegistry(testClock())
	stage := NewCollectionStage(map[string]digest.Collector{
		"inbox": collectorFunc(func(ctx context.Context, window time.Duration) (digest.Data, error) {
			return nil, nil
		}),
	}, registry, time.Second, testLogger())

	out := stage.Collect(context.Background(), 24*time.Hour)

	require.Len(t, out, 1)
	assert.Empty(t, out["inbox"].Err)
	assert.Empty(t, out["inbox"].Payload)
	assert.Empty(t, events.all())
}

func TestCollectTimeoutBecomesPerSourceFailure(t *testing.T) {
	registry, _ := newTestRegistry(testClock())
	stage := NewCollectionStage(map[string]digest.Collector{
		"slow": collectorFunc(func(ctx context.Context, window time.Duration) (digest.Data, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
		"fast": collectorFunc(func(ctx context.Context, window time.Duration) (digest.Data, error) {
			return digest.Data{"ok": true}, nil
		}),
	}, registry, 20*time.Millisecond, testLogger())

	out := stage.Collect(context.Background(), 24*time.Hour)

	assert.NotEmpty(t, out["slow"].Err)
	assert.Empty(t, out["fast"].Err)
}

func TestCollectRecoversFromPanickingCollector(t *testing.T) {
	registry, events := newTestRegistry(testClock())
	stage := NewCollectionStage(map[string]digest.Collector{
		"bad": collectorFunc(func(ctx context.Context, window time.Duration) (digest.Data, error) {
			panic("nil map write")
		}),
		"good": collectorFunc(func(ctx context.Context, window time.Duration) (digest.Data, error) {
			return digest.Data{"ok": true}, nil
		}),
	}, registry, time.Second, testLogger())

	out := stage.Collect(context.Background(), 24*time.Hour)

	assert.Contains(t, out["bad"].Err, "collector panic")
	assert.Empty(t, out["good"].Err)
	require.Len(t, events.all(), 1)
}

func TestCollectPassesWindowThrough(t *testing.T) {
	registry, _ := newTestRegistry(testClock())
	var got time.Duration
	stage := NewCollectionStage(map[string]digest.Collector{
		"news": collectorFunc(func(ctx context.Context, window time.Duration) (digest.Data, error) {
			got = window
			return digest.Data{"ok": true}, nil
		}),
	}, registry, time.Second, testLogger())

	stage.Collect(context.Background(), 6*time.Hour)
	assert.Equal(t, 6*time.Hour, got)
}
