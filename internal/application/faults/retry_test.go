package faults

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "daybrief/internal/domain/faults"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	r, store := newTestRegistry(clock, nil)

	attempts := 0
	v, err := Retry(r, "collector.news", 3, domain.SeverityMedium, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("flaky")
		}
		return "payload", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "payload", v)
	assert.Equal(t, 3, attempts)
	require.Equal(t, 2, store.len(), "one event per failed attempt, none for the success")
	assert.Equal(t, 1, store.events[0].RetryCount)
	assert.Equal(t, 2, store.events[1].RetryCount)
}

func TestRetryExhaustedReturnsError(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	r, store := newTestRegistry(clock, nil)

	terminal := errors.New("hard down")
	_, err := Retry(r, "collector.news", 2, domain.SeverityMedium, func() (int, error) {
		return 0, terminal
	}, nil)

	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 2, store.len())
}

func TestRetryExhaustedUsesFallback(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	r, _ := newTestRegistry(clock, nil)

	fallback := 42
	v, err := Retry(r, "collector.news", 2, domain.SeverityMedium, func() (int, error) {
		return 0, errors.New("down")
	}, &fallback)

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRetryEscalatesOnlyOnFinalAttempt(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	notifier := &fakeNotifier{result: true}
	r, _ := newTestRegistry(clock, notifier)

	_, _ = Retry(r, "analyzer.news", 3, domain.SeverityHigh, func() (int, error) {
		return 0, errors.New("down")
	}, nil)

	require.Equal(t, 1, notifier.calls())
	assert.Equal(t, 3, notifier.events[0].RetryCount)
}

func TestRetryContextAbortsDuringBackoff(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	store := &memEventStore{}
	r := NewRegistry(store, nil, clock, testLogger(), Options{BackoffUnit: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = RetryContext(ctx, r, "collector.news", 3, domain.SeverityMedium, func(context.Context) (int, error) {
			return 0, errors.New("down")
		}, nil)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not abort on context cancellation")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, store.len(), "only the attempt before cancellation is recorded")
}

func TestBackoffIsExponentialAndCapped(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	store := &memEventStore{}
	r := NewRegistry(store, nil, clock, testLogger(), Options{BackoffUnit: time.Second})

	assert.Equal(t, time.Second, r.backoff(1))
	assert.Equal(t, 2*time.Second, r.backoff(2))
	assert.Equal(t, 4*time.Second, r.backoff(3))
	assert.Equal(t, 8*time.Second, r.backoff(4))
	assert.Equal(t, 10*time.Second, r.backoff(5))
	assert.Equal(t, 10*time.Second, r.backoff(9))
}
