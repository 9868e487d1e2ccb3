package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	appfaults "daybrief/internal/application/faults"
	"daybrief/internal/domain/digest"
	"daybrief/internal/domain/faults"
)

// CollectionStage fans out one fetch task per configured source. A failing
// or timed-out source never aborts its siblings; every configured source
// with a collector yields exactly one CollectionResult.
type CollectionStage struct {
	collectors map[string]digest.Collector // nil value = configured but not initialized
	registry   *appfaults.Registry
	timeout    time.Duration
	logger     *slog.Logger
}

func NewCollectionStage(collectors map[string]digest.Collector, registry *appfaults.Registry, timeout time.Duration, logger *slog.Logger) *CollectionStage {
	return &CollectionStage{
		collectors: collectors,
		registry:   registry,
		timeout:    timeout,
		logger:     logger,
	}
}

// Configured reports every known source name and whether its collector was
// initialized
func (s *CollectionStage) Configured() map[string]bool {
	out := make(map[string]bool, len(s.collectors))
	for name, c := range s.collectors {
		out[name] = c != nil
	}
	return out
}

// Collect runs all initialized collectors concurrently and returns one
// result per source, keyed by name. Sources without an initialized
// collector are skipped silently.
func (s *CollectionStage) Collect(ctx context.Context, window time.Duration) map[string]digest.CollectionResult {
	out := s.fanOut(ctx, window, true)
	s.logger.Info("collection stage finished", "sources", len(out))
	return out
}

// Probe runs the same fan-out as Collect but records nothing in the error
// registry. Health checks use it so a probe of a down source leaves no
// trace in the fault log.
func (s *CollectionStage) Probe(ctx context.Context, window time.Duration) map[string]digest.CollectionResult {
	return s.fanOut(ctx, window, false)
}

func (s *CollectionStage) fanOut(ctx context.Context, window time.Duration, record bool) map[string]digest.CollectionResult {
	results := make(chan digest.CollectionResult, len(s.collectors))
	var wg sync.WaitGroup

	for name, collector := range s.collectors {
		if collector == nil {
			continue
		}
		wg.Add(1)
		go func(name string, collector digest.Collector) {
			defer wg.Done()
			results <- s.collectOne(ctx, name, collector, window, record)
		}(name, collector)
	}
	wg.Wait()
	close(results)

	out := make(map[string]digest.CollectionResult, len(s.collectors))
	for res := range results {
		out[res.Source] = res
	}
	return out
}

func (s *CollectionStage) collectOne(ctx context.Context, name string, collector digest.Collector, window time.Duration, record bool) (res digest.CollectionResult) {
	res = digest.CollectionResult{Source: name}

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("collector panic: %v", p)
			if record {
				s.registry.Record("collector."+name, err, faults.SeverityMedium, map[string]any{"source": name})
			}
			res = digest.CollectionResult{Source: name, Err: err.Error()}
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := collector.Fetch(cctx, window)
	if err != nil {
		if record {
			s.registry.Record("collector."+name, err, faults.SeverityMedium, map[string]any{
				"source": name,
				"window": window.String(),
			})
		}
		res.Err = err.Error()
		return res
	}
	res.Payload = data
	return res
}
