package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"daybrief/internal/application"
	appbudget "daybrief/internal/application/budget"
	appfaults "daybrief/internal/application/faults"
	"daybrief/internal/domain/digest"
	"daybrief/internal/domain/faults"
)

// AnalyzerSpec binds a named analyzer to the source whose payload it
// consumes and its base cost in budget units
type AnalyzerSpec struct {
	Name     string
	Source   string
	BaseCost int
	Impl     digest.Analyzer // nil = configured but not initialized
}

// AnalysisStage fans out one budget-gated analysis task per eligible unit.
// A unit is eligible when its source produced a payload and its analyzer is
// initialized; ineligible units are skipped entirely, not errored.
type AnalysisStage struct {
	specs    []AnalyzerSpec
	ledger   *appbudget.Ledger
	registry *appfaults.Registry
	clock    application.Clock
	timeout  time.Duration
	logger   *slog.Logger
}

func NewAnalysisStage(specs []AnalyzerSpec, ledger *appbudget.Ledger, registry *appfaults.Registry, clock application.Clock, timeout time.Duration, logger *slog.Logger) *AnalysisStage {
	return &AnalysisStage{
		specs:    specs,
		ledger:   ledger,
		registry: registry,
		clock:    clock,
		timeout:  timeout,
		logger:   logger,
	}
}

// Specs exposes the configured analyzers for health probing
func (s *AnalysisStage) Specs() []AnalyzerSpec {
	return s.specs
}

// Analyze executes all eligible units concurrently and fans in to a
// name-keyed result map. Budget rejections become typed error results
// without invoking the analyzer.
func (s *AnalysisStage) Analyze(ctx context.Context, collected map[string]digest.CollectionResult, runCtx digest.Data) map[string]digest.AnalysisResult {
	results := make(chan digest.AnalysisResult, len(s.specs))
	var wg sync.WaitGroup

	for _, spec := range s.specs {
		src, ok := collected[spec.Source]
		if spec.Impl == nil || !ok || len(src.Payload) == 0 {
			continue
		}
		wg.Add(1)
		go func(spec AnalyzerSpec, payload digest.Data) {
			defer wg.Done()
			results <- s.analyzeOne(ctx, spec, payload, runCtx)
		}(spec, src.Payload)
	}
	wg.Wait()
	close(results)

	out := make(map[string]digest.AnalysisResult)
	for res := range results {
		out[res.Analyzer] = res
	}
	s.logger.Info("analysis stage finished", "units", len(out))
	return out
}

func (s *AnalysisStage) analyzeOne(ctx context.Context, spec AnalyzerSpec, payload digest.Data, runCtx digest.Data) (res digest.AnalysisResult) {
	res = digest.AnalysisResult{Analyzer: spec.Name}

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("analyzer panic: %v", p)
			s.registry.Record("analyzer."+spec.Name, err, faults.SeverityHigh, map[string]any{"analyzer": spec.Name})
			res = digest.AnalysisResult{Analyzer: spec.Name, Err: err.Error()}
		}
	}()

	cost := EstimateCost(spec.BaseCost, payload)
	allowed, reason := s.ledger.CheckAndReserve(cost)
	if !allowed {
		s.logger.Warn("analysis unit rejected by budget", "analyzer", spec.Name, "cost", cost, "reason", reason)
		res.Err = fmt.Sprintf("budget rejected: %s", reason)
		return res
	}

	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.clock.Now()
	out, err := spec.Impl.Analyze(actx, payload, runCtx)
	s.ledger.RecordUsage("analyzer."+spec.Name, "analyze", cost, s.clock.Now().Sub(start))
	if err != nil {
		s.registry.Record("analyzer."+spec.Name, err, faults.SeverityHigh, map[string]any{
			"analyzer": spec.Name,
			"source":   spec.Source,
		})
		res.Err = err.Error()
		return res
	}
	res.Payload = out
	return res
}

// EstimateCost is the deterministic cost model: a per-analyzer base plus a
// size term derived from the payload's JSON length (four bytes per unit,
// the same fallback ratio the usage tracker uses for text).
func EstimateCost(base int, payload digest.Data) int {
	return base + payload.ApproxSize()/4
}
