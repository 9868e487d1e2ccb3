package pipeline

import (
	"context"
	"time"

	"daybrief/internal/domain/digest"
)

// healthProbeData is the minimal synthetic payload every collaborator must
// tolerate during health checks
var healthProbeData = digest.Data{"health_check": true}

var healthProbeCtx = digest.Data{"test_mode": true}

// HealthCheck probes every configured collector and analyzer with a short
// timeout, without touching budget state, recording fault events, or
// producing a digest. The same threshold rule (zero failures healthy,
// fewer than half degraded, otherwise unhealthy) is applied per layer and
// to the combined probe pool.
func (o *Orchestrator) HealthCheck(ctx context.Context) digest.HealthReport {
	report := digest.HealthReport{
		Timestamp:  o.clock.Now(),
		Collectors: make(map[string]digest.ProbeResult),
		Analyzers:  make(map[string]digest.ProbeResult),
	}

	pctx, cancel := context.WithTimeout(ctx, o.healthTimeout)
	collected := o.collection.Probe(pctx, time.Hour)
	cancel()

	collectorsFailed := 0
	for name, res := range collected {
		probe := digest.ProbeResult{Status: digest.Healthy}
		if res.Err != "" {
			probe = digest.ProbeResult{Status: digest.Unhealthy, Err: res.Err}
			collectorsFailed++
		}
		report.Collectors[name] = probe
	}
	for name, initialized := range o.collection.Configured() {
		if !initialized {
			report.Collectors[name] = digest.ProbeResult{Status: digest.Unhealthy, Err: "not initialized"}
			collectorsFailed++
		}
	}

	analyzersFailed := 0
	probe := func(name string, a digest.Analyzer) {
		if a == nil {
			report.Analyzers[name] = digest.ProbeResult{Status: digest.Unhealthy, Err: "not initialized"}
			analyzersFailed++
			return
		}
		actx, cancel := context.WithTimeout(ctx, o.healthTimeout)
		defer cancel()
		if _, err := a.Analyze(actx, healthProbeData, healthProbeCtx); err != nil {
			report.Analyzers[name] = digest.ProbeResult{Status: digest.Unhealthy, Err: err.Error()}
			analyzersFailed++
			return
		}
		report.Analyzers[name] = digest.ProbeResult{Status: digest.Healthy}
	}
	for _, spec := range o.analysis.Specs() {
		probe(spec.Name, spec.Impl)
	}
	probe(coordinatorName, o.synthesizer.Coordinator())

	report.CollectorsStatus = thresholdHealth(collectorsFailed, len(report.Collectors))
	report.AnalyzersStatus = thresholdHealth(analyzersFailed, len(report.Analyzers))
	report.Overall = thresholdHealth(collectorsFailed+analyzersFailed, len(report.Collectors)+len(report.Analyzers))
	return report
}

// thresholdHealth applies the shared threshold rule
func thresholdHealth(failed, total int) digest.Health {
	switch {
	case failed == 0:
		return digest.Healthy
	case failed*2 < total:
		return digest.Degraded
	default:
		return digest.Unhealthy
	}
}
