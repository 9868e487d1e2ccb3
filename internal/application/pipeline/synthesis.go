package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"daybrief/internal/application"
	appbudget "daybrief/internal/application/budget"
	appfaults "daybrief/internal/application/faults"
	"daybrief/internal/domain/digest"
	"daybrief/internal/domain/faults"
)

const coordinatorName = "coordinator"

var errCoordinatorUnavailable = errors.New("coordinator analyzer not initialized")

// fallbackOrder is the fixed priority list the deterministic fallback walks
var fallbackOrder = []struct {
	Analyzer string
	Title    string
	Priority string
}{
	{"news", "News", "high"},
	{"calendar", "Today's Schedule", "high"},
	{"tech", "Technology Updates", "medium"},
	{"newsletter", "Newsletter Insights", "medium"},
}

// Synthesizer fans the analysis results in to a single coordinator call,
// degrading to a deterministic local construction whenever the coordinator
// is unavailable, over budget, or failing.
type Synthesizer struct {
	coordinator digest.Analyzer // nil = not initialized
	baseCost    int
	ledger      *appbudget.Ledger
	registry    *appfaults.Registry
	clock       application.Clock
	timeout     time.Duration
	logger      *slog.Logger
}

func NewSynthesizer(coordinator digest.Analyzer, baseCost int, ledger *appbudget.Ledger, registry *appfaults.Registry, clock application.Clock, timeout time.Duration, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		coordinator: coordinator,
		baseCost:    baseCost,
		ledger:      ledger,
		registry:    registry,
		clock:       clock,
		timeout:     timeout,
		logger:      logger,
	}
}

// Coordinator exposes the synthesis analyzer for health probing; nil when
// not initialized
func (s *Synthesizer) Coordinator() digest.Analyzer {
	return s.coordinator
}

// Synthesize produces the final digest document. The second return value
// reports whether the deterministic fallback was used.
func (s *Synthesizer) Synthesize(ctx context.Context, analyses map[string]digest.AnalysisResult, runCtx digest.Data) (digest.Document, bool) {
	now := s.clock.Now()

	if s.coordinator == nil {
		s.registry.Record(coordinatorName, errCoordinatorUnavailable, faults.SeverityCritical, nil)
		return s.Fallback(analyses, now), true
	}

	input := digest.Data{
		"analyses": analyses,
		"context":  runCtx,
		"successful_analyzers": func() []string {
			names := make([]string, 0, len(analyses))
			for name, res := range analyses {
				if res.Err == "" {
					names = append(names, name)
				}
			}
			return names
		}(),
	}

	cost := EstimateCost(s.baseCost, input)
	allowed, reason := s.ledger.CheckAndReserve(cost)
	if !allowed {
		s.logger.Warn("synthesis rejected by budget, using fallback", "cost", cost, "reason", reason)
		return s.Fallback(analyses, now), true
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.clock.Now()
	out, err := s.coordinator.Analyze(sctx, input, runCtx)
	s.ledger.RecordUsage(coordinatorName, "synthesize", cost, s.clock.Now().Sub(start))
	if err != nil {
		s.registry.Record(coordinatorName, err, faults.SeverityCritical, map[string]any{
			"analyses": len(analyses),
		})
		return s.Fallback(analyses, now), true
	}
	return parseDocument(out, now), false
}

// Fallback deterministically assembles a digest from whatever analysis
// succeeded, in fixed priority order. It is pure and total: no I/O, no
// failure modes, and it yields an empty-sections document when every
// analysis failed.
func (s *Synthesizer) Fallback(analyses map[string]digest.AnalysisResult, now time.Time) digest.Document {
	doc := digest.Document{
		Title:       "Daily Digest",
		GeneratedAt: now,
		Sections:    []digest.Section{},
	}
	for _, entry := range fallbackOrder {
		res, ok := analyses[entry.Analyzer]
		if !ok || res.Err != "" || len(res.Payload) == 0 {
			continue
		}
		content := res.Payload.Summary()
		if content == "" {
			content = "Analysis completed"
		}
		doc.Sections = append(doc.Sections, digest.Section{
			Title:    entry.Title,
			Priority: entry.Priority,
			Content:  content,
			Details:  stringList(res.Payload["highlights"]),
		})
	}
	return doc
}

// parseDocument maps coordinator output onto a Document, falling back to a
// single-section document when the output is unstructured
func parseDocument(out digest.Data, now time.Time) digest.Document {
	doc := digest.Document{
		Title:       "Daily Digest",
		GeneratedAt: now,
		Sections:    []digest.Section{},
	}
	if t, ok := out["title"].(string); ok && t != "" {
		doc.Title = t
	}
	raw, ok := out["sections"].([]any)
	if !ok {
		if summary := out.Summary(); summary != "" {
			doc.Sections = append(doc.Sections, digest.Section{
				Title:    doc.Title,
				Priority: "high",
				Content:  summary,
			})
		}
		return doc
	}
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		sec := digest.Section{
			Details: stringList(m["details"]),
		}
		if v, ok := m["title"].(string); ok {
			sec.Title = v
		}
		if v, ok := m["content"].(string); ok {
			sec.Content = v
		}
		if v, ok := m["priority"].(string); ok {
			sec.Priority = v
		}
		doc.Sections = append(doc.Sections, sec)
	}
	return doc
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
