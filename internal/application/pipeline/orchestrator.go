package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"daybrief/internal/application"
	appbudget "daybrief/internal/application/budget"
	appfaults "daybrief/internal/application/faults"
	"daybrief/internal/domain/digest"
	"daybrief/internal/domain/faults"
)

// Orchestrator sequences Collection -> Analysis -> Synthesis with a full
// barrier between stages and assembles the run envelope. Per-unit failures
// are absorbed by the stages; only malformed input surfaces from Run.
type Orchestrator struct {
	collection  *CollectionStage
	analysis    *AnalysisStage
	synthesizer *Synthesizer
	ledger      *appbudget.Ledger
	registry    *appfaults.Registry
	clock       application.Clock
	logger      *slog.Logger

	runCtx digest.Data // shared read-only context handed to analyzers

	// optional capabilities, resolved once at startup
	repo      digest.Repository
	artifacts digest.ArtifactStore

	healthTimeout time.Duration
}

// Options wires the optional collaborators of an Orchestrator
type Options struct {
	RunContext    digest.Data
	Repository    digest.Repository
	Artifacts     digest.ArtifactStore
	HealthTimeout time.Duration
}

func NewOrchestrator(collection *CollectionStage, analysis *AnalysisStage, synthesizer *Synthesizer, ledger *appbudget.Ledger, registry *appfaults.Registry, clock application.Clock, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 10 * time.Second
	}
	return &Orchestrator{
		collection:    collection,
		analysis:      analysis,
		synthesizer:   synthesizer,
		ledger:        ledger,
		registry:      registry,
		clock:         clock,
		logger:        logger,
		runCtx:        opts.RunContext,
		repo:          opts.Repository,
		artifacts:     opts.Artifacts,
		healthTimeout: opts.HealthTimeout,
	}
}

// Run generates one digest envelope for the given look-back window
func (o *Orchestrator) Run(ctx context.Context, window time.Duration) (*digest.Envelope, error) {
	if window <= 0 {
		return nil, fmt.Errorf("invalid window: %s", window)
	}

	runID := uuid.New().String()
	start := o.clock.Now()
	o.logger.Info("digest run started", "run_id", runID, "window", window.String())

	collected := o.collection.Collect(ctx, window)
	analyses := o.analysis.Analyze(ctx, collected, o.runCtx)
	doc, fellBack := o.synthesizer.Synthesize(ctx, analyses, o.runCtx)

	end := o.clock.Now()
	env := &digest.Envelope{
		RunID:       runID,
		Status:      runStatus(analyses, fellBack),
		Digest:      doc,
		Analyses:    analyses,
		Sources:     o.sourceStatuses(collected),
		Collections: collected,
		StartedAt:   start,
		FinishedAt:  end,
		Duration:    end.Sub(start),
		Window:      window,
		Budget:      o.ledger.Snapshot(),
	}

	o.persist(ctx, env)
	o.logger.Info("digest run finished",
		"run_id", runID,
		"status", string(env.Status),
		"sections", len(doc.Sections),
		"duration", env.Duration.String(),
	)
	return env, nil
}

// runStatus derives the envelope status. Collection-layer failures alone do
// not demote a run: a source that errored simply contributes no analysis
// unit and stays visible through the per-source status map.
func runStatus(analyses map[string]digest.AnalysisResult, fellBack bool) digest.Status {
	if fellBack {
		return digest.StatusFallback
	}
	for _, res := range analyses {
		if res.Err != "" {
			return digest.StatusDegraded
		}
	}
	return digest.StatusComplete
}

func (o *Orchestrator) sourceStatuses(collected map[string]digest.CollectionResult) map[string]digest.SourceStatus {
	statuses := make(map[string]digest.SourceStatus)
	for name, initialized := range o.collection.Configured() {
		if !initialized {
			statuses[name] = digest.SourceNotInitialized
			continue
		}
		res, ok := collected[name]
		switch {
		case !ok:
			statuses[name] = digest.SourceNotInitialized
		case res.Err != "":
			statuses[name] = digest.SourceError
		case len(res.Payload) == 0:
			statuses[name] = digest.SourceNoData
		default:
			statuses[name] = digest.SourceSuccess
		}
	}
	return statuses
}

// persist stores the envelope through the optional repository and artifact
// store. Failures are recorded, never propagated: the run already succeeded.
func (o *Orchestrator) persist(ctx context.Context, env *digest.Envelope) {
	if o.repo != nil {
		if err := o.repo.Save(ctx, env); err != nil {
			o.registry.Record("orchestrator", fmt.Errorf("save run history: %w", err), faults.SeverityMedium, map[string]any{"run_id": env.RunID})
		}
	}
	if o.artifacts != nil {
		if err := o.uploadArtifact(ctx, env); err != nil {
			o.registry.Record("orchestrator", fmt.Errorf("upload artifact: %w", err), faults.SeverityLow, map[string]any{"run_id": env.RunID})
		}
	}
}

func (o *Orchestrator) uploadArtifact(ctx context.Context, env *digest.Envelope) error {
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("digest-%s.json", env.RunID))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return err
	}
	key := fmt.Sprintf("digests/%s/%s.json", env.StartedAt.Format("2006-01-02"), env.RunID)
	_, err = o.artifacts.UploadAndCleanup(ctx, path, key)
	return err
}
