package digest

import (
	"context"
	"time"
)

// Collector fetches raw data for one source. A nil Data with nil error means
// the source ran and produced nothing. Implementations must honor ctx and
// must not retain cross-call state the orchestrator depends on.
type Collector interface {
	Fetch(ctx context.Context, window time.Duration) (Data, error)
}

// Analyzer turns collected data into analysis output. It must tolerate being
// invoked with minimal synthetic data during health checks.
type Analyzer interface {
	Analyze(ctx context.Context, data Data, runCtx Data) (Data, error)
}

// Repository persists run envelopes for reporting (optional capability)
type Repository interface {
	Save(ctx context.Context, e *Envelope) error
	Latest(ctx context.Context, limit int) ([]*Envelope, error)
}

// ArtifactStore uploads the rendered envelope for external consumers
// (optional capability)
type ArtifactStore interface {
	UploadAndCleanup(ctx context.Context, localPath, key string) (string, error)
}
