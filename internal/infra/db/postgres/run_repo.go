package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"daybrief/internal/domain/digest"
)

// RunRepository persists digest run envelopes to Postgres.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository { return &RunRepository{db: db} }

func (r *RunRepository) Save(ctx context.Context, env *digest.Envelope) error {
	const q = `
INSERT INTO digest_runs
  (id, started_at, finished_at, duration_ms, status, sections, envelope_json)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  finished_at   = EXCLUDED.finished_at,
  duration_ms   = EXCLUDED.duration_ms,
  status        = EXCLUDED.status,
  sections      = EXCLUDED.sections,
  envelope_json = EXCLUDED.envelope_json;`

	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	sections := len(env.Digest.Sections)
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = r.db.ExecContext(cctx, q,
		env.RunID, env.StartedAt, env.FinishedAt,
		env.Duration.Milliseconds(), string(env.Status), sections, raw,
	)
	return err
}

func (r *RunRepository) Latest(ctx context.Context, limit int) ([]*digest.Envelope, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT envelope_json
FROM digest_runs
ORDER BY started_at DESC
LIMIT $1;`
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(cctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*digest.Envelope
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var env digest.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, err
		}
		out = append(out, &env)
	}
	return out, rows.Err()
}
