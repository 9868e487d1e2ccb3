package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domain "daybrief/internal/domain/digest"
)

// RunRepository persists digest run envelopes for reporting. The full
// envelope is kept as JSON next to the queryable columns.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Save(ctx context.Context, e *domain.Envelope) error {
	const q = `
INSERT INTO digest_runs
(id, started_at, finished_at, duration_ms, status, sections, envelope_json)
VALUES (?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 finished_at=VALUES(finished_at),
 duration_ms=VALUES(duration_ms),
 status=VALUES(status),
 sections=VALUES(sections),
 envelope_json=VALUES(envelope_json);
`
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	started := e.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err = r.db.ExecContext(ctx, q,
		e.RunID, started, e.FinishedAt, e.Duration.Milliseconds(),
		stringOrDash(string(e.Status)), len(e.Digest.Sections), payload,
	)
	return err
}

func (r *RunRepository) Latest(ctx context.Context, limit int) ([]*domain.Envelope, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT envelope_json
FROM digest_runs
ORDER BY started_at DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Envelope
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e domain.Envelope
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
