package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	domain "daybrief/internal/domain/faults"
)

// ErrorRepository mirrors recorded error events into Postgres.
type ErrorRepository struct {
	db *sql.DB
}

func NewErrorRepository(db *sql.DB) *ErrorRepository { return &ErrorRepository{db: db} }

func (r *ErrorRepository) Append(e domain.Event) error {
	const q = `
INSERT INTO digest_errors
  (id, component, kind, severity, message, context_json, retry_count, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO NOTHING;`

	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	evctx := "{}"
	if len(e.Context) > 0 {
		if b, err := json.Marshal(e.Context); err == nil {
			evctx = string(b)
		}
	}
	created := e.Timestamp
	if created.IsZero() {
		created = time.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, q,
		e.ID, orDash(e.Component), orDash(string(e.Kind)),
		orDash(string(e.Severity)), msg, evctx, e.RetryCount, created,
	)
	return err
}

func (r *ErrorRepository) Recent(limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, component, kind, severity, message, context_json, retry_count, created_at
FROM digest_errors
ORDER BY created_at DESC, id DESC
LIMIT $1;`
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var evctx string
		if err := rows.Scan(&e.ID, &e.Component, &e.Kind, &e.Severity, &e.Message, &evctx, &e.RetryCount, &e.Timestamp); err != nil {
			return nil, err
		}
		if evctx != "" && evctx != "{}" {
			_ = json.Unmarshal([]byte(evctx), &e.Context)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
