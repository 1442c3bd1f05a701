package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	dErrors "doorman/pkg/domain-errors"
)

// PostgresStore persists the audit trail for deployments that need it to
// survive restarts. Schema is applied on construction; the table is
// append-only.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createModerationEvents = `
CREATE TABLE IF NOT EXISTS moderation_events (
	id         UUID PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	group_id   BIGINT NOT NULL,
	actor_id   BIGINT NOT NULL,
	subject_id BIGINT NOT NULL,
	action     TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS moderation_events_group_idx
	ON moderation_events (group_id, occurred_at);
`

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "connect postgres")
	}
	if _, err := pool.Exec(ctx, createModerationEvents); err != nil {
		pool.Close()
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ensure audit schema")
	}
	return &PostgresStore{pool: pool}, nil
}

// Append inserts the event.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO moderation_events (id, occurred_at, group_id, actor_id, subject_id, action, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.Timestamp, int64(event.Group), int64(event.Actor),
		int64(event.Subject), string(event.Action), event.Detail,
	)
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "append audit event")
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
