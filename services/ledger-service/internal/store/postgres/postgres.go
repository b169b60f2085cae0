// Package postgres is the pgx-backed outbox store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerforge/ledgerforge/libs/db"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
)

// Schema creates the outbox table. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS external_event (
	id                BIGSERIAL PRIMARY KEY,
	type              VARCHAR(100) NOT NULL,
	category          VARCHAR(100) NOT NULL,
	schema            VARCHAR(100) NOT NULL,
	data              BYTEA NOT NULL,
	idempotency_key   VARCHAR(100) NOT NULL,
	business_date     DATE NOT NULL,
	created_at        TIMESTAMP NOT NULL,
	tenant_id         VARCHAR(100) NOT NULL,
	aggregate_root_id BIGINT NOT NULL,
	status            VARCHAR(20) NOT NULL DEFAULT 'TO_BE_SENT',
	sent_at           TIMESTAMP NULL,
	traceparent       TEXT NOT NULL DEFAULT '',
	tracestate        TEXT NOT NULL DEFAULT '',
	CONSTRAINT uk_external_event_tenant_idempotency_key UNIQUE (tenant_id, idempotency_key)
);
CREATE INDEX IF NOT EXISTS ix_external_event_status_id ON external_event (status, id);
`

const uniqueConstraint = "uk_external_event_tenant_idempotency_key"

type Store struct {
	pool *db.Pool
}

func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx is a pgx transaction shared by business writes and outbox inserts.
type Tx struct {
	tx pgx.Tx
}

// Conn returns the underlying transaction for business writes.
func (t *Tx) Conn() pgx.Tx { return t.tx }

func (t *Tx) Insert(ctx context.Context, evt *store.ExternalEvent) error {
	return insert(ctx, t.tx, evt)
}

func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// NewInserter binds inserts to an existing pgx transaction owned by the caller.
func NewInserter(tx pgx.Tx) store.Inserter {
	return &Tx{tx: tx}
}

func insert(ctx context.Context, tx pgx.Tx, evt *store.ExternalEvent) error {
	status := evt.Status
	if status == "" {
		status = store.StatusToBeSent
	}
	// DO NOTHING keeps the transaction usable after a conflict; an aborted statement would not.
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO external_event
			(type, category, schema, data, idempotency_key, business_date, created_at,
			 tenant_id, aggregate_root_id, status, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
		RETURNING id
	`, evt.Type, evt.Category, evt.Schema, evt.Data, evt.IdempotencyKey, evt.BusinessDate, evt.CreatedAt,
		evt.TenantID, evt.AggregateRootID, string(status), evt.Traceparent, evt.Tracestate).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows), db.IsUniqueViolation(err, uniqueConstraint):
		return store.ErrDuplicate
	case err != nil:
		return err
	}
	evt.ID = id
	evt.Status = status
	return nil
}

func (s *Store) ProcessPending(ctx context.Context, limit int, fn store.BatchFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	events, err := fetchPending(ctx, tx, limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return tx.Commit(ctx)
	}

	ids, err := fn(ctx, events)
	if err != nil {
		return err
	}
	if err := markSent(ctx, tx, ids); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func fetchPending(ctx context.Context, tx pgx.Tx, limit int) ([]store.ExternalEvent, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, type, category, schema, data, idempotency_key, business_date, created_at,
		       tenant_id, aggregate_root_id, status, traceparent, tracestate
		FROM external_event
		WHERE status = $1
		ORDER BY id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, string(store.StatusToBeSent), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.ExternalEvent
	for rows.Next() {
		var (
			e      store.ExternalEvent
			status string
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Category, &e.Schema, &e.Data, &e.IdempotencyKey, &e.BusinessDate,
			&e.CreatedAt, &e.TenantID, &e.AggregateRootID, &status, &e.Traceparent, &e.Tracestate); err != nil {
			return nil, err
		}
		e.Status = store.Status(status)
		events = append(events, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

func markSent(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE external_event
		SET status = $1, sent_at = $2
		WHERE id = ANY($3) AND status = $4
	`, string(store.StatusSent), time.Now().UTC(), ids, string(store.StatusToBeSent))
	return err
}

func (s *Store) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM external_event
		WHERE status = $1 AND sent_at < $2
	`, string(store.StatusSent), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountByKey reports how many rows exist for a tenant's idempotency key.
func (s *Store) CountByKey(ctx context.Context, tenantID, key string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM external_event WHERE tenant_id = $1 AND idempotency_key = $2`,
		tenantID, key).Scan(&n)
	return n, err
}
