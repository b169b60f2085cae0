// Package sqlite is an embedded outbox store on modernc.org/sqlite. It backs unit-of-work
// and serializer tests that need real SQL transactions without a database server; the
// service binary always runs on postgres.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS external_event (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	type              TEXT NOT NULL,
	category          TEXT NOT NULL,
	schema            TEXT NOT NULL,
	data              BLOB NOT NULL,
	idempotency_key   TEXT NOT NULL,
	business_date     TEXT NOT NULL,
	created_at        TEXT NOT NULL,
	tenant_id         TEXT NOT NULL,
	aggregate_root_id INTEGER NOT NULL,
	status            TEXT NOT NULL DEFAULT 'TO_BE_SENT',
	sent_at           TEXT NULL,
	traceparent       TEXT NOT NULL DEFAULT '',
	tracestate        TEXT NOT NULL DEFAULT '',
	UNIQUE (tenant_id, idempotency_key)
);
CREATE INDEX IF NOT EXISTS ix_external_event_status_id ON external_event (status, id);
`

// Fixed-width so that text comparison orders like time.
const (
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout = "2006-01-02"
)

type Store struct {
	db *sql.DB
}

// Open opens dsn (a file path or ":memory:") and applies the schema. SQLite serializes
// writers, so the pool is limited to a single connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sdb.SetMaxOpenConns(1)
	if _, err := sdb.ExecContext(ctx, schema); err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: sdb}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

type Tx struct {
	tx *sql.Tx
}

// Conn returns the underlying transaction for business writes.
func (t *Tx) Conn() *sql.Tx { return t.tx }

func (t *Tx) Commit(context.Context) error { return t.tx.Commit() }

func (t *Tx) Rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (t *Tx) Insert(ctx context.Context, evt *store.ExternalEvent) error {
	status := evt.Status
	if status == "" {
		status = store.StatusToBeSent
	}
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO external_event
			(type, category, schema, data, idempotency_key, business_date, created_at,
			 tenant_id, aggregate_root_id, status, traceparent, tracestate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
		RETURNING id
	`, evt.Type, evt.Category, evt.Schema, evt.Data, evt.IdempotencyKey,
		evt.BusinessDate.Format(dateLayout), evt.CreatedAt.UTC().Format(timeLayout),
		evt.TenantID, evt.AggregateRootID, string(status), evt.Traceparent, evt.Tracestate).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		return store.ErrDuplicate
	case err != nil:
		return err
	}
	evt.ID = id
	evt.Status = status
	return nil
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || serr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func (s *Store) ProcessPending(ctx context.Context, limit int, fn store.BatchFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	events, err := queryEvents(ctx, tx, `WHERE status = ? ORDER BY id LIMIT ?`, string(store.StatusToBeSent), limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return tx.Commit()
	}

	ids, err := fn(ctx, events)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		args := []any{string(store.StatusSent), time.Now().UTC().Format(timeLayout), string(store.StatusToBeSent)}
		for _, id := range ids {
			args = append(args, id)
		}
		q := `UPDATE external_event SET status = ?, sent_at = ? WHERE status = ? AND id IN (` +
			strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + `)`
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM external_event WHERE status = ? AND sent_at < ?`,
		string(store.StatusSent), cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Events returns every row in id order.
func (s *Store) Events(ctx context.Context) ([]store.ExternalEvent, error) {
	return queryEvents(ctx, s.db, `ORDER BY id`)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryEvents(ctx context.Context, q querier, where string, args ...any) ([]store.ExternalEvent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, type, category, schema, data, idempotency_key, business_date, created_at,
		       tenant_id, aggregate_root_id, status, sent_at, traceparent, tracestate
		FROM external_event `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.ExternalEvent
	for rows.Next() {
		var (
			e                  store.ExternalEvent
			bizDate, createdAt string
			status             string
			sentAt             sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Category, &e.Schema, &e.Data, &e.IdempotencyKey, &bizDate,
			&createdAt, &e.TenantID, &e.AggregateRootID, &status, &sentAt, &e.Traceparent, &e.Tracestate); err != nil {
			return nil, err
		}
		if e.BusinessDate, err = time.Parse(dateLayout, bizDate); err != nil {
			return nil, fmt.Errorf("row %d business_date: %w", e.ID, err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("row %d created_at: %w", e.ID, err)
		}
		if sentAt.Valid {
			ts, err := time.Parse(timeLayout, sentAt.String)
			if err != nil {
				return nil, fmt.Errorf("row %d sent_at: %w", e.ID, err)
			}
			e.SentAt = &ts
		}
		e.Status = store.Status(status)
		events = append(events, e)
	}
	return events, rows.Err()
}
