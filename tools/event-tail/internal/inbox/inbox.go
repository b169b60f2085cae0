// Package inbox remembers which (tenant, idempotency key) pairs a consumer has already
// handled, so redelivered messages are ignored.
package inbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS inbox_events (
	tenant_id       TEXT NOT NULL,
	idempotency_key TEXT NOT NULL,
	event_type      TEXT NOT NULL,
	received_at     TEXT NOT NULL,
	PRIMARY KEY (tenant_id, idempotency_key)
);
`

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens dsn (a file path or ":memory:") and applies the schema.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open inbox: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply inbox schema: %w", err)
	}
	return &Repository{db: db, now: time.Now}, nil
}

func (r *Repository) Close() error { return r.db.Close() }

// Record stores the pair and reports whether it was new. A pair seen before yields
// false with a nil error.
func (r *Repository) Record(ctx context.Context, tenantID, key, eventType string) (bool, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inbox_events (tenant_id, idempotency_key, event_type, received_at)
		VALUES (?, ?, ?, ?)
	`, tenantID, key, eventType, r.now().UTC().Format(time.RFC3339Nano))
	if err == nil {
		return true, nil
	}

	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return false, nil
		}
	}
	return false, err
}

// Count is the number of distinct pairs recorded.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inbox_events`).Scan(&n)
	return n, err
}
