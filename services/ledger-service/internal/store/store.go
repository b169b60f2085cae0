// Package store defines the outbox table row and the transactional ports the writer,
// publisher and retention job use. Adapters live in the postgres, sqlite and memory
// subpackages.
package store

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusToBeSent Status = "TO_BE_SENT"
	StatusSent     Status = "SENT"
)

// ErrDuplicate reports a row whose (tenant_id, idempotency_key) already exists.
// The enclosing transaction stays usable.
var ErrDuplicate = errors.New("store: duplicate idempotency key")

// ExternalEvent is one outbox row. Data and IdempotencyKey never change after insert;
// only Status and SentAt move when the row is published.
type ExternalEvent struct {
	ID              int64
	Type            string
	Category        string
	Schema          string
	Data            []byte
	IdempotencyKey  string
	BusinessDate    time.Time
	CreatedAt       time.Time
	TenantID        string
	AggregateRootID int64
	Status          Status
	SentAt          *time.Time
	Traceparent     string
	Tracestate      string
}

// Inserter writes rows inside a caller-owned transaction.
type Inserter interface {
	// Insert assigns evt.ID on success and returns ErrDuplicate on an idempotency conflict.
	Insert(ctx context.Context, evt *ExternalEvent) error
}

type Tx interface {
	Inserter
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

type txKey struct{}

// ContextWithTx marks ctx as running inside tx. Read paths that must see the
// transaction's own uncommitted writes look it up with TxFromContext.
func ContextWithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func TxFromContext(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(Tx)
	return tx, ok && tx != nil
}

// BatchFunc receives claimed rows and returns the ids that were delivered.
type BatchFunc func(ctx context.Context, events []ExternalEvent) ([]int64, error)

type Pending interface {
	// ProcessPending claims up to limit TO_BE_SENT rows in id order, calls fn, and marks the
	// returned ids SENT in the same transaction. An error from fn rolls the claim back.
	ProcessPending(ctx context.Context, limit int, fn BatchFunc) error
}

type Purger interface {
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is what a full adapter provides.
type Store interface {
	Beginner
	Pending
	Purger
}
