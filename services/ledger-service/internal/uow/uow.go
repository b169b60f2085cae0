// Package uow scopes business writes and their events to one database transaction.
//
// Events enqueued during Run are flushed through the outbox writer into the same
// transaction right before it commits, so either both the business change and its
// events become durable or neither does. The transaction also travels on the context
// (store.TxFromContext) so serializers hydrating during the flush read the unit's own writes.
package uow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/buffer"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessctx"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/eventconfig"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/outbox"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
)

// Work is the state of the unit of work in flight.
type Work struct {
	tx  store.Tx
	buf *buffer.Buffer
}

// Tx is the transaction business writes must use. Adapters expose their native handle
// through it, e.g. (*postgres.Tx).Conn.
func (w *Work) Tx() store.Tx { return w.tx }

func (w *Work) Enqueue(ctx context.Context, evt businessevent.Event) error {
	return w.buf.Enqueue(ctx, evt)
}

func (w *Work) Pending() int { return w.buf.Len() }

type ctxKey struct{}

func FromContext(ctx context.Context) (*Work, bool) {
	w, ok := ctx.Value(ctxKey{}).(*Work)
	return w, ok
}

// Enqueue adds evt to the unit of work carried by ctx.
func Enqueue(ctx context.Context, evt businessevent.Event) error {
	w, ok := FromContext(ctx)
	if !ok {
		return fmt.Errorf("enqueue outside a unit of work: %w", businessevent.ErrIllegalState)
	}
	return w.Enqueue(ctx, evt)
}

type Manager struct {
	beginner store.Beginner
	writer   *outbox.Writer
	checker  eventconfig.Checker
	business businessctx.Provider
	logger   *slog.Logger
}

type Option func(*Manager)

// WithGate drops events whose type the tenant resolved by business has disabled.
func WithGate(checker eventconfig.Checker, business businessctx.Provider) Option {
	return func(m *Manager) {
		m.checker = checker
		m.business = business
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func NewManager(beginner store.Beginner, writer *outbox.Writer, opts ...Option) *Manager {
	m := &Manager{beginner: beginner, writer: writer, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes fn in a unit of work. A Run nested inside another shares the outer unit;
// only the outermost flushes and commits.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context, w *Work) error) error {
	if w, ok := FromContext(ctx); ok {
		return fn(ctx, w)
	}

	tx, err := m.beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("unit of work: %w", err)
	}

	var opts []buffer.Option
	if m.checker != nil {
		opts = append(opts, buffer.WithGate(m.checker, m.business))
	}
	w := &Work{tx: tx, buf: buffer.New(m.writer.Bind(tx), opts...)}
	ctx = store.ContextWithTx(context.WithValue(ctx, ctxKey{}, w), tx)

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			m.logger.Error("unit of work rollback failed", "err", rbErr)
		}
	}()

	if err := fn(ctx, w); err != nil {
		return err
	}
	if w.buf.HasPending() {
		if err := w.buf.Flush(ctx); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("unit of work commit: %w", err)
	}
	committed = true
	return nil
}

// IsCallerDefect reports errors that retrying cannot fix.
func IsCallerDefect(err error) bool {
	var encErr *outbox.EncodingError
	return errors.Is(err, businessevent.ErrInvalidArgument) ||
		errors.Is(err, businessevent.ErrIllegalState) ||
		errors.As(err, &encErr)
}
