// Package outbox writes business events into the outbox table inside the caller's transaction.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/ledgerforge/ledgerforge/libs/otel"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessctx"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/idempotency"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/metrics"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/serialization"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
)

type Encoder interface {
	Serialize(ctx context.Context, evt businessevent.Event) (serialization.Encoded, error)
}

// Result reports what one Post did.
type Result struct {
	Inserted   int
	Duplicates int
}

type Writer struct {
	encoder  Encoder
	keys     idempotency.Generator
	business businessctx.Provider
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Writer)

// WithClock replaces the wall clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

func NewWriter(encoder Encoder, keys idempotency.Generator, business businessctx.Provider, opts ...Option) *Writer {
	w := &Writer{
		encoder:  encoder,
		keys:     keys,
		business: business,
		now:      time.Now,
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/ledgerforge/ledgerforge/services/ledger-service/internal/outbox"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.metrics == nil {
		w.metrics = metrics.New(nil)
	}
	return w
}

// Post converts every event of bulk into a row and inserts it through ins. It never opens,
// commits or rolls back a transaction. Encoding happens for the whole bulk before the
// first insert; an idempotency conflict skips that event and is not an error.
func (w *Writer) Post(ctx context.Context, ins store.Inserter, bulk *businessevent.Bulk) (Result, error) {
	if bulk == nil {
		return Result{}, fmt.Errorf("outbox: nil bulk: %w", businessevent.ErrInvalidArgument)
	}
	if ins == nil {
		return Result{}, fmt.Errorf("outbox: nil inserter: %w", businessevent.ErrInvalidArgument)
	}

	ctx, span := w.tracer.Start(ctx, "outbox.post", trace.WithAttributes(attribute.Int("outbox.bulk_size", bulk.Len())))
	defer span.End()

	res, err := w.post(ctx, ins, bulk)
	span.SetAttributes(attribute.Int("outbox.inserted", res.Inserted), attribute.Int("outbox.duplicates", res.Duplicates))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (w *Writer) post(ctx context.Context, ins store.Inserter, bulk *businessevent.Bulk) (Result, error) {
	bc, err := w.business.Current(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("outbox: resolve business context: %w", err)
	}
	tc := otelx.CaptureTraceContext(ctx)

	events := bulk.Events()
	rows := make([]*store.ExternalEvent, 0, len(events))
	for _, evt := range events {
		row, err := w.encode(ctx, evt, bc)
		if err != nil {
			return Result{}, err
		}
		row.Traceparent, row.Tracestate = tc.Parent, tc.State
		rows = append(rows, row)
	}

	var res Result
	for _, row := range rows {
		err := ins.Insert(ctx, row)
		switch {
		case errors.Is(err, store.ErrDuplicate):
			res.Duplicates++
			w.metrics.Duplicate(ctx, row.Type)
			w.logger.DebugContext(ctx, "outbox duplicate absorbed",
				"tenant_id", row.TenantID, "event_type", row.Type, "idempotency_key", row.IdempotencyKey)
		case err != nil:
			return res, &PersistenceError{EventType: row.Type, Err: err}
		default:
			res.Inserted++
			w.metrics.EventWritten(ctx, row.Type)
		}
	}
	return res, nil
}

func (w *Writer) encode(ctx context.Context, evt businessevent.Event, bc businessctx.Context) (*store.ExternalEvent, error) {
	enc, err := w.encoder.Serialize(ctx, evt)
	if err != nil {
		return nil, &EncodingError{EventType: evt.Type(), Err: err}
	}
	key, err := w.keys.Derive(evt)
	if err != nil {
		return nil, &EncodingError{EventType: evt.Type(), Err: err}
	}
	return &store.ExternalEvent{
		Type:            evt.Type(),
		Category:        string(evt.Category()),
		Schema:          enc.Schema,
		Data:            enc.Data,
		IdempotencyKey:  key,
		BusinessDate:    bc.BusinessDate,
		CreatedAt:       w.now().UTC(),
		TenantID:        bc.TenantID,
		AggregateRootID: evt.AggregateRootID(),
		Status:          store.StatusToBeSent,
	}, nil
}

// Bound is a Writer tied to one transaction.
type Bound struct {
	w   *Writer
	ins store.Inserter
}

func (w *Writer) Bind(ins store.Inserter) *Bound {
	return &Bound{w: w, ins: ins}
}

func (b *Bound) Post(ctx context.Context, bulk *businessevent.Bulk) error {
	_, err := b.w.Post(ctx, b.ins, bulk)
	return err
}
