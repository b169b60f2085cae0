// Package publisher ships pending outbox rows to Kafka.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ledgerforge/ledgerforge/libs/envelope"
	"github.com/ledgerforge/ledgerforge/libs/kafkax"
	otelx "github.com/ledgerforge/ledgerforge/libs/otel"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/message"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/metrics"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Config struct {
	Topic     string
	PollEvery time.Duration
	BatchSize int
	// MaxTries bounds write attempts per batch; rows that still fail stay pending
	// for the next poll.
	MaxTries uint
	// InitialBackoff is the first retry delay; it grows exponentially.
	InitialBackoff time.Duration
}

type Publisher struct {
	pending   store.Pending
	writer    MessageWriter
	assembler message.Assembler
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	cfg       Config
}

func New(pending store.Pending, writer MessageWriter, assembler message.Assembler, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Publisher {
	if cfg.Topic == "" {
		cfg.Topic = "ledger.external-events"
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Publisher{
		pending:   pending,
		writer:    writer,
		assembler: assembler,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("github.com/ledgerforge/ledgerforge/services/ledger-service/internal/publisher"),
		cfg:       cfg,
	}
}

// NewKafkaWriter builds the writer Publisher expects. Messages carry their own topic and
// are partitioned by key, so every event of one idempotency key lands on one partition.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// PublishOnce ships at most one batch and returns how many rows were marked sent.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	var sent int
	err := p.pending.ProcessPending(ctx, p.cfg.BatchSize, func(ctx context.Context, rows []store.ExternalEvent) ([]int64, error) {
		ids, err := p.publish(ctx, rows)
		sent = len(ids)
		return ids, err
	})
	return sent, err
}

func (p *Publisher) publish(ctx context.Context, rows []store.ExternalEvent) ([]int64, error) {
	ctx, span := p.tracer.Start(ctx, "outbox.publish", trace.WithAttributes(attribute.Int("outbox.batch_size", len(rows))))
	defer span.End()
	start := time.Now()

	pending := make([]kafka.Message, len(rows))
	pendingIDs := make([]int64, len(rows))
	for i, row := range rows {
		pending[i] = p.toKafka(ctx, row)
		pendingIDs[i] = row.ID
	}

	var delivered []int64
	op := func() (struct{}, error) {
		err := p.writer.WriteMessages(ctx, pending...)
		if err == nil {
			delivered = append(delivered, pendingIDs...)
			pending, pendingIDs = nil, nil
			return struct{}{}, nil
		}
		var werrs kafka.WriteErrors
		if errors.As(err, &werrs) && len(werrs) == len(pending) {
			var retryMsgs []kafka.Message
			var retryIDs []int64
			for i, werr := range werrs {
				if werr == nil {
					delivered = append(delivered, pendingIDs[i])
					continue
				}
				retryMsgs = append(retryMsgs, pending[i])
				retryIDs = append(retryIDs, pendingIDs[i])
			}
			pending, pendingIDs = retryMsgs, retryIDs
		}
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialBackoff
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(p.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Warn("outbox publish retry", "pending", len(pending), "next_in", next, "err", err)
		}),
	)
	if err != nil {
		p.metrics.PublishFailed(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("outbox rows left pending", "count", len(pending), "delivered", len(delivered), "err", err)
	}
	if len(delivered) == 0 {
		return nil, err
	}
	p.metrics.Published(ctx, len(delivered), float64(time.Since(start).Milliseconds()))
	return delivered, nil
}

func (p *Publisher) toKafka(ctx context.Context, row store.ExternalEvent) kafka.Message {
	m := p.assembler.Assemble(row)
	meta := kafkax.EventMeta{
		IdempotencyKey: m.IdempotencyKey,
		EventType:      m.Type,
		TenantID:       m.TenantID,
		DataSchema:     m.DataSchema,
	}
	msgCtx := otelx.TraceContext{Parent: row.Traceparent, State: row.Tracestate}.Restore(ctx)
	return kafka.Message{
		Topic:   p.cfg.Topic,
		Key:     []byte(m.IdempotencyKey),
		Value:   envelope.Encode(m),
		Headers: kafkax.InjectTraceHeaders(msgCtx, meta.Headers(m.Source)),
	}
}
