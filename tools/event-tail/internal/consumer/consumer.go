// Package consumer reads outbox messages off the broker, drops redeliveries and hands
// each decoded envelope to a Handler.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ledgerforge/ledgerforge/libs/envelope"
	"github.com/ledgerforge/ledgerforge/libs/kafkax"
)

type Handler func(ctx context.Context, msg envelope.Message) error

// Reader is satisfied by *kafka.Reader.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Inbox interface {
	Record(ctx context.Context, tenantID, key, eventType string) (bool, error)
}

type Consumer struct {
	reader     Reader
	logger     *slog.Logger
	inbox      Inbox
	handler    Handler
	retryEvery time.Duration
	tracer     trace.Tracer
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func NewKafkaReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func New(logger *slog.Logger, reader Reader, ib Inbox, handler Handler) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:     reader,
		logger:     logger,
		inbox:      ib,
		handler:    handler,
		retryEvery: time.Second,
		tracer:     otel.Tracer("github.com/ledgerforge/ledgerforge/tools/event-tail/internal/consumer"),
	}
}

// Run consumes until ctx is done. Read errors are logged and retried; a message that
// cannot be decoded or handled is logged and skipped.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryEvery):
			}
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	ctx = kafkax.ExtractTraceContext(ctx, msg)
	ctx, span := c.tracer.Start(ctx, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	env, err := envelope.Decode(msg.Value)
	if err != nil {
		c.logger.Error("undecodable message skipped", "err", err, "offset", msg.Offset, "idempotency_key", meta.IdempotencyKey)
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		return
	}
	tenant, key := env.TenantID, env.IdempotencyKey
	if tenant == "" {
		tenant = meta.TenantID
	}
	if key == "" {
		key = meta.IdempotencyKey
	}
	span.SetAttributes(attribute.String("ledger.tenant", tenant), attribute.String("ledger.event_type", env.Type))

	ok, err := c.inbox.Record(ctx, tenant, key, env.Type)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err, "idempotency_key", key)
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbox")
		return
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "tenant", tenant, "idempotency_key", key, "event_type", env.Type)
		return
	}

	if err := c.handler(ctx, env); err != nil {
		c.logger.Error("handler error", "err", err, "idempotency_key", key)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler")
	}
}
