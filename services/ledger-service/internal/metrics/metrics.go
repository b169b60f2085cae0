// Package metrics holds the OpenTelemetry instruments of the outbox pipeline.
package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scope = "github.com/ledgerforge/ledgerforge/services/ledger-service"

type Metrics struct {
	eventsWritten     metric.Int64Counter
	duplicates        metric.Int64Counter
	messagesPublished metric.Int64Counter
	publishFailures   metric.Int64Counter
	rowsPurged        metric.Int64Counter
	batchLatency      metric.Float64Histogram
}

// New builds the instruments from mp, or from the global provider when mp is nil.
// Instrument errors degrade to no-op instruments.
func New(mp metric.MeterProvider) *Metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m, err := build(mp.Meter(scope))
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op instruments", "err", err)
		m, _ = build(noop.NewMeterProvider().Meter(scope))
	}
	return m
}

func build(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.eventsWritten, err = meter.Int64Counter("outbox.events.written",
		metric.WithDescription("Outbox rows inserted")); err != nil {
		return nil, err
	}
	if m.duplicates, err = meter.Int64Counter("outbox.events.duplicates",
		metric.WithDescription("Inserts absorbed by the idempotency constraint")); err != nil {
		return nil, err
	}
	if m.messagesPublished, err = meter.Int64Counter("outbox.messages.published",
		metric.WithDescription("Messages acknowledged by the broker")); err != nil {
		return nil, err
	}
	if m.publishFailures, err = meter.Int64Counter("outbox.publish.failures",
		metric.WithDescription("Publish batches that failed and stay pending")); err != nil {
		return nil, err
	}
	if m.rowsPurged, err = meter.Int64Counter("outbox.rows.purged",
		metric.WithDescription("Sent rows deleted by retention")); err != nil {
		return nil, err
	}
	if m.batchLatency, err = meter.Float64Histogram("outbox.publish.batch_latency_ms",
		metric.WithDescription("Publish batch latency in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) EventWritten(ctx context.Context, eventType string) {
	m.eventsWritten.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (m *Metrics) Duplicate(ctx context.Context, eventType string) {
	m.duplicates.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (m *Metrics) Published(ctx context.Context, n int, latencyMs float64) {
	m.messagesPublished.Add(ctx, int64(n))
	m.batchLatency.Record(ctx, latencyMs)
}

func (m *Metrics) PublishFailed(ctx context.Context) {
	m.publishFailures.Add(ctx, 1)
}

func (m *Metrics) Purged(ctx context.Context, n int64) {
	m.rowsPurged.Add(ctx, n)
}
