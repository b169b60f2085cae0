// Package app wires the capture pipeline: serializers, key generator, outbox writer and
// unit-of-work manager.
package app

import (
	"log/slog"
	"time"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessctx"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/eventconfig"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/idempotency"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/metrics"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/outbox"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/serialization"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/uow"
)

type Deps struct {
	Store  store.Beginner
	Reader serialization.Reader
	// Config gates capture per tenant; nil captures every event type.
	Config   eventconfig.Checker
	Business businessctx.Provider
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Clock    func() time.Time
}

type Service struct {
	Registry *serialization.Registry
	Writer   *outbox.Writer
	UoW      *uow.Manager
}

func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Business == nil {
		d.Business = businessctx.ContextProvider{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(nil)
	}

	registry := serialization.Default(d.Reader)
	opts := []outbox.Option{outbox.WithLogger(d.Logger), outbox.WithMetrics(d.Metrics)}
	if d.Clock != nil {
		opts = append(opts, outbox.WithClock(d.Clock))
	}
	writer := outbox.NewWriter(registry, idempotency.New(), d.Business, opts...)

	uowOpts := []uow.Option{uow.WithLogger(d.Logger)}
	if d.Config != nil {
		uowOpts = append(uowOpts, uow.WithGate(d.Config, d.Business))
	}
	return &Service{
		Registry: registry,
		Writer:   writer,
		UoW:      uow.NewManager(d.Store, writer, uowOpts...),
	}
}
