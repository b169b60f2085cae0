// Package buffer collects the events raised during one unit of work until it commits.
package buffer

import (
	"context"
	"fmt"
	"sync"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessctx"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/eventconfig"
)

// Poster persists a bulk, typically through the outbox writer bound to the current transaction.
type Poster interface {
	Post(ctx context.Context, bulk *businessevent.Bulk) error
}

type Buffer struct {
	poster   Poster
	checker  eventconfig.Checker
	business businessctx.Provider

	mu      sync.Mutex
	pending []businessevent.Event
}

type Option func(*Buffer)

// WithGate drops events whose type the current tenant has not enabled.
func WithGate(checker eventconfig.Checker, business businessctx.Provider) Option {
	return func(b *Buffer) {
		b.checker = checker
		b.business = business
	}
}

func New(poster Poster, opts ...Option) *Buffer {
	b := &Buffer{poster: poster}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enqueue appends evt. A disabled event type is dropped and Enqueue returns nil.
func (b *Buffer) Enqueue(ctx context.Context, evt businessevent.Event) error {
	if evt == nil {
		return fmt.Errorf("enqueue: nil event: %w", businessevent.ErrInvalidArgument)
	}
	if b.checker != nil {
		bc, err := b.business.Current(ctx)
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", evt.Type(), err)
		}
		enabled, err := b.checker.IsEnabled(ctx, bc.TenantID, evt.Type())
		if err != nil {
			return fmt.Errorf("enqueue %s: check configuration: %w", evt.Type(), err)
		}
		if !enabled {
			return nil
		}
	}

	b.mu.Lock()
	b.pending = append(b.pending, evt)
	b.mu.Unlock()
	return nil
}

func (b *Buffer) HasPending() bool {
	return b.Len() > 0
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush posts every pending event as one bulk, in enqueue order. The buffer is cleared only
// when the post succeeds.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return fmt.Errorf("flush: no pending events: %w", businessevent.ErrIllegalState)
	}
	bulk, err := businessevent.NewBulk(b.pending...)
	if err != nil {
		return err
	}
	if err := b.poster.Post(ctx, bulk); err != nil {
		return err
	}
	b.pending = nil
	return nil
}
