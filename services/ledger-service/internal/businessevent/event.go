// Package businessevent defines the typed envelopes raised by business operations.
//
// Every event type is declared once as a Definition, which owns the type name, the coarse
// category, and the identity projection used for idempotency keys. The set of definitions
// is closed: see All.
package businessevent

import (
	"fmt"
)

type Category string

const (
	CategoryLoan               Category = "LOAN"
	CategoryLoanTransaction    Category = "LOAN_TRANSACTION"
	CategorySavingsTransaction Category = "SAVINGS_TRANSACTION"
	CategoryAccountTransfer    Category = "ACCOUNT_TRANSFER"
	CategoryClient             Category = "CLIENT"
)

// Event is the type-erased view of a BusinessEvent as seen by the outbox pipeline.
type Event interface {
	Type() string
	Category() Category
	// AggregateRootID is the id of the entity downstream consumers partition by.
	AggregateRootID() int64
	// Identity is the type-specific projection of the fields that distinguish one
	// real-world occurrence from another. It must not include wall-clock time.
	Identity() []string
	Payload() any
}

// Definition describes one event type over payload T.
type Definition[T any] struct {
	name     string
	category Category
	root     func(*T) int64
	identity func(*T) []string
}

func define[T any](name string, category Category, root func(*T) int64, identity func(*T) []string) *Definition[T] {
	return &Definition[T]{name: name, category: category, root: root, identity: identity}
}

func (d *Definition[T]) Name() string { return d.name }

func (d *Definition[T]) Category() Category { return d.category }

// New wraps payload without copying it; the payload is read when the event is serialized.
func (d *Definition[T]) New(payload *T) (*BusinessEvent[T], error) {
	if payload == nil {
		return nil, fmt.Errorf("%s: nil payload: %w", d.name, ErrInvalidArgument)
	}
	return &BusinessEvent[T]{def: d, payload: payload}, nil
}

// MustNew is New for payloads the caller has already checked.
func (d *Definition[T]) MustNew(payload *T) *BusinessEvent[T] {
	evt, err := d.New(payload)
	if err != nil {
		panic(err)
	}
	return evt
}

// Match returns evt as a BusinessEvent of this definition.
func (d *Definition[T]) Match(evt Event) (*BusinessEvent[T], bool) {
	be, ok := evt.(*BusinessEvent[T])
	if !ok || be.def != d {
		return nil, false
	}
	return be, true
}

type BusinessEvent[T any] struct {
	def     *Definition[T]
	payload *T
}

func (e *BusinessEvent[T]) Type() string { return e.def.name }

func (e *BusinessEvent[T]) Category() Category { return e.def.category }

func (e *BusinessEvent[T]) AggregateRootID() int64 { return e.def.root(e.payload) }

func (e *BusinessEvent[T]) Identity() []string {
	if e.def.identity == nil {
		return nil
	}
	return e.def.identity(e.payload)
}

func (e *BusinessEvent[T]) Payload() any { return e.payload }

// Get returns the typed payload.
func (e *BusinessEvent[T]) Get() *T { return e.payload }

func (e *BusinessEvent[T]) String() string {
	return fmt.Sprintf("%s(root=%d)", e.def.name, e.AggregateRootID())
}
