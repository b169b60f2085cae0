// Package idempotency derives the deduplication key consumers use under at-least-once delivery.
package idempotency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
)

// ErrNoIdentity means the event type does not project any identity fields.
var ErrNoIdentity = errors.New("event type has no identity projection")

// Namespace seeds every name-based key. Changing it changes every key ever issued.
var Namespace = uuid.MustParse("6f1c1f7e-8a0b-5d0e-9b3a-4c6f8e2d9a10")

// separator cannot appear in decimal ids or type names, so joined inputs are unambiguous.
const separator = "\x1f"

type Generator interface {
	Derive(evt businessevent.Event) (string, error)
}

// NameBased derives a UUIDv5 from the event type and its identity projection.
type NameBased struct {
	Namespace uuid.UUID
}

func New() NameBased {
	return NameBased{Namespace: Namespace}
}

func (g NameBased) Derive(evt businessevent.Event) (string, error) {
	if evt == nil {
		return "", fmt.Errorf("derive idempotency key: %w", businessevent.ErrInvalidArgument)
	}
	fields := evt.Identity()
	if len(fields) == 0 {
		return "", fmt.Errorf("%s: %w", evt.Type(), ErrNoIdentity)
	}
	ns := g.Namespace
	if ns == uuid.Nil {
		ns = Namespace
	}
	name := evt.Type() + separator + strings.Join(fields, separator)
	return uuid.NewSHA1(ns, []byte(name)).String(), nil
}
