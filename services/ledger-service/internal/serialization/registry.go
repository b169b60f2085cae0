// Package serialization turns business events into the versioned payloads stored in the outbox.
package serialization

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
)

// Encoded is a serialized payload together with the schema identifier consumers decode it by.
type Encoded struct {
	Schema string
	Data   []byte
}

type Serializer interface {
	CanSerialize(evt businessevent.Event) bool
	Serialize(ctx context.Context, evt businessevent.Event) (Encoded, error)
}

// UnregisteredTypeError is returned when no serializer claims an event type.
type UnregisteredTypeError struct {
	EventType string
}

func (e *UnregisteredTypeError) Error() string {
	return fmt.Sprintf("serialization: no serializer registered for %s", e.EventType)
}

// Registry resolves events to serializers in registration order.
type Registry struct {
	serializers []Serializer
}

func NewRegistry(serializers ...Serializer) *Registry {
	return &Registry{serializers: serializers}
}

// Register appends s; earlier registrations win.
func (r *Registry) Register(s Serializer) {
	r.serializers = append(r.serializers, s)
}

func (r *Registry) Resolve(evt businessevent.Event) (Serializer, error) {
	if evt == nil {
		return nil, fmt.Errorf("serialization: nil event: %w", businessevent.ErrInvalidArgument)
	}
	for _, s := range r.serializers {
		if s.CanSerialize(evt) {
			return s, nil
		}
	}
	return nil, &UnregisteredTypeError{EventType: evt.Type()}
}

func (r *Registry) Serialize(ctx context.Context, evt businessevent.Event) (Encoded, error) {
	s, err := r.Resolve(evt)
	if err != nil {
		return Encoded{}, err
	}
	return s.Serialize(ctx, evt)
}

func schemaID(category businessevent.Category, view string) string {
	return fmt.Sprintf("ledger.%s.v1.%s", category, view)
}

func encodeJSON(schema string, v any) (Encoded, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Encoded{}, fmt.Errorf("encode %s: %w", schema, err)
	}
	return Encoded{Schema: schema, Data: data}, nil
}
