package outbox

import "fmt"

// EncodingError means an event could not be turned into a row. Nothing was inserted for
// the bulk it belonged to.
type EncodingError struct {
	EventType string
	Err       error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("outbox: encode %s: %v", e.EventType, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// PersistenceError wraps a store failure other than an idempotency conflict.
type PersistenceError struct {
	EventType string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("outbox: persist %s: %v", e.EventType, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
