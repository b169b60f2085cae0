package businessevent

import "fmt"

// Bulk is the ordered set of events raised within one unit of work.
type Bulk struct {
	events []Event
}

// NewBulk rejects an empty sequence; flushing nothing is a caller defect.
func NewBulk(events ...Event) (*Bulk, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("bulk event without events: %w", ErrIllegalState)
	}
	for i, e := range events {
		if e == nil {
			return nil, fmt.Errorf("bulk event member %d is nil: %w", i, ErrInvalidArgument)
		}
	}
	cp := make([]Event, len(events))
	copy(cp, events)
	return &Bulk{events: cp}, nil
}

func (b *Bulk) Len() int { return len(b.events) }

// Events returns a copy of the events in enqueue order.
func (b *Bulk) Events() []Event {
	cp := make([]Event, len(b.events))
	copy(cp, b.events)
	return cp
}
