package consumer

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/ledgerforge/ledgerforge/libs/envelope"
)

// Filter narrows which envelopes are printed. Empty fields match everything.
type Filter struct {
	TenantID string
	Types    map[string]bool
}

func (f Filter) match(m envelope.Message) bool {
	if f.TenantID != "" && f.TenantID != m.TenantID {
		return false
	}
	return len(f.Types) == 0 || f.Types[m.Type]
}

type line struct {
	envelope.Message
	Data json.RawMessage `json:"data"`
}

// Printer returns a Handler writing one JSON object per envelope to w. JSON payloads
// are embedded as objects, anything else as a base64 string.
func Printer(w io.Writer, f Filter) Handler {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(_ context.Context, m envelope.Message) error {
		if !f.match(m) {
			return nil
		}
		out := line{Message: m}
		if json.Valid(m.Data) {
			out.Data = json.RawMessage(m.Data)
		} else {
			b, err := json.Marshal(m.Data)
			if err != nil {
				return err
			}
			out.Data = b
		}
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(out)
	}
}
