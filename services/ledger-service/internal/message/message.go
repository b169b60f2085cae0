// Package message maps stored outbox rows to the envelope shipped to the broker.
package message

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerforge/ledgerforge/libs/envelope"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
)

const (
	timestampLayout = "2006-01-02T15:04:05.999999"
	dateLayout      = "2006-01-02"
)

var (
	sourceOnce sync.Once
	sourceID   string
)

// SourceID identifies this process incarnation. It is generated once and never changes
// while the process runs.
func SourceID() string {
	sourceOnce.Do(func() { sourceID = uuid.NewString() })
	return sourceID
}

// FormatTimestamp renders t in UTC with at most microsecond precision. Trailing zeros of
// the fraction are dropped, and so is the fraction itself when it is zero. There is no
// zone suffix.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(timestampLayout)
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

type Assembler struct {
	source string
}

func NewAssembler() Assembler {
	return Assembler{source: SourceID()}
}

func NewAssemblerWithSource(source string) Assembler {
	return Assembler{source: source}
}

func (a Assembler) Source() string { return a.source }

// Assemble is a pure function of the row and the assembler's source.
func (a Assembler) Assemble(row store.ExternalEvent) envelope.Message {
	return envelope.Message{
		ID:             row.ID,
		Source:         a.source,
		Type:           row.Type,
		Category:       row.Category,
		CreatedAt:      FormatTimestamp(row.CreatedAt),
		BusinessDate:   FormatDate(row.BusinessDate),
		TenantID:       row.TenantID,
		IdempotencyKey: row.IdempotencyKey,
		DataSchema:     row.Schema,
		Data:           append([]byte(nil), row.Data...),
	}
}
