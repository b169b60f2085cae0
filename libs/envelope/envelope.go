// Package envelope is the binary frame carried in the value of every outbox message on
// the broker. Producers and consumers share it, so field numbers are fixed forever.
package envelope

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is the transport envelope. Timestamps are already rendered as text.
type Message struct {
	ID             int64  `json:"id"`
	Source         string `json:"source"`
	Type           string `json:"type"`
	Category       string `json:"category"`
	CreatedAt      string `json:"createdAt"`
	BusinessDate   string `json:"businessDate"`
	TenantID       string `json:"tenantId"`
	IdempotencyKey string `json:"idempotencyKey"`
	DataSchema     string `json:"dataschema"`
	Data           []byte `json:"data"`
}

// Field numbers of the binary envelope. Never reuse or renumber.
const (
	fieldID             protowire.Number = 1
	fieldSource         protowire.Number = 2
	fieldType           protowire.Number = 3
	fieldCategory       protowire.Number = 4
	fieldCreatedAt      protowire.Number = 5
	fieldBusinessDate   protowire.Number = 6
	fieldTenantID       protowire.Number = 7
	fieldIdempotencyKey protowire.Number = 8
	fieldDataSchema     protowire.Number = 9
	fieldData           protowire.Number = 10
)

var ErrMalformed = errors.New("envelope: malformed")

// Encode writes m in protobuf wire format, fields in ascending order.
func Encode(m Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ID))
	b = appendString(b, fieldSource, m.Source)
	b = appendString(b, fieldType, m.Type)
	b = appendString(b, fieldCategory, m.Category)
	b = appendString(b, fieldCreatedAt, m.CreatedAt)
	b = appendString(b, fieldBusinessDate, m.BusinessDate)
	b = appendString(b, fieldTenantID, m.TenantID)
	b = appendString(b, fieldIdempotencyKey, m.IdempotencyKey)
	b = appendString(b, fieldDataSchema, m.DataSchema)
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Data)
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// Decode parses an envelope produced by Encode. Unknown fields are skipped.
func Decode(b []byte) (Message, error) {
	var m Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		if num == fieldID && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: id: %v", ErrMalformed, protowire.ParseError(n))
			}
			m.ID = int64(v)
			b = b[n:]
			continue
		}

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return Message{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldSource:
			m.Source = string(v)
		case fieldType:
			m.Type = string(v)
		case fieldCategory:
			m.Category = string(v)
		case fieldCreatedAt:
			m.CreatedAt = string(v)
		case fieldBusinessDate:
			m.BusinessDate = string(v)
		case fieldTenantID:
			m.TenantID = string(v)
		case fieldIdempotencyKey:
			m.IdempotencyKey = string(v)
		case fieldDataSchema:
			m.DataSchema = string(v)
		case fieldData:
			m.Data = append([]byte(nil), v...)
		}
	}
	return m, nil
}
