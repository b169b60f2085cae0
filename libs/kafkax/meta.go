package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// Header keys carried on every outbound business-event message.
const (
	HeaderIdempotencyKey = "idempotency_key"
	HeaderEventType      = "event_type"
	HeaderTenantID       = "tenant_id"
	HeaderDataSchema     = "data_schema"
	HeaderSource         = "source"
)

// EventMeta is the routing metadata a consumer needs before decoding the value.
type EventMeta struct {
	IdempotencyKey string
	EventType      string
	TenantID       string
	DataSchema     string
}

func ExtractEventMeta(msg kafka.Message) EventMeta {
	key := HeaderValue(msg.Headers, HeaderIdempotencyKey)
	if key == "" {
		key = string(msg.Key)
	}
	return EventMeta{
		IdempotencyKey: key,
		EventType:      HeaderValue(msg.Headers, HeaderEventType),
		TenantID:       HeaderValue(msg.Headers, HeaderTenantID),
		DataSchema:     HeaderValue(msg.Headers, HeaderDataSchema),
	}
}

// Headers renders meta (plus the producer source id) as kafka headers, skipping empty values.
func (m EventMeta) Headers(source string) []kafka.Header {
	pairs := [][2]string{
		{HeaderIdempotencyKey, m.IdempotencyKey},
		{HeaderEventType, m.EventType},
		{HeaderTenantID, m.TenantID},
		{HeaderDataSchema, m.DataSchema},
		{HeaderSource, source},
	}
	headers := make([]kafka.Header, 0, len(pairs))
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		headers = append(headers, kafka.Header{Key: p[0], Value: []byte(p[1])})
	}
	return headers
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
