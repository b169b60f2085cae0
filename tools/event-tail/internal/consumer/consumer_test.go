package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerforge/libs/envelope"
	"github.com/ledgerforge/ledgerforge/libs/kafkax"
)

type fakeReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	errs   []error
	closed bool
	done   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{msgs: msgs, done: make(chan struct{})}
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type memInbox struct {
	seen map[string]bool
	err  error
}

func (m *memInbox) Record(_ context.Context, tenantID, key, _ string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	k := tenantID + "/" + key
	if m.seen[k] {
		return false, nil
	}
	m.seen[k] = true
	return true, nil
}

func fixture(id int64, tenant, key, typ string) envelope.Message {
	return envelope.Message{
		ID:             id,
		Source:         "src-1",
		Type:           typ,
		Category:       "LOAN",
		CreatedAt:      "2024-03-01T09:30:15.25",
		BusinessDate:   "2024-03-01",
		TenantID:       tenant,
		IdempotencyKey: key,
		DataSchema:     "ledger.LOAN.v1.LoanAccountData",
		Data:           []byte(`{"id":42}`),
	}
}

func toKafka(m envelope.Message) kafka.Message {
	meta := kafkax.EventMeta{IdempotencyKey: m.IdempotencyKey, EventType: m.Type, TenantID: m.TenantID, DataSchema: m.DataSchema}
	return kafka.Message{
		Topic:   "ledger.external-events",
		Key:     []byte(m.IdempotencyKey),
		Value:   envelope.Encode(m),
		Headers: meta.Headers(m.Source),
	}
}

func runUntilDrained(t *testing.T, r *fakeReader, c *Consumer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(stopped)
	}()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("reader not drained")
	}
	cancel()
	<-stopped
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestRun_PrintsOncePerEvent(t *testing.T) {
	a := fixture(1, "default", "k1", "LoanApprovedBusinessEvent")
	b := fixture(2, "default", "k2", "LoanDisbursalBusinessEvent")
	r := newFakeReader(toKafka(a), toKafka(a), toKafka(b))

	var out bytes.Buffer
	c := New(quietLogger(), r, &memInbox{}, Printer(&out, Filter{}))
	runUntilDrained(t, r, c)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "k1", got["idempotencyKey"])
	assert.Equal(t, "LoanApprovedBusinessEvent", got["type"])
	assert.Equal(t, map[string]any{"id": float64(42)}, got["data"])
	assert.True(t, r.closed)
}

func TestRun_SkipsUndecodableAndRetriesReadErrors(t *testing.T) {
	good := fixture(1, "default", "k1", "LoanApprovedBusinessEvent")
	bad := toKafka(good)
	bad.Value = bad.Value[:len(bad.Value)-3]
	r := newFakeReader(bad, toKafka(good))
	r.errs = []error{errors.New("broker unavailable")}

	var out bytes.Buffer
	c := New(quietLogger(), r, &memInbox{}, Printer(&out, Filter{}))
	c.retryEvery = time.Millisecond
	runUntilDrained(t, r, c)

	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}

func TestRun_InboxFailureSkipsHandler(t *testing.T) {
	r := newFakeReader(toKafka(fixture(1, "default", "k1", "LoanApprovedBusinessEvent")))
	called := false
	c := New(quietLogger(), r, &memInbox{err: errors.New("disk full")}, func(context.Context, envelope.Message) error {
		called = true
		return nil
	})
	runUntilDrained(t, r, c)
	assert.False(t, called)
}

func TestPrinter_Filter(t *testing.T) {
	var out bytes.Buffer
	p := Printer(&out, Filter{TenantID: "default", Types: map[string]bool{"LoanApprovedBusinessEvent": true}})
	ctx := context.Background()

	require.NoError(t, p(ctx, fixture(1, "other", "k1", "LoanApprovedBusinessEvent")))
	require.NoError(t, p(ctx, fixture(2, "default", "k2", "ClientCreateBusinessEvent")))
	require.NoError(t, p(ctx, fixture(3, "default", "k3", "LoanApprovedBusinessEvent")))

	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), `"idempotencyKey":"k3"`)
}

func TestPrinter_NonJSONData(t *testing.T) {
	var out bytes.Buffer
	m := fixture(1, "default", "k1", "LoanApprovedBusinessEvent")
	m.Data = []byte{0xff, 0x00}
	require.NoError(t, Printer(&out, Filter{})(context.Background(), m))
	assert.Contains(t, out.String(), `"data":"/wA="`)
}
