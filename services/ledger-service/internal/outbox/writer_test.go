package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessctx"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/domain"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/idempotency"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/metrics"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/metrics/metricstest"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/readmodel"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/serialization"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store/memory"
)

type recordingInserter struct {
	rows []*store.ExternalEvent
	err  error
}

func (r *recordingInserter) Insert(_ context.Context, evt *store.ExternalEvent) error {
	if r.err != nil {
		return r.err
	}
	r.rows = append(r.rows, evt)
	return nil
}

var fixedNow = time.Date(2024, 3, 1, 14, 5, 9, 120000000, time.FixedZone("EAT", 3*3600))

func readModel() *readmodel.Memory {
	rm := readmodel.NewMemory()
	rm.PutLoan(readmodel.LoanView{ID: 42, AccountNo: "000000042"})
	rm.PutClient(readmodel.ClientView{ID: 7, DisplayName: "Ada"})
	return rm
}

func newWriter(t *testing.T, enc Encoder, opts ...Option) *Writer {
	t.Helper()
	bc := businessctx.Static{TenantID: "default", BusinessDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewWriter(enc, idempotency.New(), bc, opts...)
}

func mustBulk(t *testing.T, events ...businessevent.Event) *businessevent.Bulk {
	t.Helper()
	b, err := businessevent.NewBulk(events...)
	require.NoError(t, err)
	return b
}

func TestPost_BuildsRows(t *testing.T) {
	w := newWriter(t, serialization.Default(readModel()))
	ins := &recordingInserter{}
	loan := businessevent.LoanApproved.MustNew(&domain.Loan{ID: 42, Status: domain.LoanApproved})

	res, err := w.Post(context.Background(), ins, mustBulk(t, loan))
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 1}, res)

	require.Len(t, ins.rows, 1)
	row := ins.rows[0]
	assert.Equal(t, "LoanApprovedBusinessEvent", row.Type)
	assert.Equal(t, "LOAN", row.Category)
	assert.Equal(t, "ledger.LOAN.v1.LoanAccountData", row.Schema)
	assert.Equal(t, "default", row.TenantID)
	assert.Equal(t, int64(42), row.AggregateRootID)
	assert.Equal(t, store.StatusToBeSent, row.Status)
	assert.Equal(t, "2024-03-01", row.BusinessDate.Format("2006-01-02"))
	assert.Equal(t, time.UTC, row.CreatedAt.Location())
	assert.True(t, row.CreatedAt.Equal(fixedNow))

	key, err := idempotency.New().Derive(loan)
	require.NoError(t, err)
	assert.Equal(t, key, row.IdempotencyKey)
}

func TestPost_NilBulk(t *testing.T) {
	w := newWriter(t, serialization.Default(readModel()))
	_, err := w.Post(context.Background(), &recordingInserter{}, nil)
	assert.ErrorIs(t, err, businessevent.ErrInvalidArgument)
}

func TestPost_EncodingFailureWritesNothing(t *testing.T) {
	reg := serialization.NewRegistry(&serialization.ClientSerializer{Reader: readModel()})
	w := newWriter(t, reg)
	ins := &recordingInserter{}

	_, err := w.Post(context.Background(), ins, mustBulk(t,
		businessevent.ClientCreated.MustNew(&domain.Client{ID: 7}),
		businessevent.LoanApproved.MustNew(&domain.Loan{ID: 42}),
	))

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "LoanApprovedBusinessEvent", encErr.EventType)
	var unreg *serialization.UnregisteredTypeError
	assert.ErrorAs(t, err, &unreg)
	assert.Empty(t, ins.rows)
}

func TestPost_HydrationFailureIsEncodingError(t *testing.T) {
	w := newWriter(t, serialization.Default(readmodel.NewMemory()))
	_, err := w.Post(context.Background(), &recordingInserter{}, mustBulk(t,
		businessevent.LoanApproved.MustNew(&domain.Loan{ID: 42})))

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.ErrorIs(t, err, readmodel.ErrNotFound)
}

func TestPost_PersistenceError(t *testing.T) {
	w := newWriter(t, serialization.Default(readModel()))
	boom := errors.New("disk full")
	_, err := w.Post(context.Background(), &recordingInserter{err: boom}, mustBulk(t,
		businessevent.ClientCreated.MustNew(&domain.Client{ID: 7})))

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, boom)
}

func TestPost_MissingBusinessContext(t *testing.T) {
	w := NewWriter(serialization.Default(readModel()), idempotency.New(), businessctx.ContextProvider{})
	_, err := w.Post(context.Background(), &recordingInserter{}, mustBulk(t,
		businessevent.ClientCreated.MustNew(&domain.Client{ID: 7})))
	assert.ErrorIs(t, err, businessctx.ErrMissing)
}

// Re-running the same operation after a lost acknowledgement yields one row.
func TestPost_RetryIsAbsorbed(t *testing.T) {
	mp, reader := metricstest.NewProvider()
	w := newWriter(t, serialization.Default(readModel()), WithMetrics(metrics.New(mp)))
	s := memory.New()
	ctx := context.Background()

	for attempt := 0; attempt < 2; attempt++ {
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		res, err := w.Post(ctx, tx, mustBulk(t,
			businessevent.LoanApproved.MustNew(&domain.Loan{ID: 42, Version: 3})))
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))
		if attempt == 0 {
			assert.Equal(t, Result{Inserted: 1}, res)
		} else {
			assert.Equal(t, Result{Duplicates: 1}, res)
		}
	}

	assert.Len(t, s.Events(), 1)
	assert.Equal(t, int64(1), metricstest.Sum(t, reader, "outbox.events.written"))
	assert.Equal(t, int64(1), metricstest.Sum(t, reader, "outbox.events.duplicates"))
}

func TestBound_Post(t *testing.T) {
	w := newWriter(t, serialization.Default(readModel()))
	ins := &recordingInserter{}
	require.NoError(t, w.Bind(ins).Post(context.Background(), mustBulk(t,
		businessevent.ClientCreated.MustNew(&domain.Client{ID: 7}))))
	assert.Len(t, ins.rows, 1)
}
