package uow

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessctx"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/domain"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/eventconfig"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/idempotency"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/outbox"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/readmodel"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/serialization"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store/sqlite"
)

var business = businessctx.Static{TenantID: "default", BusinessDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}

type fixture struct {
	store   *sqlite.Store
	manager *Manager
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.(*sqlite.Tx).Conn().ExecContext(ctx, `CREATE TABLE m_client (id INTEGER PRIMARY KEY, status TEXT)`)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	rm := readmodel.NewMemory()
	for i := int64(1); i <= 3; i++ {
		rm.PutClient(readmodel.ClientView{ID: i, DisplayName: "client"})
	}
	w := outbox.NewWriter(serialization.Default(rm), idempotency.New(), business)
	return fixture{store: s, manager: NewManager(s, w, opts...)}
}

func (f fixture) rows(t *testing.T) int {
	t.Helper()
	events, err := f.store.Events(context.Background())
	require.NoError(t, err)
	return len(events)
}

func (f fixture) clients(t *testing.T) int {
	t.Helper()
	ctx := context.Background()
	tx, err := f.store.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()
	var n int
	require.NoError(t, tx.(*sqlite.Tx).Conn().QueryRowContext(ctx, `SELECT count(*) FROM m_client`).Scan(&n))
	return n
}

func createClient(ctx context.Context, w *Work, id int64) error {
	if _, err := w.Tx().(*sqlite.Tx).Conn().ExecContext(ctx,
		`INSERT INTO m_client (id, status) VALUES (?, 'ACTIVE')`, id); err != nil {
		return err
	}
	return w.Enqueue(ctx, businessevent.ClientCreated.MustNew(&domain.Client{ID: id}))
}

func TestRun_CommitWritesEveryEvent(t *testing.T) {
	f := newFixture(t)
	err := f.manager.Run(context.Background(), func(ctx context.Context, w *Work) error {
		for id := int64(1); id <= 3; id++ {
			if err := createClient(ctx, w, id); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, f.rows(t))
	assert.Equal(t, 3, f.clients(t))
}

func TestRun_ErrorRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("insufficient funds")
	err := f.manager.Run(context.Background(), func(ctx context.Context, w *Work) error {
		if err := createClient(ctx, w, 1); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, f.rows(t))
	assert.Zero(t, f.clients(t))
}

func TestRun_EncodingFailureRollsBackBusinessWrite(t *testing.T) {
	f := newFixture(t)
	err := f.manager.Run(context.Background(), func(ctx context.Context, w *Work) error {
		// Client 99 has no read-model row, so serialization fails at flush.
		return createClient(ctx, w, 99)
	})
	var encErr *outbox.EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.True(t, IsCallerDefect(err))
	assert.Zero(t, f.rows(t))
	assert.Zero(t, f.clients(t))
}

func TestRun_PanicRollsBack(t *testing.T) {
	f := newFixture(t)
	assert.Panics(t, func() {
		_ = f.manager.Run(context.Background(), func(ctx context.Context, w *Work) error {
			_ = createClient(ctx, w, 1)
			panic("boom")
		})
	})
	assert.Zero(t, f.rows(t))
	assert.Zero(t, f.clients(t))
}

func TestRun_NestedSharesOuterUnit(t *testing.T) {
	f := newFixture(t)
	err := f.manager.Run(context.Background(), func(ctx context.Context, outer *Work) error {
		if err := createClient(ctx, outer, 1); err != nil {
			return err
		}
		return f.manager.Run(ctx, func(ctx context.Context, inner *Work) error {
			assert.Same(t, outer, inner)
			if err := createClient(ctx, inner, 2); err != nil {
				return err
			}
			assert.Equal(t, 2, inner.Pending())
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, f.rows(t))
}

func TestRun_NothingPendingStillCommits(t *testing.T) {
	f := newFixture(t)
	err := f.manager.Run(context.Background(), func(ctx context.Context, w *Work) error {
		_, err := w.Tx().(*sqlite.Tx).Conn().ExecContext(ctx, `INSERT INTO m_client (id, status) VALUES (1, 'ACTIVE')`)
		return err
	})
	require.NoError(t, err)
	assert.Zero(t, f.rows(t))
	assert.Equal(t, 1, f.clients(t))
}

func TestRun_GateSkipsDisabledTypes(t *testing.T) {
	cfg := eventconfig.NewMemory(nil)
	f := newFixture(t, WithGate(cfg, business))
	err := f.manager.Run(context.Background(), func(ctx context.Context, w *Work) error {
		return createClient(ctx, w, 1)
	})
	require.NoError(t, err)
	assert.Zero(t, f.rows(t))
	assert.Equal(t, 1, f.clients(t))
}

func TestEnqueue_OutsideUnitOfWork(t *testing.T) {
	err := Enqueue(context.Background(), businessevent.ClientCreated.MustNew(&domain.Client{ID: 1}))
	assert.ErrorIs(t, err, businessevent.ErrIllegalState)
}

func TestEnqueue_ThroughContext(t *testing.T) {
	f := newFixture(t)
	err := f.manager.Run(context.Background(), func(ctx context.Context, _ *Work) error {
		return Enqueue(ctx, businessevent.ClientCreated.MustNew(&domain.Client{ID: 1}))
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.rows(t))
}

// txClientReader reads m_client through the transaction carried by ctx, the way the
// postgres read model joins the unit of work.
type txClientReader struct{}

func (txClientReader) FindClient(ctx context.Context, clientID int64) (readmodel.ClientView, error) {
	tx, ok := store.TxFromContext(ctx)
	if !ok {
		return readmodel.ClientView{}, errors.New("no transaction on context")
	}
	v := readmodel.ClientView{ID: clientID}
	err := tx.(*sqlite.Tx).Conn().QueryRowContext(ctx,
		`SELECT 'client ' || id FROM m_client WHERE id = ?`, clientID).Scan(&v.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return readmodel.ClientView{}, readmodel.ErrNotFound
	}
	return v, err
}

func TestRun_SerializerSeesRowsWrittenEarlierInTheUnit(t *testing.T) {
	f := newFixture(t)
	registry := serialization.NewRegistry(&serialization.ClientSerializer{Reader: txClientReader{}})
	m := NewManager(f.store, outbox.NewWriter(registry, idempotency.New(), business))

	err := m.Run(context.Background(), func(ctx context.Context, w *Work) error {
		return createClient(ctx, w, 9)
	})
	require.NoError(t, err)

	events, err := f.store.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"id":9,"displayName":"client 9","officeId":0,"status":""}`, string(events[0].Data))
}
