package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func row(key string) *store.ExternalEvent {
	return &store.ExternalEvent{
		Type:            "LoanApprovedBusinessEvent",
		Category:        "LOAN",
		Schema:          "ledger.LOAN.v1.LoanAccountData",
		Data:            []byte(`{"id":42}`),
		IdempotencyKey:  key,
		BusinessDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:       time.Date(2024, 3, 1, 9, 30, 0, 123456000, time.UTC),
		TenantID:        "default",
		AggregateRootID: 42,
	}
}

func TestInsert_RoundTripsColumns(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	evt := row("k1")
	require.NoError(t, tx.Insert(ctx, evt))
	assert.NotZero(t, evt.ID)
	require.NoError(t, tx.Commit(ctx))

	events, err := s.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	got := events[0]
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, store.StatusToBeSent, got.Status)
	assert.Nil(t, got.SentAt)
	assert.True(t, got.BusinessDate.Equal(evt.BusinessDate))
	assert.True(t, got.CreatedAt.Equal(evt.CreatedAt))
	assert.Equal(t, evt.Data, got.Data)
}

func TestInsert_KeepsCalendarDateOfZonedBusinessDate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	evt := row("k1")
	evt.BusinessDate = time.Date(2024, 3, 1, 0, 0, 0, 0, time.FixedZone("UTC+5", 5*3600))
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, evt))
	require.NoError(t, tx.Commit(ctx))

	events, err := s.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "2024-03-01", events[0].BusinessDate.Format("2006-01-02"))
}

func TestInsert_DuplicateInSameTransaction(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, row("k1")))
	assert.ErrorIs(t, tx.Insert(ctx, row("k1")), store.ErrDuplicate)
	require.NoError(t, tx.Insert(ctx, row("k2")))
	require.NoError(t, tx.Commit(ctx))

	events, err := s.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestInsert_SameKeyOtherTenant(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, row("k1")))
	other := row("k1")
	other.TenantID = "branch-2"
	require.NoError(t, tx.Insert(ctx, other))
	require.NoError(t, tx.Commit(ctx))
}

func TestRollback_DiscardsRows(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, row("k1")))
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx))

	events, err := s.Events(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestProcessPending_MarksReturnedIDs(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, tx.Insert(ctx, row(k)))
	}
	require.NoError(t, tx.Commit(ctx))

	err = s.ProcessPending(ctx, 2, func(_ context.Context, events []store.ExternalEvent) ([]int64, error) {
		require.Len(t, events, 2)
		assert.Equal(t, "a", events[0].IdempotencyKey)
		return []int64{events[0].ID}, nil
	})
	require.NoError(t, err)

	events, err := s.Events(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSent, events[0].Status)
	assert.NotNil(t, events[0].SentAt)
	assert.Equal(t, store.StatusToBeSent, events[1].Status)
	assert.Equal(t, store.StatusToBeSent, events[2].Status)
}

func TestProcessPending_ErrorLeavesRowsPending(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, row("a")))
	require.NoError(t, tx.Commit(ctx))

	boom := errors.New("broker down")
	err = s.ProcessPending(ctx, 10, func(context.Context, []store.ExternalEvent) ([]int64, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	events, err := s.Events(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StatusToBeSent, events[0].Status)
}

func TestDeleteSentBefore(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, row("sent")))
	require.NoError(t, tx.Insert(ctx, row("pending")))
	require.NoError(t, tx.Commit(ctx))

	require.NoError(t, s.ProcessPending(ctx, 1, func(_ context.Context, events []store.ExternalEvent) ([]int64, error) {
		return []int64{events[0].ID}, nil
	}))

	n, err := s.DeleteSentBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeleteSentBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, err := s.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "pending", events[0].IdempotencyKey)
}
