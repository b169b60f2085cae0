package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerforge/libs/db"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
)

// openTestStore connects to TEST_DATABASE_URL and skips when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func row(tenant, key string) *store.ExternalEvent {
	return &store.ExternalEvent{
		Type:            "LoanApprovedBusinessEvent",
		Category:        "LOAN",
		Schema:          "ledger.LOAN.v1.LoanAccountData",
		Data:            []byte(`{"id":42}`),
		IdempotencyKey:  key,
		BusinessDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:       time.Now().UTC(),
		TenantID:        tenant,
		AggregateRootID: 42,
	}
}

func TestInsert_DuplicateKeepsTransactionUsable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tenant := "t-" + uuid.NewString()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, row(tenant, "k1")))
	assert.ErrorIs(t, tx.Insert(ctx, row(tenant, "k1")), store.ErrDuplicate)
	require.NoError(t, tx.Insert(ctx, row(tenant, "k2")))
	require.NoError(t, tx.Commit(ctx))

	n, err := s.CountByKey(ctx, tenant, "k1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRollback_LeavesNoRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tenant := "t-" + uuid.NewString()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, row(tenant, "k1")))
	require.NoError(t, tx.Rollback(ctx))

	n, err := s.CountByKey(ctx, tenant, "k1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
