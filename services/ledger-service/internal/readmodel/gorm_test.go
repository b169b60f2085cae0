package readmodel

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ledgerforge/ledgerforge/libs/db"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
	pgstore "github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store/postgres"
)

// offlineGorm builds a postgres-dialect gorm handle that never connects.
func offlineGorm(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=127.0.0.1 port=1 user=ledger dbname=ledger sslmode=disable"}),
		&gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	return gdb
}

func TestDryRun_RendersPostgresPlaceholders(t *testing.T) {
	gdb := offlineGorm(t)

	sql, vars, err := dryRun[loanTransactionRow](context.Background(), gdb, loanTransactionQuery(42, 7))
	require.NoError(t, err)
	assert.Contains(t, sql, "m_loan_transaction")
	assert.Contains(t, sql, "t.id = $1 AND t.loan_id = $2")
	assert.Contains(t, sql, "LIMIT 2")
	assert.Equal(t, []any{int64(7), int64(42)}, vars)
}

type sqliteLikeTx struct{ store.Tx }

func TestBoundConn_OnlyPostgresTransactions(t *testing.T) {
	_, ok := boundConn(context.Background())
	assert.False(t, ok)

	ctx := store.ContextWithTx(context.Background(), sqliteLikeTx{})
	_, ok = boundConn(ctx)
	assert.False(t, ok, "a transaction without a pgx connection falls back to the gorm pool")
}

const testSchema = `
CREATE TABLE IF NOT EXISTS m_client (
	id           BIGINT PRIMARY KEY,
	external_id  TEXT NULL,
	display_name TEXT NOT NULL,
	office_id    BIGINT NOT NULL,
	status       TEXT NOT NULL
);
`

func TestGormRepository_SeesUncommittedRowsOfTheUnitOfWork(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)

	gdb, err := db.OpenGorm(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.CloseGorm(gdb) })
	repo := NewGormRepository(gdb, nil)

	s := pgstore.New(pool)
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	clientID := int64(uuid.New().ID()) + 1<<33
	_, err = tx.(*pgstore.Tx).Conn().Exec(ctx,
		`INSERT INTO m_client (id, display_name, office_id, status) VALUES ($1, 'Amina W.', 1, 'ACTIVE')`, clientID)
	require.NoError(t, err)

	got, err := repo.FindClient(store.ContextWithTx(ctx, tx), clientID)
	require.NoError(t, err)
	assert.Equal(t, "Amina W.", got.DisplayName)
	assert.Equal(t, "", got.ExternalID)

	_, err = repo.FindClient(ctx, clientID)
	assert.ErrorIs(t, err, ErrNotFound, "other connections must not see the uncommitted insert")
}
