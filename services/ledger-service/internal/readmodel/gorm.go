package readmodel

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
)

type loanRow struct {
	ID                 int64  `gorm:"column:id" db:"id"`
	ExternalID         string `gorm:"column:external_id" db:"external_id"`
	AccountNo          string `gorm:"column:account_no" db:"account_no"`
	ClientID           int64  `gorm:"column:client_id" db:"client_id"`
	OfficeID           int64  `gorm:"column:office_id" db:"office_id"`
	ProductID          int64  `gorm:"column:product_id" db:"product_id"`
	ProductName        string `gorm:"column:product_name" db:"product_name"`
	Status             string `gorm:"column:status" db:"status"`
	Principal          string `gorm:"column:principal_amount" db:"principal_amount"`
	OutstandingBalance string `gorm:"column:total_outstanding" db:"total_outstanding"`
	Currency           string `gorm:"column:currency_code" db:"currency_code"`
}

type loanTransactionRow struct {
	ID               int64     `gorm:"column:id" db:"id"`
	LoanID           int64     `gorm:"column:loan_id" db:"loan_id"`
	LoanExternalID   string    `gorm:"column:loan_external_id" db:"loan_external_id"`
	Type             string    `gorm:"column:transaction_type" db:"transaction_type"`
	Amount           string    `gorm:"column:amount" db:"amount"`
	OutstandingAfter string    `gorm:"column:outstanding_after" db:"outstanding_after"`
	Currency         string    `gorm:"column:currency_code" db:"currency_code"`
	Date             time.Time `gorm:"column:transaction_date" db:"transaction_date"`
	Reversed         bool      `gorm:"column:is_reversed" db:"is_reversed"`
}

type savingsTransactionRow struct {
	ID             int64     `gorm:"column:id" db:"id"`
	AccountID      int64     `gorm:"column:savings_account_id" db:"savings_account_id"`
	AccountNo      string    `gorm:"column:account_no" db:"account_no"`
	Type           string    `gorm:"column:transaction_type" db:"transaction_type"`
	Amount         string    `gorm:"column:amount" db:"amount"`
	RunningBalance string    `gorm:"column:running_balance" db:"running_balance"`
	Currency       string    `gorm:"column:currency_code" db:"currency_code"`
	Date           time.Time `gorm:"column:transaction_date" db:"transaction_date"`
	Reversed       bool      `gorm:"column:is_reversed" db:"is_reversed"`
}

type transferRow struct {
	ID            int64     `gorm:"column:id" db:"id"`
	FromAccountNo string    `gorm:"column:from_account_no" db:"from_account_no"`
	ToAccountNo   string    `gorm:"column:to_account_no" db:"to_account_no"`
	Amount        string    `gorm:"column:amount" db:"amount"`
	Currency      string    `gorm:"column:currency_code" db:"currency_code"`
	Date          time.Time `gorm:"column:transaction_date" db:"transaction_date"`
}

type clientRow struct {
	ID          int64  `gorm:"column:id" db:"id"`
	ExternalID  string `gorm:"column:external_id" db:"external_id"`
	DisplayName string `gorm:"column:display_name" db:"display_name"`
	OfficeID    int64  `gorm:"column:office_id" db:"office_id"`
	Status      string `gorm:"column:status" db:"status"`
}

// GormRepository reads the ledger tables through gorm. Inside a unit of work backed by
// the postgres store the query is built by gorm and run on that unit's pgx transaction,
// so rows the business operation wrote but has not committed are visible.
type GormRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewGormRepository(db *gorm.DB, logger *slog.Logger) *GormRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &GormRepository{db: db, logger: logger}
}

type query func(tx *gorm.DB) *gorm.DB

func loanQuery(loanID int64) query {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Table("m_loan AS l").
			Select("l.id, COALESCE(l.external_id, '') AS external_id, l.account_no, l.client_id, c.office_id, l.product_id, p.name AS product_name, "+
				"l.status, l.principal_amount::text AS principal_amount, l.total_outstanding::text AS total_outstanding, "+
				"l.currency_code").
			Joins("JOIN m_client c ON c.id = l.client_id").
			Joins("JOIN m_product_loan p ON p.id = l.product_id").
			Where("l.id = ?", loanID).
			Limit(2)
	}
}

func loanTransactionQuery(loanID, transactionID int64) query {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Table("m_loan_transaction AS t").
			Select("t.id, t.loan_id, COALESCE(l.external_id, '') AS loan_external_id, t.transaction_type, t.amount::text AS amount, "+
				"t.outstanding_after::text AS outstanding_after, l.currency_code, t.transaction_date, t.is_reversed").
			Joins("JOIN m_loan l ON l.id = t.loan_id").
			Where("t.id = ? AND t.loan_id = ?", transactionID, loanID).
			Limit(2)
	}
}

func savingsTransactionQuery(accountID, transactionID int64) query {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Table("m_savings_account_transaction AS t").
			Select("t.id, t.savings_account_id, a.account_no, t.transaction_type, t.amount::text AS amount, "+
				"t.running_balance::text AS running_balance, a.currency_code, t.transaction_date, t.is_reversed").
			Joins("JOIN m_savings_account a ON a.id = t.savings_account_id").
			Where("t.id = ? AND t.savings_account_id = ?", transactionID, accountID).
			Limit(2)
	}
}

func transferQuery(transferID int64) query {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Table("m_account_transfer AS t").
			Select("t.id, f.account_no AS from_account_no, d.account_no AS to_account_no, t.amount::text AS amount, "+
				"t.currency_code, t.transaction_date").
			Joins("JOIN m_savings_account f ON f.id = t.from_savings_account_id").
			Joins("JOIN m_savings_account d ON d.id = t.to_savings_account_id").
			Where("t.id = ?", transferID).
			Limit(2)
	}
}

func clientQuery(clientID int64) query {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Table("m_client").
			Select("id, COALESCE(external_id, '') AS external_id, display_name, office_id, status").
			Where("id = ?", clientID).
			Limit(2)
	}
}

// pgxTx is implemented by the postgres store's transaction.
type pgxTx interface {
	Conn() pgx.Tx
}

func boundConn(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := store.TxFromContext(ctx)
	if !ok {
		return nil, false
	}
	c, ok := tx.(pgxTx)
	if !ok {
		return nil, false
	}
	return c.Conn(), true
}

// dryRun renders q without executing it, with postgres placeholders.
func dryRun[T any](ctx context.Context, db *gorm.DB, q query) (string, []any, error) {
	var rows []T
	stmt := q(db.Session(&gorm.Session{DryRun: true}).WithContext(ctx)).Find(&rows)
	if stmt.Error != nil {
		return "", nil, stmt.Error
	}
	return stmt.Statement.SQL.String(), stmt.Statement.Vars, nil
}

func find[T any](ctx context.Context, db *gorm.DB, q query) (T, error) {
	conn, ok := boundConn(ctx)
	if !ok {
		var rows []T
		err := q(db.WithContext(ctx)).Scan(&rows).Error
		return single(rows, err)
	}
	sql, vars, err := dryRun[T](ctx, db, q)
	if err != nil {
		var zero T
		return zero, err
	}
	pgRows, err := conn.Query(ctx, sql, vars...)
	if err != nil {
		var zero T
		return zero, err
	}
	rows, err := pgx.CollectRows(pgRows, pgx.RowToStructByName[T])
	return single(rows, err)
}

func (r *GormRepository) FindLoan(ctx context.Context, loanID int64) (LoanView, error) {
	row, err := find[loanRow](ctx, r.db, loanQuery(loanID))
	if err != nil {
		return LoanView{}, r.logError("readmodel_find_loan_failed", err, "loan_id", loanID)
	}
	return LoanView(row), nil
}

func (r *GormRepository) FindLoanTransaction(ctx context.Context, loanID, transactionID int64) (LoanTransactionView, error) {
	row, err := find[loanTransactionRow](ctx, r.db, loanTransactionQuery(loanID, transactionID))
	if err != nil {
		return LoanTransactionView{}, r.logError("readmodel_find_loan_transaction_failed", err,
			"loan_id", loanID, "transaction_id", transactionID)
	}
	return LoanTransactionView(row), nil
}

func (r *GormRepository) FindSavingsTransaction(ctx context.Context, accountID, transactionID int64) (SavingsTransactionView, error) {
	row, err := find[savingsTransactionRow](ctx, r.db, savingsTransactionQuery(accountID, transactionID))
	if err != nil {
		return SavingsTransactionView{}, r.logError("readmodel_find_savings_transaction_failed", err,
			"account_id", accountID, "transaction_id", transactionID)
	}
	return SavingsTransactionView(row), nil
}

func (r *GormRepository) FindTransfer(ctx context.Context, transferID int64) (TransferView, error) {
	row, err := find[transferRow](ctx, r.db, transferQuery(transferID))
	if err != nil {
		return TransferView{}, r.logError("readmodel_find_transfer_failed", err, "transfer_id", transferID)
	}
	return TransferView(row), nil
}

func (r *GormRepository) FindClient(ctx context.Context, clientID int64) (ClientView, error) {
	row, err := find[clientRow](ctx, r.db, clientQuery(clientID))
	if err != nil {
		return ClientView{}, r.logError("readmodel_find_client_failed", err, "client_id", clientID)
	}
	return ClientView(row), nil
}

func single[T any](rows []T, err error) (T, error) {
	var zero T
	switch {
	case err != nil:
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zero, ErrNotFound
		}
		return zero, err
	case len(rows) == 0:
		return zero, ErrNotFound
	case len(rows) > 1:
		return zero, ErrAmbiguous
	}
	return rows[0], nil
}

func (r *GormRepository) logError(msg string, err error, attrs ...any) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAmbiguous) {
		return err
	}
	r.logger.Error(msg, append(attrs, "err", err)...)
	return err
}
