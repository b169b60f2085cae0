// Package ledger holds the business commands that raise events in this service.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/domain"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/uow"
)

var (
	ErrLoanNotFound      = errors.New("loan not found")
	ErrInvalidTransition = errors.New("loan is not awaiting approval")
)

// LoanRepository changes loan state inside the unit of work's transaction.
type LoanRepository interface {
	Approve(ctx context.Context, w *uow.Work, loanID int64) (*domain.Loan, error)
}

type Loans struct {
	uow  *uow.Manager
	repo LoanRepository
}

func NewLoans(m *uow.Manager, repo LoanRepository) *Loans {
	return &Loans{uow: m, repo: repo}
}

// Approve moves a submitted loan to APPROVED and records LoanApprovedBusinessEvent in the
// same transaction.
func (l *Loans) Approve(ctx context.Context, loanID int64) (*domain.Loan, error) {
	var approved *domain.Loan
	err := l.uow.Run(ctx, func(ctx context.Context, w *uow.Work) error {
		loan, err := l.repo.Approve(ctx, w, loanID)
		if err != nil {
			return err
		}
		approved = loan
		return w.Enqueue(ctx, businessevent.LoanApproved.MustNew(loan))
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

type pgxConn interface {
	Conn() pgx.Tx
}

// PgLoanRepository updates m_loan through the postgres transaction of the unit of work.
type PgLoanRepository struct{}

func (PgLoanRepository) Approve(ctx context.Context, w *uow.Work, loanID int64) (*domain.Loan, error) {
	c, ok := w.Tx().(pgxConn)
	if !ok {
		return nil, fmt.Errorf("loan repository needs a postgres transaction, got %T", w.Tx())
	}
	loan := domain.Loan{ID: loanID}
	var status string
	err := c.Conn().QueryRow(ctx, `
		UPDATE m_loan AS l
		SET status = $2, version = l.version + 1
		FROM m_client AS c
		WHERE l.id = $1 AND l.status = $3 AND c.id = l.client_id
		RETURNING l.external_id, l.client_id, c.office_id, l.product_id, l.status,
		          l.principal_amount::text, l.currency_code, l.version
	`, loanID, string(domain.LoanApproved), string(domain.LoanSubmitted)).Scan(
		&loan.ExternalID, &loan.ClientID, &loan.OfficeID, &loan.ProductID, &status,
		&loan.Principal, &loan.Currency, &loan.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, classifyMissing(ctx, c.Conn(), loanID)
	}
	if err != nil {
		return nil, err
	}
	loan.Status = domain.LoanStatus(status)
	return &loan, nil
}

func classifyMissing(ctx context.Context, tx pgx.Tx, loanID int64) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM m_loan WHERE id = $1)`, loanID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrLoanNotFound
	}
	return ErrInvalidTransition
}
