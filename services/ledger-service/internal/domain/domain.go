// Package domain holds the in-memory entities business events point at.
// Monetary amounts are decimal strings so they survive JSON unchanged.
package domain

import "time"

type LoanStatus string

const (
	LoanSubmitted LoanStatus = "SUBMITTED_AND_PENDING_APPROVAL"
	LoanApproved  LoanStatus = "APPROVED"
	LoanActive    LoanStatus = "ACTIVE"
	LoanClosed    LoanStatus = "CLOSED"
)

type Loan struct {
	ID         int64
	ExternalID string
	ClientID   int64
	OfficeID   int64
	ProductID  int64
	Status     LoanStatus
	Principal  string
	Currency   string
	// Version increments on every state transition of the loan.
	Version int64
}

type LoanTransactionType string

const (
	LoanTxDisbursement LoanTransactionType = "DISBURSEMENT"
	LoanTxRepayment    LoanTransactionType = "REPAYMENT"
)

type LoanTransaction struct {
	ID       int64
	LoanID   int64
	Type     LoanTransactionType
	Amount   string
	Date     time.Time
	Reversed bool
}

type SavingsTransactionType string

const (
	SavingsDeposit    SavingsTransactionType = "DEPOSIT"
	SavingsWithdrawal SavingsTransactionType = "WITHDRAWAL"
)

type SavingsTransaction struct {
	ID        int64
	AccountID int64
	Type      SavingsTransactionType
	Amount    string
	Date      time.Time
	Reversed  bool
}

type AccountTransfer struct {
	ID            int64
	FromAccountID int64
	ToAccountID   int64
	Amount        string
	Currency      string
	Date          time.Time
}

type Client struct {
	ID         int64
	ExternalID string
	OfficeID   int64
	Status     string
	Version    int64
}
