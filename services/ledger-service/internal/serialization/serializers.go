package serialization

import (
	"context"
	"fmt"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/readmodel"
)

const dateLayout = "2006-01-02"

type LoanReader interface {
	FindLoan(ctx context.Context, loanID int64) (readmodel.LoanView, error)
}

type LoanTransactionReader interface {
	FindLoanTransaction(ctx context.Context, loanID, transactionID int64) (readmodel.LoanTransactionView, error)
}

type SavingsTransactionReader interface {
	FindSavingsTransaction(ctx context.Context, accountID, transactionID int64) (readmodel.SavingsTransactionView, error)
}

type TransferReader interface {
	FindTransfer(ctx context.Context, transferID int64) (readmodel.TransferView, error)
}

type ClientReader interface {
	FindClient(ctx context.Context, clientID int64) (readmodel.ClientView, error)
}

// Reader is everything the default registry hydrates from.
type Reader interface {
	LoanReader
	LoanTransactionReader
	SavingsTransactionReader
	TransferReader
	ClientReader
}

// Default registers a serializer for every declared event type.
func Default(r Reader) *Registry {
	return NewRegistry(
		&LoanSerializer{Reader: r},
		&LoanTransactionSerializer{Reader: r},
		&SavingsTransactionSerializer{Reader: r},
		&AccountTransferSerializer{Reader: r},
		&ClientSerializer{Reader: r},
	)
}

type loanPayload struct {
	ID                 int64  `json:"id"`
	ExternalID         string `json:"externalId,omitempty"`
	AccountNo          string `json:"accountNo"`
	ClientID           int64  `json:"clientId"`
	OfficeID           int64  `json:"officeId"`
	ProductID          int64  `json:"productId"`
	ProductName        string `json:"productName"`
	Status             string `json:"status"`
	Principal          string `json:"principal"`
	OutstandingBalance string `json:"outstandingBalance"`
	Currency           string `json:"currency"`
}

// LoanSerializer handles loan lifecycle events.
type LoanSerializer struct {
	Reader LoanReader
}

func (s *LoanSerializer) CanSerialize(evt businessevent.Event) bool {
	_, ok := businessevent.LoanApproved.Match(evt)
	if !ok {
		_, ok = businessevent.LoanDisbursal.Match(evt)
	}
	return ok
}

func (s *LoanSerializer) Serialize(ctx context.Context, evt businessevent.Event) (Encoded, error) {
	be, ok := businessevent.LoanApproved.Match(evt)
	if !ok {
		be, ok = businessevent.LoanDisbursal.Match(evt)
	}
	if !ok {
		return Encoded{}, &UnregisteredTypeError{EventType: evt.Type()}
	}
	loan := be.Get()
	v, err := s.Reader.FindLoan(ctx, loan.ID)
	if err != nil {
		return Encoded{}, fmt.Errorf("hydrate loan %d: %w", loan.ID, err)
	}
	// The event payload is the source of truth for state the transaction just changed.
	return encodeJSON(schemaID(businessevent.CategoryLoan, "LoanAccountData"), loanPayload{
		ID:                 loan.ID,
		ExternalID:         loan.ExternalID,
		AccountNo:          v.AccountNo,
		ClientID:           loan.ClientID,
		OfficeID:           loan.OfficeID,
		ProductID:          loan.ProductID,
		ProductName:        v.ProductName,
		Status:             string(loan.Status),
		Principal:          loan.Principal,
		OutstandingBalance: v.OutstandingBalance,
		Currency:           loan.Currency,
	})
}

type loanTransactionPayload struct {
	ID               int64  `json:"id"`
	LoanID           int64  `json:"loanId"`
	LoanExternalID   string `json:"loanExternalId,omitempty"`
	Type             string `json:"type"`
	Amount           string `json:"amount"`
	OutstandingAfter string `json:"outstandingLoanBalance"`
	Currency         string `json:"currency"`
	Date             string `json:"date"`
	Reversed         bool   `json:"reversed"`
}

type LoanTransactionSerializer struct {
	Reader LoanTransactionReader
}

func (s *LoanTransactionSerializer) CanSerialize(evt businessevent.Event) bool {
	_, ok := businessevent.LoanRepayment.Match(evt)
	return ok
}

func (s *LoanTransactionSerializer) Serialize(ctx context.Context, evt businessevent.Event) (Encoded, error) {
	be, ok := businessevent.LoanRepayment.Match(evt)
	if !ok {
		return Encoded{}, &UnregisteredTypeError{EventType: evt.Type()}
	}
	tx := be.Get()
	v, err := s.Reader.FindLoanTransaction(ctx, tx.LoanID, tx.ID)
	if err != nil {
		return Encoded{}, fmt.Errorf("hydrate loan transaction %d/%d: %w", tx.LoanID, tx.ID, err)
	}
	return encodeJSON(schemaID(businessevent.CategoryLoanTransaction, "LoanTransactionData"), loanTransactionPayload{
		ID:               tx.ID,
		LoanID:           tx.LoanID,
		LoanExternalID:   v.LoanExternalID,
		Type:             string(tx.Type),
		Amount:           tx.Amount,
		OutstandingAfter: v.OutstandingAfter,
		Currency:         v.Currency,
		Date:             tx.Date.Format(dateLayout),
		Reversed:         tx.Reversed,
	})
}

type savingsTransactionPayload struct {
	ID             int64  `json:"id"`
	AccountID      int64  `json:"accountId"`
	AccountNo      string `json:"accountNo"`
	Type           string `json:"type"`
	Amount         string `json:"amount"`
	RunningBalance string `json:"runningBalance"`
	Currency       string `json:"currency"`
	Date           string `json:"date"`
	Reversed       bool   `json:"reversed"`
}

// SavingsTransactionSerializer hydrates the account number, running balance and currency,
// none of which the transaction entity carries.
type SavingsTransactionSerializer struct {
	Reader SavingsTransactionReader
}

func (s *SavingsTransactionSerializer) CanSerialize(evt businessevent.Event) bool {
	_, ok := businessevent.SavingsDeposit.Match(evt)
	if !ok {
		_, ok = businessevent.SavingsWithdrawal.Match(evt)
	}
	return ok
}

func (s *SavingsTransactionSerializer) Serialize(ctx context.Context, evt businessevent.Event) (Encoded, error) {
	be, ok := businessevent.SavingsDeposit.Match(evt)
	if !ok {
		be, ok = businessevent.SavingsWithdrawal.Match(evt)
	}
	if !ok {
		return Encoded{}, &UnregisteredTypeError{EventType: evt.Type()}
	}
	tx := be.Get()
	v, err := s.Reader.FindSavingsTransaction(ctx, tx.AccountID, tx.ID)
	if err != nil {
		return Encoded{}, fmt.Errorf("hydrate savings transaction %d/%d: %w", tx.AccountID, tx.ID, err)
	}
	return encodeJSON(schemaID(businessevent.CategorySavingsTransaction, "SavingsAccountTransactionData"), savingsTransactionPayload{
		ID:             tx.ID,
		AccountID:      tx.AccountID,
		AccountNo:      v.AccountNo,
		Type:           string(tx.Type),
		Amount:         tx.Amount,
		RunningBalance: v.RunningBalance,
		Currency:       v.Currency,
		Date:           tx.Date.Format(dateLayout),
		Reversed:       tx.Reversed,
	})
}

type transferPayload struct {
	ID            int64  `json:"id"`
	FromAccountID int64  `json:"fromAccountId"`
	FromAccountNo string `json:"fromAccountNo"`
	ToAccountID   int64  `json:"toAccountId"`
	ToAccountNo   string `json:"toAccountNo"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Date          string `json:"date"`
}

type AccountTransferSerializer struct {
	Reader TransferReader
}

func (s *AccountTransferSerializer) CanSerialize(evt businessevent.Event) bool {
	_, ok := businessevent.AccountTransfer.Match(evt)
	return ok
}

func (s *AccountTransferSerializer) Serialize(ctx context.Context, evt businessevent.Event) (Encoded, error) {
	be, ok := businessevent.AccountTransfer.Match(evt)
	if !ok {
		return Encoded{}, &UnregisteredTypeError{EventType: evt.Type()}
	}
	t := be.Get()
	v, err := s.Reader.FindTransfer(ctx, t.ID)
	if err != nil {
		return Encoded{}, fmt.Errorf("hydrate transfer %d: %w", t.ID, err)
	}
	return encodeJSON(schemaID(businessevent.CategoryAccountTransfer, "AccountTransferData"), transferPayload{
		ID:            t.ID,
		FromAccountID: t.FromAccountID,
		FromAccountNo: v.FromAccountNo,
		ToAccountID:   t.ToAccountID,
		ToAccountNo:   v.ToAccountNo,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Date:          t.Date.Format(dateLayout),
	})
}

type clientPayload struct {
	ID          int64  `json:"id"`
	ExternalID  string `json:"externalId,omitempty"`
	DisplayName string `json:"displayName"`
	OfficeID    int64  `json:"officeId"`
	Status      string `json:"status"`
}

type ClientSerializer struct {
	Reader ClientReader
}

func (s *ClientSerializer) CanSerialize(evt businessevent.Event) bool {
	_, ok := businessevent.ClientCreated.Match(evt)
	return ok
}

func (s *ClientSerializer) Serialize(ctx context.Context, evt businessevent.Event) (Encoded, error) {
	be, ok := businessevent.ClientCreated.Match(evt)
	if !ok {
		return Encoded{}, &UnregisteredTypeError{EventType: evt.Type()}
	}
	c := be.Get()
	v, err := s.Reader.FindClient(ctx, c.ID)
	if err != nil {
		return Encoded{}, fmt.Errorf("hydrate client %d: %w", c.ID, err)
	}
	return encodeJSON(schemaID(businessevent.CategoryClient, "ClientData"), clientPayload{
		ID:          c.ID,
		ExternalID:  c.ExternalID,
		DisplayName: v.DisplayName,
		OfficeID:    c.OfficeID,
		Status:      c.Status,
	})
}
