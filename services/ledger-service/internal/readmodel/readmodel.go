// Package readmodel serves the fuller, joined views serializers need to build event payloads.
package readmodel

import (
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("read model: not found")
	ErrAmbiguous = errors.New("read model: ambiguous result")
)

type LoanView struct {
	ID                 int64
	ExternalID         string
	AccountNo          string
	ClientID           int64
	OfficeID           int64
	ProductID          int64
	ProductName        string
	Status             string
	Principal          string
	OutstandingBalance string
	Currency           string
}

type LoanTransactionView struct {
	ID               int64
	LoanID           int64
	LoanExternalID   string
	Type             string
	Amount           string
	OutstandingAfter string
	Currency         string
	Date             time.Time
	Reversed         bool
}

type SavingsTransactionView struct {
	ID             int64
	AccountID      int64
	AccountNo      string
	Type           string
	Amount         string
	RunningBalance string
	Currency       string
	Date           time.Time
	Reversed       bool
}

type TransferView struct {
	ID            int64
	FromAccountNo string
	ToAccountNo   string
	Amount        string
	Currency      string
	Date          time.Time
}

type ClientView struct {
	ID          int64
	ExternalID  string
	DisplayName string
	OfficeID    int64
	Status      string
}
