package businessevent

import (
	"strconv"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/domain"
)

func id(v int64) string { return strconv.FormatInt(v, 10) }

var (
	LoanApproved = define("LoanApprovedBusinessEvent", CategoryLoan,
		func(l *domain.Loan) int64 { return l.ID },
		func(l *domain.Loan) []string { return []string{id(l.ID), "v" + id(l.Version)} },
	)

	LoanDisbursal = define("LoanDisbursalBusinessEvent", CategoryLoan,
		func(l *domain.Loan) int64 { return l.ID },
		func(l *domain.Loan) []string { return []string{id(l.ID), "v" + id(l.Version)} },
	)

	LoanRepayment = define("LoanTransactionMakeRepaymentPostBusinessEvent", CategoryLoanTransaction,
		func(t *domain.LoanTransaction) int64 { return t.LoanID },
		func(t *domain.LoanTransaction) []string {
			// A reversal is a distinct occurrence for the same transaction id.
			return []string{id(t.LoanID), id(t.ID), strconv.FormatBool(t.Reversed)}
		},
	)

	SavingsDeposit = define("SavingsDepositBusinessEvent", CategorySavingsTransaction,
		func(t *domain.SavingsTransaction) int64 { return t.AccountID },
		func(t *domain.SavingsTransaction) []string {
			return []string{id(t.AccountID), id(t.ID), strconv.FormatBool(t.Reversed)}
		},
	)

	SavingsWithdrawal = define("SavingsWithdrawalBusinessEvent", CategorySavingsTransaction,
		func(t *domain.SavingsTransaction) int64 { return t.AccountID },
		func(t *domain.SavingsTransaction) []string {
			return []string{id(t.AccountID), id(t.ID), strconv.FormatBool(t.Reversed)}
		},
	)

	AccountTransfer = define("AccountTransferBusinessEvent", CategoryAccountTransfer,
		func(t *domain.AccountTransfer) int64 { return t.FromAccountID },
		func(t *domain.AccountTransfer) []string { return []string{id(t.ID)} },
	)

	ClientCreated = define("ClientCreateBusinessEvent", CategoryClient,
		func(c *domain.Client) int64 { return c.ID },
		func(c *domain.Client) []string { return []string{id(c.ID)} },
	)
)

// Descriptor is the type-erased part of a Definition.
type Descriptor interface {
	Name() string
	Category() Category
}

// All lists every declared event type in a stable order.
func All() []Descriptor {
	return []Descriptor{
		LoanApproved,
		LoanDisbursal,
		LoanRepayment,
		SavingsDeposit,
		SavingsWithdrawal,
		AccountTransfer,
		ClientCreated,
	}
}
