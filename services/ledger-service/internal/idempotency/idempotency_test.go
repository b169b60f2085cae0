package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/domain"
)

type anonymousEvent struct{}

func (anonymousEvent) Type() string                     { return "AnonymousBusinessEvent" }
func (anonymousEvent) Category() businessevent.Category { return businessevent.CategoryLoan }
func (anonymousEvent) AggregateRootID() int64           { return 1 }
func (anonymousEvent) Identity() []string               { return nil }
func (anonymousEvent) Payload() any                     { return struct{}{} }

func TestDeriveIsDeterministic(t *testing.T) {
	g := New()
	evt := businessevent.LoanApproved.MustNew(&domain.Loan{ID: 42, Version: 3})

	first, err := g.Derive(evt)
	require.NoError(t, err)
	second, err := g.Derive(businessevent.LoanApproved.MustNew(&domain.Loan{ID: 42, Version: 3}))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestDeriveDistinguishesOccurrences(t *testing.T) {
	g := New()
	key := func(evt businessevent.Event) string {
		k, err := g.Derive(evt)
		require.NoError(t, err)
		return k
	}

	base := key(businessevent.LoanApproved.MustNew(&domain.Loan{ID: 42, Version: 3}))

	assert.NotEqual(t, base, key(businessevent.LoanApproved.MustNew(&domain.Loan{ID: 43, Version: 3})), "different entity")
	assert.NotEqual(t, base, key(businessevent.LoanApproved.MustNew(&domain.Loan{ID: 42, Version: 4})), "different version")
	assert.NotEqual(t, base, key(businessevent.LoanDisbursal.MustNew(&domain.Loan{ID: 42, Version: 3})), "different type")

	deposit := key(businessevent.SavingsDeposit.MustNew(&domain.SavingsTransaction{ID: 9, AccountID: 1}))
	reversal := key(businessevent.SavingsDeposit.MustNew(&domain.SavingsTransaction{ID: 9, AccountID: 1, Reversed: true}))
	assert.NotEqual(t, deposit, reversal, "reversal is a new occurrence")
}

func TestDeriveDependsOnNamespace(t *testing.T) {
	evt := businessevent.ClientCreated.MustNew(&domain.Client{ID: 5})
	a, err := New().Derive(evt)
	require.NoError(t, err)
	b, err := NameBased{Namespace: Namespace}.Derive(evt)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeriveRequiresIdentity(t *testing.T) {
	_, err := New().Derive(anonymousEvent{})
	require.ErrorIs(t, err, ErrNoIdentity)

	_, err = New().Derive(nil)
	require.ErrorIs(t, err, businessevent.ErrInvalidArgument)
}
