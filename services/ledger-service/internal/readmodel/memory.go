package readmodel

import (
	"context"
	"sync"
)

type pair struct{ parent, id int64 }

// Memory is an in-process read model keyed the same way as GormRepository.
type Memory struct {
	mu        sync.RWMutex
	loans     map[int64]LoanView
	loanTx    map[pair]LoanTransactionView
	savingsTx map[pair]SavingsTransactionView
	transfers map[int64]TransferView
	clients   map[int64]ClientView
}

func NewMemory() *Memory {
	return &Memory{
		loans:     make(map[int64]LoanView),
		loanTx:    make(map[pair]LoanTransactionView),
		savingsTx: make(map[pair]SavingsTransactionView),
		transfers: make(map[int64]TransferView),
		clients:   make(map[int64]ClientView),
	}
}

func (m *Memory) PutLoan(v LoanView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loans[v.ID] = v
}

func (m *Memory) PutLoanTransaction(v LoanTransactionView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loanTx[pair{v.LoanID, v.ID}] = v
}

func (m *Memory) PutSavingsTransaction(v SavingsTransactionView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.savingsTx[pair{v.AccountID, v.ID}] = v
}

func (m *Memory) PutTransfer(v TransferView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[v.ID] = v
}

func (m *Memory) PutClient(v ClientView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[v.ID] = v
}

func (m *Memory) FindLoan(_ context.Context, loanID int64) (LoanView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.loans, loanID)
}

func (m *Memory) FindLoanTransaction(_ context.Context, loanID, transactionID int64) (LoanTransactionView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.loanTx, pair{loanID, transactionID})
}

func (m *Memory) FindSavingsTransaction(_ context.Context, accountID, transactionID int64) (SavingsTransactionView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.savingsTx, pair{accountID, transactionID})
}

func (m *Memory) FindTransfer(_ context.Context, transferID int64) (TransferView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.transfers, transferID)
}

func (m *Memory) FindClient(_ context.Context, clientID int64) (ClientView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.clients, clientID)
}

func lookup[K comparable, V any](m map[K]V, k K) (V, error) {
	v, ok := m[k]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	return v, nil
}
