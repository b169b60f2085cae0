// Package memory is an in-process outbox store with transactional staging.
//
// Inserts are staged per transaction and become visible on Commit. A key staged by one
// open transaction makes a concurrent insert of the same key wait until that transaction
// finishes, the way a unique index does in postgres. A wait that would close a cycle of
// transactions waiting on each other fails with ErrDeadlock, and a wait ends early when
// the caller's context is done.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store"
)

var errTxDone = errors.New("memory store: transaction already finished")

// ErrDeadlock is returned by Insert when waiting for a reserved key would never end.
var ErrDeadlock = errors.New("memory store: deadlock detected")

type uniqueKey struct{ tenant, key string }

type Store struct {
	mu       sync.Mutex
	released *sync.Cond
	nextID   int64
	rows     map[int64]store.ExternalEvent
	keys     map[uniqueKey]int64
	reserved map[uniqueKey]*Tx
	claimed  map[int64]bool
	now      func() time.Time
}

func New() *Store {
	s := &Store{
		rows:     make(map[int64]store.ExternalEvent),
		keys:     make(map[uniqueKey]int64),
		reserved: make(map[uniqueKey]*Tx),
		claimed:  make(map[int64]bool),
		now:      time.Now,
	}
	s.released = sync.NewCond(&s.mu)
	return s
}

func (s *Store) Begin(context.Context) (store.Tx, error) {
	return &Tx{s: s}, nil
}

type Tx struct {
	s      *Store
	staged []store.ExternalEvent
	keys   []uniqueKey
	done   bool
	// waitingOn is the transaction holding the key this one is blocked on.
	waitingOn *Tx
}

func (t *Tx) Insert(ctx context.Context, evt *store.ExternalEvent) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return errTxDone
	}

	k := uniqueKey{evt.TenantID, evt.IdempotencyKey}
	if err := t.awaitKey(ctx, k); err != nil {
		return err
	}
	if _, ok := s.keys[k]; ok {
		return store.ErrDuplicate
	}

	s.nextID++
	evt.ID = s.nextID
	if evt.Status == "" {
		evt.Status = store.StatusToBeSent
	}
	row := *evt
	row.Data = append([]byte(nil), evt.Data...)
	t.staged = append(t.staged, row)
	t.keys = append(t.keys, k)
	s.reserved[k] = t
	return nil
}

func (t *Tx) Commit(context.Context) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return errTxDone
	}
	for _, row := range t.staged {
		s.rows[row.ID] = row
		s.keys[uniqueKey{row.TenantID, row.IdempotencyKey}] = row.ID
	}
	t.finish()
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.done {
		t.finish()
	}
	return nil
}

// awaitKey blocks until no other open transaction reserves k. Callers hold s.mu.
func (t *Tx) awaitKey(ctx context.Context, k uniqueKey) error {
	s := t.s
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.released.Broadcast()
		s.mu.Unlock()
	})
	defer stop()
	defer func() { t.waitingOn = nil }()

	for {
		owner, ok := s.reserved[k]
		if !ok {
			return nil
		}
		if owner == t {
			return store.ErrDuplicate
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.blockedBy(owner) {
			return ErrDeadlock
		}
		t.waitingOn = owner
		s.released.Wait()
	}
}

// blockedBy reports whether waiting on owner closes a cycle back to t.
func (t *Tx) blockedBy(owner *Tx) bool {
	for next := owner; next != nil; next = next.waitingOn {
		if next == t {
			return true
		}
	}
	return false
}

// finish releases reservations; callers hold s.mu.
func (t *Tx) finish() {
	for _, k := range t.keys {
		delete(t.s.reserved, k)
	}
	t.staged, t.keys, t.done = nil, nil, true
	t.s.released.Broadcast()
}

func (s *Store) ProcessPending(ctx context.Context, limit int, fn store.BatchFunc) error {
	s.mu.Lock()
	var batch []store.ExternalEvent
	for _, id := range s.sortedIDs() {
		if len(batch) == limit {
			break
		}
		row := s.rows[id]
		if row.Status != store.StatusToBeSent || s.claimed[id] {
			continue
		}
		s.claimed[id] = true
		batch = append(batch, row)
	}
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	defer func() {
		s.mu.Lock()
		for _, row := range batch {
			delete(s.claimed, row.ID)
		}
		s.mu.Unlock()
	}()

	ids, err := fn(ctx, batch)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sentAt := s.now().UTC()
	for _, id := range ids {
		row, ok := s.rows[id]
		if !ok || !s.claimed[id] {
			continue
		}
		row.Status = store.StatusSent
		ts := sentAt
		row.SentAt = &ts
		s.rows[id] = row
	}
	return nil
}

func (s *Store) DeleteSentBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, row := range s.rows {
		if row.Status == store.StatusSent && row.SentAt != nil && row.SentAt.Before(cutoff) {
			delete(s.rows, id)
			delete(s.keys, uniqueKey{row.TenantID, row.IdempotencyKey})
			n++
		}
	}
	return n, nil
}

// Events returns committed rows in id order.
func (s *Store) Events() []store.ExternalEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.ExternalEvent, 0, len(s.rows))
	for _, id := range s.sortedIDs() {
		out = append(out, s.rows[id])
	}
	return out
}

func (s *Store) sortedIDs() []int64 {
	ids := make([]int64, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
