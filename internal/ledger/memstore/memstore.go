// Package memstore is an in-memory ledger.Repository with optimistic
// concurrency: transactions read from the live maps, buffer their writes and
// validate at commit that nothing they read has changed since.
package memstore

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
)

var errTxDone = errors.New("transaction already committed or rolled back")

type row struct {
	payment ledger.Payment
	version int64
}

type Store struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*row
	budget   *ledger.Budget
	stats    *ledger.Summary
	reloads  []*ledger.Reload
	// seq changes whenever the payment set or any status changes.
	seq int64
	now func() time.Time
}

func New() *Store {
	return &Store{
		payments: make(map[uuid.UUID]*row),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) GetPayment(_ context.Context, id uuid.UUID) (*ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.payments[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}

	p := r.payment

	return &p, nil
}

func (s *Store) ListPayments(_ context.Context, q ledger.PageQuery) ([]*ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*ledger.Payment, 0, len(s.payments))

	for _, r := range s.payments {
		if !q.Criteria.Match(&r.payment) {
			continue
		}

		if q.After != nil && !q.After.Follows(&r.payment) {
			continue
		}

		p := r.payment
		matched = append(matched, &p)
	}

	slices.SortFunc(matched, func(a, b *ledger.Payment) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}

		return bytes.Compare(b.ID[:], a.ID[:])
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	return matched, nil
}

func (s *Store) CountPayments(_ context.Context, c ledger.Criteria) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64

	for _, r := range s.payments {
		if c.Match(&r.payment) {
			n++
		}
	}

	return n, nil
}

func (s *Store) GetStats(_ context.Context) (*ledger.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stats == nil {
		return nil, nil
	}

	st := *s.stats

	return &st, nil
}

func (s *Store) GetBudget(_ context.Context) (*ledger.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.budget == nil {
		return nil, nil
	}

	b := *s.budget

	return &b, nil
}

func (s *Store) ListReloads(_ context.Context, limit int) ([]*ledger.Reload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ledger.Reload, 0, min(limit, len(s.reloads)))

	for i := len(s.reloads) - 1; i >= 0 && len(out) < limit; i-- {
		r := *s.reloads[i]
		out = append(out, &r)
	}

	return out, nil
}

func (s *Store) Begin(_ context.Context) (ledger.Tx, error) {
	return &tx{store: s, payments: make(map[uuid.UUID]int64)}, nil
}

// tx records the version of everything it reads. A version of zero means
// the record was absent.
type tx struct {
	store *Store

	budget   *int64
	stats    *int64
	seq      *int64
	payments map[uuid.UUID]int64

	checks []func() error
	writes []func()
	done   bool
}

func (t *tx) GetBudget(_ context.Context) (*ledger.Budget, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	if t.store.budget == nil {
		t.budget = new(int64(0))
		return nil, nil
	}

	b := *t.store.budget
	t.budget = new(b.Version)

	return &b, nil
}

func (t *tx) PutBudget(_ context.Context, b *ledger.Budget) error {
	expected := b.Version
	now := t.store.now()

	b.Version = expected + 1
	b.UpdatedAt = now
	stored := *b

	t.checks = append(t.checks, func() error {
		if version(t.store.budget) != expected {
			return ledger.ErrConflict
		}

		return nil
	})
	t.writes = append(t.writes, func() { t.store.budget = &stored })

	return nil
}

func (t *tx) GetStats(_ context.Context) (*ledger.Summary, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	if t.store.stats == nil {
		t.stats = new(int64(0))
		return nil, nil
	}

	st := *t.store.stats
	t.stats = new(st.Version)

	return &st, nil
}

func (t *tx) PutStats(_ context.Context, st *ledger.Summary) error {
	expected := st.Version
	now := t.store.now()

	st.Version = expected + 1
	st.UpdatedAt = now
	stored := *st

	t.checks = append(t.checks, func() error {
		if statsVersion(t.store.stats) != expected {
			return ledger.ErrConflict
		}

		return nil
	})
	t.writes = append(t.writes, func() { t.store.stats = &stored })

	return nil
}

func (t *tx) Aggregate(_ context.Context) (*ledger.Aggregate, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	t.seq = new(t.store.seq)

	agg := &ledger.Aggregate{TotalAmount: decimal.Zero, LegacyAmount: decimal.Zero}

	for _, r := range t.store.payments {
		agg.TotalAmount = agg.TotalAmount.Add(r.payment.TotalAmount)
		agg.LegacyAmount = agg.LegacyAmount.Add(r.payment.TotalAmount)

		if r.payment.Status == ledger.StatusProcessed {
			agg.Processed++
		} else {
			agg.Pending++
		}
	}

	return agg, nil
}

func (t *tx) GetPayment(_ context.Context, id uuid.UUID) (*ledger.Payment, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	r, ok := t.store.payments[id]
	if !ok {
		t.payments[id] = 0
		return nil, ledger.ErrNotFound
	}

	t.payments[id] = r.version
	p := r.payment

	return &p, nil
}

func (t *tx) InsertPayment(_ context.Context, p *ledger.Payment) error {
	p.CreatedAt = t.store.now()
	stored := *p

	t.checks = append(t.checks, func() error {
		if _, exists := t.store.payments[stored.ID]; exists {
			return ledger.ErrConflict
		}

		return nil
	})
	t.writes = append(t.writes, func() {
		t.store.payments[stored.ID] = &row{payment: stored, version: 1}
		t.store.seq++
	})

	return nil
}

func (t *tx) DeletePayment(_ context.Context, id uuid.UUID) error {
	t.checks = append(t.checks, func() error {
		if _, exists := t.store.payments[id]; !exists {
			return ledger.ErrNotFound
		}

		return nil
	})
	t.writes = append(t.writes, func() {
		delete(t.store.payments, id)
		t.store.seq++
	})

	return nil
}

func (t *tx) UpdatePaymentStatus(_ context.Context, id uuid.UUID, status ledger.Status) error {
	now := t.store.now()

	t.checks = append(t.checks, func() error {
		if _, exists := t.store.payments[id]; !exists {
			return ledger.ErrNotFound
		}

		return nil
	})
	t.writes = append(t.writes, func() {
		r := t.store.payments[id]
		r.payment.Status = status
		r.payment.UpdatedAt = &now
		r.version++
		t.store.seq++
	})

	return nil
}

func (t *tx) InsertReload(_ context.Context, r *ledger.Reload) error {
	r.CreatedAt = t.store.now()
	stored := *r

	t.writes = append(t.writes, func() { t.store.reloads = append(t.store.reloads, &stored) })

	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return errTxDone
	}

	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if err := t.validate(); err != nil {
		return err
	}

	for _, check := range t.checks {
		if err := check(); err != nil {
			return err
		}
	}

	for _, write := range t.writes {
		write()
	}

	return nil
}

func (t *tx) Rollback() error {
	t.done = true
	return nil
}

// validate fails with ErrConflict if anything read has changed since.
// Callers hold the write lock.
func (t *tx) validate() error {
	s := t.store

	if t.budget != nil && version(s.budget) != *t.budget {
		return ledger.ErrConflict
	}

	if t.stats != nil && statsVersion(s.stats) != *t.stats {
		return ledger.ErrConflict
	}

	if t.seq != nil && s.seq != *t.seq {
		return ledger.ErrConflict
	}

	for id, v := range t.payments {
		var current int64
		if r, ok := s.payments[id]; ok {
			current = r.version
		}

		if current != v {
			return ledger.ErrConflict
		}
	}

	return nil
}

func version(b *ledger.Budget) int64 {
	if b == nil {
		return 0
	}

	return b.Version
}

func statsVersion(st *ledger.Summary) int64 {
	if st == nil {
		return 0
	}

	return st.Version
}
