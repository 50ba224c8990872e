package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

type state struct {
	accounts map[string]domain.Account
	orders   map[string]domain.Order
	payments map[string]domain.Payment
}

func (s *state) clone() *state {
	return &state{
		accounts: maps.Clone(s.accounts),
		orders:   maps.Clone(s.orders),
		payments: maps.Clone(s.payments),
	}
}

// Store is an in-process domain.Store for local development and tests.
// Atomic serialises all transactions and applies them copy-on-write, so a
// failing transaction leaves no trace.
type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: &state{
		accounts: make(map[string]domain.Account),
		orders:   make(map[string]domain.Order),
		payments: make(map[string]domain.Payment),
	}}
}

// view binds repositories either to the live state (tx == nil) or to a
// transaction's private copy.
type view struct {
	store *Store
	tx    *state
}

func (v view) read(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

// write applies fn to a copy and publishes it only on success, so single
// statements are atomic like they are in SQL.
func (v view) write(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	next := v.store.st.clone()
	if err := fn(next); err != nil {
		return err
	}
	v.store.st = next
	return nil
}

func (v view) Accounts() domain.AccountRepository { return accountRepository{v} }
func (v view) Orders() domain.OrderRepository     { return orderRepository{v} }
func (v view) Payments() domain.PaymentRepository { return paymentRepository{v} }

func (s *Store) Accounts() domain.AccountRepository { return view{store: s}.Accounts() }
func (s *Store) Orders() domain.OrderRepository     { return view{store: s}.Orders() }
func (s *Store) Payments() domain.PaymentRepository { return view{store: s}.Payments() }

func (s *Store) Atomic(ctx context.Context, fn func(tx domain.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	next := s.st.clone()
	if err := fn(view{store: s, tx: next}); err != nil {
		return err
	}
	s.st = next
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func sortNewestFirst[T any](items []T, created func(T) int64, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if ci != cj {
			return ci > cj
		}
		return id(items[i]) > id(items[j])
	})
}

var _ domain.Store = (*Store)(nil)
