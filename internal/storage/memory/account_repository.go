package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

type accountRepository struct {
	v view
}

func (r accountRepository) Get(_ context.Context, id string) (domain.Account, error) {
	var out domain.Account
	err := r.v.read(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		out = a
		return nil
	})
	return out, err
}

// GetForUpdate needs no extra locking: transactions are already serialised.
func (r accountRepository) GetForUpdate(ctx context.Context, id string) (domain.Account, error) {
	return r.Get(ctx, id)
}

func matchesAccount(a domain.Account, f domain.AccountFilter) bool {
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(a.Description), q) && !strings.Contains(strings.ToLower(a.Rank), q) {
			return false
		}
	}
	switch {
	case f.Rank != "" && a.Rank != f.Rank,
		f.Status != "" && a.Status != f.Status,
		f.MinPrice > 0 && a.Price < f.MinPrice,
		f.MaxPrice > 0 && a.Price > f.MaxPrice,
		f.MinHeroes > 0 && a.HeroesCount < f.MinHeroes,
		f.MinSkins > 0 && a.SkinsCount < f.MinSkins:
		return false
	}
	return true
}

func (r accountRepository) List(_ context.Context, f domain.AccountFilter) ([]domain.Account, int, error) {
	var matched []domain.Account
	_ = r.v.read(func(st *state) error {
		for _, a := range st.accounts {
			if matchesAccount(a, f) {
				matched = append(matched, a)
			}
		}
		return nil
	})

	sortNewestFirst(matched,
		func(a domain.Account) int64 { return a.CreatedAt.UnixNano() },
		func(a domain.Account) string { return a.ID })

	return page(matched, f.Offset(), f.PageSize), len(matched), nil
}

func (r accountRepository) Create(_ context.Context, a *domain.Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return r.v.write(func(st *state) error {
		st.accounts[a.ID] = *a
		return nil
	})
}

func (r accountRepository) Update(_ context.Context, a *domain.Account) error {
	return r.v.write(func(st *state) error {
		current, ok := st.accounts[a.ID]
		if !ok {
			return domain.ErrAccountNotFound
		}
		updated := *a
		updated.CreatedAt = current.CreatedAt
		st.accounts[a.ID] = updated
		return nil
	})
}

func (r accountRepository) Delete(_ context.Context, id string) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.accounts[id]; !ok {
			return domain.ErrAccountNotFound
		}
		delete(st.accounts, id)
		return nil
	})
}

func (r accountRepository) SetStatus(_ context.Context, id string, status domain.AccountStatus, at time.Time) error {
	return r.v.write(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		a.Status = status
		a.UpdatedAt = at
		st.accounts[id] = a
		return nil
	})
}
