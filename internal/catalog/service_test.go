package catalog

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/account-storefront/internal/domain"
	"github.com/joao-fontenele/account-storefront/internal/secrets"
	"github.com/joao-fontenele/account-storefront/internal/storage/memory"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	box, err := secrets.NewBox("test-key")
	require.NoError(t, err)
	store := memory.NewStore()
	s := NewService(store, box, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return t0 }
	return s, store
}

var creds = domain.Credentials{GameUsername: "player01", GamePassword: "s3cret", LoginMethod: "garena"}

func TestService_CreateSealsCredentials(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()

	a, err := s.Create(ctx, domain.Account{Price: 150000, Rank: "Diamond", Description: "  many skins "}, creds)
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)
	require.Equal(t, domain.AccountStatusAvailable, a.Status)
	require.Equal(t, "many skins", a.Description)
	require.Equal(t, []string{}, a.Images)

	stored, err := store.Accounts().Get(ctx, a.ID)
	require.NoError(t, err)
	require.NotEqual(t, "player01", stored.Sealed.GameUsername)
	require.NotEqual(t, "s3cret", stored.Sealed.GamePassword)
	require.Equal(t, "garena", stored.Sealed.LoginMethod)

	admin, err := s.AdminGet(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, creds, admin.Credentials)
}

func TestService_CreateValidates(t *testing.T) {
	s, _ := newService(t)

	_, err := s.Create(context.Background(), domain.Account{Price: 0, Rank: "Mythic", WinRate: 120}, creds)
	require.ErrorIs(t, err, domain.ErrPriceInvalid)
	require.ErrorIs(t, err, domain.ErrRankUnknown)
	require.ErrorIs(t, err, domain.ErrWinRateInvalid)
	require.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestService_UpdateKeepsCredentialsWhenEmpty(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	a, err := s.Create(ctx, domain.Account{Price: 150000}, creds)
	require.NoError(t, err)

	updated, err := s.Update(ctx, a.ID, domain.Account{Price: 200000, Rank: "Gold"}, domain.Credentials{})
	require.NoError(t, err)
	require.Equal(t, int64(200000), updated.Price)
	require.Equal(t, a.CreatedAt, updated.CreatedAt)

	admin, err := s.AdminGet(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, creds, admin.Credentials)

	rotated := domain.Credentials{GameUsername: "player02", GamePassword: "n3w"}
	_, err = s.Update(ctx, a.ID, domain.Account{Price: 200000}, rotated)
	require.NoError(t, err)
	admin, err = s.AdminGet(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, rotated, admin.Credentials)

	_, err = s.Update(ctx, "missing", domain.Account{Price: 1}, domain.Credentials{})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestService_DeleteRefusesReferencedAccount(t *testing.T) {
	s, store := newService(t)
	ctx := context.Background()

	free, err := s.Create(ctx, domain.Account{Price: 100000}, creds)
	require.NoError(t, err)
	sold, err := s.Create(ctx, domain.Account{Price: 100000}, creds)
	require.NoError(t, err)

	order := domain.Order{
		OrderNumber:   "LQ1234567890",
		UserID:        "user-1",
		AccountID:     sold.ID,
		Amount:        100000,
		Status:        domain.OrderStatusCancelled,
		CustomerName:  "A",
		CustomerEmail: "a@example.com",
		CreatedAt:     t0,
	}
	require.NoError(t, store.Orders().Create(ctx, &order))

	require.ErrorIs(t, s.Delete(ctx, sold.ID), domain.ErrAccountInUse)
	require.NoError(t, s.Delete(ctx, free.ID))

	_, err = s.Get(ctx, free.ID)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	require.ErrorIs(t, s.Delete(ctx, free.ID), domain.ErrAccountNotFound)
}

func TestService_ListFilters(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	for _, a := range []domain.Account{
		{Price: 100000, Rank: "Gold", HeroesCount: 10},
		{Price: 300000, Rank: "Diamond", HeroesCount: 60, Description: "full skins"},
		{Price: 500000, Rank: "Legendary", HeroesCount: 90, Status: domain.AccountStatusSold},
	} {
		_, err := s.Create(ctx, a, creds)
		require.NoError(t, err)
	}

	items, total, err := s.List(ctx, domain.AccountFilter{Status: domain.AccountStatusAvailable, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, items, 2)

	items, _, err = s.List(ctx, domain.AccountFilter{Query: " SKINS ", Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Diamond", items[0].Rank)

	items, _, err = s.List(ctx, domain.AccountFilter{MinPrice: 200000, MinHeroes: 50, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, items, 2)

	_, _, err = s.List(ctx, domain.AccountFilter{Status: "gone", Page: 1, PageSize: 10})
	require.ErrorIs(t, err, domain.ErrAccountStatusInvalid)
}
