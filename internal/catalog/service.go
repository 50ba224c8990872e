// Package catalog is the inventory store: accounts for sale, their
// availability and their encrypted credentials.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joao-fontenele/account-storefront/internal/domain"
	"github.com/joao-fontenele/account-storefront/internal/secrets"
)

type Service struct {
	store  domain.Store
	box    *secrets.Box
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store domain.Store, box *secrets.Box, logger *slog.Logger) *Service {
	return &Service{store: store, box: box, logger: logger, now: time.Now}
}

func (s *Service) List(ctx context.Context, filter domain.AccountFilter) ([]domain.Account, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.ErrAccountStatusInvalid
	}
	filter.Query = strings.TrimSpace(filter.Query)
	return s.store.Accounts().List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id string) (domain.Account, error) {
	return s.store.Accounts().Get(ctx, id)
}

// AdminAccount is an account with its credentials decrypted.
type AdminAccount struct {
	domain.Account
	Credentials domain.Credentials `json:"credentials"`
}

func (s *Service) AdminGet(ctx context.Context, id string) (AdminAccount, error) {
	a, err := s.store.Accounts().Get(ctx, id)
	if err != nil {
		return AdminAccount{}, err
	}
	creds, err := s.box.OpenCredentials(a.Sealed)
	if err != nil {
		return AdminAccount{}, fmt.Errorf("decrypt credentials: %w", err)
	}
	return AdminAccount{Account: a, Credentials: creds}, nil
}

func normalize(a *domain.Account) {
	if a.Status == "" {
		a.Status = domain.AccountStatusAvailable
	}
	a.Rank = strings.TrimSpace(a.Rank)
	a.Description = strings.TrimSpace(a.Description)
	if a.Images == nil {
		a.Images = []string{}
	}
	if a.CharacterSkins == nil {
		a.CharacterSkins = []string{}
	}
}

func (s *Service) Create(ctx context.Context, a domain.Account, creds domain.Credentials) (domain.Account, error) {
	normalize(&a)
	if err := domain.JoinValidation(a.Validate()); err != nil {
		return domain.Account{}, err
	}

	sealed, err := s.box.SealCredentials(creds)
	if err != nil {
		return domain.Account{}, fmt.Errorf("encrypt credentials: %w", err)
	}

	now := s.now().UTC()
	a.ID = ""
	a.Sealed = sealed
	a.CreatedAt = now
	a.UpdatedAt = now
	if err := s.store.Accounts().Create(ctx, &a); err != nil {
		return domain.Account{}, err
	}

	s.logger.Info("account created", "account_id", a.ID, "price", a.Price)
	return a, nil
}

// Update replaces the account's fields. Credentials are kept when none are
// supplied.
func (s *Service) Update(ctx context.Context, id string, a domain.Account, creds domain.Credentials) (domain.Account, error) {
	normalize(&a)
	if err := domain.JoinValidation(a.Validate()); err != nil {
		return domain.Account{}, err
	}

	err := s.store.Atomic(ctx, func(tx domain.Repositories) error {
		current, err := tx.Accounts().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		a.ID = id
		a.CreatedAt = current.CreatedAt
		a.UpdatedAt = s.now().UTC()
		a.Sealed = current.Sealed
		if creds != (domain.Credentials{}) {
			if a.Sealed, err = s.box.SealCredentials(creds); err != nil {
				return fmt.Errorf("encrypt credentials: %w", err)
			}
		}
		return tx.Accounts().Update(ctx, &a)
	})
	if err != nil {
		return domain.Account{}, err
	}

	s.logger.Info("account updated", "account_id", id, "status", a.Status, "price", a.Price)
	return a, nil
}

// Delete removes an account no order has ever referenced.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.Atomic(ctx, func(tx domain.Repositories) error {
		if _, err := tx.Accounts().GetForUpdate(ctx, id); err != nil {
			return err
		}
		n, err := tx.Orders().CountByAccount(ctx, id, allOrderStatuses)
		if err != nil {
			return fmt.Errorf("count orders: %w", err)
		}
		if n > 0 {
			return domain.ErrAccountInUse
		}
		return tx.Accounts().Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("account deleted", "account_id", id)
	return nil
}

var allOrderStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusProcessing,
	domain.OrderStatusCompleted,
	domain.OrderStatusCancelled,
	domain.OrderStatusRefunded,
}
