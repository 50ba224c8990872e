package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

// The functions below are the inventory contract used by order flows. They
// run inside the caller's transaction.

// LockForSale locks an account and returns it when it can be bought. A
// missing or non-available account is ErrAccountUnavailable.
func LockForSale(ctx context.Context, tx domain.Repositories, id string) (domain.Account, error) {
	account, err := tx.Accounts().GetForUpdate(ctx, id)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Account{}, domain.ErrAccountUnavailable
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("lock account: %w", err)
	}
	if account.Availability().Status != domain.AccountStatusAvailable {
		return domain.Account{}, domain.ErrAccountUnavailable
	}
	return account, nil
}

func MarkSold(ctx context.Context, tx domain.Repositories, id string, at time.Time) error {
	if err := tx.Accounts().SetStatus(ctx, id, domain.AccountStatusSold, at); err != nil {
		return fmt.Errorf("mark account sold: %w", err)
	}
	return nil
}

// MarkAvailable returns an account to sale whatever its current status.
func MarkAvailable(ctx context.Context, tx domain.Repositories, id string, at time.Time) error {
	if err := tx.Accounts().SetStatus(ctx, id, domain.AccountStatusAvailable, at); err != nil {
		return fmt.Errorf("release account: %w", err)
	}
	return nil
}
