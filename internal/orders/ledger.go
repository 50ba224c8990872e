package orders

import (
	"context"
	"time"

	"github.com/joao-fontenele/account-storefront/internal/catalog"
	"github.com/joao-fontenele/account-storefront/internal/domain"
	"github.com/joao-fontenele/account-storefront/internal/payments"
)

// The functions below are the order ledger's guarded transitions. They run
// inside a caller-owned transaction so they compose with payment and
// inventory writes.

// Cancel moves a PENDING order to CANCELLED and cancels its pending payment.
func Cancel(ctx context.Context, tx domain.Repositories, orderID, reason string, at time.Time) (domain.Order, error) {
	order, err := tx.Orders().Transition(ctx, orderID, domain.OrderTransition{
		From:  domain.OrderStatusCancelled.Sources(),
		To:    domain.OrderStatusCancelled,
		Notes: reason,
		At:    at,
	})
	if err != nil {
		return domain.Order{}, err
	}
	if err := payments.CancelPending(ctx, tx, orderID, reason, at); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// SetProcessing moves a PENDING order to PROCESSING.
func SetProcessing(ctx context.Context, tx domain.Repositories, orderID string, at time.Time) (domain.Order, error) {
	return tx.Orders().Transition(ctx, orderID, domain.OrderTransition{
		From: domain.OrderStatusProcessing.Sources(),
		To:   domain.OrderStatusProcessing,
		At:   at,
	})
}

// Complete moves a PENDING or PROCESSING order to COMPLETED, stamps the
// delivery time and marks the account sold.
func Complete(ctx context.Context, tx domain.Repositories, orderID, notes string, at time.Time) (domain.Order, error) {
	delivered := at
	order, err := tx.Orders().Transition(ctx, orderID, domain.OrderTransition{
		From:        domain.OrderStatusCompleted.Sources(),
		To:          domain.OrderStatusCompleted,
		Notes:       notes,
		DeliveredAt: &delivered,
		At:          at,
	})
	if err != nil {
		return domain.Order{}, err
	}
	if err := catalog.MarkSold(ctx, tx, order.AccountID, at); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}
