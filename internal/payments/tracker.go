// Package payments tracks the payment record attached to each order.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

// CreatePending records the PENDING payment of a freshly placed order.
func CreatePending(ctx context.Context, tx domain.Repositories, orderID string, amount int64, method domain.PaymentMethod, at time.Time) (domain.Payment, error) {
	if method == "" {
		method = domain.PaymentMethodBank
	}
	if !method.Valid() {
		return domain.Payment{}, domain.ErrPaymentMethodInvalid
	}

	p := domain.Payment{
		OrderID:   orderID,
		Amount:    amount,
		Method:    method,
		Status:    domain.PaymentStatusPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := tx.Payments().Create(ctx, &p); err != nil {
		return domain.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	return p, nil
}

// MarkSuccess settles a payment with the gateway reference and raw payload.
// A payment that is already SUCCESS is returned with ErrAlreadyProcessed.
func MarkSuccess(ctx context.Context, tx domain.Repositories, paymentID, gatewayTransactionID string, raw json.RawMessage, at time.Time) (domain.Payment, error) {
	p, err := tx.Payments().MarkSuccess(ctx, paymentID, gatewayTransactionID, raw, at)
	if err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		return domain.Payment{}, fmt.Errorf("mark payment success: %w", err)
	}
	return p, err
}

// CancelPending cancels every still-pending payment of an order.
func CancelPending(ctx context.Context, tx domain.Repositories, orderID, reason string, at time.Time) error {
	list, err := tx.Payments().ListByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	for _, p := range list {
		if p.Status != domain.PaymentStatusPending {
			continue
		}
		update := domain.PaymentUpdate{Status: domain.PaymentStatusCancelled, FailureReason: reason}
		if _, err := tx.Payments().Update(ctx, p.ID, update, at); err != nil {
			return fmt.Errorf("cancel payment %s: %w", p.ID, err)
		}
	}
	return nil
}

// StatusChange is an admin request to move a payment to a new status.
// Empty optional fields keep their stored values.
type StatusChange struct {
	Status        domain.PaymentStatus
	FailureReason string
	RefundAmount  *int64
}

type Tracker struct {
	store  domain.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(store domain.Store, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, logger: logger, now: time.Now}
}

// MarkStatus applies an admin status change. SUCCESS also moves a PENDING
// parent order to PROCESSING; a successful payment may only be refunded.
func (t *Tracker) MarkStatus(ctx context.Context, paymentID string, change StatusChange) (domain.Payment, error) {
	if !change.Status.Valid() {
		return domain.Payment{}, domain.ErrPaymentStatusInvalid
	}

	var updated domain.Payment
	err := t.store.Atomic(ctx, func(tx domain.Repositories) error {
		current, err := tx.Payments().Get(ctx, paymentID)
		if err != nil {
			return err
		}

		if current.Status == domain.PaymentStatusSuccess &&
			change.Status != domain.PaymentStatusSuccess &&
			change.Status != domain.PaymentStatusRefunded {
			return domain.ErrPaymentSettled
		}

		update := domain.PaymentUpdate{
			Status:        change.Status,
			FailureReason: current.FailureReason,
			RefundAmount:  current.RefundAmount,
		}
		if change.FailureReason != "" {
			update.FailureReason = change.FailureReason
		}
		if change.RefundAmount != nil {
			if *change.RefundAmount < 0 || *change.RefundAmount > current.Amount {
				return domain.ErrRefundAmountInvalid
			}
			update.RefundAmount = *change.RefundAmount
		}

		now := t.now().UTC()
		updated, err = tx.Payments().Update(ctx, paymentID, update, now)
		if err != nil {
			return fmt.Errorf("update payment: %w", err)
		}

		if change.Status != domain.PaymentStatusSuccess {
			return nil
		}
		_, err = tx.Orders().Transition(ctx, current.OrderID, domain.OrderTransition{
			From: []domain.OrderStatus{domain.OrderStatusPending},
			To:   domain.OrderStatusProcessing,
			At:   now,
		})
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil
		}
		return err
	})
	if err != nil {
		return domain.Payment{}, err
	}

	t.logger.Info("payment status updated", "payment_id", updated.ID, "order_id", updated.OrderID, "status", updated.Status)
	return updated, nil
}

func (t *Tracker) List(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.ErrPaymentStatusInvalid
	}
	if filter.Method != "" && !filter.Method.Valid() {
		return nil, 0, domain.ErrPaymentMethodInvalid
	}
	return t.store.Payments().List(ctx, filter)
}
