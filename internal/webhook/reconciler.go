package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/account-storefront/internal/domain"
	"github.com/joao-fontenele/account-storefront/internal/orders"
	"github.com/joao-fontenele/account-storefront/internal/payments"
)

const (
	OutcomeCompleted = "completed"
	OutcomeReplayed  = "replayed"

	notifyTimeout = 30 * time.Second
)

var meter = otel.Meter("storefront/webhook")

// Notifier hands a completed order over to delivery.
type Notifier interface {
	OrderCompleted(ctx context.Context, event domain.OrderCompletedEvent) error
}

type Result struct {
	Outcome string
	Order   domain.Order
}

type Reconciler struct {
	store    domain.Store
	apiKey   string
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	wg       sync.WaitGroup
	outcomes metric.Int64Counter
	failures metric.Int64Counter
}

type Option func(*Reconciler)

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler returns a Reconciler. An empty apiKey disables the
// Authorization check; a nil notifier disables delivery.
func NewReconciler(store domain.Store, apiKey string, notifier Notifier, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		apiKey:   apiKey,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	var err error
	if r.outcomes, err = meter.Int64Counter("storefront.webhook.outcomes",
		metric.WithDescription("Webhook notifications by outcome")); err != nil {
		otel.Handle(err)
	}
	if r.failures, err = meter.Int64Counter("storefront.delivery.failures",
		metric.WithDescription("Delivery notifications that could not be handed over")); err != nil {
		otel.Handle(err)
	}
	return r
}

func (r *Reconciler) authorize(header string) error {
	if r.apiKey == "" {
		return nil
	}
	expected := "Apikey " + r.apiKey
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(header)), []byte(expected)) != 1 {
		return domain.ErrUnauthorized
	}
	return nil
}

// Handle validates a notification and settles the matching order. Every
// rejection happens before any write. A replayed notification for a
// settled payment succeeds without touching state.
func (r *Reconciler) Handle(ctx context.Context, raw []byte, authHeader string) (Result, error) {
	res, err := r.handle(ctx, raw, authHeader)
	r.count(ctx, res, err)
	return res, err
}

func (r *Reconciler) handle(ctx context.Context, raw []byte, authHeader string) (Result, error) {
	if err := r.authorize(authHeader); err != nil {
		return Result{}, err
	}

	payload, err := ParsePayload(raw)
	if err != nil {
		return Result{}, err
	}

	number, ok := payload.OrderNumber()
	if !ok {
		return Result{}, domain.ErrOrderNumberMissing
	}

	order, err := r.store.Orders().GetByNumber(ctx, number)
	if err != nil {
		return Result{}, err
	}

	if !payload.Incoming() {
		return Result{Order: order}, domain.ErrWrongDirection
	}
	if payload.TransferAmount != nil && *payload.TransferAmount != order.Amount {
		return Result{Order: order}, domain.ErrAmountMismatch
	}

	var event domain.OrderCompletedEvent
	replayed := false
	err = r.store.Atomic(ctx, func(tx domain.Repositories) error {
		replayed = false
		now := r.now().UTC()

		payment, err := tx.Payments().GetByOrder(ctx, order.ID)
		if errors.Is(err, domain.ErrPaymentNotFound) {
			payment, err = payments.CreatePending(ctx, tx, order.ID, order.Amount, domain.PaymentMethodBank, now)
		}
		if err != nil {
			return err
		}
		if payment.Status == domain.PaymentStatusSuccess {
			replayed = true
			return nil
		}

		if _, err := payments.MarkSuccess(ctx, tx, payment.ID, payload.ReferenceCode, raw, now); err != nil {
			if errors.Is(err, domain.ErrAlreadyProcessed) {
				replayed = true
				return nil
			}
			return err
		}

		current, err := tx.Orders().Get(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status != domain.OrderStatusCompleted {
			if current, err = orders.Complete(ctx, tx, order.ID, "", now); err != nil {
				return fmt.Errorf("complete order: %w", err)
			}
		}
		order = current

		account, err := tx.Accounts().Get(ctx, order.AccountID)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		event = completedEvent(order, account, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			r.logger.Warn("payment received for an order that can no longer complete",
				"order_id", order.ID, "order_number", order.OrderNumber, "status", order.Status)
		}
		return Result{Order: order}, err
	}

	if replayed {
		r.logger.Info("webhook replay ignored", "order_id", order.ID, "order_number", order.OrderNumber)
		return Result{Outcome: OutcomeReplayed, Order: order}, nil
	}

	r.logger.Info("order paid", "order_id", order.ID, "order_number", order.OrderNumber,
		"amount", order.Amount, "reference", payload.ReferenceCode)
	r.notify(ctx, event)
	return Result{Outcome: OutcomeCompleted, Order: order}, nil
}

func completedEvent(order domain.Order, account domain.Account, at time.Time) domain.OrderCompletedEvent {
	delivered := at
	if order.DeliveredAt != nil {
		delivered = *order.DeliveredAt
	}
	return domain.OrderCompletedEvent{
		OrderID:              order.ID,
		OrderNumber:          order.OrderNumber,
		AccountID:            account.ID,
		Amount:               order.Amount,
		CustomerName:         order.CustomerName,
		CustomerEmail:        order.CustomerEmail,
		Rank:                 account.Rank,
		HeroesCount:          account.HeroesCount,
		SkinsCount:           account.SkinsCount,
		EncryptedCredentials: account.Sealed,
		DeliveredAt:          delivered,
	}
}

// notify runs after commit and outlives the request. Failures are logged
// and counted; the payment stays settled.
func (r *Reconciler) notify(ctx context.Context, event domain.OrderCompletedEvent) {
	if r.notifier == nil {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if err := r.notifier.OrderCompleted(ctx, event); err != nil {
			if r.failures != nil {
				r.failures.Add(ctx, 1)
			}
			r.logger.Error("failed to hand over delivery", "error", err, "order_id", event.OrderID)
			return
		}
		r.logger.Info("delivery handed over", "order_id", event.OrderID)
	}()
}

// Wait blocks until in-flight delivery notifications finish.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

func (r *Reconciler) count(ctx context.Context, res Result, err error) {
	if r.outcomes == nil {
		return
	}
	outcome := res.Outcome
	if err != nil {
		outcome = domain.CodeOf(err)
	}
	r.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
