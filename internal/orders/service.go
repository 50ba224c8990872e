package orders

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/account-storefront/internal/catalog"
	"github.com/joao-fontenele/account-storefront/internal/domain"
	"github.com/joao-fontenele/account-storefront/internal/payments"
	"github.com/joao-fontenele/account-storefront/internal/qr"
	"github.com/joao-fontenele/account-storefront/internal/secrets"
)

const (
	reasonPriceChanged       = "price changed"
	reasonReservationExpired = "reservation expired"
)

var meter = otel.Meter("storefront/orders")

// Limits bounds how many unpaid orders a buyer may open and how long an
// unpaid order holds an account against other buyers.
type Limits struct {
	PendingOrders  int
	PendingWindow  time.Duration
	ReservationTTL time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		PendingOrders:  3,
		PendingWindow:  10 * time.Minute,
		ReservationTTL: 15 * time.Minute,
	}
}

// StatusCache stores poll results for orders that reached a final status.
type StatusCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

type Service struct {
	store   domain.Store
	numbers *NumberGenerator
	qr      *qr.Builder
	box     *secrets.Box
	cache   StatusCache
	limits  Limits
	now     func() time.Time
	logger  *slog.Logger

	created metric.Int64Counter
	reused  metric.Int64Counter
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLimits(l Limits) Option {
	return func(s *Service) { s.limits = l }
}

func WithStatusCache(c StatusCache) Option {
	return func(s *Service) { s.cache = c }
}

func NewService(store domain.Store, numbers *NumberGenerator, qrBuilder *qr.Builder, box *secrets.Box, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		numbers: numbers,
		qr:      qrBuilder,
		box:     box,
		limits:  DefaultLimits(),
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.created, err = meter.Int64Counter("storefront.orders.created",
		metric.WithDescription("Orders placed")); err != nil {
		otel.Handle(err)
	}
	if s.reused, err = meter.Int64Counter("storefront.orders.reused",
		metric.WithDescription("Purchase attempts answered with an existing pending order")); err != nil {
		otel.Handle(err)
	}
	return s
}

type CreateInput struct {
	AccountID     string
	CustomerName  string
	CustomerEmail string
	Method        domain.PaymentMethod
}

func (in CreateInput) validate(userID string) error {
	var errs []error
	if userID == "" {
		errs = append(errs, domain.ErrUserRequired)
	}
	if in.AccountID == "" {
		errs = append(errs, domain.ErrAccountRequired)
	}
	if strings.TrimSpace(in.CustomerName) == "" {
		errs = append(errs, domain.ErrCustomerNameRequired)
	}
	if _, err := mail.ParseAddress(in.CustomerEmail); err != nil {
		errs = append(errs, domain.ErrCustomerEmailInvalid)
	}
	if in.Method != "" && !in.Method.Valid() {
		errs = append(errs, domain.ErrPaymentMethodInvalid)
	}
	return domain.JoinValidation(errs)
}

// Placement is the result of a purchase attempt.
type Placement struct {
	Order   domain.Order
	Payment domain.Payment
	QRURL   string
	Reused  bool
}

// Create opens a PENDING order for the account, or returns the caller's
// existing pending order when its amount still matches the price.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (Placement, error) {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	if err := in.validate(userID); err != nil {
		return Placement{}, err
	}

	var placed Placement
	err := s.store.Atomic(ctx, func(tx domain.Repositories) error {
		placed = Placement{}

		account, err := catalog.LockForSale(ctx, tx, in.AccountID)
		if err != nil {
			return err
		}

		now := s.now().UTC()

		pending, err := tx.Orders().FindPending(ctx, userID, in.AccountID)
		if err != nil {
			return fmt.Errorf("find pending order: %w", err)
		}
		if pending != nil {
			if pending.Amount == account.Price {
				payment, err := tx.Payments().GetByOrder(ctx, pending.ID)
				if err != nil {
					return fmt.Errorf("load pending payment: %w", err)
				}
				placed = Placement{Order: *pending, Payment: payment, Reused: true}
				return nil
			}
			if _, err := Cancel(ctx, tx, pending.ID, reasonPriceChanged, now); err != nil {
				return fmt.Errorf("cancel stale order: %w", err)
			}
			s.logger.Info("pending order cancelled after price change",
				"order_id", pending.ID, "old_amount", pending.Amount, "new_amount", account.Price)
		}

		holder, err := tx.Orders().FindActiveByAccount(ctx, in.AccountID)
		if err != nil {
			return fmt.Errorf("find active order: %w", err)
		}
		if holder != nil {
			if holder.Status != domain.OrderStatusPending || now.Sub(holder.CreatedAt) < s.limits.ReservationTTL {
				return domain.ErrAccountUnavailable
			}
			if _, err := Cancel(ctx, tx, holder.ID, reasonReservationExpired, now); err != nil {
				return fmt.Errorf("expire reservation: %w", err)
			}
			s.logger.Info("expired reservation released", "order_id", holder.ID, "account_id", in.AccountID)
		}

		recent, err := tx.Orders().CountPendingSince(ctx, userID, now.Add(-s.limits.PendingWindow))
		if err != nil {
			return fmt.Errorf("count pending orders: %w", err)
		}
		if recent >= s.limits.PendingOrders {
			return domain.ErrTooManyPendingOrders
		}

		order := domain.Order{
			OrderNumber:   s.numbers.Next(),
			UserID:        userID,
			AccountID:     in.AccountID,
			Amount:        account.Price,
			Status:        domain.OrderStatusPending,
			CustomerName:  in.CustomerName,
			CustomerEmail: in.CustomerEmail,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := domain.JoinValidation(order.Validate()); err != nil {
			return err
		}
		if err := tx.Orders().Create(ctx, &order); err != nil {
			return err
		}

		payment, err := payments.CreatePending(ctx, tx, order.ID, order.Amount, in.Method, now)
		if err != nil {
			return err
		}

		placed = Placement{Order: order, Payment: payment}
		return nil
	})
	if err != nil {
		return Placement{}, err
	}

	placed.QRURL = s.qr.URL(placed.Order.Amount, placed.Order.OrderNumber)

	if placed.Reused {
		s.add(ctx, s.reused)
		s.logger.Info("pending order reused", "order_id", placed.Order.ID, "user_id", userID)
	} else {
		s.add(ctx, s.created)
		s.logger.Info("order created", "order_id", placed.Order.ID, "order_number", placed.Order.OrderNumber,
			"user_id", userID, "account_id", in.AccountID, "amount", placed.Order.Amount)
	}
	return placed, nil
}

func (s *Service) add(ctx context.Context, c metric.Int64Counter) {
	if c != nil {
		c.Add(ctx, 1)
	}
}

// Cancel cancels a PENDING order.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (domain.Order, error) {
	var order domain.Order
	err := s.store.Atomic(ctx, func(tx domain.Repositories) error {
		var err error
		order, err = Cancel(ctx, tx, orderID, reason, s.now().UTC())
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.invalidate(ctx, order)
	return order, nil
}

func (s *Service) SetProcessing(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := s.store.Atomic(ctx, func(tx domain.Repositories) error {
		var err error
		order, err = SetProcessing(ctx, tx, orderID, s.now().UTC())
		return err
	})
	return order, err
}

func (s *Service) Complete(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := s.store.Atomic(ctx, func(tx domain.Repositories) error {
		var err error
		order, err = Complete(ctx, tx, orderID, "", s.now().UTC())
		return err
	})
	return order, err
}

// UpdateStatus is the back-office status change. It follows the order state
// machine; repeating the current status only updates the notes.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus, notes string) (domain.Order, error) {
	if !next.Valid() {
		return domain.Order{}, domain.ErrOrderStatusInvalid
	}

	var order domain.Order
	err := s.store.Atomic(ctx, func(tx domain.Repositories) error {
		current, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.now().UTC()

		switch {
		case next == current.Status:
			order, err = tx.Orders().Transition(ctx, orderID, domain.OrderTransition{
				From:  []domain.OrderStatus{current.Status},
				To:    next,
				Notes: notes,
				At:    now,
			})
		case !current.Status.CanTransitionTo(next):
			return domain.ErrInvalidTransition
		case next == domain.OrderStatusCompleted:
			order, err = Complete(ctx, tx, orderID, notes, now)
		case next == domain.OrderStatusCancelled:
			if notes == "" {
				notes = "cancelled by admin"
			}
			order, err = Cancel(ctx, tx, orderID, notes, now)
		default:
			order, err = tx.Orders().Transition(ctx, orderID, domain.OrderTransition{
				From:  []domain.OrderStatus{current.Status},
				To:    next,
				Notes: notes,
				At:    now,
			})
		}
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.invalidate(ctx, order)
	s.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	return order, nil
}

// Delete removes a PENDING order together with its payments and restores
// the account, all in one transaction.
func (s *Service) Delete(ctx context.Context, orderID string) error {
	var order domain.Order
	err := s.store.Atomic(ctx, func(tx domain.Repositories) error {
		var err error
		order, err = tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotDeletable
		}

		if _, err := tx.Accounts().GetForUpdate(ctx, order.AccountID); err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		if err := tx.Payments().DeleteByOrder(ctx, orderID); err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}
		if err := tx.Orders().Delete(ctx, orderID); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return catalog.MarkAvailable(ctx, tx, order.AccountID, s.now().UTC())
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, order)
	s.logger.Info("order deleted", "order_id", orderID, "account_id", order.AccountID)
	return nil
}

func (s *Service) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return s.store.Orders().Get(ctx, orderID)
}

// Detail is the back-office view of an order.
type Detail struct {
	Order       domain.Order        `json:"order"`
	Account     domain.Account      `json:"account"`
	Credentials *domain.Credentials `json:"credentials,omitempty"`
	Payments    []domain.Payment    `json:"payments"`
}

func (s *Service) Detail(ctx context.Context, orderID string) (Detail, error) {
	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	account, err := s.store.Accounts().Get(ctx, order.AccountID)
	if err != nil {
		return Detail{}, fmt.Errorf("load account: %w", err)
	}
	list, err := s.store.Payments().ListByOrder(ctx, orderID)
	if err != nil {
		return Detail{}, fmt.Errorf("load payments: %w", err)
	}

	d := Detail{Order: order, Account: account, Payments: list}
	creds, err := s.box.OpenCredentials(account.Sealed)
	if err != nil {
		s.logger.Error("failed to decrypt account credentials", "error", err, "account_id", account.ID)
	} else {
		d.Credentials = &creds
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.ErrOrderStatusInvalid
	}
	return s.store.Orders().List(ctx, filter)
}

// StatusView answers the purchase dialog's poll.
type StatusView struct {
	Found       bool               `json:"found"`
	Status      domain.OrderStatus `json:"status,omitempty"`
	OrderNumber string             `json:"orderNumber,omitempty"`
	Amount      int64              `json:"amount,omitempty"`
}

func isFinal(s domain.OrderStatus) bool {
	switch s {
	case domain.OrderStatusCompleted, domain.OrderStatusCancelled, domain.OrderStatusRefunded:
		return true
	}
	return false
}

func statusKey(userID, orderNumber string) string {
	return "order-status:" + userID + ":" + orderNumber
}

// Status returns the caller's newest order matching the order number and/or
// account. Lookups by order number that reached a final status are cached.
func (s *Service) Status(ctx context.Context, userID, orderNumber, accountID string) (StatusView, error) {
	if orderNumber == "" && accountID == "" {
		return StatusView{}, domain.ErrLookupKeyRequired
	}

	cacheable := s.cache != nil && orderNumber != "" && accountID == ""
	if cacheable {
		var v StatusView
		hit, err := s.cache.Get(ctx, statusKey(userID, orderNumber), &v)
		if err != nil {
			s.logger.Warn("status cache read failed", "error", err)
		}
		if hit {
			return v, nil
		}
	}

	order, err := s.store.Orders().Latest(ctx, userID, orderNumber, accountID)
	if err != nil {
		return StatusView{}, err
	}
	if order == nil {
		return StatusView{Found: false}, nil
	}

	v := StatusView{Found: true, Status: order.Status, OrderNumber: order.OrderNumber, Amount: order.Amount}
	if cacheable && isFinal(order.Status) {
		if err := s.cache.Set(ctx, statusKey(userID, orderNumber), v); err != nil {
			s.logger.Warn("status cache write failed", "error", err)
		}
	}
	return v, nil
}

func (s *Service) invalidate(ctx context.Context, order domain.Order) {
	if s.cache == nil || order.OrderNumber == "" {
		return
	}
	if err := s.cache.Delete(ctx, statusKey(order.UserID, order.OrderNumber)); err != nil {
		s.logger.Warn("status cache invalidation failed", "error", err, "order_id", order.ID)
	}
}

// Credentials returns the decrypted login of a delivered order to its owner.
func (s *Service) Credentials(ctx context.Context, userID, orderID string) (domain.Credentials, error) {
	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return domain.Credentials{}, err
	}
	if order.UserID != userID {
		return domain.Credentials{}, domain.ErrOrderNotFound
	}
	if order.Status != domain.OrderStatusCompleted {
		return domain.Credentials{}, domain.ErrOrderNotDelivered
	}

	account, err := s.store.Accounts().Get(ctx, order.AccountID)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("load account: %w", err)
	}
	creds, err := s.box.OpenCredentials(account.Sealed)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("decrypt credentials: %w", err)
	}
	return creds, nil
}
