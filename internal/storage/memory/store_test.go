package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store) (domain.Account, domain.Order) {
	t.Helper()
	ctx := context.Background()

	account := domain.Account{Status: domain.AccountStatusAvailable, Price: 150000, CreatedAt: t0}
	require.NoError(t, s.Accounts().Create(ctx, &account))

	order := domain.Order{
		OrderNumber:   "LQ1234567890",
		UserID:        "user-1",
		AccountID:     account.ID,
		Amount:        150000,
		Status:        domain.OrderStatusPending,
		CustomerName:  "Nguyen Van A",
		CustomerEmail: "buyer@example.com",
		CreatedAt:     t0,
	}
	require.NoError(t, s.Orders().Create(ctx, &order))
	return account, order
}

func TestStore_AtomicRollsBackOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	account, order := seed(t, s)

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx domain.Repositories) error {
		if _, err := tx.Orders().Transition(ctx, order.ID, domain.OrderTransition{
			From: []domain.OrderStatus{domain.OrderStatusPending},
			To:   domain.OrderStatusCompleted,
			At:   t0,
		}); err != nil {
			return err
		}
		if err := tx.Accounts().SetStatus(ctx, account.ID, domain.AccountStatusSold, t0); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, got.Status)

	a, err := s.Accounts().Get(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AccountStatusAvailable, a.Status)
}

func TestStore_AtomicHonoursCancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Atomic(ctx, func(domain.Repositories) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestOrderRepository_OneActiveOrderPerAccount(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	account, first := seed(t, s)

	second := first
	second.ID = ""
	second.OrderNumber = "LQ1234567891"
	second.UserID = "user-2"
	require.ErrorIs(t, s.Orders().Create(ctx, &second), domain.ErrAccountUnavailable)

	dup := first
	dup.ID = ""
	require.ErrorIs(t, s.Orders().Create(ctx, &dup), domain.ErrOrderNumberTaken)

	_, err := s.Orders().Transition(ctx, first.ID, domain.OrderTransition{
		From: []domain.OrderStatus{domain.OrderStatusPending},
		To:   domain.OrderStatusCancelled,
		At:   t0,
	})
	require.NoError(t, err)
	require.NoError(t, s.Orders().Create(ctx, &second))

	holder, err := s.Orders().FindActiveByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, holder)
	require.Equal(t, second.ID, holder.ID)
}

func TestOrderRepository_TransitionGuardsSource(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, order := seed(t, s)

	_, err := s.Orders().Transition(ctx, order.ID, domain.OrderTransition{
		From: []domain.OrderStatus{domain.OrderStatusProcessing},
		To:   domain.OrderStatusRefunded,
		At:   t0,
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = s.Orders().Transition(ctx, "missing", domain.OrderTransition{To: domain.OrderStatusCancelled})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_CountPendingSince(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, order := seed(t, s)

	n, err := s.Orders().CountPendingSince(ctx, order.UserID, t0.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.Orders().CountPendingSince(ctx, order.UserID, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPaymentRepository_MarkSuccessIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, order := seed(t, s)

	p := domain.Payment{OrderID: order.ID, Amount: order.Amount, Method: domain.PaymentMethodBank, Status: domain.PaymentStatusPending, CreatedAt: t0}
	require.NoError(t, s.Payments().Create(ctx, &p))

	paid, err := s.Payments().MarkSuccess(ctx, p.ID, "FT001", []byte(`{"id":1}`), t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSuccess, paid.Status)
	require.NotNil(t, paid.PaidAt)

	again, err := s.Payments().MarkSuccess(ctx, p.ID, "FT002", nil, t0.Add(2*time.Minute))
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	require.Equal(t, "FT001", again.GatewayTransactionID)
	require.Equal(t, t0.Add(time.Minute), *again.PaidAt)
}

func TestPaymentRepository_CreateRequiresOrder(t *testing.T) {
	s := NewStore()
	p := domain.Payment{OrderID: "missing", Amount: 1, Method: domain.PaymentMethodBank, Status: domain.PaymentStatusPending}
	require.ErrorIs(t, s.Payments().Create(context.Background(), &p), domain.ErrOrderNotFound)
}

func TestOrderRepository_DeleteCascadesPayments(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, order := seed(t, s)

	p := domain.Payment{OrderID: order.ID, Amount: order.Amount, Method: domain.PaymentMethodBank, Status: domain.PaymentStatusPending, CreatedAt: t0}
	require.NoError(t, s.Payments().Create(ctx, &p))

	require.NoError(t, s.Orders().Delete(ctx, order.ID))

	list, err := s.Payments().ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}
