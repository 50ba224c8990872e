package payments

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/account-storefront/internal/auth"
	"github.com/joao-fontenele/account-storefront/internal/domain"
	"github.com/joao-fontenele/account-storefront/internal/storage/memory"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seedOrder(t *testing.T, store *memory.Store) (domain.Order, domain.Payment) {
	t.Helper()
	ctx := context.Background()

	account := domain.Account{Status: domain.AccountStatusAvailable, Price: 150000, CreatedAt: t0}
	require.NoError(t, store.Accounts().Create(ctx, &account))

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
	require.NoError(t, store.Orders().Create(ctx, &order))

	p, err := CreatePending(ctx, store, order.ID, order.Amount, "", t0)
	require.NoError(t, err)
	return order, p
}

func newTracker() (*Tracker, *memory.Store) {
	store := memory.NewStore()
	return NewTracker(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestCreatePending(t *testing.T) {
	_, store := newTracker()
	_, p := seedOrder(t, store)

	require.Equal(t, domain.PaymentMethodBank, p.Method)
	require.Equal(t, domain.PaymentStatusPending, p.Status)

	_, err := CreatePending(context.Background(), store, p.OrderID, 1, "CASH", t0)
	require.ErrorIs(t, err, domain.ErrPaymentMethodInvalid)
}

func TestCancelPending(t *testing.T) {
	_, store := newTracker()
	ctx := context.Background()
	order, p := seedOrder(t, store)

	require.NoError(t, CancelPending(ctx, store, order.ID, "price changed", t0))

	got, err := store.Payments().Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusCancelled, got.Status)
	require.Equal(t, "price changed", got.FailureReason)
}

func TestTracker_MarkStatus(t *testing.T) {
	t.Run("success moves a pending order to processing", func(t *testing.T) {
		tracker, store := newTracker()
		ctx := context.Background()
		order, p := seedOrder(t, store)

		got, err := tracker.MarkStatus(ctx, p.ID, StatusChange{Status: domain.PaymentStatusSuccess})
		require.NoError(t, err)
		require.Equal(t, domain.PaymentStatusSuccess, got.Status)
		require.NotNil(t, got.PaidAt)

		o, err := store.Orders().Get(ctx, order.ID)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusProcessing, o.Status)
	})

	t.Run("a settled payment can only be refunded", func(t *testing.T) {
		tracker, store := newTracker()
		ctx := context.Background()
		_, p := seedOrder(t, store)

		_, err := tracker.MarkStatus(ctx, p.ID, StatusChange{Status: domain.PaymentStatusSuccess})
		require.NoError(t, err)

		_, err = tracker.MarkStatus(ctx, p.ID, StatusChange{Status: domain.PaymentStatusFailed})
		require.ErrorIs(t, err, domain.ErrPaymentSettled)

		refund := int64(50000)
		got, err := tracker.MarkStatus(ctx, p.ID, StatusChange{Status: domain.PaymentStatusRefunded, RefundAmount: &refund})
		require.NoError(t, err)
		require.Equal(t, domain.PaymentStatusRefunded, got.Status)
		require.Equal(t, refund, got.RefundAmount)
		require.NotNil(t, got.RefundedAt)
		require.NotNil(t, got.PaidAt, "the original payment time is kept")
	})

	t.Run("validates input", func(t *testing.T) {
		tracker, store := newTracker()
		ctx := context.Background()
		_, p := seedOrder(t, store)

		_, err := tracker.MarkStatus(ctx, p.ID, StatusChange{Status: "PAID"})
		require.ErrorIs(t, err, domain.ErrPaymentStatusInvalid)

		tooMuch := p.Amount + 1
		_, err = tracker.MarkStatus(ctx, p.ID, StatusChange{Status: domain.PaymentStatusRefunded, RefundAmount: &tooMuch})
		require.ErrorIs(t, err, domain.ErrRefundAmountInvalid)

		_, err = tracker.MarkStatus(ctx, "missing", StatusChange{Status: domain.PaymentStatusFailed})
		require.ErrorIs(t, err, domain.ErrPaymentNotFound)
	})

	t.Run("failure keeps the order pending", func(t *testing.T) {
		tracker, store := newTracker()
		ctx := context.Background()
		order, p := seedOrder(t, store)

		got, err := tracker.MarkStatus(ctx, p.ID, StatusChange{Status: domain.PaymentStatusFailed, FailureReason: "bank declined"})
		require.NoError(t, err)
		require.Equal(t, "bank declined", got.FailureReason)

		o, err := store.Orders().Get(ctx, order.ID)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusPending, o.Status)
	})
}

func TestHandler_Payments(t *testing.T) {
	tracker, store := newTracker()
	_, p := seedOrder(t, store)
	h := NewHandler(tracker, auth.NewResolver(""), slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/payments", h.HandleList)
	mux.HandleFunc("PATCH /admin/payments/{id}", h.HandleUpdateStatus)

	req := httptest.NewRequest(http.MethodGet, "/admin/payments?status=ALL&method=BANK", nil)
	req.Header.Set(auth.HeaderUserID, "admin-1")
	req.Header.Set(auth.HeaderUserRole, "ADMIN")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), p.ID) {
		t.Errorf("expected payment in list, got %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/payments?method=CASH", nil)
	req.Header.Set(auth.HeaderUserID, "admin-1")
	req.Header.Set(auth.HeaderUserRole, "ADMIN")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for an unknown method, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPatch, "/admin/payments/"+p.ID, strings.NewReader(`{"status":"SUCCESS"}`))
	req.Header.Set(auth.HeaderUserID, "user-1")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403 for a regular user, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPatch, "/admin/payments/"+p.ID, strings.NewReader(`{"status":"SUCCESS"}`))
	req.Header.Set(auth.HeaderUserID, "admin-1")
	req.Header.Set(auth.HeaderUserRole, "ADMIN")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
