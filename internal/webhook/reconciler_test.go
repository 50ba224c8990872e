package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/account-storefront/internal/domain"
	"github.com/joao-fontenele/account-storefront/internal/payments"
	"github.com/joao-fontenele/account-storefront/internal/storage/memory"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

const testPayload = `{"gateway":"MBBank","transactionDate":"2026-03-01 10:05:00","accountNumber":"0123456789",` +
	`"code":null,"content":"LQ1234567890 thanh toan","transferType":"in","transferAmount":150000,` +
	`"referenceCode":"FT26060123456","description":"BankAPINotify LQ1234567890"}`

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.OrderCompletedEvent
	err    error
}

func (n *recordingNotifier) OrderCompleted(_ context.Context, event domain.OrderCompletedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fixture struct {
	store      *memory.Store
	notifier   *recordingNotifier
	reconciler *Reconciler
	account    domain.Account
	order      domain.Order
	payment    domain.Payment
}

func newFixture(t *testing.T, apiKey string) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memory.NewStore(), notifier: &recordingNotifier{}}

	f.account = domain.Account{
		Status:      domain.AccountStatusAvailable,
		Price:       150000,
		Rank:        "Legendary",
		HeroesCount: 40,
		SkinsCount:  25,
		Sealed:      domain.Sealed{GameUsername: "sealed-user", GamePassword: "sealed-pass"},
		CreatedAt:   t0,
	}
	require.NoError(t, f.store.Accounts().Create(ctx, &f.account))

	f.order = domain.Order{
		OrderNumber:   "LQ1234567890",
		UserID:        "user-1",
		AccountID:     f.account.ID,
		Amount:        150000,
		Status:        domain.OrderStatusPending,
		CustomerName:  "Nguyen Van A",
		CustomerEmail: "buyer@example.com",
		CreatedAt:     t0,
	}
	require.NoError(t, f.store.Orders().Create(ctx, &f.order))

	var err error
	f.payment, err = payments.CreatePending(ctx, f.store, f.order.ID, f.order.Amount, "", t0)
	require.NoError(t, err)

	f.reconciler = NewReconciler(f.store, apiKey, f.notifier,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return t0.Add(5 * time.Minute) }))
	return f
}

func (f *fixture) state(t *testing.T) (domain.Order, domain.Payment, domain.Account) {
	t.Helper()
	ctx := context.Background()
	o, err := f.store.Orders().Get(ctx, f.order.ID)
	require.NoError(t, err)
	p, err := f.store.Payments().Get(ctx, f.payment.ID)
	require.NoError(t, err)
	a, err := f.store.Accounts().Get(ctx, f.account.ID)
	require.NoError(t, err)
	return o, p, a
}

func TestReconciler_CompletesOrder(t *testing.T) {
	f := newFixture(t, "")

	res, err := f.reconciler.Handle(context.Background(), []byte(testPayload), "")
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, res.Outcome)
	f.reconciler.Wait()

	o, p, a := f.state(t)
	require.Equal(t, domain.OrderStatusCompleted, o.Status)
	require.NotNil(t, o.DeliveredAt)
	require.Equal(t, domain.PaymentStatusSuccess, p.Status)
	require.Equal(t, "FT26060123456", p.GatewayTransactionID)
	require.JSONEq(t, testPayload, string(p.GatewayResponse))
	require.NotNil(t, p.PaidAt)
	require.Equal(t, domain.AccountStatusSold, a.Status)

	require.Equal(t, 1, f.notifier.count())
	event := f.notifier.events[0]
	require.Equal(t, "LQ1234567890", event.OrderNumber)
	require.Equal(t, "buyer@example.com", event.CustomerEmail)
	require.Equal(t, "Legendary", event.Rank)
	require.Equal(t, "sealed-user", event.EncryptedCredentials.GameUsername)
}

func TestReconciler_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.reconciler.Handle(ctx, []byte(testPayload), "")
	require.NoError(t, err)
	_, first, _ := f.state(t)

	res, err := f.reconciler.Handle(ctx, []byte(testPayload), "")
	require.NoError(t, err)
	require.Equal(t, OutcomeReplayed, res.Outcome)
	f.reconciler.Wait()

	_, second, _ := f.state(t)
	require.Equal(t, first.PaidAt, second.PaidAt)
	require.Equal(t, first.UpdatedAt, second.UpdatedAt)
	require.Equal(t, 1, f.notifier.count(), "a replay must not deliver twice")
}

func TestReconciler_RejectsWithoutWrites(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		auth    string
		want    error
	}{
		{"amount mismatch", strings.Replace(testPayload, "150000", "100000", 1), "", domain.ErrAmountMismatch},
		{"outgoing transfer", strings.Replace(testPayload, `"in"`, `"out"`, 1), "", domain.ErrWrongDirection},
		{"no order number", strings.ReplaceAll(testPayload, "LQ1234567890", "hello"), "", domain.ErrOrderNumberMissing},
		{"unknown order", strings.ReplaceAll(testPayload, "LQ1234567890", "LQ0000000000"), "", domain.ErrOrderNotFound},
		{"malformed", `{"transferAmount":"x"}`, "", domain.ErrInvalidPayload},
		{"missing api key", testPayload, "", domain.ErrUnauthorized},
		{"wrong api key", testPayload, "Apikey nope", domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiKey := ""
			if errors.Is(tt.want, domain.ErrUnauthorized) {
				apiKey = "secret"
			}
			f := newFixture(t, apiKey)

			_, err := f.reconciler.Handle(context.Background(), []byte(tt.payload), tt.auth)
			require.ErrorIs(t, err, tt.want)
			f.reconciler.Wait()

			o, p, a := f.state(t)
			require.Equal(t, domain.OrderStatusPending, o.Status)
			require.Equal(t, domain.PaymentStatusPending, p.Status)
			require.Equal(t, domain.AccountStatusAvailable, a.Status)
			require.Zero(t, f.notifier.count())
		})
	}
}

func TestReconciler_AcceptsApiKey(t *testing.T) {
	f := newFixture(t, "secret")

	_, err := f.reconciler.Handle(context.Background(), []byte(testPayload), "Apikey secret")
	require.NoError(t, err)
	f.reconciler.Wait()
}

func TestReconciler_MissingAmountIsAccepted(t *testing.T) {
	f := newFixture(t, "")
	payload := `{"content":"LQ1234567890","transferType":"in","referenceCode":"FT2"}`

	res, err := f.reconciler.Handle(context.Background(), []byte(payload), "")
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, res.Outcome)
	f.reconciler.Wait()
}

func TestReconciler_CreatesMissingPayment(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	require.NoError(t, f.store.Payments().DeleteByOrder(ctx, f.order.ID))

	_, err := f.reconciler.Handle(ctx, []byte(testPayload), "")
	require.NoError(t, err)
	f.reconciler.Wait()

	p, err := f.store.Payments().GetByOrder(ctx, f.order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSuccess, p.Status)
	require.Equal(t, domain.PaymentMethodBank, p.Method)
}

func TestReconciler_CancelledOrderRollsBack(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	_, err := f.store.Orders().Transition(ctx, f.order.ID, domain.OrderTransition{
		From: []domain.OrderStatus{domain.OrderStatusPending},
		To:   domain.OrderStatusCancelled,
		At:   t0,
	})
	require.NoError(t, err)

	_, err = f.reconciler.Handle(ctx, []byte(testPayload), "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	f.reconciler.Wait()

	_, p, a := f.state(t)
	require.Equal(t, domain.PaymentStatusPending, p.Status, "payment write must roll back")
	require.Equal(t, domain.AccountStatusAvailable, a.Status)
	require.Zero(t, f.notifier.count())
}

func TestReconciler_NotifierFailureKeepsPayment(t *testing.T) {
	f := newFixture(t, "")
	f.notifier.err = errors.New("mail relay down")

	res, err := f.reconciler.Handle(context.Background(), []byte(testPayload), "")
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, res.Outcome)
	f.reconciler.Wait()

	o, p, _ := f.state(t)
	require.Equal(t, domain.OrderStatusCompleted, o.Status)
	require.Equal(t, domain.PaymentStatusSuccess, p.Status)
	require.Equal(t, 1, f.notifier.count())
}

func TestReconciler_ConcurrentDeliveriesCompleteOnce(t *testing.T) {
	f := newFixture(t, "")

	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := map[string]int{}
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.reconciler.Handle(context.Background(), []byte(testPayload), "")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	f.reconciler.Wait()

	require.Equal(t, 1, outcomes[OutcomeCompleted])
	require.Equal(t, 7, outcomes[OutcomeReplayed])
	require.Equal(t, 1, f.notifier.count())
}

func TestHandler_HandleSePay(t *testing.T) {
	f := newFixture(t, "")
	h := NewHandler(f.reconciler, slog.New(slog.NewTextHandler(io.Discard, nil)))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/sepay", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.HandleSePay(rec, req)
		return rec
	}

	if rec := post(strings.Replace(testPayload, "150000", "1", 1)); rec.Code != http.StatusBadRequest {
		t.Errorf("amount mismatch: expected 400, got %d", rec.Code)
	}
	if rec := post(strings.ReplaceAll(testPayload, "LQ1234567890", "LQ0000000000")); rec.Code != http.StatusNotFound {
		t.Errorf("unknown order: expected 404, got %d", rec.Code)
	}
	if rec := post(`not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed: expected 400, got %d", rec.Code)
	}

	rec := post(testPayload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("expected success body, got %s", rec.Body.String())
	}

	rec = post(testPayload)
	if rec.Code != http.StatusOK {
		t.Errorf("replay: expected 200, got %d", rec.Code)
	}
	f.reconciler.Wait()
}
