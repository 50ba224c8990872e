//go:build integration

package test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joao-fontenele/account-storefront/internal/cache"
	"github.com/joao-fontenele/account-storefront/internal/catalog"
	"github.com/joao-fontenele/account-storefront/internal/delivery"
	"github.com/joao-fontenele/account-storefront/internal/domain"
	"github.com/joao-fontenele/account-storefront/internal/messaging"
	"github.com/joao-fontenele/account-storefront/internal/notifier"
	"github.com/joao-fontenele/account-storefront/internal/orders"
	"github.com/joao-fontenele/account-storefront/internal/qr"
	"github.com/joao-fontenele/account-storefront/internal/secrets"
	"github.com/joao-fontenele/account-storefront/internal/webhook"
)

type fixture struct {
	store      domain.Store
	box        *secrets.Box
	catalog    *catalog.Service
	orders     *orders.Service
	reconciler *webhook.Reconciler
	notified   *recordingNotifier
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.OrderCompletedEvent
}

func (n *recordingNotifier) OrderCompleted(_ context.Context, event domain.OrderCompletedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func newFixture(ctx context.Context, t *testing.T) *fixture {
	t.Helper()

	store, _ := SetupPostgres(ctx, t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	box, err := secrets.NewBox("integration-key")
	if err != nil {
		t.Fatalf("failed to create box: %v", err)
	}

	notified := &recordingNotifier{}
	return &fixture{
		store:      store,
		box:        box,
		catalog:    catalog.NewService(store, box, logger),
		orders:     orders.NewService(store, orders.NewNumberGenerator("LQ"), qr.NewBuilder("", "0123456789", "MBBank"), box, logger),
		reconciler: webhook.NewReconciler(store, "", notified, logger),
		notified:   notified,
	}
}

func (f *fixture) seedAccount(ctx context.Context, t *testing.T, price int64) domain.Account {
	t.Helper()

	account, err := f.catalog.Create(ctx, domain.Account{
		Price:       price,
		Rank:        "Legendary",
		HeroesCount: 80,
		SkinsCount:  120,
	}, domain.Credentials{GameUsername: "player01", GamePassword: "s3cret", LoginMethod: "garena"})
	if err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return account
}

func (f *fixture) buy(ctx context.Context, t *testing.T, userID, accountID string) orders.Placement {
	t.Helper()

	placed, err := f.orders.Create(ctx, userID, orders.CreateInput{
		AccountID:     accountID,
		CustomerName:  "Nguyen Van A",
		CustomerEmail: "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	return placed
}

func transfer(orderNumber string, amount int64) []byte {
	return []byte(fmt.Sprintf(
		`{"gateway":"MBBank","transferType":"in","transferAmount":%d,"content":"%s thanh toan","referenceCode":"FT%s"}`,
		amount, orderNumber, orderNumber))
}

func TestPurchaseAndPaymentFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	account := f.seedAccount(ctx, t, 150000)

	placed := f.buy(ctx, t, "user-1", account.ID)
	if placed.Order.Status != domain.OrderStatusPending {
		t.Fatalf("expected PENDING order, got %s", placed.Order.Status)
	}
	if !strings.Contains(placed.QRURL, "des="+placed.Order.OrderNumber) {
		t.Fatalf("expected QR URL to carry the order number, got %s", placed.QRURL)
	}

	again := f.buy(ctx, t, "user-1", account.ID)
	if !again.Reused || again.Order.ID != placed.Order.ID {
		t.Fatalf("expected the pending order to be reused, got %+v", again.Order)
	}

	res, err := f.reconciler.Handle(ctx, transfer(placed.Order.OrderNumber, 150000), "")
	if err != nil {
		t.Fatalf("webhook failed: %v", err)
	}
	if res.Outcome != webhook.OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %s", res.Outcome)
	}

	order, err := f.store.Orders().Get(ctx, placed.Order.ID)
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if order.Status != domain.OrderStatusCompleted || order.DeliveredAt == nil {
		t.Fatalf("expected delivered COMPLETED order, got %s (delivered %v)", order.Status, order.DeliveredAt)
	}

	stored, err := f.store.Accounts().Get(ctx, account.ID)
	if err != nil {
		t.Fatalf("failed to load account: %v", err)
	}
	if stored.Status != domain.AccountStatusSold {
		t.Fatalf("expected account sold, got %s", stored.Status)
	}

	payment, err := f.store.Payments().GetByOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to load payment: %v", err)
	}
	if payment.Status != domain.PaymentStatusSuccess || payment.PaidAt == nil {
		t.Fatalf("expected settled payment, got %+v", payment)
	}
	if payment.GatewayTransactionID != "FT"+order.OrderNumber {
		t.Fatalf("unexpected gateway reference %q", payment.GatewayTransactionID)
	}

	replay, err := f.reconciler.Handle(ctx, transfer(placed.Order.OrderNumber, 150000), "")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if replay.Outcome != webhook.OutcomeReplayed {
		t.Fatalf("expected replayed outcome, got %s", replay.Outcome)
	}

	f.reconciler.Wait()
	if n := f.notified.count(); n != 1 {
		t.Fatalf("expected exactly one delivery notification, got %d", n)
	}

	creds, err := f.orders.Credentials(ctx, "user-1", order.ID)
	if err != nil {
		t.Fatalf("failed to read credentials: %v", err)
	}
	if creds.GameUsername != "player01" || creds.GamePassword != "s3cret" {
		t.Fatalf("unexpected credentials %+v", creds)
	}

	if _, err := f.orders.Create(ctx, "user-2", orders.CreateInput{
		AccountID: account.ID, CustomerName: "Tran B", CustomerEmail: "b@example.com",
	}); !errors.Is(err, domain.ErrAccountUnavailable) {
		t.Fatalf("expected sold account to be unavailable, got %v", err)
	}
}

func TestAmountMismatchLeavesStateUnchanged(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	account := f.seedAccount(ctx, t, 150000)
	placed := f.buy(ctx, t, "user-1", account.ID)

	if _, err := f.reconciler.Handle(ctx, transfer(placed.Order.OrderNumber, 100000), ""); !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected amount mismatch, got %v", err)
	}

	order, err := f.store.Orders().Get(ctx, placed.Order.ID)
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected order to stay PENDING, got %s", order.Status)
	}
	payment, err := f.store.Payments().GetByOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to load payment: %v", err)
	}
	if payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected payment to stay PENDING, got %s", payment.Status)
	}
}

func TestConcurrentPurchasesSellOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	account := f.seedAccount(ctx, t, 200000)

	const buyers = 10
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		wins        int
		unavailable int
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.Create(ctx, fmt.Sprintf("buyer-%d", i), orders.CreateInput{
				AccountID:     account.ID,
				CustomerName:  "Buyer",
				CustomerEmail: fmt.Sprintf("buyer%d@example.com", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrAccountUnavailable):
				unavailable++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || unavailable != buyers-1 {
		t.Fatalf("expected 1 winner and %d rejections, got %d and %d", buyers-1, wins, unavailable)
	}

	active, err := f.store.Orders().CountByAccount(ctx, account.ID, domain.ActiveOrderStatuses)
	if err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected one active order, got %d", active)
	}
}

func TestConcurrentWebhookDeliveriesCompleteOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	account := f.seedAccount(ctx, t, 150000)
	placed := f.buy(ctx, t, "user-1", account.ID)
	raw := transfer(placed.Order.OrderNumber, 150000)

	const deliveries = 5
	outcomes := make(chan string, deliveries)
	var wg sync.WaitGroup
	for range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.reconciler.Handle(ctx, raw, "")
			if err != nil {
				t.Errorf("webhook failed: %v", err)
				return
			}
			outcomes <- res.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	completed := 0
	for o := range outcomes {
		if o == webhook.OutcomeCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Fatalf("expected exactly one completing delivery, got %d", completed)
	}

	f.reconciler.Wait()
	if n := f.notified.count(); n != 1 {
		t.Fatalf("expected one delivery notification, got %d", n)
	}
}

func TestAccountWithOrderHistoryCannotBeDeleted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	account := f.seedAccount(ctx, t, 150000)
	placed := f.buy(ctx, t, "user-1", account.ID)

	if _, err := f.orders.Cancel(ctx, placed.Order.ID, "changed mind"); err != nil {
		t.Fatalf("failed to cancel order: %v", err)
	}

	if err := f.catalog.Delete(ctx, account.ID); !errors.Is(err, domain.ErrAccountInUse) {
		t.Fatalf("expected account in use, got %v", err)
	}

	if err := f.orders.Delete(ctx, placed.Order.ID); !errors.Is(err, domain.ErrOrderNotDeletable) {
		t.Fatalf("expected cancelled order to be undeletable, got %v", err)
	}
}

func TestDeletePendingOrderRemovesPayments(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	account := f.seedAccount(ctx, t, 150000)
	placed := f.buy(ctx, t, "user-1", account.ID)

	if err := f.orders.Delete(ctx, placed.Order.ID); err != nil {
		t.Fatalf("failed to delete order: %v", err)
	}

	if _, err := f.store.Orders().Get(ctx, placed.Order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected order to be gone, got %v", err)
	}
	list, err := f.store.Payments().ListByOrder(ctx, placed.Order.ID)
	if err != nil {
		t.Fatalf("failed to list payments: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected payments to be removed, got %d", len(list))
	}

	again := f.buy(ctx, t, "user-2", account.ID)
	if again.Reused {
		t.Fatal("expected a fresh order after deletion")
	}
}

type emailCapture struct {
	mu     sync.Mutex
	emails []notifier.Message
}

func (e *emailCapture) handler(w http.ResponseWriter, r *http.Request) {
	var msg notifier.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	e.mu.Lock()
	e.emails = append(e.emails, msg)
	e.mu.Unlock()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"sent"}`))
}

func (e *emailCapture) get() []notifier.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]notifier.Message(nil), e.emails...)
}

func TestDeliveryOverKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers := SetupKafka(ctx, t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	box, err := secrets.NewBox("integration-key")
	if err != nil {
		t.Fatalf("failed to create box: %v", err)
	}
	sealed, err := box.SealCredentials(domain.Credentials{GameUsername: "player01", GamePassword: "s3cret"})
	if err != nil {
		t.Fatalf("failed to seal credentials: %v", err)
	}

	capture := &emailCapture{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /send", capture.handler)
	mailServer := httptest.NewServer(mux)
	defer mailServer.Close()

	producer := messaging.NewProducer(brokers, "order.completed")
	defer func() { _ = producer.Close() }()

	event := domain.OrderCompletedEvent{
		OrderID:              "order-1",
		OrderNumber:          "LQ1234567890",
		AccountID:            "account-1",
		Amount:               150000,
		CustomerName:         "Nguyen Van A",
		CustomerEmail:        "buyer@example.com",
		EncryptedCredentials: sealed,
		DeliveredAt:          time.Now().UTC(),
	}
	if err := delivery.NewKafkaNotifier(producer).OrderCompleted(ctx, event); err != nil {
		t.Fatalf("failed to publish event: %v", err)
	}

	consumer := messaging.NewConsumer(brokers, "order.completed", "integration-notifier",
		messaging.WithStartOffset(kafka.FirstOffset),
		messaging.WithRetry(3, 100*time.Millisecond))
	defer func() { _ = consumer.Close() }()

	deliverer := notifier.NewDeliverer(box, notifier.NewMailClient(mailServer.URL, mailServer.Client()), logger)
	handler := notifier.NewHandler(deliverer, logger)

	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = consumer.Consume(consumeCtx, handler.Handle) }()

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if emails := capture.get(); len(emails) > 0 {
			msg := emails[0]
			if msg.To != "buyer@example.com" {
				t.Fatalf("unexpected recipient %q", msg.To)
			}
			if !strings.Contains(msg.Subject, "LQ1234567890") {
				t.Fatalf("expected order number in subject, got %q", msg.Subject)
			}
			if !strings.Contains(msg.Body, "player01") || !strings.Contains(msg.Body, "s3cret") {
				t.Fatalf("expected decrypted credentials in body, got %q", msg.Body)
			}
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal("timed out waiting for delivery email")
}

func TestOrderStatusCacheOnRedis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	client, err := cache.Open(ctx, SetupRedis(ctx, t))
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	defer func() { _ = client.Close() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	statusCache := cache.NewRedis(client, "it:", time.Minute)
	svc := orders.NewService(f.store, orders.NewNumberGenerator("LQ"), qr.NewBuilder("", "0123456789", "MBBank"), f.box, logger,
		orders.WithStatusCache(statusCache))

	account := f.seedAccount(ctx, t, 150000)
	placed, err := svc.Create(ctx, "user-1", orders.CreateInput{
		AccountID: account.ID, CustomerName: "Nguyen Van A", CustomerEmail: "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	if _, err := f.reconciler.Handle(ctx, transfer(placed.Order.OrderNumber, 150000), ""); err != nil {
		t.Fatalf("webhook failed: %v", err)
	}

	view, err := svc.Status(ctx, "user-1", placed.Order.OrderNumber, "")
	if err != nil {
		t.Fatalf("failed to poll status: %v", err)
	}
	if !view.Found || view.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected COMPLETED, got %+v", view)
	}

	var cached orders.StatusView
	hit, err := statusCache.Get(ctx, "order-status:user-1:"+placed.Order.OrderNumber, &cached)
	if err != nil {
		t.Fatalf("failed to read cache: %v", err)
	}
	if !hit || cached != view {
		t.Fatalf("expected the final status to be cached, got hit=%v %+v", hit, cached)
	}
}
