package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/joao-fontenele/account-storefront/internal/auth"
	"github.com/joao-fontenele/account-storefront/internal/cache"
	"github.com/joao-fontenele/account-storefront/internal/catalog"
	"github.com/joao-fontenele/account-storefront/internal/config"
	"github.com/joao-fontenele/account-storefront/internal/delivery"
	"github.com/joao-fontenele/account-storefront/internal/domain"
	"github.com/joao-fontenele/account-storefront/internal/httpjson"
	"github.com/joao-fontenele/account-storefront/internal/messaging"
	"github.com/joao-fontenele/account-storefront/internal/notifier"
	"github.com/joao-fontenele/account-storefront/internal/orders"
	"github.com/joao-fontenele/account-storefront/internal/payments"
	"github.com/joao-fontenele/account-storefront/internal/qr"
	"github.com/joao-fontenele/account-storefront/internal/secrets"
	"github.com/joao-fontenele/account-storefront/internal/storage/memory"
	"github.com/joao-fontenele/account-storefront/internal/storage/postgres"
	"github.com/joao-fontenele/account-storefront/internal/telemetry"
	"github.com/joao-fontenele/account-storefront/internal/webhook"
)

const serviceVersion = "0.1.0"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.CredentialsKey == "" {
		logger.Error("CREDENTIALS_KEY environment variable is required")
		os.Exit(1)
	}
	box, err := secrets.NewBox(cfg.CredentialsKey)
	if err != nil {
		logger.Error("failed to initialize credential encryption", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront", serviceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err, "storage", cfg.Storage)
		os.Exit(1)
	}
	defer closeStore()

	httpClient := telemetry.NewHTTPClient(&http.Client{Timeout: 10 * time.Second})

	var deliveryNotifier webhook.Notifier
	switch {
	case len(cfg.KafkaBrokers) > 0:
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.DeliveryTopic)
		defer func() { _ = producer.Close() }()
		deliveryNotifier = delivery.NewKafkaNotifier(producer)
		logger.Info("delivery via kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.DeliveryTopic)
	case cfg.EmailServiceURL != "":
		mail := notifier.NewMailClient(cfg.EmailServiceURL, httpClient)
		deliveryNotifier = notifier.NewDeliverer(box, mail, logger)
		logger.Info("delivery via email service", "url", cfg.EmailServiceURL)
	default:
		logger.Warn("no delivery configured, paid orders will not be emailed")
	}

	orderOpts := []orders.Option{
		orders.WithLimits(orders.Limits{
			PendingOrders:  cfg.PendingOrderLimit,
			PendingWindow:  cfg.PendingOrderWindow,
			ReservationTTL: cfg.ReservationTTL,
		}),
	}
	if cfg.RedisURL != "" {
		client, err := cache.Open(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		orderOpts = append(orderOpts, orders.WithStatusCache(cache.NewRedis(client, "storefront:", cache.DefaultTTL)))
	}

	resolver := auth.NewResolver(cfg.AuthProxySecret)
	if !resolver.Verified() {
		logger.Warn("AUTH_PROXY_SECRET is not set, identity headers including the admin role are trusted from any caller")
	}
	qrBuilder := qr.NewBuilder(cfg.SePayQRBase, cfg.SePayAccount, cfg.SePayBank)

	catalogService := catalog.NewService(store, box, logger)
	orderService := orders.NewService(store, orders.NewNumberGenerator(cfg.OrderNumberPrefix), qrBuilder, box, logger, orderOpts...)
	tracker := payments.NewTracker(store, logger)
	reconciler := webhook.NewReconciler(store, cfg.SePayAPIKey, deliveryNotifier, logger)
	if cfg.SePayAPIKey == "" {
		logger.Warn("SEPAY_API_KEY is not set, webhook requests are not authenticated")
	}

	catalogHandler := catalog.NewHandler(catalogService, resolver, logger)
	orderHandler := orders.NewHandler(orderService, resolver, logger)
	paymentHandler := payments.NewHandler(tracker, resolver, logger)
	webhookHandler := webhook.NewHandler(reconciler, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /accounts", telemetry.WithHTTPRoute(catalogHandler.HandleList))
	mux.HandleFunc("GET /accounts/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleGet))
	mux.HandleFunc("GET /ranks", telemetry.WithHTTPRoute(catalogHandler.HandleRanks))

	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(orderHandler.HandleCreate))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(orderHandler.HandleList))
	mux.HandleFunc("GET /orders/status", telemetry.WithHTTPRoute(orderHandler.HandleStatus))
	mux.HandleFunc("GET /orders/{id}/credentials", telemetry.WithHTTPRoute(orderHandler.HandleCredentials))

	mux.HandleFunc("POST /webhooks/sepay", telemetry.WithHTTPRoute(webhookHandler.HandleSePay))

	mux.HandleFunc("GET /admin/accounts/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleAdminGet))
	mux.HandleFunc("POST /admin/accounts", telemetry.WithHTTPRoute(catalogHandler.HandleCreate))
	mux.HandleFunc("PUT /admin/accounts/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleUpdate))
	mux.HandleFunc("DELETE /admin/accounts/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleDelete))
	mux.HandleFunc("GET /admin/orders", telemetry.WithHTTPRoute(orderHandler.HandleAdminList))
	mux.HandleFunc("GET /admin/orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleAdminGet))
	mux.HandleFunc("PATCH /admin/orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleUpdateStatus))
	mux.HandleFunc("DELETE /admin/orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleDelete))
	mux.HandleFunc("GET /admin/payments", telemetry.WithHTTPRoute(paymentHandler.HandleList))
	mux.HandleFunc("PATCH /admin/payments/{id}", telemetry.WithHTTPRoute(paymentHandler.HandleUpdateStatus))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			logger.Error("health check failed", "error", err)
			httpjson.WriteError(w, logger, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		httpjson.WriteJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.NewHTTPHandler(withRequestTimeout(mux, cfg.RequestTimeout), "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("starting storefront service", "port", cfg.Port, "storage", cfg.Storage)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	reconciler.Wait()
}

// withRequestTimeout bounds every request so storage waits surface as a
// retryable 503 instead of hanging the client.
func withRequestTimeout(next http.Handler, d time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (domain.Store, func(), error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	if cfg.PostgresURL == "" {
		return nil, nil, errors.New("POSTGRES_URL environment variable is required")
	}

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return postgres.NewStore(db), func() { _ = db.Close() }, nil
}
