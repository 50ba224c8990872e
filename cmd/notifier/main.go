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

	"github.com/joao-fontenele/account-storefront/internal/config"
	"github.com/joao-fontenele/account-storefront/internal/messaging"
	"github.com/joao-fontenele/account-storefront/internal/notifier"
	"github.com/joao-fontenele/account-storefront/internal/secrets"
	"github.com/joao-fontenele/account-storefront/internal/telemetry"
)

const consumerGroup = "delivery-notifier"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}
	if cfg.EmailServiceURL == "" {
		logger.Error("EMAIL_SERVICE_URL environment variable is required")
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "notifier", "0.1.0", cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.DeliveryTopic, consumerGroup,
		messaging.WithRetry(5, 500*time.Millisecond))
	defer func() { _ = consumer.Close() }()

	httpClient := telemetry.NewHTTPClient(&http.Client{Timeout: 10 * time.Second})
	deliverer := notifier.NewDeliverer(box, notifier.NewMailClient(cfg.EmailServiceURL, httpClient), logger)
	handler := notifier.NewHandler(deliverer, logger)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting delivery notifier", "brokers", cfg.KafkaBrokers, "topic", cfg.DeliveryTopic)

	if err := consumer.Consume(ctx, handler.Handle); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
