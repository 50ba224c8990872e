// Package config reads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Port            string
	Storage         string
	PostgresURL     string
	KafkaBrokers    []string
	DeliveryTopic   string
	RedisURL        string
	EmailServiceURL string
	CredentialsKey  string
	AuthProxySecret string
	OTLPEndpoint    string

	SePayAPIKey  string
	SePayAccount string
	SePayBank    string
	SePayQRBase  string

	OrderNumberPrefix  string
	RequestTimeout     time.Duration
	PendingOrderLimit  int
	PendingOrderWindow time.Duration
	ReservationTTL     time.Duration
}

// Load reads the environment, applying defaults. Malformed numeric or
// duration values are reported together.
func Load() (Config, error) {
	var errs []error

	cfg := Config{
		Port:              getenv("PORT", "8080"),
		Storage:           getenv("STORAGE", StoragePostgres),
		PostgresURL:       os.Getenv("POSTGRES_URL"),
		DeliveryTopic:     getenv("DELIVERY_TOPIC", "order.completed"),
		RedisURL:          os.Getenv("REDIS_URL"),
		EmailServiceURL:   os.Getenv("EMAIL_SERVICE_URL"),
		CredentialsKey:    os.Getenv("CREDENTIALS_KEY"),
		AuthProxySecret:   os.Getenv("AUTH_PROXY_SECRET"),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		SePayAPIKey:       os.Getenv("SEPAY_API_KEY"),
		SePayAccount:      os.Getenv("SEPAY_ACCOUNT"),
		SePayBank:         os.Getenv("SEPAY_BANK"),
		SePayQRBase:       getenv("SEPAY_QR_BASE", "https://qr.sepay.vn/img"),
		OrderNumberPrefix: getenv("ORDER_NUMBER_PREFIX", "LQ"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	cfg.RequestTimeout = duration("REQUEST_TIMEOUT", 10*time.Second, &errs)
	cfg.PendingOrderWindow = duration("PENDING_ORDER_WINDOW", 10*time.Minute, &errs)
	cfg.ReservationTTL = duration("RESERVATION_TTL", 15*time.Minute, &errs)
	cfg.PendingOrderLimit = integer("PENDING_ORDER_LIMIT", 3, &errs)

	switch cfg.Storage {
	case StorageMemory, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StoragePostgres, cfg.Storage))
	}

	if !isOrderPrefix(cfg.OrderNumberPrefix) {
		errs = append(errs, fmt.Errorf("ORDER_NUMBER_PREFIX must be at least two uppercase letters, got %q", cfg.OrderNumberPrefix))
	}

	return cfg, errors.Join(errs...)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func integer(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid positive integer %q", key, v))
		return def
	}
	return n
}

func isOrderPrefix(s string) bool {
	if len(s) < 2 {
		return false
	}
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
