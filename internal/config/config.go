package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Observability
	OTLPEndpoint string

	// Storage and messaging. Empty values select the in-process fallbacks.
	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string

	// Business registry (Sirene)
	SireneBaseURL        string
	SireneConsumerKey    string
	SireneConsumerSecret string
	SireneTimeout        time.Duration
	SireneRateLimit      int
	SireneRateWindow     time.Duration

	// VAT registry (VIES)
	ViesBaseURL string
	ViesTimeout time.Duration

	// JWT / Auth
	JWTSecret     string
	JWTAccessTTL  time.Duration
	AdminEmail    string
	AdminPassword string

	// Checkout
	PaymentWebhookSecret  string
	PaymentCheckoutURL    string
	DeliveryFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	Currency              string
	OrderTTL              time.Duration
	OrderSweepSchedule    string

	// Background tasks
	TaskTimeout time.Duration

	// Dev mode
	DevTools bool // DEV_TOOLS=true exposes /v1/dev endpoints
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MaxRetries:     getEnvInt("MAX_RETRIES", 2),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 200*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "shop.events"),

		SireneBaseURL:        getEnv("SIRENE_BASE_URL", "https://api.insee.fr/entreprises/sirene/V3.11"),
		SireneConsumerKey:    getEnv("SIRENE_CONSUMER_KEY", ""),
		SireneConsumerSecret: getEnv("SIRENE_CONSUMER_SECRET", ""),
		SireneTimeout:        getEnvDuration("SIRENE_TIMEOUT", 10*time.Second),
		SireneRateLimit:      getEnvInt("SIRENE_RATE_LIMIT", 30),
		SireneRateWindow:     getEnvDuration("SIRENE_RATE_WINDOW", time.Minute),

		ViesBaseURL: getEnv("VIES_BASE_URL", "https://ec.europa.eu/taxation_customs/vies/rest-api/ms"),
		ViesTimeout: getEnvDuration("VIES_TIMEOUT", 15*time.Second),

		JWTSecret:     getEnv("JWT_SECRET", "shop-default-dev-secret-change-me"),
		JWTAccessTTL:  getEnvDuration("JWT_ACCESS_TTL", time.Hour),
		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		PaymentWebhookSecret:  getEnv("PAYMENT_WEBHOOK_SECRET", ""),
		PaymentCheckoutURL:    getEnv("PAYMENT_CHECKOUT_URL", ""),
		DeliveryFee:           getEnvDecimal("DELIVERY_FEE", decimal.RequireFromString("9.90")),
		FreeShippingThreshold: getEnvDecimal("FREE_SHIPPING_THRESHOLD", decimal.NewFromInt(100)),
		Currency:              getEnv("CURRENCY", "eur"),
		OrderTTL:              getEnvDuration("ORDER_TTL", 30*time.Minute),
		OrderSweepSchedule:    getEnv("ORDER_SWEEP_SCHEDULE", "@every 1m"),

		TaskTimeout: getEnvDuration("TASK_TIMEOUT", 45*time.Second),

		DevTools: getEnvBool("DEV_TOOLS", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
