package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Environment string

	// Redis configuration
	RedisURL string

	// Seat map storage: "redis" or "pocketbase"
	SeatMapStore string

	// PubNub configuration
	PubNubPublishKey     string
	PubNubSubscribeKey   string
	PubNubSecretKey      string
	PubNubUserID         string
	PaymentNotifyChannel string

	// RabbitMQ; seat events are not published when empty
	AMQPURL string

	// Lock configuration
	DefaultLockDuration time.Duration
	MaxLockDuration     time.Duration
	LockMaxRetries      int

	// Sweeper configuration
	SweepInterval time.Duration
	SweepMode     string

	// Payments
	PaymentProvider   string
	PaymentCurrency   string
	SimulatedCheckout string

	// bcrypt hash of the token providers send on webhooks; empty disables the check
	WebhookTokenHash string

	// Rate limiting on lock requests
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	// A missing .env is fine; the process environment still applies.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Error loading .env: %v", err)
	}

	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		SeatMapStore: getEnv("SEATMAP_STORE", "redis"),

		// PubNub
		PubNubPublishKey:     getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey:   getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:      getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:         getEnv("PUBNUB_USER_ID", "seat-reservation"),
		PaymentNotifyChannel: getEnv("PAYMENT_NOTIFY_CHANNEL", "payment-notifications"),

		AMQPURL: getEnv("AMQP_URL", ""),

		// Locks
		DefaultLockDuration: getEnvAsDuration("DEFAULT_LOCK_DURATION", "10m"),
		MaxLockDuration:     getEnvAsDuration("MAX_LOCK_DURATION", "30m"),
		LockMaxRetries:      getEnvAsInt("LOCK_MAX_RETRIES", 5),

		// Sweeper
		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", "20m"),
		SweepMode:     getEnv("SWEEP_MODE", "reconcile"),

		PaymentProvider:   getEnv("PAYMENT_PROVIDER", "simulated"),
		PaymentCurrency:   getEnv("PAYMENT_CURRENCY", "EUR"),
		SimulatedCheckout: getEnv("SIMULATED_CHECKOUT_URL", ""),
		WebhookTokenHash:  getEnv("WEBHOOK_TOKEN_HASH", ""),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
