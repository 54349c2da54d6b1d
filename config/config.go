// Package config loads gateway configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Kite Connect credentials
	KiteAPIKey    string
	KiteAPISecret string

	// Internal API key required on protected gateway endpoints (x-api-key).
	InternalAPIKey string

	// Listen addresses
	HTTPAddr    string
	MetricsAddr string

	LogLevel string

	// Symbol resolution
	DefaultExchange string

	// ATR engine defaults applied when a /target/calc request omits them.
	ATRPeriod        int
	ATRInterval      string // shorthand, e.g. "5m"
	StopMultiplier   float64
	TargetMultiplier float64

	// Order status watcher & webhook delivery
	PollInterval    time.Duration
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	MaxAttempts     int
	DispatchWorkers int
	WebhookTimeout  time.Duration

	// Ticker (live LTP stream); off by default.
	TickerEnabled bool
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is honored if present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env file")
	}

	return &Config{
		KiteAPIKey:     mustEnv("KITE_API_KEY"),
		KiteAPISecret:  mustEnv("KITE_API_SECRET"),
		InternalAPIKey: mustEnv("INTERNAL_API_KEY"),

		HTTPAddr:    getEnv("HTTP_ADDR", ":8000"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		DefaultExchange: getEnv("DEFAULT_EXCHANGE", "NSE"),

		ATRPeriod:        getEnvInt("ATR_PERIOD", 14),
		ATRInterval:      getEnv("ATR_INTERVAL", "5m"),
		StopMultiplier:   getEnvFloat("STOP_MULTIPLIER", 1.5),
		TargetMultiplier: getEnvFloat("TARGET_MULTIPLIER", 3.0),

		PollInterval:    getEnvSeconds("POLL_INTERVAL_SECONDS", 3),
		BackoffBase:     getEnvSeconds("BACKOFF_BASE_SECONDS", 2),
		BackoffCap:      getEnvSeconds("BACKOFF_CAP_SECONDS", 60),
		MaxAttempts:     getEnvInt("MAX_ATTEMPTS", 5),
		DispatchWorkers: getEnvInt("DISPATCH_WORKERS", 4),
		WebhookTimeout:  getEnvSeconds("WEBHOOK_TIMEOUT_SECONDS", 5),

		TickerEnabled: getEnv("TICKER_ENABLED", "false") == "true",
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}
