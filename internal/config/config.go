// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string
	BaseURL  string // public base URL used for gateway callback links

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Paystack gateway
	PaystackBaseURL       string
	PaystackSecretKey     string
	PaystackPublicKey     string
	PaystackWebhookSecret string
	GatewayTimeout        time.Duration

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Notification collaborator
	NotifyURL    string // external notification service endpoint (optional)
	NotifySecret string // HMAC secret for signing notification payloads

	// Subscription sweep
	SweepInterval     time.Duration
	WarningWindowDays int

	// The one school exempt from subscription checks
	DemoSchoolCode string
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultBaseURL         = "http://localhost:8080"
	DefaultPaystackBaseURL = "https://api.paystack.co"
	DefaultGatewayTimeout  = 15 * time.Second
	DefaultTokenTTL        = 24 * time.Hour
	DefaultSweepInterval   = time.Hour
	DefaultWarningWindow   = 7
	DefaultDemoSchoolCode  = "DEMO"
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		BaseURL:               getEnv("BASE_URL", DefaultBaseURL),
		DatabaseURL:           os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		PaystackBaseURL:       getEnv("PAYSTACK_BASE_URL", DefaultPaystackBaseURL),
		PaystackSecretKey:     os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackPublicKey:     os.Getenv("PAYSTACK_PUBLIC_KEY"),
		PaystackWebhookSecret: os.Getenv("PAYSTACK_WEBHOOK_SECRET"),
		GatewayTimeout:        getEnvDuration("GATEWAY_TIMEOUT", DefaultGatewayTimeout),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		TokenTTL:              getEnvDuration("TOKEN_TTL", DefaultTokenTTL),
		NotifyURL:             os.Getenv("NOTIFY_URL"),
		NotifySecret:          os.Getenv("NOTIFY_SECRET"),
		SweepInterval:         getEnvDuration("SWEEP_INTERVAL", DefaultSweepInterval),
		WarningWindowDays:     getEnvInt("WARNING_WINDOW_DAYS", DefaultWarningWindow),
		DemoSchoolCode:        getEnv("DEMO_SCHOOL_CODE", DefaultDemoSchoolCode),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.PaystackSecretKey == "" {
		return fmt.Errorf("PAYSTACK_SECRET_KEY is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.SweepInterval < time.Minute {
		return fmt.Errorf("SWEEP_INTERVAL must be at least 1m, got %s", c.SweepInterval)
	}
	if c.WarningWindowDays < 0 {
		return fmt.Errorf("WARNING_WINDOW_DAYS must not be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
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
