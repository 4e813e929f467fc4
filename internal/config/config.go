package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/deepshark/deepshark-backend/internal/artifacts"
	"github.com/deepshark/deepshark-backend/internal/catalog"
	"github.com/deepshark/deepshark-backend/internal/consul"
	"github.com/deepshark/deepshark-backend/internal/events"
	"github.com/deepshark/deepshark-backend/internal/fal"
	"github.com/deepshark/deepshark-backend/internal/payments"
	"github.com/deepshark/deepshark-backend/internal/reconcile"
	"github.com/deepshark/deepshark-backend/internal/service"
)

// Config represents the complete configuration for the backend
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Auth      AuthConfig       `yaml:"auth"`
	Fal       fal.Config       `yaml:"fal"`
	Artifacts artifacts.Config `yaml:"artifacts"`
	Payments  PaymentsConfig   `yaml:"payments"`
	Pricing   PricingConfig    `yaml:"pricing"`
	NATS      events.Config    `yaml:"nats"`
	Consul    consul.Config    `yaml:"consul"`
	Reconcile reconcile.Config `yaml:"reconcile"`
	Billing   BillingConfig    `yaml:"billing"`
	LogLevel  string           `yaml:"log_level"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConnections int           `yaml:"max_connections"`
	MinConnections int           `yaml:"min_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxLifetime    time.Duration `yaml:"max_lifetime"`
}

// AuthConfig represents session authentication configuration
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	SessionDuration time.Duration `yaml:"session_duration"`
}

// PaymentsConfig groups the payment gateway credentials
type PaymentsConfig struct {
	PayPal   payments.PayPalConfig   `yaml:"paypal"`
	Razorpay payments.RazorpayConfig `yaml:"razorpay"`
}

// PricingConfig represents credit pricing configuration
type PricingConfig struct {
	Catalog               catalog.Config  `yaml:"catalog"`
	PayPalCreditsPerUSD   decimal.Decimal `yaml:"paypal_credits_per_usd"`
	PayPalMinimumUSD      decimal.Decimal `yaml:"paypal_minimum_usd"`
	RazorpayCreditsPerINR decimal.Decimal `yaml:"razorpay_credits_per_inr"`
	RazorpayMinimumINR    decimal.Decimal `yaml:"razorpay_minimum_inr"`
}

// BillingConfig represents account billing configuration
type BillingConfig struct {
	// SignupGrant is the free credit balance new accounts start with.
	SignupGrant int `yaml:"signup_grant"`
}

// Load reads the YAML configuration from path and applies environment
// overrides for secrets, so credentials never need to live in the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets environment variables win over file values for
// secrets and deploy-specific endpoints.
func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"DATABASE_URL", &c.Database.URL},
		{"JWT_SECRET", &c.Auth.JWTSecret},
		{"FAL_API_KEY", &c.Fal.APIKey},
		{"PAYPAL_CLIENT_ID", &c.Payments.PayPal.ClientID},
		{"PAYPAL_CLIENT_SECRET", &c.Payments.PayPal.ClientSecret},
		{"RAZORPAY_KEY_ID", &c.Payments.Razorpay.KeyID},
		{"RAZORPAY_KEY_SECRET", &c.Payments.Razorpay.KeySecret},
		{"MINIO_ACCESS_KEY", &c.Artifacts.AccessKeyID},
		{"MINIO_SECRET_KEY", &c.Artifacts.SecretAccessKey},
		{"NATS_ADDRESS", &c.NATS.Address},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.Fal.APIKey == "" {
		return fmt.Errorf("generation provider API key is required")
	}
	if c.Artifacts.Endpoint == "" || c.Artifacts.Bucket == "" {
		return fmt.Errorf("artifact storage endpoint and bucket are required")
	}
	if c.Billing.SignupGrant < 0 {
		return fmt.Errorf("signup grant cannot be negative")
	}
	return nil
}

// GetDatabaseConfig returns database configuration for pgxpool
func (c *Config) GetDatabaseConfig() (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(c.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if c.Database.MaxConnections > 0 {
		cfg.MaxConns = int32(c.Database.MaxConnections)
	}
	if c.Database.MinConnections > 0 {
		cfg.MinConns = int32(c.Database.MinConnections)
	}
	if c.Database.MaxLifetime > 0 {
		cfg.MaxConnLifetime = c.Database.MaxLifetime
	}
	if c.Database.IdleTimeout > 0 {
		cfg.MaxConnIdleTime = c.Database.IdleTimeout
	}
	return cfg, nil
}

// Rates returns the settlement conversion rates, falling back to the
// production defaults for any unset value.
func (c *Config) Rates() service.Rates {
	rates := service.DefaultRates()
	if c.Pricing.PayPalCreditsPerUSD.GreaterThan(decimal.Zero) {
		rates.PayPalCreditsPerUSD = c.Pricing.PayPalCreditsPerUSD
	}
	if c.Pricing.PayPalMinimumUSD.GreaterThan(decimal.Zero) {
		rates.PayPalMinimumUSD = c.Pricing.PayPalMinimumUSD
	}
	if c.Pricing.RazorpayCreditsPerINR.GreaterThan(decimal.Zero) {
		rates.RazorpayCreditsPerINR = c.Pricing.RazorpayCreditsPerINR
	}
	if c.Pricing.RazorpayMinimumINR.GreaterThan(decimal.Zero) {
		rates.RazorpayMinimumINR = c.Pricing.RazorpayMinimumINR
	}
	return rates
}

// SessionDuration returns the configured session lifetime, defaulting to
// seven days.
func (c *Config) SessionDuration() time.Duration {
	if c.Auth.SessionDuration > 0 {
		return c.Auth.SessionDuration
	}
	return 7 * 24 * time.Hour
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.LogLevel == "debug"
}
