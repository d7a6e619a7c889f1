package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration, populated from environment
// variables (and a .env file in development).
type Config struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	Port     uint16 `mapstructure:"port"`

	// DatabaseURL selects the backing store. When empty the server runs
	// on the in-memory store, which is only suitable for development.
	DatabaseURL string `mapstructure:"database_url"`

	// NatsURL selects the event dispatcher. When empty events are
	// collected in-process and dropped.
	NatsURL string `mapstructure:"nats_url"`

	Currency string `mapstructure:"currency"`

	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Tax      TaxConfig      `mapstructure:"tax"`
	Shipping ShippingConfig `mapstructure:"shipping"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// GatewayConfig holds payment gateway credentials and timeouts.
type GatewayConfig struct {
	// Provider is "stripe" or "mock".
	Provider      string        `mapstructure:"provider"`
	SecretKey     string        `mapstructure:"secret_key"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
}

type TaxConfig struct {
	// Rate is a fraction, e.g. 0.0875 for 8.75%.
	Rate float64 `mapstructure:"rate"`
}

type ShippingConfig struct {
	FlatRateCents int64 `mapstructure:"flat_rate_cents"`
	// FreeOverCents of zero disables the free shipping threshold.
	FreeOverCents int64 `mapstructure:"free_over_cents"`
}

// SweepConfig controls the abandoned order sweeper.
type SweepConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	PendingTTL time.Duration `mapstructure:"pending_ttl"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// DevMode reports whether the server should fall back to in-process
// implementations (memory store, mock gateway) for missing services.
func (c *Config) DevMode() bool {
	return c.Env != "prod"
}

// LoadConfig reads configuration from the environment. A .env file in
// the working directory is loaded first when present so development
// machines do not need exported variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 8080)
	v.SetDefault("database_url", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("currency", "USD")
	v.SetDefault("gateway.provider", "mock")
	v.SetDefault("gateway.secret_key", "")
	v.SetDefault("gateway.webhook_secret", "whsec_dev_secret")
	v.SetDefault("gateway.verify_timeout", 10*time.Second)
	v.SetDefault("tax.rate", 0.0)
	v.SetDefault("shipping.flat_rate_cents", 599)
	v.SetDefault("shipping.free_over_cents", 5000)
	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", time.Minute)
	v.SetDefault("sweep.pending_ttl", 24*time.Hour)
	v.SetDefault("metrics.namespace", "njord")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("invalid ENV %q: must be dev or prod", cfg.Env)
	}

	switch cfg.Gateway.Provider {
	case "stripe":
		if cfg.Gateway.SecretKey == "" {
			return nil, fmt.Errorf("GATEWAY_SECRET_KEY required for the stripe gateway")
		}
		if cfg.Gateway.WebhookSecret == "" {
			return nil, fmt.Errorf("GATEWAY_WEBHOOK_SECRET required for the stripe gateway")
		}
	case "mock":
		if cfg.Env == "prod" {
			return nil, fmt.Errorf("the mock gateway cannot be used in prod")
		}
	default:
		return nil, fmt.Errorf("invalid GATEWAY_PROVIDER %q: must be stripe or mock", cfg.Gateway.Provider)
	}

	if cfg.Env == "prod" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL required in prod")
	}

	if cfg.Tax.Rate < 0 || cfg.Tax.Rate > 1 {
		return nil, fmt.Errorf("invalid TAX_RATE %v: must be within [0, 1]", cfg.Tax.Rate)
	}
	if cfg.Shipping.FlatRateCents < 0 || cfg.Shipping.FreeOverCents < 0 {
		return nil, fmt.Errorf("shipping rates cannot be negative")
	}
	if cfg.Gateway.VerifyTimeout <= 0 {
		return nil, fmt.Errorf("GATEWAY_VERIFY_TIMEOUT must be positive")
	}
	if cfg.Sweep.Enabled && (cfg.Sweep.Interval <= 0 || cfg.Sweep.PendingTTL <= 0) {
		return nil, fmt.Errorf("sweep interval and pending TTL must be positive")
	}

	return &cfg, nil
}
