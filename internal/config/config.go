package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration of the auction engine.
type Config struct {
	ServerAddress string `mapstructure:"SERVER_ADDRESS"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`

	StoreDriver  string `mapstructure:"STORE_DRIVER"`
	PostgresConn string `mapstructure:"POSTGRES_CONN"`

	SchedulerConcurrency  int           `mapstructure:"SCHEDULER_CONCURRENCY"`
	SchedulerPollInterval time.Duration `mapstructure:"SCHEDULER_POLL_INTERVAL"`
	SchedulerMaxAttempts  int           `mapstructure:"SCHEDULER_MAX_ATTEMPTS"`

	SoftCloseWindow           time.Duration `mapstructure:"SOFT_CLOSE_WINDOW"`
	SoftCloseExtension        time.Duration `mapstructure:"SOFT_CLOSE_EXTENSION"`
	DefaultMaxTimerExtensions int           `mapstructure:"DEFAULT_MAX_TIMER_EXTENSIONS"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	PaymentCurrency     string `mapstructure:"PAYMENT_CURRENCY"`
	MailFrom            string `mapstructure:"MAIL_FROM"`
}

var defaults = map[string]any{
	"SERVER_ADDRESS":               ":8080",
	"LOG_LEVEL":                    "info",
	"STORE_DRIVER":                 "memory",
	"POSTGRES_CONN":                "",
	"SCHEDULER_CONCURRENCY":        5,
	"SCHEDULER_POLL_INTERVAL":      "1s",
	"SCHEDULER_MAX_ATTEMPTS":       3,
	"SOFT_CLOSE_WINDOW":            "10s",
	"SOFT_CLOSE_EXTENSION":         "10s",
	"DEFAULT_MAX_TIMER_EXTENSIONS": 10,
	"STRIPE_SECRET_KEY":            "",
	"STRIPE_WEBHOOK_SECRET":        "",
	"PAYMENT_CURRENCY":             "usd",
	"MAIL_FROM":                    "auctions@livebid.local",
}

// LoadConfig reads app.env from path when present, overlays the environment,
// applies defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel)
	}

	switch c.StoreDriver {
	case "memory":
	case "postgres":
		if c.PostgresConn == "" {
			return fmt.Errorf("POSTGRES_CONN is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %q, must be memory or postgres", c.StoreDriver)
	}

	if c.SchedulerConcurrency <= 0 {
		return fmt.Errorf("invalid SCHEDULER_CONCURRENCY: %d, must be positive", c.SchedulerConcurrency)
	}
	if c.SchedulerPollInterval <= 0 {
		return fmt.Errorf("invalid SCHEDULER_POLL_INTERVAL: %s, must be positive", c.SchedulerPollInterval)
	}
	if c.SchedulerMaxAttempts <= 0 {
		return fmt.Errorf("invalid SCHEDULER_MAX_ATTEMPTS: %d, must be positive", c.SchedulerMaxAttempts)
	}
	if c.SoftCloseWindow <= 0 || c.SoftCloseExtension <= 0 {
		return fmt.Errorf("SOFT_CLOSE_WINDOW and SOFT_CLOSE_EXTENSION must be positive")
	}
	if c.DefaultMaxTimerExtensions < 0 {
		return fmt.Errorf("invalid DEFAULT_MAX_TIMER_EXTENSIONS: %d", c.DefaultMaxTimerExtensions)
	}
	if len(c.PaymentCurrency) != 3 {
		return fmt.Errorf("invalid PAYMENT_CURRENCY: %q, must be an ISO 4217 code", c.PaymentCurrency)
	}
	return nil
}

// PaymentsEnabled reports whether a gateway key is configured.
func (c Config) PaymentsEnabled() bool {
	return c.StripeSecretKey != ""
}
