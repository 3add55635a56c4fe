package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultOrigin     = "http://localhost:8080"
	defaultSessionTTL = 30 * time.Minute

	defaultRoboKassaBaseURL   = "https://auth.robokassa.ru/Merchant/Index.aspx"
	defaultNOWPaymentsBaseURL = "https://api.nowpayments.io/v1"
	defaultPayCurrency        = "usdttrc20"

	defaultEURToRUB  = 100.0
	defaultEURToUSDT = 1.05
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Checkout CheckoutConfig
	PSP      PSPConfig
	Rates    RatesConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// CheckoutConfig holds checkout flow parameters shared across providers.
type CheckoutConfig struct {
	Origin     string
	SessionTTL time.Duration
}

// PSPConfig collects credentials and endpoints for payment providers.
// Empty credentials are tolerated at load time; the affected provider
// reports a configuration error when it is actually invoked.
type PSPConfig struct {
	Stripe      StripeConfig
	RoboKassa   RoboKassaConfig
	NOWPayments NOWPaymentsConfig
}

// StripeConfig stores Stripe API settings.
type StripeConfig struct {
	APIKey string
}

// RoboKassaConfig stores RoboKassa merchant settings.
type RoboKassaConfig struct {
	MerchantLogin string
	Password1     string
	Password2     string
	BaseURL       string
	TestMode      bool
}

// NOWPaymentsConfig stores NOWPayments API settings.
type NOWPaymentsConfig struct {
	APIKey      string
	PublicKey   string
	BaseURL     string
	PayCurrency string
}

// RatesConfig fixes the EUR conversion rates used for settlement amounts.
type RatesConfig struct {
	EURToRUB  float64
	EURToUSDT float64
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "CHECKOUT_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "CHECKOUT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "CHECKOUT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "CHECKOUT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Checkout: CheckoutConfig{
			Origin:     stringWithDefault(lookup, "CHECKOUT_ORIGIN", defaultOrigin),
			SessionTTL: durationWithDefault(lookup, "CHECKOUT_SESSION_TTL", defaultSessionTTL),
		},
		PSP: PSPConfig{
			Stripe: StripeConfig{
				APIKey: stringWithDefault(lookup, "CHECKOUT_PSP_STRIPE_API_KEY", ""),
			},
			RoboKassa: RoboKassaConfig{
				MerchantLogin: stringWithDefault(lookup, "CHECKOUT_PSP_ROBOKASSA_LOGIN", ""),
				Password1:     stringWithDefault(lookup, "CHECKOUT_PSP_ROBOKASSA_PASSWORD1", ""),
				Password2:     stringWithDefault(lookup, "CHECKOUT_PSP_ROBOKASSA_PASSWORD2", ""),
				BaseURL:       stringWithDefault(lookup, "CHECKOUT_PSP_ROBOKASSA_BASE_URL", defaultRoboKassaBaseURL),
				TestMode:      boolWithDefault(lookup, "CHECKOUT_PSP_ROBOKASSA_TEST_MODE", false),
			},
			NOWPayments: NOWPaymentsConfig{
				APIKey:      stringWithDefault(lookup, "CHECKOUT_PSP_NOWPAYMENTS_API_KEY", ""),
				PublicKey:   stringWithDefault(lookup, "CHECKOUT_PSP_NOWPAYMENTS_PUBLIC_KEY", ""),
				BaseURL:     stringWithDefault(lookup, "CHECKOUT_PSP_NOWPAYMENTS_BASE_URL", defaultNOWPaymentsBaseURL),
				PayCurrency: strings.ToLower(stringWithDefault(lookup, "CHECKOUT_PSP_NOWPAYMENTS_PAY_CURRENCY", defaultPayCurrency)),
			},
		},
		Rates: RatesConfig{
			EURToRUB:  floatWithDefault(lookup, "CHECKOUT_RATE_EUR_RUB", defaultEURToRUB),
			EURToUSDT: floatWithDefault(lookup, "CHECKOUT_RATE_EUR_USDT", defaultEURToUSDT),
		},
	}

	if cfg.PSP.NOWPayments.PublicKey == "" {
		cfg.PSP.NOWPayments.PublicKey = cfg.PSP.NOWPayments.APIKey
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Checkout.Origin) == "" {
		missing = append(missing, "Checkout.Origin")
	}
	if cfg.Checkout.SessionTTL <= 0 {
		missing = append(missing, "Checkout.SessionTTL")
	}
	if cfg.Rates.EURToRUB <= 0 {
		missing = append(missing, "Rates.EURToRUB")
	}
	if cfg.Rates.EURToUSDT <= 0 {
		missing = append(missing, "Rates.EURToUSDT")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
