package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kalitka1293/instagram-scan/internal/platform/textutil"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultEnvironment        = "local"
	defaultBackendURL         = "http://127.0.0.1:8008"
	defaultBackendTimeout     = 20 * time.Second
	defaultPollInterval       = 3 * time.Second
	defaultPollMaxAttempts    = 200
	defaultPollDeadline       = 15 * time.Minute
	defaultEngagementDriver   = EngagementDriverMemory
	defaultEngagementPath     = "engagement.db"
	defaultEngagementCapacity = 10000
	defaultEngagementPerView  = 500
	defaultCurrency           = "RUB"
	defaultPaymentProvider    = "cloudpayments"
	defaultViewerHeader       = "X-Viewer-ID"
	defaultSubmitPerMinute    = 6
	defaultSubmitBurst        = 2
	defaultSessionIdleTTL     = 2 * time.Hour
)

// Engagement store drivers.
const (
	EngagementDriverMemory = "memory"
	EngagementDriverSQLite = "sqlite"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Backend     BackendConfig
	Analysis    AnalysisConfig
	Engagement  EngagementConfig
	Payments    PaymentsConfig
	Console     ConsoleConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// BackendConfig points at the analysis back-end REST API.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// AnalysisConfig bounds the enrichment poll loop. Zero disables a limit.
type AnalysisConfig struct {
	PollInterval    time.Duration
	PollMaxAttempts int
	PollDeadline    time.Duration
}

// EngagementConfig selects and sizes the synthetic engagement cache.
type EngagementConfig struct {
	Driver        string
	Path          string
	Capacity      int
	PerViewerRows int
}

// PaymentsConfig configures the payment widget providers.
type PaymentsConfig struct {
	Currency               string
	DefaultProvider        string
	CloudPaymentsPublicID  string
	StripeAPIKey           string
	StripeSuccessURL       string
	StripeCancelURL        string
	// StripeCurrencyOverride routes payments in this currency to Stripe.
	StripeCurrencyOverride string
}

// ConsoleConfig controls the operator console surface.
type ConsoleConfig struct {
	ViewerHeader    string
	SubmitPerMinute int
	SubmitBurst     int
	SessionIdleTTL  time.Duration
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

// Load assembles the configuration from defaults, .env overrides, environment variables
// and an optional explicit map, in increasing precedence.
func Load(_ context.Context, opts ...Option) (Config, error) {
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
		Environment: strings.ToLower(stringWithDefault(lookup, "ANALYZER_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "ANALYZER_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "ANALYZER_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "ANALYZER_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "ANALYZER_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(stringWithDefault(lookup, "ANALYZER_BACKEND_URL", defaultBackendURL), "/"),
			Timeout: durationWithDefault(lookup, "ANALYZER_BACKEND_TIMEOUT", defaultBackendTimeout),
		},
		Analysis: AnalysisConfig{
			PollInterval:    durationWithDefault(lookup, "ANALYZER_POLL_INTERVAL", defaultPollInterval),
			PollMaxAttempts: intWithDefault(lookup, "ANALYZER_POLL_MAX_ATTEMPTS", defaultPollMaxAttempts),
			PollDeadline:    durationWithDefault(lookup, "ANALYZER_POLL_DEADLINE", defaultPollDeadline),
		},
		Engagement: EngagementConfig{
			Driver:        strings.ToLower(stringWithDefault(lookup, "ANALYZER_ENGAGEMENT_DRIVER", defaultEngagementDriver)),
			Path:          stringWithDefault(lookup, "ANALYZER_ENGAGEMENT_PATH", defaultEngagementPath),
			Capacity:      intWithDefault(lookup, "ANALYZER_ENGAGEMENT_CAPACITY", defaultEngagementCapacity),
			PerViewerRows: intWithDefault(lookup, "ANALYZER_ENGAGEMENT_PER_VIEWER", defaultEngagementPerView),
		},
		Payments: PaymentsConfig{
			Currency:               strings.ToUpper(stringWithDefault(lookup, "ANALYZER_PAYMENTS_CURRENCY", defaultCurrency)),
			DefaultProvider:        strings.ToLower(stringWithDefault(lookup, "ANALYZER_PAYMENTS_DEFAULT_PROVIDER", defaultPaymentProvider)),
			CloudPaymentsPublicID:  stringWithDefault(lookup, "ANALYZER_CLOUDPAYMENTS_PUBLIC_ID", ""),
			StripeAPIKey:           stringWithDefault(lookup, "ANALYZER_STRIPE_API_KEY", ""),
			StripeSuccessURL:       stringWithDefault(lookup, "ANALYZER_STRIPE_SUCCESS_URL", ""),
			StripeCancelURL:        stringWithDefault(lookup, "ANALYZER_STRIPE_CANCEL_URL", ""),
			StripeCurrencyOverride: strings.ToUpper(stringWithDefault(lookup, "ANALYZER_STRIPE_CURRENCY", "")),
		},
		Console: ConsoleConfig{
			ViewerHeader:    stringWithDefault(lookup, "ANALYZER_VIEWER_HEADER", defaultViewerHeader),
			SubmitPerMinute: intWithDefault(lookup, "ANALYZER_SUBMIT_PER_MIN", defaultSubmitPerMinute),
			SubmitBurst:     intWithDefault(lookup, "ANALYZER_SUBMIT_BURST", defaultSubmitBurst),
			SessionIdleTTL:  durationWithDefault(lookup, "ANALYZER_SESSION_IDLE_TTL", defaultSessionIdleTTL),
		},
	}

	if err := validateConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		invalid = append(invalid, "Backend.BaseURL")
	}
	if cfg.Backend.Timeout <= 0 {
		invalid = append(invalid, "Backend.Timeout")
	}
	if cfg.Analysis.PollInterval <= 0 {
		invalid = append(invalid, "Analysis.PollInterval")
	}
	if cfg.Analysis.PollMaxAttempts < 0 {
		invalid = append(invalid, "Analysis.PollMaxAttempts")
	}
	if cfg.Analysis.PollDeadline < 0 {
		invalid = append(invalid, "Analysis.PollDeadline")
	}
	switch cfg.Engagement.Driver {
	case EngagementDriverMemory:
	case EngagementDriverSQLite:
		if strings.TrimSpace(cfg.Engagement.Path) == "" {
			invalid = append(invalid, "Engagement.Path")
		}
	default:
		invalid = append(invalid, "Engagement.Driver")
	}
	if cfg.Engagement.Capacity <= 0 {
		invalid = append(invalid, "Engagement.Capacity")
	}
	if cfg.Engagement.PerViewerRows <= 0 {
		invalid = append(invalid, "Engagement.PerViewerRows")
	}
	if code, err := textutil.NormalizeCurrency(cfg.Payments.Currency); err != nil {
		invalid = append(invalid, "Payments.Currency")
	} else {
		cfg.Payments.Currency = code
	}
	switch cfg.Payments.DefaultProvider {
	case "cloudpayments":
		if strings.TrimSpace(cfg.Payments.CloudPaymentsPublicID) == "" {
			invalid = append(invalid, "Payments.CloudPaymentsPublicID")
		}
	case "stripe":
		if strings.TrimSpace(cfg.Payments.StripeAPIKey) == "" {
			invalid = append(invalid, "Payments.StripeAPIKey")
		}
	default:
		invalid = append(invalid, "Payments.DefaultProvider")
	}
	if cfg.Payments.StripeAPIKey != "" && (cfg.Payments.StripeSuccessURL == "" || cfg.Payments.StripeCancelURL == "") {
		invalid = append(invalid, "Payments.StripeRedirectURLs")
	}
	if cfg.Payments.StripeCurrencyOverride != "" && cfg.Payments.StripeAPIKey == "" {
		invalid = append(invalid, "Payments.StripeCurrencyOverride")
	}
	if strings.TrimSpace(cfg.Console.ViewerHeader) == "" {
		invalid = append(invalid, "Console.ViewerHeader")
	}
	if cfg.Console.SubmitPerMinute < 0 || cfg.Console.SubmitBurst < 0 {
		invalid = append(invalid, "Console.SubmitRateLimit")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
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
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}
