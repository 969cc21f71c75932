package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"ANALYZER_CLOUDPAYMENTS_PUBLIC_ID": "pk_test",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
	if cfg.Analysis.PollInterval != 3*time.Second {
		t.Errorf("unexpected poll interval: %s", cfg.Analysis.PollInterval)
	}
	if cfg.Analysis.PollMaxAttempts != 200 {
		t.Errorf("unexpected poll attempts: %d", cfg.Analysis.PollMaxAttempts)
	}
	if cfg.Analysis.PollDeadline != 15*time.Minute {
		t.Errorf("unexpected poll deadline: %s", cfg.Analysis.PollDeadline)
	}
	if cfg.Engagement.Driver != EngagementDriverMemory {
		t.Errorf("expected memory engagement driver, got %s", cfg.Engagement.Driver)
	}
	if cfg.Payments.Currency != "RUB" {
		t.Errorf("expected RUB, got %s", cfg.Payments.Currency)
	}
	if cfg.Payments.DefaultProvider != "cloudpayments" {
		t.Errorf("unexpected default provider %s", cfg.Payments.DefaultProvider)
	}
	if cfg.Console.ViewerHeader != "X-Viewer-ID" {
		t.Errorf("unexpected viewer header %s", cfg.Console.ViewerHeader)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"ANALYZER_ENVIRONMENT":               "PROD",
		"ANALYZER_SERVER_PORT":               "9090",
		"ANALYZER_SERVER_WRITE_TIMEOUT":      "25s",
		"ANALYZER_BACKEND_URL":               "https://api.example.com/",
		"ANALYZER_BACKEND_TIMEOUT":           "5s",
		"ANALYZER_POLL_INTERVAL":             "500ms",
		"ANALYZER_POLL_MAX_ATTEMPTS":         "0",
		"ANALYZER_ENGAGEMENT_DRIVER":         "SQLite",
		"ANALYZER_ENGAGEMENT_PATH":           "/tmp/engagement.db",
		"ANALYZER_PAYMENTS_CURRENCY":         "usd",
		"ANALYZER_PAYMENTS_DEFAULT_PROVIDER": "stripe",
		"ANALYZER_STRIPE_API_KEY":            "sk_test",
		"ANALYZER_STRIPE_SUCCESS_URL":        "https://example.com/ok",
		"ANALYZER_STRIPE_CANCEL_URL":         "https://example.com/cancel",
		"ANALYZER_SUBMIT_PER_MIN":            "12",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "9090" || cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Backend.BaseURL != "https://api.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("unexpected backend timeout %s", cfg.Backend.Timeout)
	}
	if cfg.Analysis.PollInterval != 500*time.Millisecond || cfg.Analysis.PollMaxAttempts != 0 {
		t.Errorf("unexpected analysis config: %+v", cfg.Analysis)
	}
	if cfg.Engagement.Driver != EngagementDriverSQLite || cfg.Engagement.Path != "/tmp/engagement.db" {
		t.Errorf("unexpected engagement config: %+v", cfg.Engagement)
	}
	if cfg.Payments.Currency != "USD" || cfg.Payments.StripeAPIKey != "sk_test" {
		t.Errorf("unexpected payments config: %+v", cfg.Payments)
	}
	if cfg.Console.SubmitPerMinute != 12 {
		t.Errorf("unexpected submit rate %d", cfg.Console.SubmitPerMinute)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"ANALYZER_BACKEND_URL":       "not a url",
		"ANALYZER_ENGAGEMENT_DRIVER": "redis",
		"ANALYZER_PAYMENTS_CURRENCY": "roubles",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := map[string]bool{}
	for _, f := range vErr.Fields() {
		fields[f] = true
	}
	for _, want := range []string{"Backend.BaseURL", "Engagement.Driver", "Payments.Currency", "Payments.CloudPaymentsPublicID"} {
		if !fields[want] {
			t.Errorf("expected %s in validation fields, got %v", want, vErr.Fields())
		}
	}
}

func TestLoadStripeRequiresRedirects(t *testing.T) {
	env := map[string]string{
		"ANALYZER_CLOUDPAYMENTS_PUBLIC_ID": "pk_test",
		"ANALYZER_STRIPE_API_KEY":          "sk_test",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := vErr.Fields(); len(got) != 1 || got[0] != "Payments.StripeRedirectURLs" {
		t.Fatalf("unexpected fields %v", got)
	}
}

func TestLoadFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport ANALYZER_SERVER_PORT=7070\nANALYZER_CLOUDPAYMENTS_PUBLIC_ID=\"pk_dotenv\"\nANALYZER_POLL_DEADLINE=1m\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"ANALYZER_SERVER_PORT": "6060",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected explicit map to win over .env, got %s", cfg.Server.Port)
	}
	if cfg.Payments.CloudPaymentsPublicID != "pk_dotenv" {
		t.Errorf("expected quoted value to be unwrapped, got %s", cfg.Payments.CloudPaymentsPublicID)
	}
	if cfg.Analysis.PollDeadline != time.Minute {
		t.Errorf("unexpected poll deadline %s", cfg.Analysis.PollDeadline)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(filepath.Join(t.TempDir(), "missing.env")),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"ANALYZER_CLOUDPAYMENTS_PUBLIC_ID": "pk"}),
	)
	if err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}
