package di

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/payments"
	"github.com/kalitka1293/instagram-scan/internal/platform/config"
	"github.com/kalitka1293/instagram-scan/internal/repositories/engagement"
)

type stubBackend struct {
	pingErr error
}

func (s *stubBackend) FetchProfile(context.Context, string, string) (domain.ProfileResult, error) {
	return domain.ProfileResult{}, nil
}

func (s *stubBackend) PollEnrichment(context.Context, string) (domain.EnrichmentResult, error) {
	return domain.EnrichmentResult{}, nil
}

func (s *stubBackend) ListTariffs(context.Context) ([]domain.Tariff, error) {
	return nil, nil
}

func (s *stubBackend) GetEntitlement(context.Context, string) (domain.SubscriptionEntitlement, error) {
	return domain.SubscriptionEntitlement{}, nil
}

func (s *stubBackend) CommitPurchase(context.Context, string, int64, *string) (domain.PurchaseReceipt, error) {
	return domain.PurchaseReceipt{}, nil
}

func (s *stubBackend) PauseSubscription(context.Context, string) (domain.PurchaseReceipt, error) {
	return domain.PurchaseReceipt{Success: true}, nil
}

func (s *stubBackend) ResumeSubscription(context.Context, string) (domain.PurchaseReceipt, error) {
	return domain.PurchaseReceipt{Success: true}, nil
}

func (s *stubBackend) CancelSubscription(context.Context, string, domain.Cancellation) (domain.PurchaseReceipt, error) {
	return domain.PurchaseReceipt{Success: true}, nil
}

func (s *stubBackend) TerminateSubscription(context.Context, string) (domain.PurchaseReceipt, error) {
	return domain.PurchaseReceipt{Success: true}, nil
}

func (s *stubBackend) Ping(context.Context) error {
	return s.pingErr
}

func testGateways(t *testing.T, backend *stubBackend) Gateways {
	t.Helper()
	store, err := engagement.NewMemoryStore(16)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	return Gateways{
		Profiles:      backend,
		Enrichment:    backend,
		Tariffs:       backend,
		Entitlements:  backend,
		Purchases:     backend,
		Subscriptions: backend,
		Engagement:    store,
		BackendPing:   backend.Ping,
	}
}

func testConfig() config.Config {
	return config.Config{
		Analysis: config.AnalysisConfig{PollInterval: time.Second, PollMaxAttempts: 3},
		Payments: config.PaymentsConfig{
			Currency:              "RUB",
			DefaultProvider:       payments.CloudPaymentsProviderName,
			CloudPaymentsPublicID: "pk_test",
		},
		Console: config.ConsoleConfig{SessionIdleTTL: 10 * time.Minute},
	}
}

func TestNewContainerWiresServices(t *testing.T) {
	c, err := NewContainer(context.Background(), testConfig(), testGateways(t, &stubBackend{}))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer func() { _ = c.Close(context.Background()) }()

	if c.Workspace == nil || c.System == nil || c.Idempotency == nil || c.Workspace.Subscriptions() == nil {
		t.Fatalf("expected workspace, system and idempotency store to be built")
	}
	if _, ok := c.Payments.(*payments.Manager); !ok {
		t.Fatalf("expected payment manager, got %T", c.Payments)
	}
	if got := c.SweepInterval(); got != time.Minute {
		t.Fatalf("expected sweep interval capped at a minute, got %s", got)
	}
}

func TestNewContainerRequiresPaymentProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Payments.CloudPaymentsPublicID = ""

	if _, err := NewContainer(context.Background(), cfg, testGateways(t, &stubBackend{})); err == nil {
		t.Fatalf("expected error without payment providers")
	}
}

func TestSystemServiceMarksBackendCritical(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	gw := testGateways(t, &stubBackend{pingErr: errors.New("connection refused")})
	c, err := NewContainer(context.Background(), testConfig(), gw, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer func() { _ = c.Close(context.Background()) }()

	report, err := c.System.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %s", report.Status)
	}
	if report.Checks["engagement"].Status != domain.HealthStatusOK {
		t.Fatalf("expected engagement ok, got %s", report.Checks["engagement"].Status)
	}
}

func TestContainerCloseRejectsFurtherCalls(t *testing.T) {
	c, err := NewContainer(context.Background(), testConfig(), testGateways(t, &stubBackend{}))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := c.Workspace.Snapshot("viewer-1"); err == nil {
		t.Fatalf("expected closed workspace to reject calls")
	}
}
