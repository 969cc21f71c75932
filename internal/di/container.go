package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kalitka1293/instagram-scan/internal/payments"
	"github.com/kalitka1293/instagram-scan/internal/platform/config"
	"github.com/kalitka1293/instagram-scan/internal/platform/idempotency"
	"github.com/kalitka1293/instagram-scan/internal/platform/observability"
	"github.com/kalitka1293/instagram-scan/internal/repositories"
	"github.com/kalitka1293/instagram-scan/internal/repositories/backend"
	"github.com/kalitka1293/instagram-scan/internal/repositories/engagement"
	"github.com/kalitka1293/instagram-scan/internal/services"
)

const (
	backendCheckTimeout    = 2 * time.Second
	engagementCheckTimeout = 500 * time.Millisecond
	idempotencyCapacity    = 4096
	maxSweepInterval       = time.Minute
)

// Gateways bundles the outbound adapters the services depend on. Production wiring opens them
// with OpenGateways, while tests can supply stubs directly.
type Gateways struct {
	Profiles      repositories.ProfileRepository
	Enrichment    repositories.EnrichmentRepository
	Tariffs       repositories.TariffRepository
	Entitlements  repositories.EntitlementRepository
	Purchases     repositories.PurchaseRepository
	Subscriptions repositories.SubscriptionRepository
	Engagement    repositories.EngagementStore

	// BackendPing probes the analysis back-end for readiness. Optional.
	BackendPing func(ctx context.Context) error
}

// OpenGateways connects the back-end client and opens the configured engagement store.
func OpenGateways(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (Gateways, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := backend.New(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(logger.Named("backend")),
		backend.WithMetrics(metrics),
	)
	if err != nil {
		return Gateways{}, fmt.Errorf("build backend client: %w", err)
	}

	store, err := openEngagementStore(ctx, cfg.Engagement, logger.Named("engagement"))
	if err != nil {
		return Gateways{}, err
	}

	return Gateways{
		Profiles:      client,
		Enrichment:    client,
		Tariffs:       client,
		Entitlements:  client,
		Purchases:     client,
		Subscriptions: client,
		Engagement:    store,
		BackendPing:   client.Ping,
	}, nil
}

func openEngagementStore(ctx context.Context, cfg config.EngagementConfig, logger *zap.Logger) (repositories.EngagementStore, error) {
	switch cfg.Driver {
	case config.EngagementDriverSQLite:
		store, err := engagement.OpenSQLite(ctx, cfg.Path, cfg.PerViewerRows, engagement.WithSQLiteLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open sqlite engagement store: %w", err)
		}
		return store, nil
	default:
		store, err := engagement.NewMemoryStore(cfg.Capacity)
		if err != nil {
			return nil, fmt.Errorf("build memory engagement store: %w", err)
		}
		return store, nil
	}
}

// Option customises container construction.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	metrics  *observability.Metrics
	clock    func() time.Time
	build    services.BuildInfo
	launcher services.WidgetLauncher
}

// WithLogger sets the base logger used by services.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the instruments recorded by services.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithBuildInfo sets the build metadata reported by the system service.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *options) {
		o.build = info
	}
}

// WithWidgetLauncher replaces the payment manager built from configuration.
func WithWidgetLauncher(launcher services.WidgetLauncher) Option {
	return func(o *options) {
		o.launcher = launcher
	}
}

// Container wires gateways, services and shared middleware state for runtime use.
type Container struct {
	Config      config.Config
	Logger      *zap.Logger
	Gateways    Gateways
	Payments    services.WidgetLauncher
	Workspace   *services.Workspace
	System      services.SystemService
	Idempotency *idempotency.MemoryStore
}

// NewContainer constructs the runtime dependencies over the supplied gateways.
func NewContainer(ctx context.Context, cfg config.Config, gw Gateways, opts ...Option) (*Container, error) {
	o := options{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	launcher := o.launcher
	if launcher == nil {
		manager, err := buildPaymentManager(cfg.Payments, o.logger.Named("payments"))
		if err != nil {
			return nil, err
		}
		launcher = manager
	}

	workspace, err := services.NewWorkspace(services.WorkspaceDeps{
		Profiles:        gw.Profiles,
		Enrichment:      gw.Enrichment,
		Tariffs:         gw.Tariffs,
		Entitlements:    gw.Entitlements,
		Purchases:       gw.Purchases,
		Subscriptions:   gw.Subscriptions,
		Engagement:      gw.Engagement,
		Payments:        launcher,
		Metrics:         o.metrics,
		Currency:        cfg.Payments.Currency,
		PollInterval:    cfg.Analysis.PollInterval,
		MaxPollAttempts: cfg.Analysis.PollMaxAttempts,
		PollDeadline:    cfg.Analysis.PollDeadline,
		IdleTTL:         cfg.Console.SessionIdleTTL,
		Clock:           o.clock,
		Logger:          observability.EventLogger(o.logger.Named("services")),
	})
	if err != nil {
		return nil, fmt.Errorf("build workspace: %w", err)
	}

	system, err := buildSystemService(gw, o.clock, o.build)
	if err != nil {
		workspace.Close()
		return nil, err
	}

	return &Container{
		Config:      cfg,
		Logger:      o.logger,
		Gateways:    gw,
		Payments:    launcher,
		Workspace:   workspace,
		System:      system,
		Idempotency: idempotency.NewMemoryStore(idempotencyCapacity, idempotency.DefaultTTL),
	}, nil
}

func buildPaymentManager(cfg config.PaymentsConfig, logger *zap.Logger) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider, 2)
	if cfg.CloudPaymentsPublicID != "" {
		cp, err := payments.NewCloudPaymentsProvider(payments.CloudPaymentsConfig{PublicID: cfg.CloudPaymentsPublicID})
		if err != nil {
			return nil, fmt.Errorf("build cloudpayments provider: %w", err)
		}
		providers[payments.CloudPaymentsProviderName] = cp
	}
	if cfg.StripeAPIKey != "" {
		sp, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:     cfg.StripeAPIKey,
			SuccessURL: cfg.StripeSuccessURL,
			CancelURL:  cfg.StripeCancelURL,
			Logger:     observability.EventLogger(logger),
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		providers[payments.StripeProviderName] = sp
	}
	if len(providers) == 0 {
		return nil, errors.New("payments: no provider configured")
	}

	opts := []payments.ManagerOption{payments.WithDefaultProvider(cfg.DefaultProvider)}
	if cfg.StripeCurrencyOverride != "" {
		opts = append(opts, payments.WithCurrencyRoutes(map[string]string{
			cfg.StripeCurrencyOverride: payments.StripeProviderName,
		}))
	}
	manager, err := payments.NewManager(providers, opts...)
	if err != nil {
		return nil, fmt.Errorf("build payment manager: %w", err)
	}
	return manager, nil
}

func buildSystemService(gw Gateways, clock func() time.Time, build services.BuildInfo) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if gw.BackendPing != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "backend",
			Timeout:  backendCheckTimeout,
			Critical: true,
			Check:    gw.BackendPing,
		})
	}
	if gw.Engagement != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "engagement",
			Timeout: engagementCheckTimeout,
			Check:   gw.Engagement.Ping,
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}

	repo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(clock))
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            clock,
		Build:            build,
	})
	if err != nil {
		return nil, fmt.Errorf("build system service: %w", err)
	}
	return system, nil
}

// SweepInterval is how often idle viewers are swept: half the idle TTL, capped at a minute.
func (c *Container) SweepInterval() time.Duration {
	ttl := c.Config.Console.SessionIdleTTL
	if ttl <= 0 {
		return 0
	}
	interval := ttl / 2
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}
	return interval
}

// RunSweeper drops idle viewers on every tick until ctx is cancelled.
func (c *Container) RunSweeper(ctx context.Context) {
	if c == nil || c.Workspace == nil {
		return
	}
	interval := c.SweepInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if removed := c.Workspace.Sweep(ctx); removed > 0 {
				c.Logger.Info("idle viewers swept", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops poll loops and releases the engagement store.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.Workspace != nil {
		c.Workspace.Close()
	}
	if c.Gateways.Engagement != nil {
		if err := c.Gateways.Engagement.Close(); err != nil {
			return fmt.Errorf("close engagement store: %w", err)
		}
	}
	return nil
}
