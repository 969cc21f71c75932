package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalitka1293/instagram-scan/internal/platform/textutil"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ErrInvalidRequest is returned when a widget request misses required fields.
var ErrInvalidRequest = errors.New("payments: invalid widget request")

// WidgetRequest carries everything a provider needs to open its payment widget for one attempt.
// The amount is the authoritative catalog price in minor units.
type WidgetRequest struct {
	TariffID         int64
	TariffName       string
	Description      string
	AmountMinor      int64
	Currency         string
	ViewerID         string
	IdempotencyKey   string
	AttemptID        string
	RequireRecurrent bool
	DurationDays     int
	SuccessURL       string
	CancelURL        string
	Metadata         map[string]string
}

// WidgetLaunch is what the front-end needs to open the widget. Params are provider specific
// and are handed to the widget verbatim; RedirectURL is set for hosted checkouts.
type WidgetLaunch struct {
	Provider    string
	AttemptID   string
	Params      map[string]any
	RedirectURL string
	ExpiresAt   time.Time
}

// Provider defines the contract for payment widget adapters.
type Provider interface {
	Launch(ctx context.Context, req WidgetRequest) (WidgetLaunch, error)
}

// Validate checks the fields every provider relies on.
func (r WidgetRequest) Validate() error {
	var missing []string
	if r.TariffID == 0 {
		missing = append(missing, "tariff id")
	}
	if r.AmountMinor <= 0 {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(r.Currency) == "" {
		missing = append(missing, "currency")
	}
	if strings.TrimSpace(r.ViewerID) == "" {
		missing = append(missing, "viewer")
	}
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		missing = append(missing, "idempotency key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// Manager coordinates provider selection.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap[CloudPaymentsProviderName]; ok {
		m.defaultProvider = CloudPaymentsProviderName
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
	Metadata          map[string]string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
		return "", nil, ErrUnsupportedProvider
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// Launch validates the request and delegates to the resolved provider.
func (m *Manager) Launch(ctx context.Context, paymentCtx PaymentContext, req WidgetRequest) (WidgetLaunch, error) {
	if err := req.Validate(); err != nil {
		return WidgetLaunch{}, err
	}
	req.Metadata = textutil.NormalizeStringMap(req.Metadata)
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return WidgetLaunch{}, err
	}
	launch, err := provider.Launch(ctx, req)
	if err != nil {
		return WidgetLaunch{}, err
	}
	launch.Provider = key
	if launch.AttemptID == "" {
		launch.AttemptID = req.AttemptID
	}
	return launch, nil
}
