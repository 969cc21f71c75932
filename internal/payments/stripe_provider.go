package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeProviderName is the registration key of the Stripe hosted checkout provider.
const StripeProviderName = "stripe"

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey     string
	AccountID  string
	SuccessURL string
	CancelURL  string
	Backends   *stripe.Backends
	Logger     StripeLogger
	Clock      func() time.Time
	Clients    *stripeClients
}

// StripeProvider opens a Stripe hosted checkout session for the tariff. Recurring tariffs are
// sold as subscriptions renewing every DurationDays.
type StripeProvider struct {
	api        stripeClients
	account    string
	successURL string
	cancelURL  string
	clock      func() time.Time
	logger     StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{sessions: sc.CheckoutSessions}
	}
	if clients.sessions == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:        clients,
		account:    strings.TrimSpace(cfg.AccountID),
		successURL: strings.TrimSpace(cfg.SuccessURL),
		cancelURL:  strings.TrimSpace(cfg.CancelURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Launch creates a Stripe Checkout session and returns its hosted URL.
func (p *StripeProvider) Launch(ctx context.Context, req WidgetRequest) (WidgetLaunch, error) {
	if p == nil {
		return WidgetLaunch{}, errors.New("stripe: provider is nil")
	}

	successURL := firstNonEmpty(req.SuccessURL, p.successURL)
	cancelURL := firstNonEmpty(req.CancelURL, p.cancelURL)
	if successURL == "" || cancelURL == "" {
		return WidgetLaunch{}, fmt.Errorf("%w: stripe redirect urls are required", ErrInvalidRequest)
	}

	metadata := map[string]string{
		"tariff_id": strconv.FormatInt(req.TariffID, 10),
		"user_id":   req.ViewerID,
	}
	if req.AttemptID != "" {
		metadata["attempt_id"] = req.AttemptID
	}
	for k, v := range req.Metadata {
		if _, reserved := metadata[k]; !reserved {
			metadata[k] = v
		}
	}

	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(strings.ToLower(req.Currency)),
		UnitAmount: stripe.Int64(req.AmountMinor),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(firstNonEmpty(req.TariffName, "Subscription")),
		},
	}
	if req.Description != "" {
		priceData.ProductData.Description = stripe.String(req.Description)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(req.ViewerID),
		Metadata:          metadata,
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity:  stripe.Int64(1),
			PriceData: priceData,
		}},
	}
	if req.RequireRecurrent && req.DurationDays > 0 {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval:      stripe.String(string(stripe.PriceRecurringIntervalDay)),
			IntervalCount: stripe.Int64(int64(req.DurationDays)),
		}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: copyMetadata(metadata)}
	} else {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: copyMetadata(metadata)}
	}

	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}

	session, err := p.api.sessions.New(params)
	if err != nil {
		return WidgetLaunch{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"tariffId":  req.TariffID,
		"attemptId": req.AttemptID,
		"mode":      *params.Mode,
	})

	launch := WidgetLaunch{
		Provider:    StripeProviderName,
		AttemptID:   req.AttemptID,
		RedirectURL: session.URL,
		Params: map[string]any{
			"sessionId": session.ID,
		},
	}
	if session.ExpiresAt > 0 {
		launch.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return launch, nil
}

func copyMetadata(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
