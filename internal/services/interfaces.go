package services

import (
	"context"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/payments"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	SessionSnapshot         = domain.SessionSnapshot
	ActivityItem            = domain.ActivityItem
	ActivityBundle          = domain.ActivityBundle
	Section                 = domain.Section
	PopularMetric           = domain.PopularMetric
	Tariff                  = domain.Tariff
	Plan                    = domain.Plan
	SubscriptionEntitlement = domain.SubscriptionEntitlement
	SystemHealthReport      = domain.SystemHealthReport
)

// WidgetLauncher opens the external payment widget for one attempt. payments.Manager satisfies it.
type WidgetLauncher interface {
	Launch(ctx context.Context, paymentCtx payments.PaymentContext, req payments.WidgetRequest) (payments.WidgetLaunch, error)
}

// EntitlementSource answers whether a viewer currently holds a paid subscription.
type EntitlementSource interface {
	Entitled(ctx context.Context, viewer string) bool
	Seed(viewer string, active bool)
	Invalidate(viewer string)
}

// SystemService exposes health information for the operational endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// AnalysisService runs one analysis session per viewer and composes its feed.
type AnalysisService interface {
	Submit(ctx context.Context, viewer, handle string) (SessionSnapshot, error)
	Snapshot(viewer string) (SessionSnapshot, error)
	Feed(ctx context.Context, viewer string, tab domain.Tab) ([]Section, SessionSnapshot, error)
}

// CheckoutService drives the viewer's checkout flow from plan selection to the widget callbacks.
type CheckoutService interface {
	BeginCheckout(viewer string, planIndex int) (CheckoutState, error)
	CheckoutState(viewer string) (CheckoutState, error)
	SelectCheckoutPlan(viewer string, planIndex int) (CheckoutState, error)
	SetCheckoutConsents(viewer string, terms, recurring bool) (CheckoutState, error)
	PayCheckout(ctx context.Context, viewer string) (CheckoutAttempt, error)
	CheckoutSucceeded(ctx context.Context, viewer, attemptID string) (CheckoutState, error)
	CheckoutFailed(ctx context.Context, viewer, attemptID, reason string) (CheckoutState, error)
	CheckoutCompleted(viewer, attemptID string) (CheckoutState, error)
}

// SubscriptionService exposes subscription status and management for the viewer.
type SubscriptionService interface {
	SubscriptionStatus(ctx context.Context, viewer string) (SubscriptionEntitlement, error)
	PauseSubscription(ctx context.Context, viewer string) (SubscriptionChange, error)
	ResumeSubscription(ctx context.Context, viewer string) (SubscriptionChange, error)
	CancelSubscription(ctx context.Context, viewer string, input CancellationInput) (SubscriptionChange, error)
	TerminateSubscription(ctx context.Context, viewer string) (SubscriptionChange, error)
}
