package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/payments"
	"github.com/kalitka1293/instagram-scan/internal/platform/observability"
	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

const defaultCheckoutCurrency = "RUB"

var (
	// ErrCheckoutInvalidPlan is returned for a plan index outside the local catalog.
	ErrCheckoutInvalidPlan = errors.New("checkout: invalid plan")
	// ErrCheckoutConsentRequired is returned when the selected plan's consents are not all given.
	ErrCheckoutConsentRequired = errors.New("checkout: consent required")
	// ErrCheckoutInProgress is returned when a payment attempt is still open.
	ErrCheckoutInProgress = errors.New("checkout: payment in progress")
	// ErrCheckoutPlanNotReconciled is wrapped by PlanNotReconciledError.
	ErrCheckoutPlanNotReconciled = errors.New("checkout: plan not reconciled")
	// ErrCheckoutUnavailable is returned when the catalog, widget or commit call fails.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutStaleAttempt is returned for callbacks naming an attempt other than the current one.
	ErrCheckoutStaleAttempt = errors.New("checkout: stale attempt")
)

// PlanNotReconciledError reports a local plan without a catalog tariff of the same name.
type PlanNotReconciledError struct {
	PlanName string
}

func (e *PlanNotReconciledError) Error() string {
	return fmt.Sprintf("checkout: plan %q has no matching tariff", e.PlanName)
}

func (e *PlanNotReconciledError) Unwrap() error { return ErrCheckoutPlanNotReconciled }

// PaymentFailedError carries the widget's failure reason verbatim.
type PaymentFailedError struct {
	Reason string
}

func (e *PaymentFailedError) Error() string {
	return "checkout: payment failed: " + e.Reason
}

// AttemptOutcome records the first outcome reported for an attempt.
type AttemptOutcome string

const (
	AttemptPending   AttemptOutcome = "pending"
	AttemptSucceeded AttemptOutcome = "succeeded"
	AttemptFailed    AttemptOutcome = "failed"
)

// CheckoutAttempt is one widget launch against a reconciled tariff.
type CheckoutAttempt struct {
	ID             string
	IdempotencyKey string
	Tariff         Tariff
	Launch         payments.WidgetLaunch
	Outcome        AttemptOutcome
	Completed      bool
	StartedAt      time.Time
}

// CheckoutState is an immutable view of a checkout flow.
type CheckoutState struct {
	PlanIndex         int
	Plan              Plan
	TermsAccepted     bool
	RecurringAccepted bool
	RequiresRecurring bool
	CanPay            bool
	Busy              bool
	Attempt           *CheckoutAttempt
	LastError         string
	LastMessage       string
}

// PlanOffer is a local plan with its consent requirements, as listed on the pricing screen.
type PlanOffer struct {
	Index             int
	Plan              Plan
	TermsConsent      string
	RequiresRecurring bool
}

// ListPlanOffers returns the local plan catalog in display order.
func ListPlanOffers() []PlanOffer {
	plans := domain.PlanCatalog()
	offers := make([]PlanOffer, 0, len(plans))
	for i, plan := range plans {
		offers = append(offers, PlanOffer{
			Index:             i,
			Plan:              plan,
			TermsConsent:      domain.TermsConsent,
			RequiresRecurring: plan.RequiresRecurringConsent(),
		})
	}
	return offers
}

// CheckoutFlowDeps bundles collaborators of a viewer's checkout flow.
type CheckoutFlowDeps struct {
	Catalog           *TariffCatalog
	Payments          WidgetLauncher
	Purchases         repositories.PurchaseRepository
	Entitlements      EntitlementSource
	Metrics           *observability.Metrics
	Currency          string
	PreferredProvider string
	Clock             func() time.Time
	Logger            func(ctx context.Context, event string, fields map[string]any)
	IDGen             func() string
}

// CheckoutFlow holds one viewer's plan selection, consents and the current payment attempt.
type CheckoutFlow struct {
	viewer       string
	catalog      *TariffCatalog
	payments     WidgetLauncher
	purchases    repositories.PurchaseRepository
	entitlements EntitlementSource
	metrics      *observability.Metrics
	currency     string
	provider     string
	clock        func() time.Time
	logger       func(ctx context.Context, event string, fields map[string]any)
	idGen        func() string

	mu    sync.Mutex
	state CheckoutState
}

// NewCheckoutFlow constructs a flow for viewer with planIndex selected and no consents given.
func NewCheckoutFlow(viewer string, planIndex int, deps CheckoutFlowDeps) (*CheckoutFlow, error) {
	if deps.Catalog == nil {
		return nil, errors.New("checkout flow: tariff catalog is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout flow: widget launcher is required")
	}
	if deps.Purchases == nil {
		return nil, errors.New("checkout flow: purchase repository is required")
	}
	viewer = strings.TrimSpace(viewer)
	if viewer == "" {
		return nil, errors.New("checkout flow: viewer is required")
	}
	plan, ok := domain.PlanAt(planIndex)
	if !ok {
		return nil, ErrCheckoutInvalidPlan
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCheckoutCurrency
	}

	f := &CheckoutFlow{
		viewer:       viewer,
		catalog:      deps.Catalog,
		payments:     deps.Payments,
		purchases:    deps.Purchases,
		entitlements: deps.Entitlements,
		metrics:      deps.Metrics,
		currency:     currency,
		provider:     strings.TrimSpace(deps.PreferredProvider),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		idGen:  idGen,
	}
	f.state = CheckoutState{PlanIndex: planIndex, Plan: plan}
	f.refreshLocked()
	return f, nil
}

// State returns a copy of the flow state.
func (f *CheckoutFlow) State() CheckoutState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// CanPay reports whether the pay action is enabled.
func (f *CheckoutFlow) CanPay() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.CanPay
}

// SelectPlan changes the selected plan. Consents are kept; only the enablement is re-evaluated.
func (f *CheckoutFlow) SelectPlan(index int) (CheckoutState, error) {
	plan, ok := domain.PlanAt(index)
	if !ok {
		return f.State(), ErrCheckoutInvalidPlan
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.PlanIndex = index
	f.state.Plan = plan
	f.refreshLocked()
	return f.snapshotLocked(), nil
}

// SetConsents records the two consent checkboxes.
func (f *CheckoutFlow) SetConsents(terms, recurring bool) CheckoutState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.TermsAccepted = terms
	f.state.RecurringAccepted = recurring
	f.refreshLocked()
	return f.snapshotLocked()
}

// Pay reconciles the selected plan against a freshly fetched catalog and launches the payment
// widget for the matching tariff. The catalog price is what gets charged.
func (f *CheckoutFlow) Pay(ctx context.Context) (CheckoutAttempt, error) {
	f.mu.Lock()
	if f.state.Busy {
		f.mu.Unlock()
		return CheckoutAttempt{}, ErrCheckoutInProgress
	}
	if !f.state.CanPay {
		f.state.LastError = "Необходимо принять все условия"
		f.mu.Unlock()
		return CheckoutAttempt{}, ErrCheckoutConsentRequired
	}
	planIndex := f.state.PlanIndex
	plan := f.state.Plan
	f.state.Busy = true
	f.state.LastError = ""
	f.state.LastMessage = ""
	f.refreshLocked()
	f.mu.Unlock()

	tariff, err := f.catalog.Resolve(ctx, plan.Name)
	if err != nil {
		if errors.Is(err, ErrTariffNotFound) {
			notReconciled := &PlanNotReconciledError{PlanName: plan.Name}
			f.abortPay(ctx, "Тариф «"+plan.Name+"» не найден", "not_reconciled")
			return CheckoutAttempt{}, notReconciled
		}
		f.abortPay(ctx, "Не удалось загрузить тарифы", "catalog_failed")
		return CheckoutAttempt{}, fmt.Errorf("%w: %w", ErrCheckoutUnavailable, err)
	}

	attempt := CheckoutAttempt{
		ID:             f.idGen(),
		IdempotencyKey: f.idGen(),
		Tariff:         tariff,
		Outcome:        AttemptPending,
		StartedAt:      f.clock(),
	}
	req := payments.WidgetRequest{
		TariffID:         tariff.ID,
		TariffName:       tariff.Name,
		Description:      tariff.Name,
		AmountMinor:      tariff.AmountMinor(),
		Currency:         f.currency,
		ViewerID:         f.viewer,
		IdempotencyKey:   attempt.IdempotencyKey,
		AttemptID:        attempt.ID,
		RequireRecurrent: true,
		DurationDays:     tariff.DurationDays,
		Metadata: map[string]string{
			"plan_index": strconv.Itoa(planIndex),
		},
	}

	launch, err := f.payments.Launch(ctx, payments.PaymentContext{
		PreferredProvider: f.provider,
		Currency:          f.currency,
	}, req)
	if err != nil {
		f.logger(ctx, "checkout.payment_session_failed", map[string]any{
			"viewerId": f.viewer,
			"tariffId": tariff.ID,
			"error":    err.Error(),
		})
		f.abortPay(ctx, "Не удалось открыть платёжную форму", "launch_failed")
		return CheckoutAttempt{}, fmt.Errorf("%w: %w", ErrCheckoutUnavailable, err)
	}
	attempt.Launch = launch

	f.mu.Lock()
	f.state.Attempt = &attempt
	f.refreshLocked()
	f.mu.Unlock()

	f.metrics.RecordCheckout(ctx, launch.Provider, "launched")
	f.logger(ctx, "checkout.widget_launched", map[string]any{
		"viewerId":  f.viewer,
		"attemptId": attempt.ID,
		"tariffId":  tariff.ID,
		"provider":  launch.Provider,
	})
	return attempt, nil
}

func (f *CheckoutFlow) abortPay(ctx context.Context, message, outcome string) {
	f.mu.Lock()
	f.state.Busy = false
	f.state.LastError = message
	f.refreshLocked()
	f.mu.Unlock()
	f.metrics.RecordCheckout(ctx, f.provider, outcome)
}

// OnSuccess handles the widget's success callback. The purchase is committed with the reconciled
// tariff id and no transaction token, then the viewer's entitlement is invalidated. Repeated
// outcomes for the same attempt are ignored.
func (f *CheckoutFlow) OnSuccess(ctx context.Context, attemptID string) (CheckoutState, error) {
	f.mu.Lock()
	attempt, err := f.currentAttemptLocked(attemptID)
	if err != nil || attempt.Outcome != AttemptPending {
		state := f.snapshotLocked()
		f.mu.Unlock()
		return state, err
	}
	attempt.Outcome = AttemptSucceeded
	tariffID := attempt.Tariff.ID
	provider := attempt.Launch.Provider
	f.mu.Unlock()

	receipt, commitErr := f.purchases.CommitPurchase(ctx, f.viewer, tariffID, nil)
	if f.entitlements != nil {
		f.entitlements.Invalidate(f.viewer)
	}

	f.mu.Lock()
	if commitErr != nil {
		f.state.LastError = firstNonBlank(repositories.ErrorDetail(commitErr), "Не удалось активировать подписку")
	} else {
		f.state.LastMessage = receipt.Message
	}
	state := f.snapshotLocked()
	f.mu.Unlock()

	if commitErr != nil {
		f.logger(ctx, "checkout.commit_failed", map[string]any{
			"viewerId":  f.viewer,
			"attemptId": attemptID,
			"tariffId":  tariffID,
			"error":     commitErr.Error(),
		})
		f.metrics.RecordCheckout(ctx, provider, "commit_failed")
		return state, fmt.Errorf("%w: %w", ErrCheckoutUnavailable, commitErr)
	}
	f.metrics.RecordCheckout(ctx, provider, "succeeded")
	f.logger(ctx, "checkout.purchase_committed", map[string]any{
		"viewerId":  f.viewer,
		"attemptId": attemptID,
		"tariffId":  tariffID,
	})
	return state, nil
}

// OnFail handles the widget's failure callback. No commit is issued; the reason is surfaced as
// given.
func (f *CheckoutFlow) OnFail(ctx context.Context, attemptID, reason string) (CheckoutState, error) {
	f.mu.Lock()
	attempt, err := f.currentAttemptLocked(attemptID)
	if err != nil || attempt.Outcome != AttemptPending {
		state := f.snapshotLocked()
		f.mu.Unlock()
		return state, err
	}
	attempt.Outcome = AttemptFailed
	f.state.LastError = reason
	provider := attempt.Launch.Provider
	state := f.snapshotLocked()
	f.mu.Unlock()

	f.metrics.RecordCheckout(ctx, provider, "failed")
	f.logger(ctx, "checkout.payment_failed", map[string]any{
		"viewerId":  f.viewer,
		"attemptId": attemptID,
		"reason":    reason,
	})
	return state, &PaymentFailedError{Reason: reason}
}

// OnComplete handles the widget's completion callback, which always fires, and clears busy.
func (f *CheckoutFlow) OnComplete(attemptID string) (CheckoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, err := f.currentAttemptLocked(attemptID)
	if err != nil {
		return f.snapshotLocked(), err
	}
	attempt.Completed = true
	f.state.Busy = false
	f.refreshLocked()
	return f.snapshotLocked(), nil
}

func (f *CheckoutFlow) currentAttemptLocked(attemptID string) (*CheckoutAttempt, error) {
	attempt := f.state.Attempt
	if attempt == nil || strings.TrimSpace(attemptID) == "" || attempt.ID != attemptID {
		return nil, ErrCheckoutStaleAttempt
	}
	return attempt, nil
}

func (f *CheckoutFlow) refreshLocked() {
	s := &f.state
	s.RequiresRecurring = s.Plan.RequiresRecurringConsent()
	s.CanPay = !s.Busy && s.TermsAccepted && (!s.RequiresRecurring || s.RecurringAccepted)
}

func (f *CheckoutFlow) snapshotLocked() CheckoutState {
	state := f.state
	state.Plan.Features = append([]string(nil), f.state.Plan.Features...)
	if f.state.Attempt != nil {
		attempt := *f.state.Attempt
		state.Attempt = &attempt
	}
	return state
}
