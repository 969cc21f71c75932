package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/payments"
)

const (
	planDemo      = 0
	planDaily     = 2
	planExclusive = 3
)

type stubTariffRepository struct {
	calls   int
	tariffs []domain.Tariff
	err     error
}

func (s *stubTariffRepository) ListTariffs(context.Context) ([]domain.Tariff, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.tariffs, nil
}

type stubPurchaseRepository struct {
	calls    int
	viewer   string
	tariffID int64
	token    *string
	sawToken bool
	err      error
}

func (s *stubPurchaseRepository) CommitPurchase(_ context.Context, viewer string, tariffID int64, token *string) (domain.PurchaseReceipt, error) {
	s.calls++
	s.viewer = viewer
	s.tariffID = tariffID
	s.token = token
	s.sawToken = token != nil
	if s.err != nil {
		return domain.PurchaseReceipt{}, s.err
	}
	return domain.PurchaseReceipt{Success: true, Message: "Подписка активирована"}, nil
}

type stubWidgetLauncher struct {
	calls int
	ctx   payments.PaymentContext
	req   payments.WidgetRequest
	err   error
}

func (s *stubWidgetLauncher) Launch(_ context.Context, pctx payments.PaymentContext, req payments.WidgetRequest) (payments.WidgetLaunch, error) {
	s.calls++
	s.ctx = pctx
	s.req = req
	if s.err != nil {
		return payments.WidgetLaunch{}, s.err
	}
	return payments.WidgetLaunch{Provider: "cloudpayments", AttemptID: req.AttemptID}, nil
}

type checkoutFixture struct {
	flow         *CheckoutFlow
	tariffs      *stubTariffRepository
	purchases    *stubPurchaseRepository
	widget       *stubWidgetLauncher
	entitlements *stubEntitlementSource
}

func defaultTariffs() []domain.Tariff {
	return []domain.Tariff{
		{ID: 3, Name: "Суточный", Price: 499, DurationDays: 1, IsActive: true},
		{ID: 7, Name: "Эксклюзив", Price: 999, DurationDays: 10, IsActive: true, AutoRenewal: true},
	}
}

func newCheckoutFixture(t *testing.T, planIndex int) *checkoutFixture {
	t.Helper()
	fx := &checkoutFixture{
		tariffs:      &stubTariffRepository{tariffs: defaultTariffs()},
		purchases:    &stubPurchaseRepository{},
		widget:       &stubWidgetLauncher{},
		entitlements: &stubEntitlementSource{},
	}
	catalog, err := NewTariffCatalog(TariffCatalogDeps{Repository: fx.tariffs})
	if err != nil {
		t.Fatalf("NewTariffCatalog: %v", err)
	}
	ids := 0
	flow, err := NewCheckoutFlow("viewer-1", planIndex, CheckoutFlowDeps{
		Catalog:      catalog,
		Payments:     fx.widget,
		Purchases:    fx.purchases,
		Entitlements: fx.entitlements,
		Clock:        func() time.Time { return time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC) },
		IDGen: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	})
	if err != nil {
		t.Fatalf("NewCheckoutFlow: %v", err)
	}
	fx.flow = flow
	return fx
}

func TestCheckoutConsentGating(t *testing.T) {
	fx := newCheckoutFixture(t, planDaily)
	if fx.flow.CanPay() {
		t.Fatal("expected pay disabled without consents")
	}
	state := fx.flow.SetConsents(true, false)
	if !state.CanPay || state.RequiresRecurring {
		t.Fatalf("expected daily plan payable with terms only, got %+v", state)
	}

	state, err := fx.flow.SelectPlan(planExclusive)
	if err != nil {
		t.Fatalf("SelectPlan: %v", err)
	}
	if state.CanPay || !state.RequiresRecurring {
		t.Fatalf("expected exclusive plan to require recurring consent, got %+v", state)
	}
	if !state.TermsAccepted || state.RecurringAccepted {
		t.Fatalf("expected consents to be kept across plan change, got %+v", state)
	}

	state = fx.flow.SetConsents(true, true)
	if !state.CanPay {
		t.Fatal("expected pay enabled with both consents")
	}
}

func TestCheckoutPayWithoutConsentIsRejected(t *testing.T) {
	fx := newCheckoutFixture(t, planExclusive)
	fx.flow.SetConsents(true, false)
	if _, err := fx.flow.Pay(context.Background()); !errors.Is(err, ErrCheckoutConsentRequired) {
		t.Fatalf("expected consent error, got %v", err)
	}
	if fx.widget.calls != 0 || fx.tariffs.calls != 0 {
		t.Fatalf("expected no catalog or widget call, got %d/%d", fx.tariffs.calls, fx.widget.calls)
	}
}

func TestCheckoutPlanNotReconciled(t *testing.T) {
	fx := newCheckoutFixture(t, planDemo)
	fx.flow.SetConsents(true, true)

	_, err := fx.flow.Pay(context.Background())
	var notReconciled *PlanNotReconciledError
	if !errors.As(err, &notReconciled) || notReconciled.PlanName != "Демо" {
		t.Fatalf("expected plan not reconciled for Демо, got %v", err)
	}
	if !errors.Is(err, ErrCheckoutPlanNotReconciled) {
		t.Fatalf("expected sentinel in chain, got %v", err)
	}
	if fx.widget.calls != 0 {
		t.Fatalf("expected no widget call, got %d", fx.widget.calls)
	}
	state := fx.flow.State()
	if state.Busy || !strings.Contains(state.LastError, "Демо") {
		t.Fatalf("expected idle flow naming the plan, got %+v", state)
	}
}

func TestCheckoutCatalogFailureIsUnavailable(t *testing.T) {
	fx := newCheckoutFixture(t, planDaily)
	fx.tariffs.err = errors.New("backend down")
	fx.flow.SetConsents(true, false)
	if _, err := fx.flow.Pay(context.Background()); !errors.Is(err, ErrCheckoutUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if fx.flow.State().Busy {
		t.Fatal("expected busy cleared after failure")
	}
}

func TestCheckoutChargesCatalogPriceAndCommitsWithoutToken(t *testing.T) {
	fx := newCheckoutFixture(t, planExclusive)
	fx.flow.SetConsents(true, true)
	ctx := context.Background()

	attempt, err := fx.flow.Pay(ctx)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if fx.tariffs.calls != 1 {
		t.Fatalf("expected a fresh catalog fetch, got %d", fx.tariffs.calls)
	}
	req := fx.widget.req
	if req.TariffID != 7 || req.AmountMinor != 99900 || req.Currency != "RUB" || !req.RequireRecurrent {
		t.Fatalf("unexpected widget request %+v", req)
	}
	if req.ViewerID != "viewer-1" || req.AttemptID != attempt.ID || req.Metadata["plan_index"] != "3" {
		t.Fatalf("unexpected widget identity %+v", req)
	}
	if !fx.flow.State().Busy || fx.flow.CanPay() {
		t.Fatal("expected pay disabled while the attempt is open")
	}
	if _, err := fx.flow.Pay(ctx); !errors.Is(err, ErrCheckoutInProgress) {
		t.Fatalf("expected in-progress error, got %v", err)
	}

	state, err := fx.flow.OnSuccess(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("OnSuccess: %v", err)
	}
	if fx.purchases.calls != 1 || fx.purchases.tariffID != 7 || fx.purchases.viewer != "viewer-1" {
		t.Fatalf("unexpected commit %+v", fx.purchases)
	}
	if fx.purchases.sawToken {
		t.Fatal("expected commit without transaction token")
	}
	if len(fx.entitlements.invalidated) != 1 {
		t.Fatalf("expected entitlement invalidation, got %v", fx.entitlements.invalidated)
	}
	if state.Attempt.Outcome != AttemptSucceeded || state.LastMessage != "Подписка активирована" {
		t.Fatalf("unexpected state %+v", state)
	}

	state, err = fx.flow.OnComplete(attempt.ID)
	if err != nil {
		t.Fatalf("OnComplete: %v", err)
	}
	if state.Busy || !state.CanPay || !state.Attempt.Completed {
		t.Fatalf("expected flow ready again after completion, got %+v", state)
	}
}

func TestCheckoutFirstOutcomeWins(t *testing.T) {
	fx := newCheckoutFixture(t, planDaily)
	fx.flow.SetConsents(true, false)
	ctx := context.Background()
	attempt, err := fx.flow.Pay(ctx)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}

	if _, err := fx.flow.OnSuccess(ctx, attempt.ID); err != nil {
		t.Fatalf("OnSuccess: %v", err)
	}
	if _, err := fx.flow.OnSuccess(ctx, attempt.ID); err != nil {
		t.Fatalf("expected duplicate success to be ignored, got %v", err)
	}
	state, err := fx.flow.OnFail(ctx, attempt.ID, "late failure")
	if err != nil {
		t.Fatalf("expected late failure to be ignored, got %v", err)
	}
	if fx.purchases.calls != 1 || state.Attempt.Outcome != AttemptSucceeded || state.LastError != "" {
		t.Fatalf("expected single committed success, got %d commits and %+v", fx.purchases.calls, state)
	}
}

func TestCheckoutFailureKeepsReasonAndSkipsCommit(t *testing.T) {
	fx := newCheckoutFixture(t, planDaily)
	fx.flow.SetConsents(true, false)
	ctx := context.Background()
	attempt, err := fx.flow.Pay(ctx)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}

	state, err := fx.flow.OnFail(ctx, attempt.ID, "Недостаточно средств")
	var failed *PaymentFailedError
	if !errors.As(err, &failed) || failed.Reason != "Недостаточно средств" {
		t.Fatalf("expected payment failed error with verbatim reason, got %v", err)
	}
	if state.LastError != "Недостаточно средств" || fx.purchases.calls != 0 || len(fx.entitlements.invalidated) != 0 {
		t.Fatalf("unexpected failure handling %+v commits=%d", state, fx.purchases.calls)
	}
	if !state.Busy {
		t.Fatal("expected busy until the completion callback")
	}
	state, _ = fx.flow.OnComplete(attempt.ID)
	if state.Busy {
		t.Fatal("expected busy cleared on completion")
	}
}

func TestCheckoutCommitFailureStillInvalidates(t *testing.T) {
	fx := newCheckoutFixture(t, planDaily)
	fx.purchases.err = errors.New("commit rejected")
	fx.flow.SetConsents(true, false)
	ctx := context.Background()
	attempt, err := fx.flow.Pay(ctx)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	state, err := fx.flow.OnSuccess(ctx, attempt.ID)
	if !errors.Is(err, ErrCheckoutUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if len(fx.entitlements.invalidated) != 1 || state.LastError == "" {
		t.Fatalf("expected invalidation and error message, got %v %+v", fx.entitlements.invalidated, state)
	}
}

func TestCheckoutStaleAttemptCallbacks(t *testing.T) {
	fx := newCheckoutFixture(t, planDaily)
	ctx := context.Background()
	if _, err := fx.flow.OnSuccess(ctx, "unknown"); !errors.Is(err, ErrCheckoutStaleAttempt) {
		t.Fatalf("expected stale attempt before any pay, got %v", err)
	}

	fx.flow.SetConsents(true, false)
	attempt, err := fx.flow.Pay(ctx)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if _, err := fx.flow.OnFail(ctx, "other", "x"); !errors.Is(err, ErrCheckoutStaleAttempt) {
		t.Fatalf("expected stale attempt, got %v", err)
	}
	if _, err := fx.flow.OnComplete("other"); !errors.Is(err, ErrCheckoutStaleAttempt) {
		t.Fatalf("expected stale attempt, got %v", err)
	}
	if state := fx.flow.State(); !state.Busy || state.Attempt.ID != attempt.ID {
		t.Fatalf("expected current attempt untouched, got %+v", state)
	}
}

func TestCheckoutLaunchFailureClearsBusy(t *testing.T) {
	fx := newCheckoutFixture(t, planDaily)
	fx.widget.err = payments.ErrUnsupportedProvider
	fx.flow.SetConsents(true, false)
	if _, err := fx.flow.Pay(context.Background()); !errors.Is(err, ErrCheckoutUnavailable) || !errors.Is(err, payments.ErrUnsupportedProvider) {
		t.Fatalf("expected wrapped launch error, got %v", err)
	}
	state := fx.flow.State()
	if state.Busy || !state.CanPay || state.Attempt != nil {
		t.Fatalf("expected flow ready for retry, got %+v", state)
	}
}

func TestCheckoutInvalidPlan(t *testing.T) {
	fx := newCheckoutFixture(t, planDaily)
	if _, err := fx.flow.SelectPlan(42); !errors.Is(err, ErrCheckoutInvalidPlan) {
		t.Fatalf("expected invalid plan, got %v", err)
	}
	if fx.flow.State().PlanIndex != planDaily {
		t.Fatal("expected selection unchanged")
	}
	catalog, _ := NewTariffCatalog(TariffCatalogDeps{Repository: &stubTariffRepository{}})
	_, err := NewCheckoutFlow("viewer-1", -1, CheckoutFlowDeps{
		Catalog:   catalog,
		Payments:  &stubWidgetLauncher{},
		Purchases: &stubPurchaseRepository{},
	})
	if !errors.Is(err, ErrCheckoutInvalidPlan) {
		t.Fatalf("expected invalid plan, got %v", err)
	}
}

func TestListPlanOffers(t *testing.T) {
	offers := ListPlanOffers()
	if len(offers) != 7 {
		t.Fatalf("expected 7 plans, got %d", len(offers))
	}
	if offers[planDaily].RequiresRecurring || !offers[planExclusive].RequiresRecurring {
		t.Fatalf("unexpected recurring flags %+v %+v", offers[planDaily], offers[planExclusive])
	}
	if offers[planExclusive].Plan.Name != "Эксклюзив" || offers[0].TermsConsent == "" {
		t.Fatalf("unexpected offer %+v", offers[planExclusive])
	}
}
