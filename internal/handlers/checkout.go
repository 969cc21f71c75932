package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/platform/httpx"
	"github.com/kalitka1293/instagram-scan/internal/platform/textutil"
	"github.com/kalitka1293/instagram-scan/internal/services"
)

// CheckoutHandlers exposes plan selection, consents and the payment widget callbacks.
type CheckoutHandlers struct {
	checkout services.CheckoutService
	payGuard func(http.Handler) http.Handler
}

// CheckoutOption customises checkout handlers.
type CheckoutOption func(*CheckoutHandlers)

// WithPayMiddleware wraps the pay endpoint, typically with the idempotency guard.
func WithPayMiddleware(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.payGuard = mw
	}
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.begin)
	r.Get("/", h.state)
	r.Put("/plan", h.selectPlan)
	r.Put("/consents", h.setConsents)
	pay := http.Handler(http.HandlerFunc(h.pay))
	if h.payGuard != nil {
		pay = h.payGuard(pay)
	}
	r.Method(http.MethodPost, "/pay", pay)
	r.Post("/attempts/{attemptId}/success", h.succeeded)
	r.Post("/attempts/{attemptId}/fail", h.failed)
	r.Post("/attempts/{attemptId}/complete", h.completed)
}

// PlanRoutes registers the plan catalog endpoint.
func PlanRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", listPlans)
}

type planPayload struct {
	Index             int      `json:"index"`
	Name              string   `json:"name"`
	DisplayPrice      string   `json:"displayPrice"`
	Duration          string   `json:"duration"`
	Subtitle          string   `json:"subtitle"`
	Features          []string `json:"features"`
	TermsConsent      string   `json:"termsConsent"`
	RecurringConsent  string   `json:"recurringConsent,omitempty"`
	RequiresRecurring bool     `json:"requiresRecurring"`
}

type planIndexRequest struct {
	PlanIndex *int `json:"planIndex"`
}

type consentsRequest struct {
	Terms     bool `json:"terms"`
	Recurring bool `json:"recurring"`
}

type failRequest struct {
	Reason string `json:"reason"`
}

type attemptPayload struct {
	ID          string         `json:"id"`
	TariffID    int64          `json:"tariffId"`
	TariffName  string         `json:"tariffName"`
	Amount      string         `json:"amount"`
	Provider    string         `json:"provider"`
	Outcome     string         `json:"outcome"`
	Completed   bool           `json:"completed"`
	Params      map[string]any `json:"params,omitempty"`
	RedirectURL string         `json:"redirectUrl,omitempty"`
	ExpiresAt   string         `json:"expiresAt,omitempty"`
	StartedAt   string         `json:"startedAt"`
}

type checkoutStatePayload struct {
	Plan              planPayload     `json:"plan"`
	TermsAccepted     bool            `json:"termsAccepted"`
	RecurringAccepted bool            `json:"recurringAccepted"`
	CanPay            bool            `json:"canPay"`
	Busy              bool            `json:"busy"`
	Attempt           *attemptPayload `json:"attempt,omitempty"`
	Error             string          `json:"error,omitempty"`
	Message           string          `json:"message,omitempty"`
}

func listPlans(w http.ResponseWriter, _ *http.Request) {
	offers := services.ListPlanOffers()
	resp := make([]planPayload, 0, len(offers))
	for _, offer := range offers {
		resp = append(resp, toPlanPayload(offer.Index, offer.Plan, offer.TermsConsent))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"plans": resp})
}

func (h *CheckoutHandlers) begin(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	index, ok := decodePlanIndex(w, r)
	if !ok {
		return
	}
	state, err := h.checkout.BeginCheckout(viewer, index)
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toCheckoutStatePayload(state))
}

func (h *CheckoutHandlers) state(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	state, err := h.checkout.CheckoutState(viewer)
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toCheckoutStatePayload(state))
}

func (h *CheckoutHandlers) selectPlan(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	index, ok := decodePlanIndex(w, r)
	if !ok {
		return
	}
	state, err := h.checkout.SelectCheckoutPlan(viewer, index)
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toCheckoutStatePayload(state))
}

func (h *CheckoutHandlers) setConsents(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	var req consentsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	state, err := h.checkout.SetCheckoutConsents(viewer, req.Terms, req.Recurring)
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toCheckoutStatePayload(state))
}

func (h *CheckoutHandlers) pay(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	attempt, err := h.checkout.PayCheckout(r.Context(), viewer)
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toAttemptPayload(attempt))
}

func (h *CheckoutHandlers) succeeded(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	state, err := h.checkout.CheckoutSucceeded(r.Context(), viewer, chi.URLParam(r, "attemptId"))
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toCheckoutStatePayload(state))
}

func (h *CheckoutHandlers) failed(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	var req failRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	state, err := h.checkout.CheckoutFailed(r.Context(), viewer, chi.URLParam(r, "attemptId"), req.Reason)
	// A recorded payment failure is not a request error; the reason travels in the state.
	var failed *services.PaymentFailedError
	if err != nil && !errors.As(err, &failed) {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toCheckoutStatePayload(state))
}

func (h *CheckoutHandlers) completed(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	state, err := h.checkout.CheckoutCompleted(viewer, chi.URLParam(r, "attemptId"))
	if err != nil {
		writeCheckoutError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toCheckoutStatePayload(state))
}

func decodePlanIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req planIndexRequest
	if !decodeJSONBody(w, r, &req) {
		return 0, false
	}
	if req.PlanIndex == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "planIndex is required", http.StatusBadRequest))
		return 0, false
	}
	return *req.PlanIndex, true
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var notReconciled *services.PlanNotReconciledError
	switch {
	case errors.As(err, &notReconciled):
		httpx.WriteError(ctx, w, httpx.NewError("plan_not_reconciled", "Тариф «"+notReconciled.PlanName+"» не найден", http.StatusConflict).
			WithDetails(map[string]any{"plan": notReconciled.PlanName}))
	case errors.Is(err, services.ErrCheckoutInvalidPlan):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_plan", "unknown plan", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutConsentRequired):
		httpx.WriteError(ctx, w, httpx.NewError("consent_required", "Необходимо принять все условия", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutInProgress):
		httpx.WriteError(ctx, w, httpx.NewError("payment_in_progress", "a payment attempt is already open", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutStaleAttempt):
		httpx.WriteError(ctx, w, httpx.NewError("stale_attempt", "attempt is not the current one", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutNotStarted):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_not_started", "no checkout in progress", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrWorkspaceViewerRequired):
		httpx.WriteError(ctx, w, httpx.NewError("viewer_required", "viewer identity required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrWorkspaceClosed):
		httpx.WriteError(ctx, w, httpx.NewError("shutting_down", "service is shutting down", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}

func toPlanPayload(index int, plan services.Plan, terms string) planPayload {
	return planPayload{
		Index:             index,
		Name:              plan.Name,
		DisplayPrice:      plan.DisplayPrice,
		Duration:          plan.Duration,
		Subtitle:          plan.Subtitle,
		Features:          append([]string(nil), plan.Features...),
		TermsConsent:      terms,
		RecurringConsent:  plan.RecurringConsent,
		RequiresRecurring: plan.RequiresRecurringConsent(),
	}
}

func toAttemptPayload(attempt services.CheckoutAttempt) attemptPayload {
	return attemptPayload{
		ID:          attempt.ID,
		TariffID:    attempt.Tariff.ID,
		TariffName:  attempt.Tariff.Name,
		Amount:      textutil.FormatRubles(attempt.Tariff.Price),
		Provider:    attempt.Launch.Provider,
		Outcome:     string(attempt.Outcome),
		Completed:   attempt.Completed,
		Params:      attempt.Launch.Params,
		RedirectURL: attempt.Launch.RedirectURL,
		ExpiresAt:   formatTime(attempt.Launch.ExpiresAt),
		StartedAt:   formatTime(attempt.StartedAt),
	}
}

func toCheckoutStatePayload(state services.CheckoutState) checkoutStatePayload {
	payload := checkoutStatePayload{
		Plan:              toPlanPayload(state.PlanIndex, state.Plan, domain.TermsConsent),
		TermsAccepted:     state.TermsAccepted,
		RecurringAccepted: state.RecurringAccepted,
		CanPay:            state.CanPay,
		Busy:              state.Busy,
		Error:             strings.TrimSpace(state.LastError),
		Message:           strings.TrimSpace(state.LastMessage),
	}
	if state.Attempt != nil {
		attempt := toAttemptPayload(*state.Attempt)
		payload.Attempt = &attempt
	}
	return payload
}
