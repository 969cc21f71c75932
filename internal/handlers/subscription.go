package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalitka1293/instagram-scan/internal/platform/httpx"
	"github.com/kalitka1293/instagram-scan/internal/services"
)

// SubscriptionHandlers exposes the viewer's subscription status and the pause, resume and cancel
// actions of the tariff management screens.
type SubscriptionHandlers struct {
	subscriptions services.SubscriptionService
}

// NewSubscriptionHandlers constructs subscription handlers.
func NewSubscriptionHandlers(subscriptions services.SubscriptionService) *SubscriptionHandlers {
	return &SubscriptionHandlers{subscriptions: subscriptions}
}

// Routes registers subscription endpoints under the provided router.
func (h *SubscriptionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.status)
	r.Post("/pause", h.pause)
	r.Post("/resume", h.resume)
	r.Post("/cancel", h.cancel)
	r.Post("/terminate", h.terminate)
}

type subscriptionStatusPayload struct {
	Active            bool   `json:"active"`
	TariffName        string `json:"tariffName,omitempty"`
	EndsAt            string `json:"endsAt,omitempty"`
	RemainingRequests int    `json:"remainingRequests"`
	CheckedAt         string `json:"checkedAt,omitempty"`
}

type subscriptionChangePayload struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

type cancelSubscriptionRequest struct {
	CardNumber string `json:"cardNumber"`
	AccountID  string `json:"accountId"`
	Reason     string `json:"reason"`
}

func (h *SubscriptionHandlers) status(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	status, err := h.subscriptions.SubscriptionStatus(r.Context(), viewer)
	if err != nil {
		writeSubscriptionError(r.Context(), w, err)
		return
	}
	payload := subscriptionStatusPayload{
		Active:            status.Active,
		TariffName:        status.TariffName,
		RemainingRequests: status.RemainingReqs,
		CheckedAt:         formatTime(status.CheckedAt),
	}
	if status.EndsAt != nil {
		payload.EndsAt = formatTime(*status.EndsAt)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *SubscriptionHandlers) pause(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.subscriptions.PauseSubscription)
}

func (h *SubscriptionHandlers) resume(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.subscriptions.ResumeSubscription)
}

func (h *SubscriptionHandlers) terminate(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, h.subscriptions.TerminateSubscription)
}

func (h *SubscriptionHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	var req cancelSubscriptionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	change, err := h.subscriptions.CancelSubscription(r.Context(), viewer, services.CancellationInput{
		CardNumber: req.CardNumber,
		AccountID:  req.AccountID,
		Reason:     req.Reason,
	})
	if err != nil {
		writeSubscriptionError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, subscriptionChangePayload{Action: string(change.Action), Message: change.Message})
}

func (h *SubscriptionHandlers) change(w http.ResponseWriter, r *http.Request, call func(context.Context, string) (services.SubscriptionChange, error)) {
	viewer, ok := viewerFromRequest(w, r)
	if !ok {
		return
	}
	change, err := call(r.Context(), viewer)
	if err != nil {
		writeSubscriptionError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, subscriptionChangePayload{Action: string(change.Action), Message: change.Message})
}

func writeSubscriptionError(ctx context.Context, w http.ResponseWriter, err error) {
	var rejected *services.SubscriptionRejectedError
	switch {
	case errors.As(err, &rejected):
		httpx.WriteError(ctx, w, httpx.NewError("subscription_rejected", rejected.Message, http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrSubscriptionInvalidCancellation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_cancellation", "Проверьте данные карты и ID аккаунта", http.StatusBadRequest))
	case errors.Is(err, services.ErrSubscriptionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("subscription_not_found", "Активная подписка не найдена", http.StatusNotFound))
	case errors.Is(err, services.ErrSubscriptionUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", "subscription service unavailable", http.StatusBadGateway))
	case errors.Is(err, services.ErrWorkspaceViewerRequired):
		httpx.WriteError(ctx, w, httpx.NewError("viewer_required", "viewer identity required", http.StatusUnauthorized))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("subscription_error", "failed to process subscription request", http.StatusInternalServerError))
	}
}
