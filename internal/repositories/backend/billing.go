package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

type subscriptionRequest struct {
	UserID string `json:"user_id"`
}

type cancelRequest struct {
	UserID       string `json:"user_id"`
	CardFirstSix string `json:"card_first_six"`
	CardLastFour string `json:"card_last_four"`
	AccountID    string `json:"account_id"`
	Reason       string `json:"reason,omitempty"`
}

type purchaseRequest struct {
	UserID        string  `json:"user_id"`
	TariffID      int64   `json:"tariff_id"`
	TransactionID *string `json:"transaction_id,omitempty"`
}

// ListTariffs calls GET /api/tariffs and returns the whole catalog in back-end order.
func (c *Client) ListTariffs(ctx context.Context) ([]domain.Tariff, error) {
	const op = "backend.tariffs.list"
	body, err := c.do(ctx, op, http.MethodGet, "/api/tariffs", nil)
	if err != nil {
		return nil, err
	}
	doc, err := parseJSON(op, body)
	if err != nil {
		return nil, err
	}

	rows := doc.Array()
	tariffs := make([]domain.Tariff, 0, len(rows))
	for _, row := range rows {
		isActive := true
		if active := row.Get("is_active"); active.Exists() {
			isActive = active.Bool()
		}
		tariffs = append(tariffs, domain.Tariff{
			ID:            row.Get("id").Int(),
			Name:          strings.TrimSpace(row.Get("name").String()),
			Price:         row.Get("price").Float(),
			DurationDays:  int(row.Get("duration_days").Int()),
			RequestsCount: int(row.Get("requests_count").Int()),
			IsActive:      isActive,
			AutoRenewal:   row.Get("auto_renewal").Bool(),
		})
	}
	return tariffs, nil
}

// GetEntitlement calls GET /api/subscription/status/{viewer}.
func (c *Client) GetEntitlement(ctx context.Context, viewer string) (domain.SubscriptionEntitlement, error) {
	const op = "backend.subscription.status"
	body, err := c.do(ctx, op, http.MethodGet, "/api/subscription/status/"+url.PathEscape(viewer), nil)
	if err != nil {
		return domain.SubscriptionEntitlement{}, err
	}
	doc, err := parseJSON(op, body)
	if err != nil {
		return domain.SubscriptionEntitlement{}, err
	}

	entitlement := domain.SubscriptionEntitlement{
		Active:        doc.Get("has_active_subscription").Bool(),
		TariffName:    strings.TrimSpace(doc.Get("current_tariff").String()),
		RemainingReqs: int(doc.Get("remaining_requests").Int()),
		CheckedAt:     c.clock().UTC(),
	}
	if ends := parseTimestamp(doc.Get("subscription_end").String()); !ends.IsZero() {
		entitlement.EndsAt = &ends
	}
	return entitlement, nil
}

// CommitPurchase calls POST /api/subscription/purchase. The transaction id is omitted when nil.
func (c *Client) CommitPurchase(ctx context.Context, viewer string, tariffID int64, transactionToken *string) (domain.PurchaseReceipt, error) {
	const op = "backend.subscription.purchase"
	body, err := c.do(ctx, op, http.MethodPost, "/api/subscription/purchase", purchaseRequest{
		UserID:        viewer,
		TariffID:      tariffID,
		TransactionID: transactionToken,
	})
	if err != nil {
		return domain.PurchaseReceipt{}, err
	}
	return parseReceipt(op, body)
}

// PauseSubscription calls POST /api/subscription/pause.
func (c *Client) PauseSubscription(ctx context.Context, viewer string) (domain.PurchaseReceipt, error) {
	return c.changeSubscription(ctx, "backend.subscription.pause", "/api/subscription/pause", subscriptionRequest{UserID: viewer})
}

// ResumeSubscription calls POST /api/subscription/resume.
func (c *Client) ResumeSubscription(ctx context.Context, viewer string) (domain.PurchaseReceipt, error) {
	return c.changeSubscription(ctx, "backend.subscription.resume", "/api/subscription/resume", subscriptionRequest{UserID: viewer})
}

// CancelSubscription calls POST /api/subscription/cancel, which checks the card against the one
// on file before stopping renewals.
func (c *Client) CancelSubscription(ctx context.Context, viewer string, cancellation domain.Cancellation) (domain.PurchaseReceipt, error) {
	return c.changeSubscription(ctx, "backend.subscription.cancel", "/api/subscription/cancel", cancelRequest{
		UserID:       viewer,
		CardFirstSix: cancellation.CardFirstSix,
		CardLastFour: cancellation.CardLastFour,
		AccountID:    cancellation.AccountID,
		Reason:       cancellation.Reason,
	})
}

// TerminateSubscription calls POST /api/subscription/cancel-full.
func (c *Client) TerminateSubscription(ctx context.Context, viewer string) (domain.PurchaseReceipt, error) {
	return c.changeSubscription(ctx, "backend.subscription.terminate", "/api/subscription/cancel-full", subscriptionRequest{UserID: viewer})
}

func (c *Client) changeSubscription(ctx context.Context, op, path string, payload any) (domain.PurchaseReceipt, error) {
	body, err := c.do(ctx, op, http.MethodPost, path, payload)
	if err != nil {
		return domain.PurchaseReceipt{}, err
	}
	return parseReceipt(op, body)
}

func parseReceipt(op string, body []byte) (domain.PurchaseReceipt, error) {
	doc, err := parseJSON(op, body)
	if err != nil {
		return domain.PurchaseReceipt{}, err
	}
	receipt := domain.PurchaseReceipt{
		Success: doc.Get("success").Bool(),
		Message: strings.TrimSpace(doc.Get("message").String()),
	}
	if !receipt.Success {
		return receipt, repositories.NewInvalidError(op, receipt.Message)
	}
	return receipt, nil
}
