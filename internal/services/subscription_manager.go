package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/platform/observability"
	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

const (
	defaultCancelReason = "Отмена подписки по запросу пользователя"
	minCardDigits       = 12
	maxCardDigits       = 19
)

// SubscriptionAction names a change requested on a recurring subscription.
type SubscriptionAction string

const (
	SubscriptionPause     SubscriptionAction = "pause"
	SubscriptionResume    SubscriptionAction = "resume"
	SubscriptionCancel    SubscriptionAction = "cancel"
	SubscriptionTerminate SubscriptionAction = "terminate"
)

var (
	// ErrSubscriptionInvalidCancellation is returned before any back-end call when the card or
	// account details of a cancellation are malformed.
	ErrSubscriptionInvalidCancellation = errors.New("subscription: invalid cancellation details")
	// ErrSubscriptionNotFound is returned when the viewer has no subscription to change.
	ErrSubscriptionNotFound = errors.New("subscription: not found")
	// ErrSubscriptionRejected is wrapped by SubscriptionRejectedError.
	ErrSubscriptionRejected = errors.New("subscription: change rejected")
	// ErrSubscriptionUnavailable is returned when the back-end cannot be reached.
	ErrSubscriptionUnavailable = errors.New("subscription: unavailable")
)

// SubscriptionRejectedError carries the back-end's reason for refusing a change.
type SubscriptionRejectedError struct {
	Action  SubscriptionAction
	Message string
}

func (e *SubscriptionRejectedError) Error() string {
	return fmt.Sprintf("subscription: %s rejected: %s", e.Action, e.Message)
}

func (e *SubscriptionRejectedError) Unwrap() error { return ErrSubscriptionRejected }

// CancellationInput is what the operator types to cancel: the full card number is reduced to its
// first six and last four digits before it goes anywhere.
type CancellationInput struct {
	CardNumber string
	AccountID  string
	Reason     string
}

// SubscriptionChange is the outcome of an accepted change.
type SubscriptionChange struct {
	Action  SubscriptionAction
	Message string
}

// SubscriptionManagerDeps bundles collaborators of the subscription manager.
type SubscriptionManagerDeps struct {
	Subscriptions repositories.SubscriptionRepository
	Entitlements  repositories.EntitlementRepository
	Tracker       EntitlementSource
	Metrics       *observability.Metrics
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

// SubscriptionManager changes recurring subscriptions. Every change that reaches the back-end
// invalidates the viewer's cached entitlement, whatever the outcome.
type SubscriptionManager struct {
	subscriptions repositories.SubscriptionRepository
	entitlements  repositories.EntitlementRepository
	tracker       EntitlementSource
	metrics       *observability.Metrics
	clock         func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
}

var _ SubscriptionService = (*SubscriptionManager)(nil)

// NewSubscriptionManager validates dependencies and constructs the manager.
func NewSubscriptionManager(deps SubscriptionManagerDeps) (*SubscriptionManager, error) {
	switch {
	case deps.Subscriptions == nil:
		return nil, errors.New("subscription manager: subscription repository is required")
	case deps.Entitlements == nil:
		return nil, errors.New("subscription manager: entitlement repository is required")
	case deps.Tracker == nil:
		return nil, errors.New("subscription manager: entitlement tracker is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &SubscriptionManager{
		subscriptions: deps.Subscriptions,
		entitlements:  deps.Entitlements,
		tracker:       deps.Tracker,
		metrics:       deps.Metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// SubscriptionStatus fetches the viewer's current status and refreshes the cached entitlement.
// A failed lookup degrades to an inactive subscription.
func (m *SubscriptionManager) SubscriptionStatus(ctx context.Context, viewer string) (SubscriptionEntitlement, error) {
	viewer = strings.TrimSpace(viewer)
	if viewer == "" {
		return SubscriptionEntitlement{}, ErrWorkspaceViewerRequired
	}
	entitlement, err := m.entitlements.GetEntitlement(ctx, viewer)
	if err != nil {
		m.logger(ctx, "subscription.status_failed", map[string]any{
			"viewerId": viewer,
			"error":    err.Error(),
		})
		return SubscriptionEntitlement{CheckedAt: m.clock()}, nil
	}
	m.tracker.Seed(viewer, entitlement.Active)
	return entitlement, nil
}

// PauseSubscription suspends renewals for the back-end's pause period.
func (m *SubscriptionManager) PauseSubscription(ctx context.Context, viewer string) (SubscriptionChange, error) {
	return m.change(ctx, viewer, SubscriptionPause, m.subscriptions.PauseSubscription)
}

// ResumeSubscription restarts a paused subscription.
func (m *SubscriptionManager) ResumeSubscription(ctx context.Context, viewer string) (SubscriptionChange, error) {
	return m.change(ctx, viewer, SubscriptionResume, m.subscriptions.ResumeSubscription)
}

// TerminateSubscription ends the subscription outright.
func (m *SubscriptionManager) TerminateSubscription(ctx context.Context, viewer string) (SubscriptionChange, error) {
	return m.change(ctx, viewer, SubscriptionTerminate, m.subscriptions.TerminateSubscription)
}

// CancelSubscription stops renewals after the back-end matches the card against the one on file.
// The account id must be the viewer's own; malformed input never reaches the network.
func (m *SubscriptionManager) CancelSubscription(ctx context.Context, viewer string, input CancellationInput) (SubscriptionChange, error) {
	viewer = strings.TrimSpace(viewer)
	cancellation, err := buildCancellation(viewer, input)
	if err != nil {
		return SubscriptionChange{}, err
	}
	return m.change(ctx, viewer, SubscriptionCancel, func(ctx context.Context, viewer string) (domain.PurchaseReceipt, error) {
		return m.subscriptions.CancelSubscription(ctx, viewer, cancellation)
	})
}

func buildCancellation(viewer string, input CancellationInput) (domain.Cancellation, error) {
	digits := cardDigits(input.CardNumber)
	if len(digits) < minCardDigits || len(digits) > maxCardDigits {
		return domain.Cancellation{}, fmt.Errorf("%w: card number must have %d to %d digits", ErrSubscriptionInvalidCancellation, minCardDigits, maxCardDigits)
	}
	account := strings.TrimSpace(input.AccountID)
	if account == "" || account != viewer {
		return domain.Cancellation{}, fmt.Errorf("%w: account id does not match", ErrSubscriptionInvalidCancellation)
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = defaultCancelReason
	}
	return domain.Cancellation{
		CardFirstSix: digits[:6],
		CardLastFour: digits[len(digits)-4:],
		AccountID:    account,
		Reason:       reason,
	}, nil
}

func cardDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (m *SubscriptionManager) change(ctx context.Context, viewer string, action SubscriptionAction, call func(context.Context, string) (domain.PurchaseReceipt, error)) (SubscriptionChange, error) {
	viewer = strings.TrimSpace(viewer)
	if viewer == "" {
		return SubscriptionChange{}, ErrWorkspaceViewerRequired
	}

	receipt, err := call(ctx, viewer)
	m.tracker.Invalidate(viewer)
	if err != nil {
		mapped := m.classify(action, receipt, err)
		m.metrics.RecordSubscriptionChange(ctx, string(action), "error")
		m.logger(ctx, "subscription.change_failed", map[string]any{
			"viewerId": viewer,
			"action":   string(action),
			"error":    err.Error(),
		})
		return SubscriptionChange{}, mapped
	}

	m.metrics.RecordSubscriptionChange(ctx, string(action), "ok")
	m.logger(ctx, "subscription.changed", map[string]any{
		"viewerId": viewer,
		"action":   string(action),
	})
	return SubscriptionChange{Action: action, Message: receipt.Message}, nil
}

func (m *SubscriptionManager) classify(action SubscriptionAction, receipt domain.PurchaseReceipt, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrSubscriptionUnavailable, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", ErrSubscriptionNotFound, err)
		case repoErr.IsInvalid():
			message := firstNonBlank(repositories.ErrorDetail(err), receipt.Message)
			return &SubscriptionRejectedError{Action: action, Message: message}
		}
	}
	return fmt.Errorf("%w: %w", ErrSubscriptionUnavailable, err)
}
