package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

type stubSubscriptionRepository struct {
	calls        []string
	viewer       string
	cancellation domain.Cancellation
	err          error
}

func (s *stubSubscriptionRepository) record(action, viewer string) (domain.PurchaseReceipt, error) {
	s.calls = append(s.calls, action)
	s.viewer = viewer
	if s.err != nil {
		return domain.PurchaseReceipt{}, s.err
	}
	return domain.PurchaseReceipt{Success: true, Message: action + " ok"}, nil
}

func (s *stubSubscriptionRepository) PauseSubscription(_ context.Context, viewer string) (domain.PurchaseReceipt, error) {
	return s.record("pause", viewer)
}

func (s *stubSubscriptionRepository) ResumeSubscription(_ context.Context, viewer string) (domain.PurchaseReceipt, error) {
	return s.record("resume", viewer)
}

func (s *stubSubscriptionRepository) CancelSubscription(_ context.Context, viewer string, cancellation domain.Cancellation) (domain.PurchaseReceipt, error) {
	s.cancellation = cancellation
	return s.record("cancel", viewer)
}

func (s *stubSubscriptionRepository) TerminateSubscription(_ context.Context, viewer string) (domain.PurchaseReceipt, error) {
	return s.record("terminate", viewer)
}

func newTestSubscriptionManager(t *testing.T, repo *stubSubscriptionRepository, entitlements *stubEntitlementRepository, tracker *stubEntitlementSource) *SubscriptionManager {
	t.Helper()
	manager, err := NewSubscriptionManager(SubscriptionManagerDeps{
		Subscriptions: repo,
		Entitlements:  entitlements,
		Tracker:       tracker,
	})
	if err != nil {
		t.Fatalf("NewSubscriptionManager: %v", err)
	}
	return manager
}

func TestNewSubscriptionManagerValidatesDeps(t *testing.T) {
	if _, err := NewSubscriptionManager(SubscriptionManagerDeps{}); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}

func TestSubscriptionChangesInvalidateEntitlement(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		action SubscriptionAction
		run    func(m *SubscriptionManager) (SubscriptionChange, error)
	}{
		{SubscriptionPause, func(m *SubscriptionManager) (SubscriptionChange, error) { return m.PauseSubscription(ctx, " viewer-1 ") }},
		{SubscriptionResume, func(m *SubscriptionManager) (SubscriptionChange, error) { return m.ResumeSubscription(ctx, "viewer-1") }},
		{SubscriptionTerminate, func(m *SubscriptionManager) (SubscriptionChange, error) { return m.TerminateSubscription(ctx, "viewer-1") }},
	}
	for _, tc := range cases {
		repo := &stubSubscriptionRepository{}
		tracker := &stubEntitlementSource{}
		manager := newTestSubscriptionManager(t, repo, &stubEntitlementRepository{}, tracker)

		change, err := tc.run(manager)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.action, err)
		}
		if change.Action != tc.action || change.Message == "" {
			t.Fatalf("%s: unexpected change %+v", tc.action, change)
		}
		if repo.viewer != "viewer-1" || len(repo.calls) != 1 {
			t.Fatalf("%s: expected one call for viewer-1, got %v %q", tc.action, repo.calls, repo.viewer)
		}
		if len(tracker.invalidated) != 1 || tracker.invalidated[0] != "viewer-1" {
			t.Fatalf("%s: expected entitlement invalidated, got %v", tc.action, tracker.invalidated)
		}
	}
}

func TestSubscriptionCancelSendsOnlyCardEdges(t *testing.T) {
	repo := &stubSubscriptionRepository{}
	tracker := &stubEntitlementSource{}
	manager := newTestSubscriptionManager(t, repo, &stubEntitlementRepository{}, tracker)

	_, err := manager.CancelSubscription(context.Background(), "viewer-1", CancellationInput{
		CardNumber: "4242 4242 4242 1234",
		AccountID:  "viewer-1",
	})
	if err != nil {
		t.Fatalf("CancelSubscription: %v", err)
	}
	got := repo.cancellation
	if got.CardFirstSix != "424242" || got.CardLastFour != "1234" || got.AccountID != "viewer-1" {
		t.Fatalf("unexpected cancellation %+v", got)
	}
	if got.Reason != defaultCancelReason {
		t.Fatalf("expected default reason, got %q", got.Reason)
	}
	if len(tracker.invalidated) != 1 {
		t.Fatalf("expected entitlement invalidated after cancel")
	}
}

func TestSubscriptionCancelValidatesLocally(t *testing.T) {
	cases := []struct {
		name  string
		input CancellationInput
	}{
		{"short card", CancellationInput{CardNumber: "4242 1234", AccountID: "viewer-1"}},
		{"letters only", CancellationInput{CardNumber: "card", AccountID: "viewer-1"}},
		{"foreign account", CancellationInput{CardNumber: "4242424242421234", AccountID: "viewer-2"}},
		{"missing account", CancellationInput{CardNumber: "4242424242421234"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubSubscriptionRepository{}
			tracker := &stubEntitlementSource{}
			manager := newTestSubscriptionManager(t, repo, &stubEntitlementRepository{}, tracker)

			_, err := manager.CancelSubscription(context.Background(), "viewer-1", tc.input)
			if !errors.Is(err, ErrSubscriptionInvalidCancellation) {
				t.Fatalf("expected ErrSubscriptionInvalidCancellation, got %v", err)
			}
			if len(repo.calls) != 0 || len(tracker.invalidated) != 0 {
				t.Fatalf("expected no back-end call, got %v", repo.calls)
			}
		})
	}
}

func TestSubscriptionChangeErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"not found", repositories.NewNotFoundError("op", "Активная подписка не найдена"), ErrSubscriptionNotFound},
		{"rejected", repositories.NewInvalidError("op", "Подписка уже приостановлена"), ErrSubscriptionRejected},
		{"unavailable", repositories.NewUnavailableError("op", "", errors.New("connection refused")), ErrSubscriptionUnavailable},
		{"cancelled", context.Canceled, ErrSubscriptionUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubSubscriptionRepository{err: tc.err}
			tracker := &stubEntitlementSource{}
			manager := newTestSubscriptionManager(t, repo, &stubEntitlementRepository{}, tracker)

			_, err := manager.PauseSubscription(context.Background(), "viewer-1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(tracker.invalidated) != 1 {
				t.Fatalf("expected entitlement invalidated after a failed change")
			}
		})
	}
}

func TestSubscriptionRejectedKeepsBackendMessage(t *testing.T) {
	repo := &stubSubscriptionRepository{err: repositories.NewInvalidError("op", "Подписка уже приостановлена")}
	manager := newTestSubscriptionManager(t, repo, &stubEntitlementRepository{}, &stubEntitlementSource{})

	_, err := manager.PauseSubscription(context.Background(), "viewer-1")
	var rejected *SubscriptionRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected SubscriptionRejectedError, got %v", err)
	}
	if rejected.Message != "Подписка уже приостановлена" || rejected.Action != SubscriptionPause {
		t.Fatalf("unexpected rejection %+v", rejected)
	}
}

func TestSubscriptionStatusSeedsTracker(t *testing.T) {
	tracker := &stubEntitlementSource{}
	manager := newTestSubscriptionManager(t, &stubSubscriptionRepository{}, &stubEntitlementRepository{active: true}, tracker)

	status, err := manager.SubscriptionStatus(context.Background(), "viewer-1")
	if err != nil {
		t.Fatalf("SubscriptionStatus: %v", err)
	}
	if !status.Active {
		t.Fatalf("expected active status")
	}
	if active, ok := tracker.seeded["viewer-1"]; !ok || !active {
		t.Fatalf("expected tracker seeded with active status, got %v", tracker.seeded)
	}
}

func TestSubscriptionStatusFailureDegrades(t *testing.T) {
	tracker := &stubEntitlementSource{}
	entitlements := &stubEntitlementRepository{err: errors.New("timeout")}
	manager := newTestSubscriptionManager(t, &stubSubscriptionRepository{}, entitlements, tracker)

	status, err := manager.SubscriptionStatus(context.Background(), "viewer-1")
	if err != nil {
		t.Fatalf("expected degraded status without error, got %v", err)
	}
	if status.Active || len(tracker.seeded) != 0 {
		t.Fatalf("expected inactive status and no seed, got %+v %v", status, tracker.seeded)
	}
}

func TestWorkspaceSubscriptionChangeRefetchesEntitlement(t *testing.T) {
	fx := newWorkspaceFixture(t)
	fx.entitlements.active = true
	ctx := context.Background()

	if !fx.workspace.Entitlements().Entitled(ctx, "viewer-1") {
		t.Fatalf("expected viewer entitled before pause")
	}
	fx.entitlements.active = false
	if _, err := fx.workspace.Subscriptions().PauseSubscription(ctx, "viewer-1"); err != nil {
		t.Fatalf("PauseSubscription: %v", err)
	}
	if fx.workspace.Entitlements().Entitled(ctx, "viewer-1") {
		t.Fatalf("expected refetched entitlement after pause")
	}
	if fx.entitlements.calls != 2 {
		t.Fatalf("expected two entitlement lookups, got %d", fx.entitlements.calls)
	}
}
