package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/platform/observability"
	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

var (
	// ErrWorkspaceViewerRequired is returned when a call carries no viewer identity.
	ErrWorkspaceViewerRequired = errors.New("workspace: viewer is required")
	// ErrCheckoutNotStarted is returned when the viewer has no checkout flow.
	ErrCheckoutNotStarted = errors.New("checkout: flow not started")
	// ErrWorkspaceClosed is returned after Close.
	ErrWorkspaceClosed = errors.New("workspace: closed")
)

// WorkspaceDeps bundles everything the per-viewer workspace needs.
type WorkspaceDeps struct {
	Profiles          repositories.ProfileRepository
	Enrichment        repositories.EnrichmentRepository
	Tariffs           repositories.TariffRepository
	Entitlements      repositories.EntitlementRepository
	Purchases         repositories.PurchaseRepository
	Subscriptions     repositories.SubscriptionRepository
	Engagement        repositories.EngagementStore
	Payments          WidgetLauncher
	Metrics           *observability.Metrics
	Currency          string
	PreferredProvider string
	PollInterval      time.Duration
	MaxPollAttempts   int
	PollDeadline      time.Duration
	IdleTTL           time.Duration
	Clock             func() time.Time
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

type viewerState struct {
	session  *AnalysisSession
	checkout *CheckoutFlow
	lastSeen time.Time
}

// Workspace keeps one analysis session and at most one checkout flow per viewer.
type Workspace struct {
	deps         WorkspaceDeps
	catalog      *TariffCatalog
	entitlements *EntitlementTracker
	subscription *SubscriptionManager
	feed         *FeedComposer
	clock        func() time.Time
	logger       func(ctx context.Context, event string, fields map[string]any)

	mu      sync.Mutex
	viewers map[string]*viewerState
	closed  bool
}

// NewWorkspace validates dependencies and assembles the shared services.
func NewWorkspace(deps WorkspaceDeps) (*Workspace, error) {
	switch {
	case deps.Profiles == nil:
		return nil, errors.New("workspace: profile repository is required")
	case deps.Enrichment == nil:
		return nil, errors.New("workspace: enrichment repository is required")
	case deps.Tariffs == nil:
		return nil, errors.New("workspace: tariff repository is required")
	case deps.Entitlements == nil:
		return nil, errors.New("workspace: entitlement repository is required")
	case deps.Purchases == nil:
		return nil, errors.New("workspace: purchase repository is required")
	case deps.Subscriptions == nil:
		return nil, errors.New("workspace: subscription repository is required")
	case deps.Engagement == nil:
		return nil, errors.New("workspace: engagement store is required")
	case deps.Payments == nil:
		return nil, errors.New("workspace: widget launcher is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	deps.Clock = clock
	deps.Logger = logger

	catalog, err := NewTariffCatalog(TariffCatalogDeps{Repository: deps.Tariffs, Clock: clock, Logger: logger})
	if err != nil {
		return nil, err
	}
	tracker, err := NewEntitlementTracker(EntitlementTrackerDeps{Repository: deps.Entitlements, Clock: clock, Logger: logger})
	if err != nil {
		return nil, err
	}
	subscription, err := NewSubscriptionManager(SubscriptionManagerDeps{
		Subscriptions: deps.Subscriptions,
		Entitlements:  deps.Entitlements,
		Tracker:       tracker,
		Metrics:       deps.Metrics,
		Clock:         clock,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	synthetic, err := NewSyntheticFeed(SyntheticFeedDeps{Store: deps.Engagement, Clock: clock, Logger: logger})
	if err != nil {
		return nil, err
	}
	feed, err := NewFeedComposer(FeedComposerDeps{Synthetic: synthetic, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Workspace{
		deps:         deps,
		catalog:      catalog,
		entitlements: tracker,
		subscription: subscription,
		feed:         feed,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:  logger,
		viewers: make(map[string]*viewerState),
	}, nil
}

// Catalog exposes the shared tariff catalog cache.
func (w *Workspace) Catalog() *TariffCatalog { return w.catalog }

// Entitlements exposes the shared entitlement tracker.
func (w *Workspace) Entitlements() *EntitlementTracker { return w.entitlements }

// Subscriptions exposes subscription management over the shared entitlement tracker.
func (w *Workspace) Subscriptions() *SubscriptionManager { return w.subscription }

func (w *Workspace) viewer(viewer string) (*viewerState, error) {
	viewer = strings.TrimSpace(viewer)
	if viewer == "" {
		return nil, ErrWorkspaceViewerRequired
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrWorkspaceClosed
	}
	state, ok := w.viewers[viewer]
	if !ok {
		session, err := NewAnalysisSession(viewer, AnalysisSessionDeps{
			Profiles:        w.deps.Profiles,
			Enrichment:      w.deps.Enrichment,
			Entitlements:    w.entitlements,
			Metrics:         w.deps.Metrics,
			Clock:           w.deps.Clock,
			Logger:          w.deps.Logger,
			PollInterval:    w.deps.PollInterval,
			MaxPollAttempts: w.deps.MaxPollAttempts,
			PollDeadline:    w.deps.PollDeadline,
		})
		if err != nil {
			return nil, err
		}
		state = &viewerState{session: session}
		w.viewers[viewer] = state
	}
	state.lastSeen = w.clock()
	return state, nil
}

// Session returns the viewer's analysis session, creating an idle one on first use.
func (w *Workspace) Session(viewer string) (*AnalysisSession, error) {
	state, err := w.viewer(viewer)
	if err != nil {
		return nil, err
	}
	return state.session, nil
}

// Submit starts a new analysis for the viewer. A session swept between lookup and submission
// is replaced by a fresh one.
func (w *Workspace) Submit(ctx context.Context, viewer, handle string) (SessionSnapshot, error) {
	session, err := w.Session(viewer)
	if err != nil {
		return SessionSnapshot{}, err
	}
	snapshot, err := session.Submit(ctx, handle)
	if !errors.Is(err, ErrAnalysisSessionClosed) {
		return snapshot, err
	}
	if session, err = w.Session(viewer); err != nil {
		return SessionSnapshot{}, err
	}
	return session.Submit(ctx, handle)
}

// Snapshot returns the viewer's current session state.
func (w *Workspace) Snapshot(viewer string) (SessionSnapshot, error) {
	session, err := w.Session(viewer)
	if err != nil {
		return SessionSnapshot{}, err
	}
	return session.Snapshot(), nil
}

// Feed composes the sections of tab for the viewer's current session.
func (w *Workspace) Feed(ctx context.Context, viewer string, tab domain.Tab) ([]Section, SessionSnapshot, error) {
	session, err := w.Session(viewer)
	if err != nil {
		return nil, SessionSnapshot{}, err
	}
	snapshot := session.Snapshot()
	sections, err := w.feed.Compose(ctx, FeedRequest{
		Viewer:   strings.TrimSpace(viewer),
		Session:  snapshot,
		Entitled: w.entitlements.Entitled(ctx, viewer),
		Tab:      tab,
	})
	return sections, snapshot, err
}

// StartCheckout replaces the viewer's checkout flow with a new one for planIndex.
func (w *Workspace) StartCheckout(viewer string, planIndex int) (*CheckoutFlow, error) {
	state, err := w.viewer(viewer)
	if err != nil {
		return nil, err
	}
	flow, err := NewCheckoutFlow(viewer, planIndex, CheckoutFlowDeps{
		Catalog:           w.catalog,
		Payments:          w.deps.Payments,
		Purchases:         w.deps.Purchases,
		Entitlements:      w.entitlements,
		Metrics:           w.deps.Metrics,
		Currency:          w.deps.Currency,
		PreferredProvider: w.deps.PreferredProvider,
		Clock:             w.deps.Clock,
		Logger:            w.deps.Logger,
	})
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	state.checkout = flow
	w.mu.Unlock()
	return flow, nil
}

// Checkout returns the viewer's current checkout flow.
func (w *Workspace) Checkout(viewer string) (*CheckoutFlow, error) {
	state, err := w.viewer(viewer)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if state.checkout == nil {
		return nil, ErrCheckoutNotStarted
	}
	return state.checkout, nil
}

// Sweep drops viewers idle for longer than the configured TTL and stops their poll loops.
// It returns the number of viewers removed.
func (w *Workspace) Sweep(ctx context.Context) int {
	if w.deps.IdleTTL <= 0 {
		return 0
	}
	cutoff := w.clock().Add(-w.deps.IdleTTL)

	w.mu.Lock()
	var expired []*viewerState
	for id, state := range w.viewers {
		if state.lastSeen.Before(cutoff) {
			expired = append(expired, state)
			delete(w.viewers, id)
		}
	}
	w.mu.Unlock()

	for _, state := range expired {
		state.session.Close()
	}
	if len(expired) > 0 {
		w.logger(ctx, "workspace.swept", map[string]any{"viewers": len(expired)})
	}
	return len(expired)
}

// Close stops every poll loop and rejects further calls.
func (w *Workspace) Close() {
	w.mu.Lock()
	w.closed = true
	viewers := w.viewers
	w.viewers = make(map[string]*viewerState)
	w.mu.Unlock()

	for _, state := range viewers {
		state.session.Close()
	}
}
