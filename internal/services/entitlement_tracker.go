package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

type entitlementEntry struct {
	active    bool
	checkedAt time.Time
}

// EntitlementTrackerDeps bundles collaborators of the entitlement tracker.
type EntitlementTrackerDeps struct {
	Repository repositories.EntitlementRepository
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// EntitlementTracker caches each viewer's subscription status until a purchase invalidates it.
type EntitlementTracker struct {
	repo   repositories.EntitlementRepository
	clock  func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)

	mu      sync.Mutex
	entries map[string]entitlementEntry
}

var _ EntitlementSource = (*EntitlementTracker)(nil)

// NewEntitlementTracker validates dependencies and constructs the tracker.
func NewEntitlementTracker(deps EntitlementTrackerDeps) (*EntitlementTracker, error) {
	if deps.Repository == nil {
		return nil, errors.New("entitlement tracker: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &EntitlementTracker{
		repo: deps.Repository,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:  logger,
		entries: make(map[string]entitlementEntry),
	}, nil
}

// Entitled returns the cached status, fetching it on a miss. Lookup failures count as not
// entitled and are not cached, so the next read tries again.
func (t *EntitlementTracker) Entitled(ctx context.Context, viewer string) bool {
	viewer = strings.TrimSpace(viewer)
	if viewer == "" {
		return false
	}

	t.mu.Lock()
	entry, ok := t.entries[viewer]
	t.mu.Unlock()
	if ok {
		return entry.active
	}

	entitlement, err := t.repo.GetEntitlement(ctx, viewer)
	if err != nil {
		t.logger(ctx, "entitlement.lookup_failed", map[string]any{
			"viewerId": viewer,
			"error":    err.Error(),
		})
		return false
	}
	t.Seed(viewer, entitlement.Active)
	return entitlement.Active
}

// Seed records a status learned elsewhere, such as the profile fetch reply.
func (t *EntitlementTracker) Seed(viewer string, active bool) {
	viewer = strings.TrimSpace(viewer)
	if viewer == "" {
		return
	}
	t.mu.Lock()
	t.entries[viewer] = entitlementEntry{active: active, checkedAt: t.clock()}
	t.mu.Unlock()
}

// Invalidate drops the cached status so the next read refetches it.
func (t *EntitlementTracker) Invalidate(viewer string) {
	t.mu.Lock()
	delete(t.entries, strings.TrimSpace(viewer))
	t.mu.Unlock()
}

// CheckedAt reports when the cached status was recorded.
func (t *EntitlementTracker) CheckedAt(viewer string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[strings.TrimSpace(viewer)]
	return entry.checkedAt, ok
}
